package tui

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Lines reads input one line at a time for several consumers, such as a
// PromptGate and a pause prompt sharing stdin. A single goroutine owns the
// reader, so a read abandoned on context cancellation is not lost: its line
// goes to whichever caller asks next.
type Lines struct {
	r    *bufio.Reader
	once sync.Once
	ch   chan line
}

type line struct {
	text string
	err  error
}

// NewLines wraps r. Nothing is read until the first ReadLine.
func NewLines(r io.Reader) *Lines {
	return &Lines{r: bufio.NewReader(r), ch: make(chan line)}
}

func (l *Lines) run() {
	for {
		s, err := l.r.ReadString('\n')
		l.ch <- line{strings.TrimSpace(s), err}
		if err != nil {
			close(l.ch)
			return
		}
	}
}

// ReadLine returns the next line without its line ending. A last line
// without a newline is returned before io.EOF.
func (l *Lines) ReadLine(ctx context.Context) (string, error) {
	l.once.Do(func() { go l.run() })
	select {
	case res, ok := <-l.ch:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil && (res.text == "" || !errors.Is(res.err, io.EOF)) {
			return res.text, res.err
		}
		return res.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
