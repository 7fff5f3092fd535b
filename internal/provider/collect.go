package provider

import (
	"context"
	"strings"
)

// Response is a fully drained streaming reply.
type Response struct {
	Text  string
	Usage Usage
}

// Collect sends req and drains the event stream into a Response. onDelta,
// when non-nil, receives every text delta as it arrives.
func Collect(ctx context.Context, p Provider, req *ChatRequest, onDelta func(string)) (*Response, error) {
	ch, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		sb      strings.Builder
		usage   Usage
		lastErr error
	)
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
			if onDelta != nil {
				onDelta(ev.TextDelta)
			}
		case EventDone:
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		case EventError:
			lastErr = ev.Error
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return &Response{Text: sb.String(), Usage: usage}, nil
}
