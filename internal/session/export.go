package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Export writes the session transcript to w as indented JSON.
func Export(w io.Writer, s *Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("export session %s: %w", s.ID, err)
	}
	return nil
}

// ExportFile writes the transcript to dir/<id>.json and returns the path.
func ExportFile(dir string, s *Session) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, s.ID+".json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := Export(f, s); err != nil {
		return "", err
	}
	return path, nil
}

// ErrInvalidTranscript is returned by Import for a transcript that could not
// have been written by Export.
var ErrInvalidTranscript = errors.New("invalid session transcript")

// Import reads a transcript written by Export and checks that it describes a
// session the agent could have produced.
func Import(r io.Reader) (*Session, error) {
	var s Session
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("import session: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("import session %s: %w", s.ID, err)
	}
	return &s, nil
}

func (s *Session) validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidTranscript)
	case !s.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTranscript, s.Status)
	case s.MaxSteps <= 0:
		return fmt.Errorf("%w: max_steps must be positive, got %d", ErrInvalidTranscript, s.MaxSteps)
	case len(s.Steps) > s.MaxSteps:
		return fmt.Errorf("%w: %d steps exceed max_steps %d", ErrInvalidTranscript, len(s.Steps), s.MaxSteps)
	}
	return nil
}
