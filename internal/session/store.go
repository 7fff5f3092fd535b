package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]SessionInfo, error)
	Delete(id string) error
	Close() error
}

// SessionInfo is a lightweight summary of a saved session (for listing).
type SessionInfo struct {
	ID        string
	Task      string
	Status    Status
	Steps     int
	Tokens    int
	CreatedAt time.Time
	UpdatedAt time.Time
}
