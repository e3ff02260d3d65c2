// Package storage persists finished recording sessions to sqlite and
// exports them to portable formats.
package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/session"
)

// ErrSessionNotFound is returned when a session ID or name does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is a stored session's metadata, without its readings.
type SessionInfo struct {
	ID             int64                `json:"id"`
	Name           string               `json:"name"`
	StartTime      string               `json:"startTime"`
	EndTime        string               `json:"endTime"`
	ConnectionType meter.ConnectionType `json:"connectionType"`
	SampleCount    int64                `json:"sampleCount"`
}

// Store persists recording sessions. All write operations are atomic; a
// session and its readings land in one transaction or not at all.
type Store interface {
	// SaveSession stores a finished session together with all its
	// readings and returns the assigned ID.
	SaveSession(ctx context.Context, s *session.Session) (int64, error)

	// Session loads a stored session, readings included.
	Session(ctx context.Context, id int64) (*session.Session, error)

	// SessionByName loads the most recent stored session with the given
	// name.
	SessionByName(ctx context.Context, name string) (*session.Session, error)

	// Sessions lists stored session metadata ordered by start time.
	Sessions(ctx context.Context) ([]SessionInfo, error)

	// DeleteSession removes a session and its readings.
	DeleteSession(ctx context.Context, id int64) error

	// Close releases all database connections. Safe to call multiple
	// times.
	Close() error
}
