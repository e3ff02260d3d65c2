// Package session records labelled runs of readings for later export and
// charting.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/stats"
)

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("a session is already being recorded")

	// ErrNotRecording is returned by Stop when no session is active.
	ErrNotRecording = errors.New("no session is being recorded")
)

// Session is a finished recording. It is immutable once returned by Stop.
type Session struct {
	Name           string               `json:"name"`
	StartTime      time.Time            `json:"startTime"`
	EndTime        time.Time            `json:"endTime"`
	ConnectionType meter.ConnectionType `json:"connectionType"`
	Readings       []meter.Reading      `json:"readings"`
	Stats          stats.Snapshot       `json:"stats"`
}

// Info describes the recording in progress.
type Info struct {
	Recording bool      `json:"recording"`
	Name      string    `json:"name,omitempty"`
	StartTime time.Time `json:"startTime"`
	Readings  int       `json:"readings"`
}

// WithLogger sets the recorder logger.
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "session"))
	}
}

// Recorder captures readings between Start and Stop. All methods are safe
// for concurrent use; Add between sessions is a no-op.
type Recorder struct {
	logger *slog.Logger

	mu       sync.Mutex
	name     string
	start    time.Time
	connType meter.ConnectionType
	readings []meter.Reading
	active   bool

	now func() time.Time
}

// New creates an idle Recorder.
func New(options ...func(*Recorder)) *Recorder {
	r := Recorder{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Start begins a recording. An empty name is substituted with a
// timestamped one.
func (r *Recorder) Start(name string, connType meter.ConnectionType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyRecording
	}

	start := r.now()
	if name == "" {
		name = fmt.Sprintf("session_%s", start.Format("20060102_150405"))
	}

	r.name = name
	r.start = start
	r.connType = connType
	r.readings = nil
	r.active = true

	r.logger.Info("recording started", slog.String("name", name))
	return nil
}

// Add appends a reading to the active session. Outside a session it does
// nothing.
func (r *Recorder) Add(reading meter.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.readings = append(r.readings, reading)
}

// Stop finishes the recording and returns the completed session together
// with the supplied statistics snapshot.
func (r *Recorder) Stop(snapshot stats.Snapshot) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return Session{}, ErrNotRecording
	}

	s := Session{
		Name:           r.name,
		StartTime:      r.start,
		EndTime:        r.now(),
		ConnectionType: r.connType,
		Readings:       r.readings,
		Stats:          snapshot,
	}

	r.active = false
	r.name = ""
	r.readings = nil

	r.logger.Info("recording stopped",
		slog.String("name", s.Name),
		slog.Int("readings", len(s.Readings)))
	return s, nil
}

// Current reports the state of the recording in progress.
func (r *Recorder) Current() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Info{
		Recording: r.active,
		Name:      r.name,
		StartTime: r.start,
		Readings:  len(r.readings),
	}
}
