// Package alerts checks readings against configurable thresholds and
// raises deduplicated alerts.
package alerts

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

const (
	// cooldown suppresses repeats of the same alert type and level.
	cooldown = 5 * time.Second

	// historyCap bounds the alert history ring.
	historyCap = 100
)

// Level is the alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Type identifies what tripped the alert.
type Type string

const (
	TypeOvervoltage     Type = "overvoltage"
	TypeUndervoltage    Type = "undervoltage"
	TypeOvercurrent     Type = "overcurrent"
	TypeOverpower       Type = "overpower"
	TypeOvertemperature Type = "overtemperature"
	TypeVoltageDrop     Type = "voltage_drop"
	TypeConnectionLost  Type = "connection_lost"
)

// Thresholds are the alarm bounds. Zero values are legal (a MinVoltage of
// zero effectively disables the undervoltage check since readings at 0V
// are treated as no-load).
type Thresholds struct {
	MaxVoltage     float64 `json:"maxVoltage" yaml:"max_voltage"`
	MinVoltage     float64 `json:"minVoltage" yaml:"min_voltage"`
	MaxCurrent     float64 `json:"maxCurrent" yaml:"max_current"`
	MaxPower       float64 `json:"maxPower" yaml:"max_power"`
	MaxTemperature float64 `json:"maxTemperature" yaml:"max_temperature"`
	VoltageDrop    float64 `json:"voltageDrop" yaml:"voltage_drop"`
}

// DefaultThresholds returns the factory bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxVoltage:     21.0,
		MinVoltage:     3.0,
		MaxCurrent:     6.0,
		MaxPower:       120.0,
		MaxTemperature: 80.0,
		VoltageDrop:    0.5,
	}
}

// Alert is one raised alert.
type Alert struct {
	ID           string        `json:"id"`
	Type         Type          `json:"type"`
	Level        Level         `json:"level"`
	Message      string        `json:"message"`
	Timestamp    time.Time     `json:"timestamp"`
	Reading      meter.Reading `json:"reading"`
	Acknowledged bool          `json:"acknowledged"`
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "alerts"))
	}
}

// WithThresholds sets the initial thresholds.
func WithThresholds(t Thresholds) func(*Manager) {
	return func(m *Manager) {
		m.thresholds = t
	}
}

// WithCallback registers a function invoked for every raised alert, on
// the goroutine calling Check.
func WithCallback(fn func(Alert)) func(*Manager) {
	return func(m *Manager) {
		m.callbacks = append(m.callbacks, fn)
	}
}

// Manager evaluates readings against thresholds. Repeats of the same
// alert type and level within the cooldown window are suppressed. All
// methods are safe for concurrent use.
type Manager struct {
	logger    *slog.Logger
	callbacks []func(Alert)

	mu          sync.Mutex
	thresholds  Thresholds
	active      []*Alert
	history     []*Alert
	cooldowns   map[string]time.Time
	prevVoltage float64
	hasPrev     bool
	seq         int

	now func() time.Time
}

// New creates a Manager with default thresholds.
func New(options ...func(*Manager)) *Manager {
	m := Manager{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		thresholds: DefaultThresholds(),
		cooldowns:  make(map[string]time.Time),
		now:        time.Now,
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Thresholds returns the current bounds.
func (m *Manager) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// Configure replaces the bounds atomically.
func (m *Manager) Configure(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// Check evaluates one reading against every threshold and returns the
// alerts it raised, if any.
func (m *Manager) Check(r meter.Reading) []Alert {
	m.mu.Lock()

	t := m.thresholds
	var raised []Alert

	if r.Voltage > t.MaxVoltage {
		raised = m.raise(raised, TypeOvervoltage, LevelCritical,
			fmt.Sprintf("Voltage exceeded %.1fV: %.2fV", t.MaxVoltage, r.Voltage), r)
	}
	if r.Voltage < t.MinVoltage && r.Voltage > 0 {
		raised = m.raise(raised, TypeUndervoltage, LevelWarning,
			fmt.Sprintf("Voltage below %.1fV: %.2fV", t.MinVoltage, r.Voltage), r)
	}
	if r.Current > t.MaxCurrent {
		raised = m.raise(raised, TypeOvercurrent, LevelCritical,
			fmt.Sprintf("Current exceeded %.1fA: %.2fA", t.MaxCurrent, r.Current), r)
	}
	if r.Power > t.MaxPower {
		raised = m.raise(raised, TypeOverpower, LevelWarning,
			fmt.Sprintf("Power exceeded %.1fW: %.2fW", t.MaxPower, r.Power), r)
	}
	if r.Temperature != nil && *r.Temperature > t.MaxTemperature {
		raised = m.raise(raised, TypeOvertemperature, LevelCritical,
			fmt.Sprintf("Temperature exceeded %.1f°C: %.1f°C", t.MaxTemperature, *r.Temperature), r)
	}
	if m.hasPrev {
		if drop := m.prevVoltage - r.Voltage; drop > t.VoltageDrop {
			raised = m.raise(raised, TypeVoltageDrop, LevelWarning,
				fmt.Sprintf("Voltage dropped %.2fV (%.2fV → %.2fV)", drop, m.prevVoltage, r.Voltage), r)
		}
	}
	m.prevVoltage = r.Voltage
	m.hasPrev = true

	m.mu.Unlock()

	for _, a := range raised {
		m.logger.Warn(a.Message,
			slog.String("type", string(a.Type)),
			slog.String("level", string(a.Level)))
		for _, fn := range m.callbacks {
			fn(a)
		}
	}

	return raised
}

// raise appends a new alert unless its type and level are in cooldown.
// Must be called with m.mu held.
func (m *Manager) raise(raised []Alert, typ Type, level Level, message string, r meter.Reading) []Alert {
	key := string(typ) + "_" + string(level)
	now := m.now()

	if last, ok := m.cooldowns[key]; ok && now.Sub(last) < cooldown {
		return raised
	}

	m.seq++
	a := &Alert{
		ID:        fmt.Sprintf("%s-%d", typ, m.seq),
		Type:      typ,
		Level:     level,
		Message:   message,
		Timestamp: now,
		Reading:   r,
	}

	m.active = append(m.active, a)
	m.history = append(m.history, a)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.cooldowns[key] = now

	return append(raised, *a)
}

// Acknowledge marks an alert as seen and removes it from the active set;
// its history entry keeps the acknowledged flag. It reports whether the
// ID matched an active alert.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.active {
		if a.ID == id {
			a.Acknowledged = true
			m.active = append(m.active[:i:i], m.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the outstanding alerts, oldest first.
func (m *Manager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.active))
	for i, a := range m.active {
		out[i] = *a
	}
	return out
}

// History returns up to limit most recent alerts, oldest first.
func (m *Manager) History(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Alert, len(h))
	for i, a := range h {
		out[i] = *a
	}
	return out
}

// ClearAll drops every active alert.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
}
