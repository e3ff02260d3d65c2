package alerts

import (
	"testing"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

// testClock is an adjustable clock for cooldown tests.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(options ...func(*Manager)) (*Manager, *testClock) {
	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := New(options...)
	m.now = clock.now
	return m, clock
}

func reading(v, c float64) meter.Reading {
	return meter.Reading{Voltage: v, Current: c, Power: v * c}
}

func TestCheck_Thresholds(t *testing.T) {
	temp := 95.0
	tests := []struct {
		name     string
		reading  meter.Reading
		wantType Type
		wantLvl  Level
	}{
		{"overvoltage", reading(22.0, 0.1), TypeOvervoltage, LevelCritical},
		{"undervoltage", reading(2.5, 0.1), TypeUndervoltage, LevelWarning},
		{"overcurrent", reading(5.0, 6.5), TypeOvercurrent, LevelCritical},
		{"overpower", meter.Reading{Voltage: 20, Current: 6.05, Power: 121}, TypeOverpower, LevelWarning},
		{"overtemperature", meter.Reading{Voltage: 5, Current: 1, Power: 5, Temperature: &temp}, TypeOvertemperature, LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager()
			raised := m.Check(tt.reading)

			var found *Alert
			for i := range raised {
				if raised[i].Type == tt.wantType {
					found = &raised[i]
				}
			}
			if found == nil {
				t.Fatalf("no %s alert in %v", tt.wantType, raised)
			}
			if found.Level != tt.wantLvl {
				t.Errorf("level = %s, want %s", found.Level, tt.wantLvl)
			}
		})
	}
}

func TestCheck_CleanReadingRaisesNothing(t *testing.T) {
	m, _ := newTestManager()
	if raised := m.Check(reading(5.0, 1.0)); len(raised) != 0 {
		t.Errorf("clean reading raised %v", raised)
	}
}

func TestCheck_ZeroVoltageIsNotUndervoltage(t *testing.T) {
	m, _ := newTestManager()
	if raised := m.Check(reading(0, 0)); len(raised) != 0 {
		t.Errorf("no-load reading raised %v", raised)
	}
}

func TestCheck_VoltageDrop(t *testing.T) {
	m, _ := newTestManager()

	if raised := m.Check(reading(9.0, 1)); len(raised) != 0 {
		t.Fatalf("baseline reading raised %v", raised)
	}
	raised := m.Check(reading(8.0, 1))
	if len(raised) != 1 || raised[0].Type != TypeVoltageDrop {
		t.Fatalf("1V drop raised %v, want voltage_drop", raised)
	}
}

func TestCheck_CooldownSuppressesRepeats(t *testing.T) {
	m, clock := newTestManager()

	// A sustained overvoltage across many samples must produce exactly
	// one alert within the cooldown window.
	total := 0
	for i := 0; i < 100; i++ {
		total += len(m.Check(reading(22.0, 0.1)))
		clock.advance(10 * time.Millisecond)
	}
	if total != 1 {
		t.Fatalf("raised %d alerts in one second of overvoltage, want 1", total)
	}
	if active := m.Active(); len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}

	clock.advance(5 * time.Second)
	if raised := m.Check(reading(22.0, 0.1)); len(raised) != 1 {
		t.Errorf("raised %d after cooldown expiry, want 1", len(raised))
	}
}

func TestAcknowledge(t *testing.T) {
	m, _ := newTestManager()

	raised := m.Check(reading(22.0, 0.1))
	if len(raised) != 1 {
		t.Fatalf("raised = %v", raised)
	}

	if !m.Acknowledge(raised[0].ID) {
		t.Fatal("Acknowledge rejected a valid ID")
	}
	if m.Acknowledge("overvoltage-999") {
		t.Error("Acknowledge accepted an unknown ID")
	}
	// The active set is pruned immediately; the history entry survives
	// with the flag set.
	if active := m.Active(); len(active) != 0 {
		t.Errorf("active after ack = %v, want none", active)
	}
	h := m.History(0)
	if len(h) != 1 {
		t.Fatalf("history after ack = %d entries, want 1", len(h))
	}
	if !h[0].Acknowledged {
		t.Error("history entry not marked acknowledged")
	}
}

func TestHistory_RingAndLimit(t *testing.T) {
	m, clock := newTestManager()

	for i := 0; i < 120; i++ {
		m.Check(reading(22.0, 0.1))
		clock.advance(6 * time.Second) // past cooldown every time
	}

	h := m.History(0)
	if len(h) != 100 {
		t.Fatalf("history = %d entries, want capped at 100", len(h))
	}
	if h[0].ID == "overvoltage-1" {
		t.Error("history kept the oldest entry past capacity")
	}

	if got := m.History(10); len(got) != 10 {
		t.Errorf("History(10) = %d entries", len(got))
	} else if got[9].ID != h[99].ID {
		t.Errorf("History(10) does not end at the newest entry")
	}
}

func TestConfigure(t *testing.T) {
	m, _ := newTestManager()

	custom := DefaultThresholds()
	custom.MaxVoltage = 10.0
	m.Configure(custom)

	if got := m.Thresholds(); got.MaxVoltage != 10.0 {
		t.Fatalf("MaxVoltage = %v, want 10", got.MaxVoltage)
	}
	if raised := m.Check(reading(12.0, 0.1)); len(raised) != 1 || raised[0].Type != TypeOvervoltage {
		t.Errorf("12V with 10V limit raised %v", raised)
	}
}

func TestCallback(t *testing.T) {
	var got []Alert
	m, _ := newTestManager(WithCallback(func(a Alert) { got = append(got, a) }))

	m.Check(reading(22.0, 0.1))
	if len(got) != 1 || got[0].Type != TypeOvervoltage {
		t.Errorf("callback received %v", got)
	}
}
