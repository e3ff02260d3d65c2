package session

import (
	"errors"
	"testing"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/stats"
)

func TestRecorder_Lifecycle(t *testing.T) {
	r := New()
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	if info := r.Current(); info.Recording {
		t.Fatal("new recorder claims to be recording")
	}

	if err := r.Start("charge-test", meter.ConnectionUSB); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start("another", meter.ConnectionUSB); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start = %v, want ErrAlreadyRecording", err)
	}

	r.Add(meter.Reading{Voltage: 5, Current: 1, Power: 5})
	r.Add(meter.Reading{Voltage: 5, Current: 2, Power: 10})

	info := r.Current()
	if !info.Recording || info.Name != "charge-test" || info.Readings != 2 {
		t.Errorf("Current = %+v", info)
	}

	s, err := r.Stop(stats.Snapshot{Samples: 2})
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Name != "charge-test" || s.ConnectionType != meter.ConnectionUSB {
		t.Errorf("session = %+v", s)
	}
	if len(s.Readings) != 2 || s.Readings[1].Current != 2 {
		t.Errorf("readings = %+v", s.Readings)
	}
	if s.Stats.Samples != 2 {
		t.Errorf("stats not carried through: %+v", s.Stats)
	}

	if _, err := r.Stop(stats.Snapshot{}); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop while idle = %v, want ErrNotRecording", err)
	}
}

func TestRecorder_AutoName(t *testing.T) {
	r := New()
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC) }

	if err := r.Start("", meter.ConnectionBluetooth); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, want := r.Current().Name, "session_20250601_123456"; got != want {
		t.Errorf("auto name = %q, want %q", got, want)
	}
}

func TestRecorder_AddWhileIdleIsNoop(t *testing.T) {
	r := New()
	r.Add(meter.Reading{Voltage: 5})

	if err := r.Start("s", meter.ConnectionUSB); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s, err := r.Stop(stats.Snapshot{})
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(s.Readings) != 0 {
		t.Errorf("idle Add leaked into the session: %+v", s.Readings)
	}
}

func TestRecorder_SessionIsDetached(t *testing.T) {
	r := New()
	if err := r.Start("s", meter.ConnectionUSB); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Add(meter.Reading{Voltage: 5})
	s, err := r.Stop(stats.Snapshot{})
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A new recording must not alias the returned session's readings.
	if err := r.Start("t", meter.ConnectionUSB); err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.Add(meter.Reading{Voltage: 9})

	if len(s.Readings) != 1 || s.Readings[0].Voltage != 5 {
		t.Errorf("stopped session mutated: %+v", s.Readings)
	}
}
