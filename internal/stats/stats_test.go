package stats

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/meter/wire"
)

func reading(v, c float64) meter.Reading {
	return meter.Reading{Voltage: v, Current: c, Power: v * c}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTracker_EmptySnapshot(t *testing.T) {
	s := New().Snapshot()
	if s.Samples != 0 || s.Voltage.Min != 0 || s.EnergyWh != 0 {
		t.Errorf("empty snapshot = %+v, want zeroes", s)
	}
}

func TestTracker_MinMaxAvg(t *testing.T) {
	tr := New()
	for _, v := range []float64{5.0, 4.8, 5.2} {
		tr.Update(reading(v, 1.0), 10*time.Millisecond)
	}

	s := tr.Snapshot()
	if s.Samples != 3 {
		t.Fatalf("samples = %d, want 3", s.Samples)
	}
	if s.Voltage.Min != 4.8 || s.Voltage.Max != 5.2 || !almostEqual(s.Voltage.Avg, 5.0) {
		t.Errorf("voltage = %+v", s.Voltage)
	}
	if s.Current.Min != 1.0 || s.Current.Max != 1.0 || s.Current.Avg != 1.0 {
		t.Errorf("current = %+v", s.Current)
	}
}

func TestTracker_TrapezoidalIntegration(t *testing.T) {
	tr := New()

	// Three samples one second apart: power 10W, 20W, 30W. Trapezoids
	// are (10+20)/2 + (20+30)/2 = 40 Ws = 40/3600 Wh. The first sample
	// only establishes the baseline.
	tr.Update(meter.Reading{Voltage: 5, Current: 2, Power: 10}, 0)
	if s := tr.Snapshot(); s.EnergyWh != 0 {
		t.Fatalf("energy after first sample = %v, want 0", s.EnergyWh)
	}
	tr.Update(meter.Reading{Voltage: 5, Current: 4, Power: 20}, time.Second)
	tr.Update(meter.Reading{Voltage: 5, Current: 6, Power: 30}, time.Second)

	s := tr.Snapshot()
	if want := 40.0 / 3600; !almostEqual(s.EnergyWh, want) {
		t.Errorf("energy = %v Wh, want %v", s.EnergyWh, want)
	}
	// Capacity: (2+4)/2 + (4+6)/2 = 8 As = 8/3600 Ah.
	if want := 8.0 / 3600; !almostEqual(s.CapacityAh, want) {
		t.Errorf("capacity = %v Ah, want %v", s.CapacityAh, want)
	}
	if s.Duration != 2 {
		t.Errorf("duration = %v s, want 2", s.Duration)
	}
}

// usbDataPacket builds a wire-format data packet with all four sample
// slots holding the same voltage and current.
func usbDataPacket(voltage, current float64) []byte {
	raw := make([]byte, wire.PacketSize)
	raw[0] = 0x04
	for _, off := range []int{1, 17, 33, 49} {
		binary.LittleEndian.PutUint32(raw[off:], uint32(voltage*100000))
		binary.LittleEndian.PutUint32(raw[off+4:], uint32(current*100000))
	}
	return raw
}

func TestTracker_FromDecodedPackets(t *testing.T) {
	// A three-packet capture at 5.00V drawing 1.00A, 1.20A and 1.50A,
	// decoded and folded in at the 10ms USB sample interval. Each packet
	// carries four samples, so the trapezoids are 3×1.00 within the first
	// packet, 1.10 across the first boundary, 3×1.20, 1.35, 3×1.50 —
	// 0.1355 As in total. Energy is the same sum at 5V: 0.6775 Ws.
	packets := [][]byte{
		usbDataPacket(5.00, 1.00),
		usbDataPacket(5.00, 1.20),
		usbDataPacket(5.00, 1.50),
	}

	tr := New()
	interval := 10 * time.Millisecond
	now := time.Now()
	for _, p := range packets {
		readings, err := wire.DecodePacket(p, now)
		if err != nil {
			t.Fatalf("DecodePacket: %v", err)
		}
		if len(readings) != 4 {
			t.Fatalf("DecodePacket returned %d readings, want 4", len(readings))
		}
		for _, r := range readings {
			tr.Update(r, interval)
		}
	}

	s := tr.Snapshot()
	if s.Samples != 12 {
		t.Fatalf("samples = %d, want 12", s.Samples)
	}
	if s.Current.Max != 1.50 {
		t.Errorf("max current = %v, want 1.50", s.Current.Max)
	}
	if s.Current.Min != 1.00 {
		t.Errorf("min current = %v, want 1.00", s.Current.Min)
	}
	if s.Voltage.Min != 5.00 || s.Voltage.Max != 5.00 {
		t.Errorf("voltage range = [%v, %v], want exactly 5.00", s.Voltage.Min, s.Voltage.Max)
	}
	if want := 0.1355 / 3600; !almostEqual(s.CapacityAh, want) {
		t.Errorf("capacity = %v Ah, want %v", s.CapacityAh, want)
	}
	if want := 0.6775 / 3600; !almostEqual(s.EnergyWh, want) {
		t.Errorf("energy = %v Wh, want %v", s.EnergyWh, want)
	}
}

func TestTracker_IntegralsMonotone(t *testing.T) {
	tr := New()
	tr.Update(reading(5, 1), 0)

	prev := 0.0
	for i := 0; i < 50; i++ {
		tr.Update(reading(5, 1), 10*time.Millisecond)
		s := tr.Snapshot()
		if s.EnergyWh < prev {
			t.Fatalf("energy decreased: %v -> %v", prev, s.EnergyWh)
		}
		prev = s.EnergyWh
	}
}

func TestTracker_ResetReplayIsDeterministic(t *testing.T) {
	run := func(tr *Tracker) Snapshot {
		for i := 0; i < 10; i++ {
			tr.Update(reading(5+float64(i)*0.1, 2), 100*time.Millisecond)
		}
		return tr.Snapshot()
	}

	tr := New()
	first := run(tr)
	tr.Reset()

	if s := tr.Snapshot(); s.Samples != 0 || s.EnergyWh != 0 || s.CapacityAh != 0 {
		t.Fatalf("snapshot after reset = %+v, want zeroes", s)
	}

	second := run(tr)
	if first.Samples != second.Samples ||
		!almostEqual(first.EnergyWh, second.EnergyWh) ||
		!almostEqual(first.CapacityAh, second.CapacityAh) ||
		!almostEqual(first.Voltage.Avg, second.Voltage.Avg) {
		t.Errorf("replay diverged: %+v vs %+v", first, second)
	}
}

func TestTracker_ChargeEstimateGating(t *testing.T) {
	tr := New()

	if _, ok := tr.ChargeEstimate(0); ok {
		t.Error("estimate available with no data")
	}

	// 99 samples over 20s: enough time, not enough samples.
	tr.Update(reading(5, 1), 0)
	for i := 0; i < 98; i++ {
		tr.Update(reading(5, 1), 205*time.Millisecond)
	}
	if _, ok := tr.ChargeEstimate(0); ok {
		t.Error("estimate available below sample threshold")
	}

	tr.Update(reading(5, 1), 205*time.Millisecond)
	if _, ok := tr.ChargeEstimate(0); !ok {
		t.Error("estimate unavailable with sufficient data")
	}

	// A near-idle load never estimates.
	idle := New()
	idle.Update(reading(5, 0.001), 0)
	for i := 0; i < 150; i++ {
		idle.Update(reading(5, 0.001), 100*time.Millisecond)
	}
	if _, ok := idle.ChargeEstimate(0); ok {
		t.Error("estimate available for sub-10mA average current")
	}
}

func TestTracker_ChargeEstimateProjection(t *testing.T) {
	tr := New()
	tr.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	tr.Reset() // pick up the fixed clock as the start time

	// 2A steady draw for 200 samples, 100ms apart: 19.9s... stretch dt
	// to clear the duration gate.
	tr.Update(reading(5, 2), 0)
	for i := 0; i < 200; i++ {
		tr.Update(reading(5, 2), 100*time.Millisecond)
	}

	e, ok := tr.ChargeEstimate(1000)
	if !ok {
		t.Fatal("estimate unavailable")
	}
	if e.Complete {
		t.Error("estimate claims completion")
	}
	// 2A for 20s = 2*20/3600 Ah ≈ 11.1 mAh charged.
	if want := 2.0 * 20 / 3600 * 1000; !almostEqual(e.ChargedmAh, want) {
		t.Errorf("charged = %v mAh, want %v", e.ChargedmAh, want)
	}
	if !almostEqual(e.AvgCurrentmA, 2000) {
		t.Errorf("avg current = %v mA, want 2000", e.AvgCurrentmA)
	}
	if e.Percent <= 0 || e.Percent >= 100 {
		t.Errorf("percent = %v, want within (0, 100)", e.Percent)
	}
	if !e.ETA.After(tr.now()) {
		t.Errorf("ETA = %v, want after %v", e.ETA, tr.now())
	}

	// Target already reached.
	done, ok := tr.ChargeEstimate(5)
	if !ok || !done.Complete || done.Percent != 100 {
		t.Errorf("estimate for reached target = %+v (%v)", done, ok)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{3599, "59m 59s"},
		{3600, "1h 0m 0s"},
		{5025, "1h 23m 45s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
