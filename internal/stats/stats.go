// Package stats accumulates running statistics over a reading stream:
// min/max/avg for voltage, current and power, plus integrated energy and
// capacity.
package stats

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

const (
	// estimateMinSamples, estimateMinDuration and estimateMinCurrent gate
	// the charge estimate: anything less and the averages are too noisy
	// to extrapolate from.
	estimateMinSamples  = 100
	estimateMinDuration = 10 * time.Second
	estimateMinCurrent  = 0.01 // A
)

// Stat is a min/max/avg triple for one measured quantity.
type Stat struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Snapshot is a point-in-time copy of the accumulated statistics.
type Snapshot struct {
	Samples    int       `json:"samples"`
	Voltage    Stat      `json:"voltage"`
	Current    Stat      `json:"current"`
	Power      Stat      `json:"power"`
	EnergyWh   float64   `json:"energyWh"`
	CapacityAh float64   `json:"capacityAh"`
	Duration   float64   `json:"durationSeconds"`
	StartTime  time.Time `json:"startTime"`
}

// Estimate projects charge completion from the average current draw.
type Estimate struct {
	Complete      bool          `json:"complete"`
	ChargedmAh    float64       `json:"chargedmAh"`
	TargetmAh     float64       `json:"targetmAh,omitempty"`
	RemainingmAh  float64       `json:"remainingmAh,omitempty"`
	AvgCurrentmA  float64       `json:"avgCurrentmA"`
	RemainingTime time.Duration `json:"remainingSeconds"`
	ETA           time.Time     `json:"eta"`
	Percent       float64       `json:"percent,omitempty"`
}

// Tracker accumulates statistics. Integrals use the trapezoidal rule over
// consecutive readings, so the first sample establishes a baseline and
// contributes nothing. All methods are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	samples   int
	startTime time.Time
	duration  float64 // seconds

	vMin, vMax, vSum float64
	cMin, cMax, cSum float64
	pMin, pMax, pSum float64

	energyWh   float64
	capacityAh float64

	hasPrev          bool
	prevCur, prevPow float64

	now func() time.Time
}

// New creates a Tracker with its window starting now.
func New() *Tracker {
	t := Tracker{now: time.Now}
	t.reset()
	return &t
}

func (t *Tracker) reset() {
	t.samples = 0
	t.startTime = t.now()
	t.duration = 0
	t.vMin, t.vMax, t.vSum = math.Inf(1), 0, 0
	t.cMin, t.cMax, t.cSum = math.Inf(1), 0, 0
	t.pMin, t.pMax, t.pSum = math.Inf(1), 0, 0
	t.energyWh, t.capacityAh = 0, 0
	t.hasPrev = false
	t.prevCur, t.prevPow = 0, 0
}

// Reset discards all accumulated state and restarts the window.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// Update folds one reading in. dt is the time since the previous reading;
// it is ignored for the first reading after a reset.
func (t *Tracker) Update(r meter.Reading, dt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples++
	t.vMin = math.Min(t.vMin, r.Voltage)
	t.vMax = math.Max(t.vMax, r.Voltage)
	t.vSum += r.Voltage
	t.cMin = math.Min(t.cMin, r.Current)
	t.cMax = math.Max(t.cMax, r.Current)
	t.cSum += r.Current
	t.pMin = math.Min(t.pMin, r.Power)
	t.pMax = math.Max(t.pMax, r.Power)
	t.pSum += r.Power

	if t.hasPrev {
		sec := dt.Seconds()
		t.energyWh += (t.prevPow + r.Power) / 2 * sec / 3600
		t.capacityAh += (t.prevCur + r.Current) / 2 * sec / 3600
		t.duration += sec
	}

	t.hasPrev = true
	t.prevCur = r.Current
	t.prevPow = r.Power
}

// Snapshot returns a copy of the accumulated statistics. An empty tracker
// snapshots to all zeroes.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Samples:    t.samples,
		EnergyWh:   t.energyWh,
		CapacityAh: t.capacityAh,
		Duration:   t.duration,
		StartTime:  t.startTime,
	}
	if t.samples == 0 {
		return s
	}

	n := float64(t.samples)
	s.Voltage = Stat{Min: t.vMin, Max: t.vMax, Avg: t.vSum / n}
	s.Current = Stat{Min: t.cMin, Max: t.cMax, Avg: t.cSum / n}
	s.Power = Stat{Min: t.pMin, Max: t.pMax, Avg: t.pSum / n}
	return s
}

// ChargeEstimate extrapolates charge completion from the average current.
// targetmAh of zero reports progress without a completion projection. The
// second return is false while there is not yet enough data to
// extrapolate from.
func (t *Tracker) ChargeEstimate(targetmAh float64) (Estimate, bool) {
	t.mu.Lock()
	samples := t.samples
	duration := t.duration
	cSum := t.cSum
	capacityAh := t.capacityAh
	t.mu.Unlock()

	if samples < estimateMinSamples || duration < estimateMinDuration.Seconds() {
		return Estimate{}, false
	}

	avgCurrent := cSum / float64(samples)
	if avgCurrent < estimateMinCurrent {
		return Estimate{}, false
	}

	chargedmAh := capacityAh * 1000
	e := Estimate{
		ChargedmAh:   chargedmAh,
		AvgCurrentmA: avgCurrent * 1000,
	}
	if targetmAh <= 0 {
		return e, true
	}

	e.TargetmAh = targetmAh
	if chargedmAh >= targetmAh {
		e.Complete = true
		e.Percent = 100
		return e, true
	}

	e.RemainingmAh = targetmAh - chargedmAh
	remainingHours := e.RemainingmAh / e.AvgCurrentmA
	e.RemainingTime = time.Duration(remainingHours * float64(time.Hour))
	e.ETA = t.now().Add(e.RemainingTime)
	e.Percent = chargedmAh / targetmAh * 100
	return e, true
}

// FormatDuration renders seconds as "1h 23m 45s", omitting leading zero
// units.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
