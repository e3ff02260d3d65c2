package stats

import "github.com/fnb-tools/fnbmon/internal/meter"

// DefaultPhaseThreshold is the current above which a load counts as
// charging.
const DefaultPhaseThreshold = 0.1

type PhaseKind string

const (
	PhaseCharging PhaseKind = "charging"
	PhaseIdle     PhaseKind = "idle"
)

// Phase is a contiguous run of readings on one side of the current
// threshold. Start and End are reading indices, End inclusive.
type Phase struct {
	Kind  PhaseKind `json:"kind"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// Samples is the number of readings in the phase.
func (p Phase) Samples() int { return p.End - p.Start + 1 }

// Phases segments readings into charging and idle stretches. A reading
// drawing more than threshold amps counts as charging; threshold <= 0
// selects DefaultPhaseThreshold.
func Phases(readings []meter.Reading, threshold float64) []Phase {
	if len(readings) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultPhaseThreshold
	}

	kind := func(r meter.Reading) PhaseKind {
		if r.Current > threshold {
			return PhaseCharging
		}
		return PhaseIdle
	}

	var phases []Phase
	current := Phase{Kind: kind(readings[0])}
	for i, r := range readings[1:] {
		if k := kind(r); k != current.Kind {
			current.End = i // i is the index before this reading
			phases = append(phases, current)
			current = Phase{Kind: k, Start: i + 1}
		}
	}
	current.End = len(readings) - 1
	return append(phases, current)
}
