package domain

import "fmt"

// Phase is a coarse-grained stage of the scene script. Phases are 1-based.
type Phase int

const (
	PhaseWarmup Phase = iota + 1
	PhaseScene
	PhaseFinale
)

// AllPhases lists every phase in script order.
var AllPhases = []Phase{PhaseWarmup, PhaseScene, PhaseFinale}

// Name returns the human-readable phase name.
func (p Phase) Name() string {
	switch p {
	case PhaseWarmup:
		return "warmup"
	case PhaseScene:
		return "scene"
	case PhaseFinale:
		return "finale"
	}
	return fmt.Sprintf("phase_%d", int(p))
}

// Valid reports whether the phase is one of AllPhases.
func (p Phase) Valid() bool {
	return p >= PhaseWarmup && p <= PhaseFinale
}

// PhaseFor computes the phase a session is in after currentTurn accepted
// turns. boundaries[i] is the turn index at which phase i+2 begins, so with
// boundaries [4] turns 0..3 are played in phase 1 and turn 4 onwards in
// phase 2. The result depends only on its inputs and never decreases as
// currentTurn grows.
func PhaseFor(currentTurn int, boundaries []int) Phase {
	phase := PhaseWarmup
	for _, b := range boundaries {
		if currentTurn >= b {
			phase++
		}
	}
	return phase
}

// ValidatePhaseBoundaries checks that boundaries are strictly increasing,
// inside (0, maxTurns) and do not outnumber the defined phases.
func ValidatePhaseBoundaries(boundaries []int, maxTurns int) error {
	if len(boundaries) > len(AllPhases)-1 {
		return fmt.Errorf("at most %d phase boundaries are supported, got %d", len(AllPhases)-1, len(boundaries))
	}
	prev := 0
	for _, b := range boundaries {
		if b <= prev {
			return fmt.Errorf("phase boundaries must be positive and strictly increasing: %v", boundaries)
		}
		if b >= maxTurns {
			return fmt.Errorf("phase boundary %d must be below max_turns %d", b, maxTurns)
		}
		prev = b
	}
	return nil
}
