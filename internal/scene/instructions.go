package scene

import "github.com/xiaot623/improv/internal/domain"

const warmupInstructions = `Phase: warmup

Establish who the characters are, where they are and what they want.
Accept every offer the participant makes and add one detail of your own.
Keep lines short so the participant has room to play.`

const sceneInstructions = `Phase: scene

Raise the stakes. Build on the relationships established in the warmup and
introduce a complication that follows from what has already happened.
Never contradict an established fact.`

const finaleInstructions = `Phase: finale

Steer the scene toward a resolution. Call back to earlier details and give
the participant a clear moment to land the ending.`

const coachingInstructions = `This is the final turn of the scene.

After your line, step out of character as a coach. Return a "feedback"
object with a one-paragraph "summary", up to three "strengths" and up to
three "suggestions" for the participant, based on the whole scene.`

// InstructionsFor returns the phase-specific instructions. Phases past the
// last defined phase use the finale instructions.
func InstructionsFor(p domain.Phase) string {
	switch p {
	case domain.PhaseWarmup:
		return warmupInstructions
	case domain.PhaseScene:
		return sceneInstructions
	case domain.PhaseFinale:
		return finaleInstructions
	}
	if p < domain.PhaseWarmup {
		return warmupInstructions
	}
	return finaleInstructions
}

// CoachingInstructions returns the instructions attached to the final turn.
func CoachingInstructions() string {
	return coachingInstructions
}
