package scene

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xiaot623/improv/internal/domain"
)

// shortLineWords is the participant line length below which offers are
// considered thin.
const shortLineWords = 4

// DeriveFeedback builds coaching feedback from the full scene history. It is
// used when the agent did not supply structured feedback on the final turn.
func DeriveFeedback(history []domain.TurnRecord, turnIndex int, now time.Time) *domain.Feedback {
	var (
		contributions int
		words         int
		shortLines    int
		questions     int
		phases        = map[domain.Phase]int{}
		speakers      = map[string]bool{}
	)
	for _, rec := range history {
		phases[rec.PhaseAtTime]++
		if rec.Speaker != "" {
			speakers[rec.Speaker] = true
		}
		input := strings.TrimSpace(rec.Input)
		if input == "" {
			continue
		}
		contributions++
		n := len(strings.Fields(input))
		words += n
		if n < shortLineWords {
			shortLines++
		}
		if strings.HasSuffix(input, "?") {
			questions++
		}
	}

	fb := &domain.Feedback{
		TurnIndex: turnIndex,
		Role:      domain.TurnRoleCoach,
		Source:    domain.FeedbackSourceDerived,
		CreatedAt: now,
		Summary: fmt.Sprintf("You played %d of %d turns across %s with %d scene partner(s).",
			contributions, len(history), phaseList(phases), len(speakers)),
	}

	if len(history) > 0 && contributions == len(history) {
		fb.Strengths = append(fb.Strengths, "You stayed in the scene for every turn.")
	}
	if contributions > 0 && shortLines*2 < contributions {
		fb.Strengths = append(fb.Strengths, "Your offers were specific enough for partners to build on.")
	}
	if len(phases) > 1 {
		fb.Strengths = append(fb.Strengths, "You carried the scene through a change of phase.")
	}

	if contributions < len(history) {
		fb.Suggestions = append(fb.Suggestions, "Jump in on more turns; silence hands the scene to your partners.")
	}
	if contributions > 0 && shortLines*2 >= contributions {
		fb.Suggestions = append(fb.Suggestions, "Add a detail to each line: a name, a place or a want.")
	}
	if contributions > 0 && questions*2 > contributions {
		fb.Suggestions = append(fb.Suggestions, "Make statements instead of asking questions so you add information.")
	}
	if len(fb.Suggestions) == 0 {
		fb.Suggestions = append(fb.Suggestions, "Try heightening earlier: raise the stakes before the finale.")
	}
	if contributions > 0 {
		fb.Summary += fmt.Sprintf(" Your lines averaged %d words.", words/contributions)
	}
	return fb
}

func phaseList(phases map[domain.Phase]int) string {
	if len(phases) == 0 {
		return "no phases"
	}
	keys := make([]int, 0, len(phases))
	for p := range phases {
		keys = append(keys, int(p))
	}
	sort.Ints(keys)
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = domain.Phase(k).Name()
	}
	return strings.Join(names, ", ")
}
