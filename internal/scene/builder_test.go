package scene

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/improv/internal/domain"
)

func sessionWithTurns(n, maxTurns int) *domain.Session {
	boundaries := []int{4}
	s := &domain.Session{
		SessionID:       "s1",
		MaxTurns:        maxTurns,
		PhaseBoundaries: boundaries,
		Agents:          []string{"narrator", "sidekick"},
		Premise:         "a lighthouse",
	}
	for i := 0; i < n; i++ {
		s.History = append(s.History, domain.TurnRecord{
			TurnIndex:   i,
			Role:        domain.TurnRoleAgent,
			Speaker:     s.SpeakerFor(i),
			Content:     fmt.Sprintf("line %d", i),
			Input:       fmt.Sprintf("offer number %d here", i),
			PhaseAtTime: domain.PhaseFor(i, boundaries),
		})
	}
	s.CurrentTurn = n
	s.Phase = domain.PhaseFor(n, boundaries)
	s.Status = domain.StatusFor(n, maxTurns)
	return s
}

func TestBuildKeepsRecentWindowInOrder(t *testing.T) {
	b := NewBuilder(3)
	s := sessionWithTurns(6, 15)

	actx := b.Build(s)
	require.Len(t, actx.History, 3)
	assert.Equal(t, 3, actx.History[0].TurnIndex)
	assert.Equal(t, 4, actx.History[1].TurnIndex)
	assert.Equal(t, 5, actx.History[2].TurnIndex)
	assert.Equal(t, 6, actx.TurnIndex)
	assert.Equal(t, "narrator", actx.Speaker)
	assert.Equal(t, "a lighthouse", actx.Premise)
}

func TestBuildShortHistory(t *testing.T) {
	b := NewBuilder(3)
	actx := b.Build(sessionWithTurns(0, 15))
	assert.Empty(t, actx.History)
	assert.Equal(t, domain.PhaseWarmup, actx.Phase)

	actx = b.Build(sessionWithTurns(2, 15))
	assert.Len(t, actx.History, 2)
}

func TestBuildDoesNotAliasHistory(t *testing.T) {
	b := NewBuilder(3)
	s := sessionWithTurns(4, 15)
	actx := b.Build(s)
	actx.History[0].Content = "mutated"
	assert.Equal(t, "line 1", s.History[1].Content)
}

func TestBuildSelectsPhaseInstructions(t *testing.T) {
	b := NewBuilder(3)
	assert.Equal(t, InstructionsFor(domain.PhaseWarmup), b.Build(sessionWithTurns(3, 15)).Instructions)
	assert.Equal(t, InstructionsFor(domain.PhaseScene), b.Build(sessionWithTurns(4, 15)).Instructions)
	assert.Equal(t, "scene", b.Build(sessionWithTurns(4, 15)).PhaseName)
}

func TestInstructionsAreTotal(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range domain.AllPhases {
		text := InstructionsFor(p)
		assert.NotEmpty(t, text)
		assert.False(t, seen[text], "phase %d shares instructions", p)
		seen[text] = true
	}
	assert.Equal(t, InstructionsFor(domain.PhaseFinale), InstructionsFor(domain.Phase(9)))
	assert.Equal(t, InstructionsFor(domain.PhaseWarmup), InstructionsFor(domain.Phase(0)))
}

func TestBuildCoachingOnlyOnFinalTurn(t *testing.T) {
	b := NewBuilder(3)
	assert.False(t, b.Build(sessionWithTurns(13, 15)).IncludeCoaching)

	actx := b.Build(sessionWithTurns(14, 15))
	assert.True(t, actx.IncludeCoaching)
	assert.Equal(t, CoachingInstructions(), actx.CoachingInstructions)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(3)
	s := sessionWithTurns(7, 15)
	assert.Equal(t, b.Build(s), b.Build(s))
}

func TestNewBuilderDefaultsWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewBuilder(0).Window())
}

func TestDeriveFeedback(t *testing.T) {
	s := sessionWithTurns(15, 15)
	now := time.Unix(1700000000, 0)
	fb := DeriveFeedback(s.History, 15, now)

	assert.Equal(t, domain.FeedbackSourceDerived, fb.Source)
	assert.Equal(t, domain.TurnRoleCoach, fb.Role)
	assert.Equal(t, 15, fb.TurnIndex)
	assert.Contains(t, fb.Summary, "15 of 15 turns")
	assert.Contains(t, fb.Summary, "warmup, scene")
	assert.NotEmpty(t, fb.Strengths)
	assert.NotEmpty(t, fb.Suggestions)
	assert.Equal(t, now, fb.CreatedAt)
}

func TestDeriveFeedbackQuietParticipant(t *testing.T) {
	history := []domain.TurnRecord{
		{TurnIndex: 0, Speaker: "a", PhaseAtTime: domain.PhaseWarmup},
		{TurnIndex: 1, Speaker: "a", Input: "hi?", PhaseAtTime: domain.PhaseWarmup},
	}
	fb := DeriveFeedback(history, 2, time.Now())
	assert.Contains(t, fb.Summary, "1 of 2 turns")
	assert.Contains(t, fb.Suggestions, "Jump in on more turns; silence hands the scene to your partners.")
	assert.Contains(t, fb.Suggestions, "Add a detail to each line: a name, a place or a want.")
}
