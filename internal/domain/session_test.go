package domain

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, SessionStatusInitialized, StatusFor(0, 15))
	assert.Equal(t, SessionStatusActive, StatusFor(1, 15))
	assert.Equal(t, SessionStatusActive, StatusFor(14, 15))
	assert.Equal(t, SessionStatusComplete, StatusFor(15, 15))
}

func TestPhaseForIsMonotonic(t *testing.T) {
	boundaries := []int{4, 10}
	prev := PhaseFor(0, boundaries)
	assert.Equal(t, PhaseWarmup, prev)
	for turn := 1; turn <= 15; turn++ {
		p := PhaseFor(turn, boundaries)
		assert.GreaterOrEqual(t, int(p), int(prev), "turn %d", turn)
		assert.Equal(t, p, PhaseFor(turn, boundaries), "recomputation must be stable")
		prev = p
	}
	assert.Equal(t, PhaseWarmup, PhaseFor(3, boundaries))
	assert.Equal(t, PhaseScene, PhaseFor(4, boundaries))
	assert.Equal(t, PhaseFinale, PhaseFor(10, boundaries))
}

func TestValidatePhaseBoundaries(t *testing.T) {
	require.NoError(t, ValidatePhaseBoundaries(nil, 15))
	require.NoError(t, ValidatePhaseBoundaries([]int{4}, 15))
	require.NoError(t, ValidatePhaseBoundaries([]int{4, 12}, 15))

	assert.Error(t, ValidatePhaseBoundaries([]int{0}, 15))
	assert.Error(t, ValidatePhaseBoundaries([]int{5, 5}, 15))
	assert.Error(t, ValidatePhaseBoundaries([]int{15}, 15))
	assert.Error(t, ValidatePhaseBoundaries([]int{2, 4, 6}, 15))
}

func TestPhaseNamesAreTotal(t *testing.T) {
	for _, p := range AllPhases {
		assert.True(t, p.Valid())
		assert.NotContains(t, p.Name(), "phase_")
	}
	assert.False(t, Phase(0).Valid())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" freemium ")
	require.NoError(t, err)
	assert.Equal(t, TierFreemium, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{
		SessionID:       "s1",
		PhaseBoundaries: []int{4},
		Agents:          []string{"a1"},
		History:         []TurnRecord{{TurnIndex: 0, Content: "hi"}},
		Feedback:        &Feedback{Strengths: []string{"listening"}},
	}
	c := s.Clone()
	c.History = append(c.History, TurnRecord{TurnIndex: 1})
	c.History[0].Content = "changed"
	c.Agents[0] = "a2"
	c.Feedback.Strengths[0] = "other"

	assert.Len(t, s.History, 1)
	assert.Equal(t, "hi", s.History[0].Content)
	assert.Equal(t, "a1", s.Agents[0])
	assert.Equal(t, "listening", s.Feedback.Strengths[0])
}

func TestSessionCheckInvariants(t *testing.T) {
	s := &Session{
		Status:          SessionStatusActive,
		CurrentTurn:     1,
		MaxTurns:        3,
		Phase:           PhaseWarmup,
		PhaseBoundaries: []int{2},
		History:         []TurnRecord{{TurnIndex: 0}},
	}
	require.NoError(t, s.CheckInvariants())

	s.History = nil
	assert.Error(t, s.CheckInvariants())

	s.History = []TurnRecord{{TurnIndex: 0}}
	s.Status = SessionStatusComplete
	assert.Error(t, s.CheckInvariants())

	s.Status = SessionStatusFailed
	assert.NoError(t, s.CheckInvariants())
}

func TestSpeakerForRotatesRoster(t *testing.T) {
	s := &Session{Agents: []string{"a", "b"}}
	assert.Equal(t, "a", s.SpeakerFor(0))
	assert.Equal(t, "b", s.SpeakerFor(1))
	assert.Equal(t, "a", s.SpeakerFor(2))
	assert.Equal(t, "", (&Session{}).SpeakerFor(3))
}

func TestErrorCodes(t *testing.T) {
	base := E(CodeOutOfSequenceTurn, "expected turn %d", 3)
	wrapped := fmt.Errorf("submit: %w", base)

	assert.Equal(t, CodeOutOfSequenceTurn, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeOutOfSequenceTurn))
	assert.Equal(t, "expected turn 3", MessageOf(wrapped))
	assert.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("plain")))

	assert.Equal(t, http.StatusConflict, CodeOutOfSequenceTurn.HTTPStatus())
	assert.Equal(t, http.StatusGatewayTimeout, CodeAgentTimeout.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, CodeAccessDenied.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodePersistence.HTTPStatus())
	assert.Equal(t, http.StatusRequestTimeout, CodeCanceled.HTTPStatus())
	assert.True(t, CodeCanceled.Retryable())

	assert.True(t, CodeAgentTimeout.Retryable())
	assert.False(t, CodeSessionTerminated.Retryable())
	assert.True(t, CodeVersionConflict.IsPersistence())
}
