package transitionstate

import (
	"context"
	"testing"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/qualification"
	"trialist-agent/internal/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSession(t *testing.T) *conversation.Session {
	log := logger.NewTestLogger(t)
	return conversation.NewSession(conversation.Options{
		Responder: resilience.NewResponder(
			resilience.NewBreakers(resilience.DefaultBreakerConfig(), log),
			resilience.NewExecutor(resilience.RetryPolicy{}, log),
			resilience.NewPhrases(4),
			log,
		),
		Engine: qualification.NewEngine(log),
		Logger: log,
	})
}

func TestHandler_Execute_Transitions(t *testing.T) {
	sess := createTestSession(t)
	h := NewHandler(LoadConfig(), sess, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{To: models.StateDiscovery})
	require.NoError(t, err)
	assert.Equal(t, models.StateGreeting, out.From)
	assert.Equal(t, models.StateDiscovery, out.State)
	assert.ElementsMatch(t, []models.ConversationState{
		models.StateValueDemo, models.StateQualification, models.StateFrictionRescue,
	}, out.Allowed)

	history := sess.Machine().History()
	require.Len(t, history, 1)
	assert.Equal(t, "dialogue", history[0].Reason)
}

func TestHandler_Execute_RejectsDisallowedEdge(t *testing.T) {
	sess := createTestSession(t)
	h := NewHandler(LoadConfig(), sess, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{To: models.StateClosing, Reason: "user left"})
	re, ok := resilience.AsRecoveryError(err)
	require.True(t, ok)
	assert.True(t, errors.HasCode(re.Unwrap(), errors.ErrCodeInvalidTransition))
	assert.Contains(t, re.Fallback, "DISCOVERY, FRICTION_RESCUE")
	assert.Equal(t, models.StateGreeting, sess.State())
	assert.Empty(t, sess.Machine().History())
}

func TestHandler_Execute_ClosingIsTerminal(t *testing.T) {
	sess := createTestSession(t)
	require.True(t, sess.Transition(models.StateFrictionRescue, "confused"))
	require.True(t, sess.Transition(models.StateClosing, "done"))
	h := NewHandler(LoadConfig(), sess, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{To: models.StateDiscovery})
	re, ok := resilience.AsRecoveryError(err)
	require.True(t, ok)
	assert.Contains(t, re.Fallback, "closing")
	assert.Equal(t, models.StateClosing, sess.State())
}

func TestHandler_Execute_UnknownState(t *testing.T) {
	h := NewHandler(LoadConfig(), createTestSession(t), logger.NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{To: "DANCING"})
	assert.Error(t, err)
}
