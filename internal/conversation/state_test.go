package conversation

import (
	"testing"
	"time"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestMachine_StartsInGreeting(t *testing.T) {
	m := NewMachine(logger.NewTestLogger(t), nil)
	assert.Equal(t, models.StateGreeting, m.Current())
	assert.Empty(t, m.History())
}

func TestMachine_TransitionTable(t *testing.T) {
	tests := []struct {
		from, to models.ConversationState
		allowed  bool
	}{
		{models.StateGreeting, models.StateDiscovery, true},
		{models.StateGreeting, models.StateFrictionRescue, true},
		{models.StateGreeting, models.StateClosing, false},
		{models.StateDiscovery, models.StateValueDemo, true},
		{models.StateDiscovery, models.StateQualification, true},
		{models.StateDiscovery, models.StateNextSteps, false},
		{models.StateValueDemo, models.StateNextSteps, true},
		{models.StateQualification, models.StateNextSteps, true},
		{models.StateQualification, models.StateValueDemo, true},
		{models.StateQualification, models.StateFrictionRescue, false},
		{models.StateNextSteps, models.StateClosing, true},
		{models.StateNextSteps, models.StateQualification, true},
		{models.StateFrictionRescue, models.StateDiscovery, true},
		{models.StateFrictionRescue, models.StateClosing, true},
		{models.StateClosing, models.StateDiscovery, false},
		{models.StateClosing, models.StateGreeting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
	assert.Empty(t, Allowed(models.StateClosing))
}

func TestMachine_AcceptedTransitionsAreRecorded(t *testing.T) {
	m := NewMachine(logger.NewTestLogger(t), fixedClock())

	require.True(t, m.Transition(models.StateGreeting, models.StateDiscovery))
	require.True(t, m.TransitionWithReason(models.StateDiscovery, models.StateQualification, "signals gathered"))

	assert.Equal(t, models.StateQualification, m.Current())
	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, models.StateGreeting, history[0].From)
	assert.Equal(t, "signals gathered", history[1].Reason)
}

func TestMachine_ClosingIsTerminal(t *testing.T) {
	m := NewMachine(logger.NewTestLogger(t), fixedClock())
	m.load(models.StateClosing, nil)

	assert.False(t, m.Transition(models.StateClosing, models.StateDiscovery))
	assert.Equal(t, models.StateClosing, m.Current())
	assert.Empty(t, m.History())
}

func TestMachine_StaleFromRejected(t *testing.T) {
	m := NewMachine(logger.NewTestLogger(t), fixedClock())

	// DISCOVERY -> VALUE_DEMO is a legal edge, but the machine is in GREETING.
	assert.False(t, m.Transition(models.StateDiscovery, models.StateValueDemo))
	assert.Equal(t, models.StateGreeting, m.Current())
	assert.Empty(t, m.History())
}
