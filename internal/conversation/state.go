package conversation

import (
	"sync"
	"time"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/models"
)

var transitions = map[models.ConversationState][]models.ConversationState{
	models.StateGreeting:       {models.StateDiscovery, models.StateFrictionRescue},
	models.StateDiscovery:      {models.StateValueDemo, models.StateQualification, models.StateFrictionRescue},
	models.StateValueDemo:      {models.StateQualification, models.StateNextSteps, models.StateFrictionRescue},
	models.StateQualification:  {models.StateNextSteps, models.StateValueDemo},
	models.StateNextSteps:      {models.StateClosing, models.StateQualification},
	models.StateFrictionRescue: {models.StateDiscovery, models.StateValueDemo, models.StateClosing},
	models.StateClosing:        {},
}

// Allowed returns the states reachable from from in one step.
func Allowed(from models.ConversationState) []models.ConversationState {
	return append([]models.ConversationState(nil), transitions[from]...)
}

// CanTransition reports whether from → to is an edge of the table.
func CanTransition(from, to models.ConversationState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine holds the current phase of one conversation. Transition is the only
// public way to change it.
type Machine struct {
	mu      sync.Mutex
	current models.ConversationState
	history []models.StateTransition
	now     func() time.Time
	logger  logger.Logger
}

func NewMachine(log logger.Logger, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		current: models.StateGreeting,
		now:     now,
		logger:  log.WithFields(map[string]interface{}{"component": "state_machine"}),
	}
}

func (m *Machine) Current() models.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves from → to if from is the current state and the edge
// exists. Rejected transitions are logged and leave the machine untouched.
func (m *Machine) Transition(from, to models.ConversationState) bool {
	return m.TransitionWithReason(from, to, "")
}

func (m *Machine) TransitionWithReason(from, to models.ConversationState, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := map[string]interface{}{
		"from":    string(from),
		"to":      string(to),
		"current": string(m.current),
	}

	if from != m.current {
		m.logger.Warn("transition rejected: stale from state", fields)
		metrics.StateTransitions.WithLabelValues(string(from), string(to), "rejected").Inc()
		return false
	}
	if !CanTransition(from, to) {
		m.logger.Warn("transition rejected: edge not allowed", fields)
		metrics.StateTransitions.WithLabelValues(string(from), string(to), "rejected").Inc()
		return false
	}

	m.current = to
	m.history = append(m.history, models.StateTransition{
		From:   from,
		To:     to,
		Reason: reason,
		At:     m.now(),
	})
	metrics.StateTransitions.WithLabelValues(string(from), string(to), "accepted").Inc()
	m.logger.Info("state transition", fields)
	return true
}

func (m *Machine) History() []models.StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StateTransition(nil), m.history...)
}

func (m *Machine) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// rollback resets the phase after a failed guarded call and drops history
// entries recorded after the snapshot was taken.
func (m *Machine) rollback(state models.ConversationState, keep int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = state
	if keep >= 0 && keep < len(m.history) {
		m.history = m.history[:keep]
	}
}

// load installs a checkpointed phase and history.
func (m *Machine) load(state models.ConversationState, history []models.StateTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = state
	m.history = append([]models.StateTransition(nil), history...)
}
