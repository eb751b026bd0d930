package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"trialist-agent/internal/analytics"
	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"
	"trialist-agent/pkg/registry"
)

// SessionView is the read model returned to API callers.
type SessionView struct {
	ID                    string                      `json:"session_id"`
	UserEmail             string                      `json:"user_email,omitempty"`
	State                 models.ConversationState    `json:"state"`
	AllowedNext           []models.ConversationState  `json:"allowed_next"`
	Signals               models.QualificationSignals `json:"signals"`
	Tier                  models.Tier                 `json:"tier"`
	QualifiedBy           []string                    `json:"qualified_by,omitempty"`
	ReadyForQualification bool                        `json:"ready_for_qualification"`
	Notes                 []string                    `json:"notes"`
	History               []models.StateTransition    `json:"history"`
	ToolCalls             int                         `json:"tool_calls"`
	Breakers              []resilience.BreakerStatus  `json:"breakers"`
}

func view(a *Agent) *SessionView {
	s := a.Session
	signals := s.Signals()
	engine := s.Engine()
	state := s.State()
	return &SessionView{
		ID:                    s.ID,
		UserEmail:             s.UserEmail(),
		State:                 state,
		AllowedNext:           conversation.Allowed(state),
		Signals:               signals,
		Tier:                  engine.Evaluate(signals),
		QualifiedBy:           engine.Explain(signals),
		ReadyForQualification: engine.ReadyForQualification(signals),
		Notes:                 s.Notes(),
		History:               s.Machine().History(),
		ToolCalls:             len(s.ToolCalls()),
		Breakers:              s.Responder().Breakers().Statuses(),
	}
}

type slot struct {
	mu     sync.Mutex
	agent  *Agent
	closed bool
}

// Manager owns the live sessions. Turns on one session are serialised;
// different sessions proceed in parallel.
type Manager struct {
	builder    *Builder
	store      conversation.CheckpointStore
	exporter   *analytics.Exporter
	dispatcher analytics.Dispatcher
	logger     logger.Logger

	mu       sync.Mutex
	sessions map[string]*slot
}

// NewManager wires the session manager. store, exporter and dispatcher may
// be nil.
func NewManager(builder *Builder, store conversation.CheckpointStore, exporter *analytics.Exporter, dispatcher analytics.Dispatcher, log logger.Logger) *Manager {
	return &Manager{
		builder:    builder,
		store:      store,
		exporter:   exporter,
		dispatcher: dispatcher,
		logger:     log.WithFields(map[string]interface{}{"component": "session_manager"}),
		sessions:   make(map[string]*slot),
	}
}

func (m *Manager) Tools() []registry.ToolDefinition {
	return append([]registry.ToolDefinition(nil), m.builder.Catalog().Tools...)
}

func (m *Manager) Create(ctx context.Context, opts StartOptions) (*SessionView, error) {
	opts.UserEmail = strings.TrimSpace(opts.UserEmail)
	a, err := m.builder.New(opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.sessions[a.Session.ID]; exists {
		m.mu.Unlock()
		return nil, errors.NewValidationFailedError("session " + a.Session.ID + " already exists")
	}
	m.sessions[a.Session.ID] = &slot{agent: a}
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.checkpoint(ctx, a)
	m.logger.Info("session started", map[string]interface{}{"session_id": a.Session.ID})
	return view(a), nil
}

// acquire returns the locked slot for id, resuming it from a checkpoint when
// it is not in memory. The caller must unlock it.
func (m *Manager) acquire(ctx context.Context, id string) (*slot, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		resumed, err := m.resume(ctx, id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if existing, raced := m.sessions[id]; raced {
			s = existing
		} else {
			s = &slot{agent: resumed}
			m.sessions[id] = s
			metrics.ActiveSessions.Inc()
		}
		m.mu.Unlock()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.NewNotFoundError("session", id)
	}
	return s, nil
}

func (m *Manager) resume(ctx context.Context, id string) (*Agent, error) {
	if m.store == nil {
		return nil, errors.NewNotFoundError("session", id)
	}
	cp, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	a, err := m.builder.Resume(cp)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session resumed from checkpoint", map[string]interface{}{
		"session_id": id,
		"state":      string(cp.State),
	})
	return a, nil
}

func (m *Manager) checkpoint(ctx context.Context, a *Agent) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, a.Session.Checkpoint()); err != nil {
		m.logger.Warn("checkpoint not saved", map[string]interface{}{
			"session_id": a.Session.ID,
			"error":      err.Error(),
		})
	}
}

func (m *Manager) Get(ctx context.Context, id string) (*SessionView, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return view(s.agent), nil
}

// Utterance runs signal extraction over one user turn.
func (m *Manager) Utterance(ctx context.Context, id, text string) (*conversation.UtteranceResult, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	res := s.agent.Session.ProcessUtterance(text)
	m.checkpoint(ctx, s.agent)
	return &res, nil
}

// InvokeTool runs one tool call from the dialogue model.
func (m *Manager) InvokeTool(ctx context.Context, id, tool string, args json.RawMessage) (*registry.Result, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	res, err := s.agent.Tools.Invoke(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	m.checkpoint(ctx, s.agent)
	return res, nil
}

// Close ends the session, hands the export to analytics and forgets the
// session. Analytics problems never fail the close.
func (m *Manager) Close(ctx context.Context, id, reason string) (*models.SessionExport, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	sess := s.agent.Session
	if reason == "" {
		reason = "completed"
	}
	if conversation.CanTransition(sess.State(), models.StateClosing) {
		sess.Transition(models.StateClosing, reason)
	}

	var export *models.SessionExport
	if m.exporter != nil {
		export = m.exporter.Prepare(sess, reason)
	} else {
		e := sess.Export(reason)
		export = &e
	}
	if m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, export); err != nil {
			m.logger.Warn("analytics dispatch failed", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}

	s.closed = true
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	metrics.ActiveSessions.Dec()

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("checkpoint not deleted", map[string]interface{}{"session_id": id, "error": err.Error()})
		}
	}
	m.logger.Info("session closed", map[string]interface{}{
		"session_id": id,
		"reason":     reason,
		"tier":       string(export.QualificationTier),
		"hot_lead":   export.HotLead,
	})
	return export, nil
}

// Evict drops the in-memory copy of a session, keeping its checkpoint.
func (m *Manager) Evict(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	metrics.ActiveSessions.Dec()
	return true
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
