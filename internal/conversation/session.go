package conversation

import (
	"strings"
	"sync"
	"time"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"
	"trialist-agent/internal/qualification"
	"trialist-agent/internal/resilience"

	"github.com/google/uuid"
)

// Session is the per-conversation state: signals, notes, phase, tool log and
// the breaker table guarding this session's external calls.
type Session struct {
	ID        string
	StartedAt time.Time

	mu        sync.Mutex
	userEmail string
	consent   bool
	signals   models.QualificationSignals
	notes     []string
	toolCalls []models.ToolCall

	machine   *Machine
	responder *resilience.Responder
	extractor *qualification.Extractor
	engine    *qualification.Engine
	now       func() time.Time
	logger    logger.Logger
}

// Options configures a new session. Responder and Engine are required.
type Options struct {
	ID        string
	UserEmail string
	Consent   bool
	Responder *resilience.Responder
	Engine    *qualification.Engine
	Now       func() time.Time
	Logger    logger.Logger
}

func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	log := opts.Logger.WithFields(map[string]interface{}{"session_id": opts.ID})

	return &Session{
		ID:        opts.ID,
		StartedAt: opts.Now(),
		userEmail: strings.TrimSpace(opts.UserEmail),
		consent:   opts.Consent,
		machine:   NewMachine(log, opts.Now),
		responder: opts.Responder,
		extractor: qualification.NewExtractor(),
		engine:    opts.Engine,
		now:       opts.Now,
		logger:    log,
	}
}

// UtteranceResult reports what a user turn changed.
type UtteranceResult struct {
	Detected              models.QualificationSignals `json:"detected"`
	Signals               models.QualificationSignals `json:"signals"`
	State                 models.ConversationState    `json:"state"`
	Tier                  models.Tier                 `json:"tier"`
	ReadyForQualification bool                        `json:"ready_for_qualification"`
	SuggestedNextState    models.ConversationState    `json:"suggested_next_state,omitempty"`
}

// ProcessUtterance extracts signals from a user turn and merges them.
func (s *Session) ProcessUtterance(text string) UtteranceResult {
	detected := s.extractor.Extract(text)

	s.mu.Lock()
	s.signals.Merge(detected)
	current := s.signals.Clone()
	s.mu.Unlock()

	res := UtteranceResult{
		Detected:              detected,
		Signals:               current,
		State:                 s.machine.Current(),
		Tier:                  s.engine.Evaluate(current),
		ReadyForQualification: s.engine.ReadyForQualification(current),
	}
	if res.ReadyForQualification && CanTransition(res.State, models.StateQualification) {
		res.SuggestedNextState = models.StateQualification
	}
	if !detected.IsEmpty() {
		s.logger.Debug("signals detected", map[string]interface{}{
			"state":   string(res.State),
			"tier":    string(res.Tier),
			"signals": detected,
		})
	}
	return res
}

// RecordSignals merges signals reported by the dialogue model.
func (s *Session) RecordSignals(update models.QualificationSignals) models.QualificationSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals.Merge(update)
	return s.signals.Clone()
}

func (s *Session) Signals() models.QualificationSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals.Clone()
}

func (s *Session) AddNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note)
}

func (s *Session) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

func (s *Session) UserEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userEmail
}

func (s *Session) SetUserEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEmail = strings.TrimSpace(email)
}

func (s *Session) Consent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent
}

func (s *Session) State() models.ConversationState {
	return s.machine.Current()
}

// Transition moves the session from its current phase to to.
func (s *Session) Transition(to models.ConversationState, reason string) bool {
	return s.machine.TransitionWithReason(s.machine.Current(), to, reason)
}

func (s *Session) Machine() *Machine {
	return s.machine
}

func (s *Session) Responder() *resilience.Responder {
	return s.responder
}

func (s *Session) Engine() *qualification.Engine {
	return s.engine
}

func (s *Session) Now() time.Time {
	return s.now()
}

func (s *Session) RecordToolCall(call models.ToolCall) {
	if call.Timestamp.IsZero() {
		call.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls = append(s.toolCalls, call)
}

func (s *Session) ToolCalls() []models.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ToolCall(nil), s.toolCalls...)
}

// Snapshot implements resilience.StateKeeper.
func (s *Session) Snapshot() models.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StateSnapshot{
		Signals:    s.signals.Clone(),
		Notes:      append([]string(nil), s.notes...),
		State:      s.machine.Current(),
		TakenAt:    s.now(),
		HistoryLen: s.machine.historyLen(),
	}
}

// Restore implements resilience.StateKeeper. Known values in the snapshot
// overwrite live values; values the snapshot did not know are left as they
// are. Notes and phase are replaced outright.
func (s *Session) Restore(snap models.StateSnapshot) {
	s.mu.Lock()
	s.signals.Merge(snap.Signals)
	s.notes = append([]string(nil), snap.Notes...)
	s.mu.Unlock()

	s.machine.rollback(snap.State, snap.HistoryLen)
	s.logger.Info("session state restored", map[string]interface{}{
		"state":    string(snap.State),
		"taken_at": snap.TakenAt,
	})
}

// Export assembles the analytics payload for the session as of now.
func (s *Session) Export(closeReason string) models.SessionExport {
	ended := s.now()
	signals := s.Signals()

	s.mu.Lock()
	out := models.SessionExport{
		SessionID:       s.ID,
		UserEmail:       s.userEmail,
		StartedAt:       s.StartedAt,
		EndedAt:         ended,
		DurationSeconds: ended.Sub(s.StartedAt).Seconds(),
		Signals:         signals,
		Notes:           append([]string(nil), s.notes...),
		ToolCalls:       append([]models.ToolCall(nil), s.toolCalls...),
		Consent:         s.consent,
		CloseReason:     closeReason,
	}
	s.mu.Unlock()

	out.ConversationState = s.machine.Current()
	out.StateHistory = s.machine.History()
	out.QualificationTier = s.engine.Evaluate(signals)
	out.QualifiedBy = s.engine.Explain(signals)
	return out
}
