package conversation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"

	"github.com/redis/go-redis/v9"
)

// Checkpoint is the durable form of a session, written after every turn so a
// session can be rebuilt when its in-memory copy is gone.
type Checkpoint struct {
	SessionID string                      `json:"session_id"`
	UserEmail string                      `json:"user_email,omitempty"`
	Consent   bool                        `json:"consent"`
	StartedAt time.Time                   `json:"started_at"`
	Signals   models.QualificationSignals `json:"signals"`
	Notes     []string                    `json:"notes"`
	State     models.ConversationState    `json:"state"`
	History   []models.StateTransition    `json:"history"`
	ToolCalls []models.ToolCall           `json:"tool_calls"`
	SavedAt   time.Time                   `json:"saved_at"`
}

// Checkpoint captures the session's current state.
func (s *Session) Checkpoint() *Checkpoint {
	s.mu.Lock()
	cp := &Checkpoint{
		SessionID: s.ID,
		UserEmail: s.userEmail,
		Consent:   s.consent,
		StartedAt: s.StartedAt,
		Signals:   s.signals.Clone(),
		Notes:     append([]string(nil), s.notes...),
		ToolCalls: append([]models.ToolCall(nil), s.toolCalls...),
		SavedAt:   s.now(),
	}
	s.mu.Unlock()

	cp.State = s.machine.Current()
	cp.History = s.machine.History()
	return cp
}

// ResumeSession rebuilds a session from a checkpoint. Breakers start fresh
// with whatever responder opts carries.
func ResumeSession(cp *Checkpoint, opts Options) *Session {
	opts.ID = cp.SessionID
	opts.UserEmail = cp.UserEmail
	opts.Consent = cp.Consent
	s := NewSession(opts)

	s.StartedAt = cp.StartedAt
	s.signals = cp.Signals.Clone()
	s.notes = append([]string(nil), cp.Notes...)
	s.toolCalls = append([]models.ToolCall(nil), cp.ToolCalls...)
	state := cp.State
	if !state.Valid() {
		state = models.StateGreeting
	}
	s.machine.load(state, cp.History)
	return s
}

// CheckpointStore persists session checkpoints.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	Delete(ctx context.Context, sessionID string) error
}

const checkpointKeyPrefix = "trialist:session:"

// RedisCheckpointStore keeps checkpoints as JSON strings with a TTL.
type RedisCheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCheckpointStore(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisCheckpointStore {
	return &RedisCheckpointStore{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "checkpoint_store"}),
	}
}

func checkpointKey(sessionID string) string {
	return checkpointKeyPrefix + sessionID
}

func (r *RedisCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errors.NewCheckpointFailedError(err)
	}
	if err := r.client.Set(ctx, checkpointKey(cp.SessionID), data, r.ttl).Err(); err != nil {
		r.logger.Warn("checkpoint save failed", map[string]interface{}{
			"session_id": cp.SessionID,
			"error":      err.Error(),
		})
		return errors.NewCheckpointFailedError(err)
	}
	return nil
}

// Load returns a NOT_FOUND StandardError when no checkpoint exists.
func (r *RedisCheckpointStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	data, err := r.client.Get(ctx, checkpointKey(sessionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NewNotFoundError("checkpoint", sessionID)
	}
	if err != nil {
		return nil, errors.NewCheckpointFailedError(err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.NewCheckpointFailedError(err)
	}
	return &cp, nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, checkpointKey(sessionID)).Err(); err != nil {
		return errors.NewCheckpointFailedError(err)
	}
	return nil
}
