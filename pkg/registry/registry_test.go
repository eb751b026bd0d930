package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []models.ToolCall
}

func (r *recorder) RecordToolCall(c models.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func newRegistry(t *testing.T) (*Registry, *recorder) {
	log := logger.NewTestLogger(t)
	responder := resilience.NewResponder(
		resilience.NewBreakers(resilience.DefaultBreakerConfig(), log),
		resilience.NewExecutor(resilience.RetryPolicy{}, log),
		resilience.NewPhrases(3),
		log,
	)
	rec := &recorder{}
	return New(DefaultCatalog(), responder, rec, nil, log), rec
}

type searchIn struct {
	Query    string `json:"query"`
	Detailed bool   `json:"detailed"`
}

type searchOut struct {
	Answer string `json:"answer"`
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	names := make([]string, 0, len(c.Tools))
	for _, tool := range c.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.InputSchema, tool.Name)
		assert.Positive(t, tool.TimeoutDuration(), tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_knowledge", "book_sales_meeting", "record_signals", "transition_state", "check_qualification",
	}, names)
}

func TestParseCatalog_RejectsDuplicates(t *testing.T) {
	_, err := ParseCatalog([]byte(`{"tools":[{"name":"a"},{"name":"a"}]}`))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte(`{"tools":[{"displayName":"nameless"}]}`))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, os.WriteFile(path, defaultCatalog, 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	_, ok := c.Lookup("record_signals")
	assert.True(t, ok)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r, _ := newRegistry(t)
	noop := func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil }

	require.NoError(t, r.Register("transition_state", noop))
	require.NoError(t, r.Register("check_qualification", noop))
	err := r.Register("launch_rockets", noop)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownTool))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "check_qualification", list[0].Name)
	assert.Equal(t, "transition_state", list[1].Name)

	fns := r.Functions()
	assert.Equal(t, "transition_state", fns[1].Name)
	assert.Equal(t, "object", fns[1].Parameters["type"])
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	r, rec := newRegistry(t)
	var deadline bool
	require.NoError(t, r.Register("search_knowledge", Typed(func(ctx context.Context, in *searchIn) (*searchOut, error) {
		_, deadline = ctx.Deadline()
		return &searchOut{Answer: "answer for " + in.Query}, nil
	})))

	res, err := r.Invoke(context.Background(), "search_knowledge", json.RawMessage(`{"query":"pricing"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Error)
	assert.Equal(t, &searchOut{Answer: "answer for pricing"}, res.Output)
	assert.True(t, deadline, "catalog timeout applied")

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "search_knowledge", rec.calls[0].Tool)
	assert.True(t, rec.calls[0].Success)
	assert.Equal(t, "pricing", rec.calls[0].Arguments["query"])
	assert.Equal(t, "answer for pricing", rec.calls[0].Result["answer"])
}

func TestRegistry_InvokeFailures(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		err      error
		category resilience.Category
		called   bool
	}{
		{"schema violation", `{"detailed":true}`, nil, resilience.CategoryInvalidQuery, false},
		{"not an object", `["pricing"]`, nil, resilience.CategoryInvalidQuery, false},
		{"collaborator timeout", `{"query":"x"}`, errors.NewTimeoutError("knowledge", context.DeadlineExceeded), resilience.CategoryTimeout, true},
		{"unclassified error", `{"query":"x"}`, assert.AnError, resilience.CategoryToolFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newRegistry(t)
			called := false
			require.NoError(t, r.Register("search_knowledge", Typed(func(ctx context.Context, in *searchIn) (*searchOut, error) {
				called = true
				return nil, tt.err
			})))

			res, err := r.Invoke(context.Background(), "search_knowledge", json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, string(tt.category), res.Error.Category)
			assert.NotEmpty(t, res.Error.Message)
			assert.NotContains(t, res.Error.Message, "StandardError", "raw errors never reach the user")
			assert.Equal(t, tt.called, called)

			require.Len(t, rec.calls, 1)
			assert.False(t, rec.calls[0].Success)
			assert.Equal(t, string(tt.category), rec.calls[0].Category)
		})
	}
}

func TestRegistry_RecoveryErrorPassesThrough(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.Register("book_sales_meeting", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, &resilience.RecoveryError{
			Service:     "calendar",
			Category:    resilience.CategoryServiceUnavailable,
			Message:     "The calendar is unavailable.",
			Fallback:    "Email sales directly.",
			CircuitOpen: true,
		}
	}))

	res, err := r.Invoke(context.Background(), "book_sales_meeting", json.RawMessage(`{"customer_name":"Jane"}`))
	require.NoError(t, err)
	assert.Equal(t, &ToolError{
		Category:    "service_unavailable",
		Message:     "The calendar is unavailable. Email sales directly.",
		CircuitOpen: true,
	}, res.Error)
}

func TestRegistry_EmptyArgumentsAreAnObject(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.Register("check_qualification", func(context.Context, json.RawMessage) (interface{}, error) {
		return map[string]interface{}{"tier": "self_serve"}, nil
	}))

	for _, args := range []string{"", "null", "{}"} {
		res, err := r.Invoke(context.Background(), "check_qualification", json.RawMessage(args))
		require.NoError(t, err)
		assert.True(t, res.Success, "args %q", args)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r, rec := newRegistry(t)
	res, err := r.Invoke(context.Background(), "open_pod_bay_doors", nil)
	assert.Nil(t, res)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownTool))
	assert.Empty(t, rec.calls)
}

func TestToolDefinition_TimeoutDuration(t *testing.T) {
	assert.Equal(t, 15*time.Second, ToolDefinition{Timeout: "15s"}.TimeoutDuration())
	assert.Zero(t, ToolDefinition{Timeout: "soon"}.TimeoutDuration())
	assert.Zero(t, ToolDefinition{}.TimeoutDuration())
}
