// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trialist-agent/internal/agent"
	"trialist-agent/internal/analytics"
	"trialist-agent/internal/calendar"
	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/knowledge"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"
	"trialist-agent/internal/scheduling"
	"trialist-agent/internal/transport/httpapi"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type captureSink struct {
	mu      sync.Mutex
	exports []*models.SessionExport
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Deliver(_ context.Context, e *models.SessionExport, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exports = append(c.exports, e)
	return nil
}

// stack is the whole service in one process, with the knowledge and
// calendar APIs replaced by local HTTP servers.
type stack struct {
	api           *httptest.Server
	mr            *miniredis.Miniredis
	sink          *captureSink
	dispatcher    *analytics.DirectDispatcher
	calendarHits  atomic.Int32
	calendarFails atomic.Bool
	lastEvent     atomic.Value
}

func newKnowledgeServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer kb-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["query"] == "teleportation" {
			_, _ = w.Write([]byte(`{"results":[],"totalResults":0,"requestId":"r-0"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"results":[{"resource":{"title":"Pricing plans","description":"Plans and limits"},
			"snippet":"Every workspace starts on the free plan.","highlights":["free plan"]}],
			"totalResults":1,"requestId":"r-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *stack) calendarHandler(w http.ResponseWriter, r *http.Request) {
	s.calendarHits.Add(1)
	if s.calendarFails.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var event calendar.Event
	_ = json.NewDecoder(r.Body).Decode(&event)
	s.lastEvent.Store(event)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"evt-77","hangoutLink":"https://meet.example/evt-77","status":"confirmed"}`))
}

func newStack(t *testing.T, mr *miniredis.Miniredis) *stack {
	log := logger.NewTestLogger(t)
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, loc) }

	s := &stack{mr: mr, sink: &captureSink{}}
	cal := httptest.NewServer(http.HandlerFunc(s.calendarHandler))
	t.Cleanup(cal.Close)
	kb := newKnowledgeServer(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := conversation.NewRedisCheckpointStore(client, time.Hour, log)

	searcher := knowledge.NewHTTPSearcher(config.KnowledgeConfig{
		BaseURL: kb.URL,
		APIKey:  "kb-key",
		AppID:   "intercom",
		Timeout: 2000,
	}, log)
	scheduler := scheduling.NewScheduler(
		calendar.NewHTTPCreator(config.CalendarConfig{
			BaseURL:    cal.URL,
			Token:      "cal-token",
			CalendarID: "primary",
			Timeout:    2000,
		}, log),
		scheduling.NewSlotResolver(loc, now, 10, 0),
		nil,
		scheduling.Config{Duration: 30 * time.Minute, SalesEmail: "sales@example.com"},
		log,
	)

	builder := agent.NewBuilder(agent.Dependencies{
		Resilience: config.ResilienceConfig{FailureThreshold: 3, MaxRetries: models.IntPtr(2), PhraseSeed: 5},
		Searcher:   searcher,
		Scheduler:  scheduler,
		Now:        now,
		RetryOptions: []resilience.ExecutorOption{
			resilience.WithSleep(func(context.Context, time.Duration) error { return nil }),
		},
		Logger: log,
	})

	exporter, err := analytics.NewExporter(
		[]analytics.Sink{s.sink, analytics.NewLogSink(log)},
		resilience.NewResponder(
			resilience.NewBreakers(resilience.DefaultBreakerConfig(), log),
			resilience.NewExecutor(resilience.RetryPolicy{}, log),
			resilience.NewPhrases(1),
			log,
		), analytics.Config{}, log)
	require.NoError(t, err)
	s.dispatcher = analytics.NewDirectDispatcher(exporter)

	manager := agent.NewManager(builder, store, exporter, s.dispatcher, log)
	router := httpapi.NewRouter(httpapi.NewHandler(manager, map[string]httpapi.Check{
		"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, log), httpapi.RouterOptions{}, log)

	s.api = httptest.NewServer(router)
	t.Cleanup(s.api.Close)
	return s
}

func (s *stack) call(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.api.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *stack) tool(t *testing.T, id, name string, args interface{}) map[string]interface{} {
	t.Helper()
	status, out := s.call(t, http.MethodPost, "/v1/sessions/"+id+"/tools/"+name, args)
	require.Equal(t, http.StatusOK, status, "%v", out)
	return out
}

func TestFullE2E(t *testing.T) {
	s := newStack(t, miniredis.RunT(t))

	status, created := s.call(t, http.MethodPost, "/v1/sessions", map[string]interface{}{
		"user_email": "jane@acme.example",
		"consent":    true,
	})
	require.Equal(t, http.StatusCreated, status)
	id := created["session_id"].(string)

	t.Run("discovery", func(t *testing.T) {
		status, utt := s.call(t, http.MethodPost, "/v1/sessions/"+id+"/utterances", map[string]string{
			"text": "We're a team of 12 and we live in Salesforce",
		})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "sales_ready", utt["tier"])

		res := s.tool(t, id, "search_knowledge", map[string]interface{}{"query": "pricing"})
		require.Equal(t, true, res["success"], "%v", res["error"])
		answer := res["output"].(map[string]interface{})
		assert.Equal(t, true, answer["found"])
		assert.Contains(t, answer["answer"], "free plan")

		res = s.tool(t, id, "search_knowledge", map[string]interface{}{"query": "teleportation"})
		require.Equal(t, true, res["success"])
		assert.Equal(t, false, res["output"].(map[string]interface{})["found"])

		for _, to := range []string{"DISCOVERY", "QUALIFICATION"} {
			res = s.tool(t, id, "transition_state", map[string]string{"to": to})
			require.Equal(t, true, res["success"], "%v", res["error"])
		}
	})

	t.Run("booking", func(t *testing.T) {
		res := s.tool(t, id, "book_sales_meeting", map[string]interface{}{
			"customer_name":  "Jane Doe",
			"preferred_date": "tomorrow",
			"preferred_time": "2pm",
		})
		require.Equal(t, true, res["success"], "%v", res["error"])
		out := res["output"].(map[string]interface{})
		assert.Equal(t, "Monday, October 19 at 02:00 PM EDT", out["meeting_time"])
		assert.Equal(t, "https://meet.example/evt-77", out["meeting_link"])
		assert.Equal(t, "NEXT_STEPS", out["conversation_state"])

		event := s.lastEvent.Load().(calendar.Event)
		assert.Equal(t, "2026-10-19T14:00:00-04:00", event.Start.DateTime)
		require.Len(t, event.Attendees, 1)
		assert.Equal(t, "jane@acme.example", event.Attendees[0].Email)
		assert.Equal(t, int32(1), s.calendarHits.Load())
	})

	t.Run("close", func(t *testing.T) {
		status, export := s.call(t, http.MethodPost, "/v1/sessions/"+id+"/close", map[string]string{"reason": "completed"})
		require.Equal(t, http.StatusOK, status)
		s.dispatcher.Wait()

		assert.Equal(t, "CLOSING", export["conversation_state"])
		assert.Equal(t, true, export["hot_lead"])
		assert.Len(t, export["tool_calls"], 5)

		require.Len(t, s.sink.exports, 1)
		assert.True(t, strings.HasPrefix(s.sink.exports[0].PartitionKey(), "sessions/year="))
		assert.False(t, s.mr.Exists("trialist:session:"+id))
	})
}

func TestCalendarOutageFallsBackAndOpensBreaker(t *testing.T) {
	s := newStack(t, miniredis.RunT(t))
	s.calendarFails.Store(true)

	_, created := s.call(t, http.MethodPost, "/v1/sessions", map[string]interface{}{"user_email": "ops@big.example"})
	id := created["session_id"].(string)
	s.tool(t, id, "record_signals", map[string]interface{}{"team_size": 40})

	res := s.tool(t, id, "book_sales_meeting", map[string]interface{}{"customer_name": "Ops Lead"})
	assert.Equal(t, false, res["success"])
	toolErr := res["error"].(map[string]interface{})
	assert.NotEmpty(t, toolErr["message"])
	assert.Equal(t, int32(3), s.calendarHits.Load(), "one call plus two retries")

	status, view := s.call(t, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 40, view["signals"].(map[string]interface{})["team_size"], "session survives the outage")
	breakers := view["breakers"].([]interface{})
	require.Len(t, breakers, 1)
	assert.Equal(t, "open", breakers[0].(map[string]interface{})["state"])

	res = s.tool(t, id, "book_sales_meeting", map[string]interface{}{"customer_name": "Ops Lead"})
	assert.Equal(t, true, res["error"].(map[string]interface{})["circuit_open"])
	assert.Equal(t, int32(3), s.calendarHits.Load(), "open breaker skips the calendar")
}

func TestSessionSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	first := newStack(t, mr)

	_, created := first.call(t, http.MethodPost, "/v1/sessions", map[string]interface{}{"session_id": "call-9001"})
	id := created["session_id"].(string)
	first.tool(t, id, "record_signals", map[string]interface{}{"monthly_volume": 250, "note": "agency"})
	first.tool(t, id, "transition_state", map[string]string{"to": "DISCOVERY"})

	second := newStack(t, mr)
	status, view := second.call(t, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, status, "%v", view)
	assert.Equal(t, "DISCOVERY", view["state"])
	assert.EqualValues(t, 250, view["signals"].(map[string]interface{})["monthly_volume"])
	assert.Equal(t, []interface{}{"agency"}, view["notes"])

	status, ready := second.call(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", ready["status"])
}
