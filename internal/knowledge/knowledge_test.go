package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKnowledgeConfig(baseURL string) config.KnowledgeConfig {
	return config.KnowledgeConfig{
		Backend:     "http",
		BaseURL:     baseURL,
		APIKey:      "test-key",
		AppID:       "intercom",
		AssistantID: "asst-1",
		Timeout:     2000,
	}
}

func TestHTTPSearcher_RequestShape(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &captured))

		_, _ = w.Write([]byte(`{
			"results": [{
				"resource": {"title": "Templates", "description": "Reusable documents"},
				"snippet": "Open Templates and click New.",
				"highlights": ["click <em>New</em>"]
			}],
			"totalResults": 7,
			"requestId": "req-42"
		}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(testKnowledgeConfig(srv.URL), logger.NewTestLogger(t))
	res, err := s.Search(context.Background(), Query{Text: "how do I create a template", Category: "article"})
	require.NoError(t, err)

	assert.Equal(t, "how do I create a template", captured["query"])
	assert.Equal(t, true, captured["contentSearch"])
	assert.Equal(t, true, captured["semanticSearch"])
	assert.Equal(t, "asst-1", captured["assistantId"])
	assert.Equal(t, map[string]interface{}{"pageSize": float64(3), "pageNumber": float64(0)}, captured["paging"])
	assert.Equal(t, map[string]interface{}{
		"appId": []interface{}{"intercom"},
		"type":  []interface{}{"article"},
	}, captured["filters"])

	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Templates", res.Hits[0].Title)
	assert.Equal(t, 7, res.TotalResults)
	assert.Equal(t, "req-42", res.RequestID)
}

func TestHTTPSearcher_DetailedPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 5, body.Paging.PageSize)
		assert.Nil(t, body.Filters.Type)
		_, _ = w.Write([]byte(`{"results": [], "totalResults": 0}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(testKnowledgeConfig(srv.URL), logger.NewTestLogger(t))
	res, err := s.Search(context.Background(), Query{Text: "pricing", Detailed: true})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestHTTPSearcher_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      errors.ErrorCode
		retryable bool
	}{
		{http.StatusBadRequest, errors.ErrCodeBadRequest, false},
		{http.StatusUnauthorized, errors.ErrCodeAuthentication, false},
		{http.StatusForbidden, errors.ErrCodeAuthentication, false},
		{http.StatusNotFound, errors.ErrCodeNotFound, false},
		{http.StatusInternalServerError, errors.ErrCodeServiceUnavailable, true},
		{http.StatusBadGateway, errors.ErrCodeServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			s := NewHTTPSearcher(testKnowledgeConfig(srv.URL), logger.NewTestLogger(t))
			_, err := s.Search(context.Background(), Query{Text: "anything"})

			stdErr, ok := errors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
		})
	}
}

func TestHTTPSearcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cfg := testKnowledgeConfig(srv.URL)
	cfg.Timeout = 50
	s := NewHTTPSearcher(cfg, logger.NewTestLogger(t))

	_, err := s.Search(context.Background(), Query{Text: "slow"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
}

func TestHTTPSearcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPSearcher(testKnowledgeConfig(url), logger.NewTestLogger(t))
	_, err := s.Search(context.Background(), Query{Text: "anything"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
}

func TestHTTPSearcher_InputAndConfigGuards(t *testing.T) {
	s := NewHTTPSearcher(testKnowledgeConfig("http://unused.invalid"), logger.NewTestLogger(t))
	_, err := s.Search(context.Background(), Query{Text: "   "})
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadRequest))

	cfg := testKnowledgeConfig("http://unused.invalid")
	cfg.APIKey = ""
	s = NewHTTPSearcher(cfg, logger.NewTestLogger(t))
	_, err = s.Search(context.Background(), Query{Text: "pricing"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotConfigured))
}

func newTestESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSearcher_Search(t *testing.T) {
	var captured map[string]interface{}
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/help-articles/_search", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("size"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 2},
				"hits": [
					{"_source": {"title": "Salesforce integration", "description": "Sync deals"}, "highlight": {"body": ["Connect <em>Salesforce</em> in Settings"]}},
					{"_source": {"title": "CRM overview", "description": "All CRMs"}}
				]
			}
		}`))
	})

	s := NewElasticsearchSearcher(client, "help-articles", logger.NewTestLogger(t))
	res, err := s.Search(context.Background(), Query{Text: "salesforce", Category: "integration"})
	require.NoError(t, err)

	boolQuery := captured["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Contains(t, boolQuery, "filter")
	assert.Equal(t, 2, res.TotalResults)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "Connect <em>Salesforce</em> in Settings", res.Hits[0].Snippet)
	assert.Empty(t, res.Hits[1].Snippet)
}

func TestElasticsearchSearcher_StatusMapping(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "cluster red"}`))
	})

	s := NewElasticsearchSearcher(client, "help-articles", logger.NewTestLogger(t))
	_, err := s.Search(context.Background(), Query{Text: "anything"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeServiceUnavailable))
}

func TestNextAction(t *testing.T) {
	tests := []struct {
		query    string
		found    bool
		tier     models.Tier
		expected string
	}{
		{"anything", false, models.TierSelfServe, "provide_direct_guidance"},
		{"How do I set up templates", true, models.TierSelfServe, "provide_step_by_step_guide"},
		{"what does the business plan cost", true, models.TierSalesReady, "explain_enterprise_pricing_and_offer_call"},
		{"pricing", true, models.TierSelfServe, "explain_pricing_tiers"},
		{"salesforce integration", true, models.TierSelfServe, "explain_integration_steps"},
		{"signing is broken", true, models.TierSelfServe, "provide_troubleshooting_steps"},
		{"tell me about pandadoc", true, models.TierSelfServe, "provide_relevant_information"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextAction(tt.query, tt.found, tt.tier))
		})
	}
}

func TestConciseAndDetailed(t *testing.T) {
	res := &Result{
		Hits: []Hit{
			{Title: "Templates", Description: "Reusable documents", Highlights: []string{"a"}},
			{Title: "Content library", Snippet: "Store blocks"},
		},
		TotalResults: 2,
		RequestID:    "req-1",
	}

	c := Concise("create a template", res, models.TierSelfServe)
	require.NotNil(t, c.Answer)
	assert.Equal(t, "Templates", *c.Answer, "falls back to the title without a snippet")
	assert.Equal(t, "Reusable documents", c.Details)
	assert.Equal(t, "provide_step_by_step_guide", c.Action)
	assert.True(t, c.Found)

	empty := Concise("x", &Result{}, models.TierSelfServe)
	assert.Nil(t, empty.Answer)
	assert.Equal(t, "offer_human_help", empty.Action)
	assert.False(t, empty.Found)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer": null, "action": "offer_human_help", "found": false, "total_results": 0}`, string(data))

	d := Detailed("create a template", res, models.TierSelfServe)
	assert.Len(t, d.Results, 2)
	assert.Equal(t, []string{}, d.Results[1].Highlights)
	assert.Equal(t, "req-1", d.RequestID)
	assert.Equal(t, "provide_step_by_step_guide", d.SuggestedFollowup)
}
