package knowledge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/errors"
	httpclient "trialist-agent/internal/common/http"
	"trialist-agent/internal/common/logger"

	"golang.org/x/time/rate"
)

type searchRequest struct {
	Query          string        `json:"query"`
	ContentSearch  bool          `json:"contentSearch"`
	SemanticSearch bool          `json:"semanticSearch"`
	Paging         searchPaging  `json:"paging"`
	Filters        searchFilters `json:"filters"`
	AssistantID    string        `json:"assistantId,omitempty"`
}

type searchPaging struct {
	PageSize   int `json:"pageSize"`
	PageNumber int `json:"pageNumber"`
}

type searchFilters struct {
	AppID []string `json:"appId"`
	Type  []string `json:"type,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Resource struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"resource"`
		Snippet    string   `json:"snippet"`
		Highlights []string `json:"highlights"`
	} `json:"results"`
	TotalResults int    `json:"totalResults"`
	RequestID    string `json:"requestId"`
}

// HTTPSearcher queries a hosted search API scoped to one content source.
type HTTPSearcher struct {
	cfg     config.KnowledgeConfig
	client  *httpclient.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

func NewHTTPSearcher(cfg config.KnowledgeConfig, log logger.Logger) *HTTPSearcher {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &HTTPSearcher{
		cfg:     cfg,
		client:  httpclient.NewClient(config.GetDuration(cfg.Timeout)),
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.WithFields(map[string]interface{}{"component": "knowledge_http"}),
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, errors.NewBadRequestError(ServiceName, "empty query")
	}
	if s.cfg.APIKey == "" {
		return nil, errors.NewNotConfiguredError(ServiceName)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.NewTimeoutError(ServiceName, err)
	}

	body := searchRequest{
		Query:          text,
		ContentSearch:  true,
		SemanticSearch: true,
		Paging:         searchPaging{PageSize: q.pageSize(), PageNumber: 0},
		Filters:        searchFilters{AppID: []string{s.cfg.AppID}},
		AssistantID:    s.cfg.AssistantID,
	}
	if q.Category != "" {
		body.Filters.Type = []string{q.Category}
	}

	start := time.Now()
	resp, err := s.client.DoJSON(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+"/search",
		map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}, body)
	if err != nil {
		s.logger.Warn("search transport error", map[string]interface{}{"error": err.Error()})
		return nil, transportError(ctx, err)
	}

	fields := map[string]interface{}{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"category":    q.Category,
	}
	if !resp.OK() {
		s.logger.Warn("search rejected", fields)
		return nil, statusError(resp.StatusCode, truncate(string(resp.Body), 200))
	}

	var decoded searchResponse
	if err := resp.Decode(&decoded); err != nil {
		return nil, errors.NewServiceUnavailableError(ServiceName, resp.StatusCode).WithMetadata("decode_error", err.Error())
	}

	out := &Result{TotalResults: decoded.TotalResults, RequestID: decoded.RequestID}
	for _, r := range decoded.Results {
		out.Hits = append(out.Hits, Hit{
			Title:       r.Resource.Title,
			Description: r.Resource.Description,
			Snippet:     r.Snippet,
			Highlights:  r.Highlights,
		})
	}
	fields["hits"] = len(out.Hits)
	s.logger.Info("search completed", fields)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
