package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchSearcher serves help articles from a self-hosted index with
// documents shaped {title, description, body, type}.
type ElasticsearchSearcher struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchSearcher(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchSearcher {
	return &ElasticsearchSearcher{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "knowledge_es", "index": index}),
	}
}

func buildArticleQuery(q Query) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  strings.TrimSpace(q.Text),
				"fields": []string{"title^3", "description^2", "body"},
				"type":   "best_fields",
			},
		},
	}

	boolQuery := map[string]interface{}{"must": must}
	if q.Category != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"type": q.Category}},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"body": map[string]interface{}{"fragment_size": 160, "number_of_fragments": 3},
			},
		},
		"track_total_hits": true,
	}
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchSearcher) Search(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.NewBadRequestError(ServiceName, "empty query")
	}

	body, err := json.Marshal(buildArticleQuery(q))
	if err != nil {
		return nil, errors.NewBadRequestError(ServiceName, err.Error())
	}

	size := q.pageSize()
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		s.logger.Warn("search transport error", map[string]interface{}{"error": err.Error()})
		return nil, transportError(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 200))
		s.logger.Warn("search rejected", map[string]interface{}{"status": res.StatusCode})
		return nil, statusError(res.StatusCode, string(detail))
	}

	var decoded esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, errors.NewServiceUnavailableError(ServiceName, res.StatusCode).WithMetadata("decode_error", err.Error())
	}

	out := &Result{TotalResults: decoded.Hits.Total.Value}
	for _, h := range decoded.Hits.Hits {
		hit := Hit{
			Title:       h.Source.Title,
			Description: h.Source.Description,
			Highlights:  h.Highlight["body"],
		}
		if len(hit.Highlights) > 0 {
			hit.Snippet = hit.Highlights[0]
		}
		out.Hits = append(out.Hits, hit)
	}
	s.logger.Debug("search completed", map[string]interface{}{"hits": len(out.Hits), "total": out.TotalResults})
	return out, nil
}
