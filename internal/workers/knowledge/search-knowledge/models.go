// internal/workers/knowledge/search-knowledge/models.go
package searchknowledge

import (
	"encoding/json"

	"trialist-agent/internal/knowledge"
)

type Input struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Detailed bool   `json:"detailed,omitempty"`
}

// Output holds exactly one of the two answer shapes and marshals as that
// shape.
type Output struct {
	Concise  *knowledge.ConciseAnswer
	Detailed *knowledge.DetailedAnswer
}

func (o Output) MarshalJSON() ([]byte, error) {
	if o.Detailed != nil {
		return json.Marshal(o.Detailed)
	}
	return json.Marshal(o.Concise)
}
