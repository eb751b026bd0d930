// pkg/registry/schema.go
package registry

import "time"

type Catalog struct {
	Version     string           `json:"version"`
	LastUpdated string           `json:"lastUpdated"`
	Tools       []ToolDefinition `json:"tools"`
}

type ToolDefinition struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	Version     string                 `json:"version"`
	TaskType    string                 `json:"taskType"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	ErrorCodes  []string               `json:"errorCodes"`
	Timeout     string                 `json:"timeout"`
	Tags        []string               `json:"tags"`
}

func (d ToolDefinition) TimeoutDuration() time.Duration {
	if d.Timeout == "" {
		return 0
	}
	t, err := time.ParseDuration(d.Timeout)
	if err != nil {
		return 0
	}
	return t
}

// FunctionSpec is the function-calling shape handed to the dialogue model.
type FunctionSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

func (d ToolDefinition) Function() FunctionSpec {
	return FunctionSpec{Name: d.Name, Description: d.Description, Parameters: d.InputSchema}
}

// Lookup finds a tool by name.
func (c *Catalog) Lookup(name string) (ToolDefinition, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}
