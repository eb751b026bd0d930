// pkg/registry/catalog.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trialist-agent/internal/common/validation"
)

// Validate checks required fields, timeouts and that every input schema
// compiles.
func (c *Catalog) Validate() error {
	if len(c.Tools) == 0 {
		return fmt.Errorf("catalog contains no tools")
	}
	schemas := validation.NewSchemaValidator()
	names := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool missing required field: name")
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate tool name: %s", t.Name)
		}
		names[t.Name] = true

		if t.Description == "" {
			return fmt.Errorf("tool %s missing required field: description", t.Name)
		}
		if t.Timeout != "" && t.TimeoutDuration() <= 0 {
			return fmt.Errorf("tool %s has invalid timeout %q", t.Name, t.Timeout)
		}
		if t.InputSchema == nil {
			return fmt.Errorf("tool %s missing required field: inputSchema", t.Name)
		}
		if err := schemas.Register(t.Name, t.InputSchema); err != nil {
			return fmt.Errorf("tool %s: %w", t.Name, err)
		}
	}
	return nil
}

// Update sets one scalar field of a tool definition.
func (c *Catalog) Update(name, field, value string) error {
	for i := range c.Tools {
		if c.Tools[i].Name != name {
			continue
		}
		t := &c.Tools[i]
		switch field {
		case "displayName":
			t.DisplayName = value
		case "description":
			t.Description = value
		case "category":
			t.Category = value
		case "version":
			t.Version = value
		case "taskType":
			t.TaskType = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			t.Timeout = value
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		c.LastUpdated = time.Now().UTC().Format(time.RFC3339)
		return nil
	}
	return fmt.Errorf("tool %s not found", name)
}

// SaveCatalog writes c as indented JSON, creating the directory if needed.
func SaveCatalog(c *Catalog, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}
