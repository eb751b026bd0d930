// pkg/registry/registry.go
package registry

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/common/observability"
	"trialist-agent/internal/common/validation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"
)

//go:embed tools.json
var defaultCatalog []byte

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool catalog: entry without name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tool catalog: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
	}
	return &c, nil
}

// DefaultCatalog returns the built-in tool definitions.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Invoker runs one tool with raw JSON arguments.
type Invoker func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Typed adapts a handler taking a decoded input struct.
func Typed[In any, Out any](fn func(ctx context.Context, in *In) (*Out, error)) Invoker {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var in In
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, errors.NewValidationFailedError(err.Error())
		}
		return fn(ctx, &in)
	}
}

// Recorder receives one analytics record per invocation.
type Recorder interface {
	RecordToolCall(models.ToolCall)
}

type ToolError struct {
	Category    string `json:"category"`
	Message     string `json:"message"`
	CircuitOpen bool   `json:"circuit_open,omitempty"`
}

// Result is what the dialogue model gets back from a tool. Failures carry a
// message that can be spoken as-is.
type Result struct {
	Tool       string      `json:"tool"`
	Success    bool        `json:"success"`
	Output     interface{} `json:"output,omitempty"`
	Error      *ToolError  `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

type entry struct {
	def     ToolDefinition
	invoke  Invoker
	timeout time.Duration
}

// Registry maps tool names to handlers for one session.
type Registry struct {
	mu        sync.RWMutex
	catalog   *Catalog
	tools     map[string]entry
	schemas   *validation.SchemaValidator
	responder *resilience.Responder
	recorder  Recorder
	obs       *observability.Observability
	logger    logger.Logger
}

// New builds an empty registry. recorder and obs may be nil.
func New(catalog *Catalog, responder *resilience.Responder, recorder Recorder, obs *observability.Observability, log logger.Logger) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Registry{
		catalog:   catalog,
		tools:     make(map[string]entry),
		schemas:   validation.NewSchemaValidator(),
		responder: responder,
		recorder:  recorder,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "tool_registry"}),
	}
}

// Register binds a handler to a catalog tool. Tools missing from the catalog
// cannot be registered.
func (r *Registry) Register(name string, invoke Invoker) error {
	def, ok := r.catalog.Lookup(name)
	if !ok {
		return errors.NewUnknownToolError(name)
	}
	schema := def.InputSchema
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}
	if err := r.schemas.Register(name, schema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = entry{def: def, invoke: invoke, timeout: def.TimeoutDuration()}
	return nil
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Functions() []FunctionSpec {
	defs := r.List()
	out := make([]FunctionSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Function())
	}
	return out
}

// Invoke validates args, runs the tool and records the call. The returned
// error is non-nil only for unknown tools; tool failures are reported in the
// Result.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("unknown tool requested", map[string]interface{}{"tool": name})
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return nil, errors.NewUnknownToolError(name)
	}

	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}
	log := r.logger.WithFields(map[string]interface{}{"tool": name})
	start := time.Now()

	var decoded map[string]interface{}
	output, err := func() (interface{}, error) {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, errors.NewValidationFailedError("arguments must be a JSON object")
		}
		res, err := r.schemas.Validate(name, decoded)
		if err != nil {
			return nil, err
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return e.invoke(ctx, args)
	}()
	elapsed := time.Since(start)

	result := &Result{Tool: name, DurationMs: elapsed.Milliseconds()}
	call := models.ToolCall{Tool: name, Arguments: decoded}
	status := "success"

	if err != nil {
		re := r.recover(name, err)
		status = string(re.Category)
		result.Error = &ToolError{Category: string(re.Category), Message: re.Error(), CircuitOpen: re.CircuitOpen}
		call.Category = string(re.Category)
		log.Warn("tool failed", map[string]interface{}{"category": status, "durationMs": result.DurationMs})
	} else {
		result.Success = true
		result.Output = output
		call.Success = true
		call.Result = toMap(output)
		log.Info("tool completed", map[string]interface{}{"durationMs": result.DurationMs})
	}

	metrics.ToolCalls.WithLabelValues(name, status).Inc()
	metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	r.obs.RecordToolCall(ctx, name, status, elapsed)
	if r.recorder != nil {
		r.recorder.RecordToolCall(call)
	}
	return result, nil
}

func (r *Registry) recover(name string, err error) *resilience.RecoveryError {
	if re, ok := resilience.AsRecoveryError(err); ok {
		return re
	}
	category := r.responder.Classify(err, resilience.CategoryToolFailure)
	if errors.HasCode(err, errors.ErrCodeValidationFailed) {
		category = resilience.CategoryInvalidQuery
	}
	return r.responder.Reject(resilience.Call{Service: name}, category, err)
}

func toMap(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if json.Unmarshal(data, &m) != nil {
		return nil
	}
	return m
}
