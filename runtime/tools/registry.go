package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codeforge/assistant/internal/config"
	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/telemetry"
)

// Registry is the read-only-after-startup catalog of tools (spec.md §5
// "Shared-resource policy": the registry itself never mutates after Register
// calls finish; only the network-mode cell, owned by *config.Config, is
// atomic and mutable).
type Registry struct {
	cfg *config.Config
	log telemetry.Logger

	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// New constructs an empty Registry bound to cfg for network-mode checks.
func New(cfg *config.Config, log telemetry.Logger) *Registry {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Registry{
		cfg:     cfg,
		log:     log,
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the catalog, compiling its parameter schema once.
// Registration happens entirely at startup; Register is not safe to call
// concurrently with Execute/GetTool (spec.md §5).
func (r *Registry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	raw := t.ParametersSchema()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Wrap(apperr.KindPermanent, "invalid parameters_schema for tool "+t.Name(), err)
	}
	url := "mem://" + t.Name() + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return apperr.Wrap(apperr.KindPermanent, "cannot compile schema for tool "+t.Name(), err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return apperr.Wrap(apperr.KindPermanent, "cannot compile schema for tool "+t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schemas[t.Name()] = schema
	return nil
}

// GetTool looks up a tool by name, checking network-mode availability at
// lookup time (spec.md §4.1: "availability is checked at get_tool time and
// at execute time; the second check is authoritative").
func (r *Registry) GetTool(name string) (Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown tool: "+name)
	}
	if err := r.checkNetworkMode(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Registry) checkNetworkMode(t Tool) error {
	if r.cfg == nil {
		return nil
	}
	if r.cfg.GetNetworkMode() == config.NetworkOffline && t.NetworkType() == NetworkExternalAPI {
		return apperr.New(apperr.KindInvalidInput, "tool_unavailable_in_mode").
			WithDetails(map[string]any{"tool": t.Name(), "network_type": string(NetworkExternalAPI)})
	}
	return nil
}

// Execute validates params against the tool's compiled schema, re-checks
// network-mode (the authoritative check, spec.md §4.1), and runs the tool
// bounded by ctx's deadline.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, apperr.New(apperr.KindInvalidInput, "unknown tool: "+name)
	}

	// Authoritative network-mode check.
	if err := r.checkNetworkMode(t); err != nil {
		return Result{}, err
	}

	if schema != nil {
		if err := schema.Validate(toAnyMap(params)); err != nil {
			return Result{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_params", err)
		}
	}

	start := time.Now()
	res, err := t.Execute(ctx, params)
	if err != nil {
		if apperr.Is(err, apperr.KindTransient) {
			return Result{Success: false, Error: err.Error(), Metrics: elapsedSince(start)}, err
		}
		return Result{Success: false, Error: err.Error(), Metrics: elapsedSince(start)}, err
	}
	if res.Metrics == (Metrics{}) {
		res.Metrics = elapsedSince(start)
	}
	return res, nil
}

// Names returns every registered tool name, for diagnostics and the
// /tools/execute HTTP handler's validation.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

func toAnyMap(m map[string]any) any {
	// jsonschema/v6 validates against decoded JSON values (map[string]any,
	// []any, float64, string, bool, nil); params already arrive in that
	// shape from the HTTP/handler boundary, so no conversion is needed
	// beyond satisfying the `any` parameter type.
	return m
}
