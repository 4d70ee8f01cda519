// Package tools implements the Tool Registry & Executor (C1): a catalog of
// callable tools, JSON-schema parameter validation, timeout-bounded
// invocation, and network-mode gating. Grounded on the teacher's
// runtime/agent/tools vocabulary (ToolSpec, ID, FieldIssue), generalized
// from a codegen-time DSL artifact into a runtime-registered catalog
// (spec.md §4.1).
package tools

import (
	"context"
	"time"

	"github.com/codeforge/assistant/runtime/apperr"
)

// Category classifies a tool for policy and UI grouping (spec.md §4.1).
type Category string

const (
	CategoryFile Category = "file"
	CategoryCode Category = "code"
	CategoryGit  Category = "git"
	CategoryWeb  Category = "web"
	CategorySearch Category = "search"
)

// NetworkType classifies a tool's outbound network exposure for the
// process-wide network-mode gate (spec.md §4.1).
type NetworkType string

const (
	NetworkLocal             NetworkType = "local"
	NetworkInternal          NetworkType = "internal"
	NetworkExternalAPI       NetworkType = "external_api"
	NetworkExternalDownload  NetworkType = "external_download"
)

// Metrics accompanies every ToolResult with timing accounting.
type Metrics struct {
	ElapsedMillis int64
}

// Result is the outcome of one tool execution (spec.md §4.1).
type Result struct {
	Success bool
	Output  any
	Error   string
	Metrics Metrics
}

// Tool is the contract every registered tool implements.
type Tool interface {
	Name() string
	Category() Category
	NetworkType() NetworkType
	// ParametersSchema returns the tool's JSON Schema (draft 2020-12)
	// document describing its parameters.
	ParametersSchema() []byte
	// Execute runs the tool. ctx carries the stage's deadline; Execute must
	// return promptly once ctx is done (spec.md §4.1 concurrency rule).
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

// runWithTimeout is a small helper every concrete tool can use to bound its
// own blocking work to ctx's deadline, returning apperr(KindTransient,
// "timeout") if the deadline elapses first. Tools that shell out (os/exec)
// instead rely on exec.CommandContext for cancellation and do not need this
// helper.
func runWithTimeout(ctx context.Context, fn func() (Result, error)) (Result, error) {
	type out struct {
		res Result
		err error
	}
	ch := make(chan out, 1)
	go func() {
		res, err := fn()
		ch <- out{res, err}
	}()
	select {
	case <-ctx.Done():
		return Result{}, apperr.New(apperr.KindTransient, "timeout")
	case o := <-ch:
		return o.res, o.err
	}
}

func elapsedSince(start time.Time) Metrics {
	return Metrics{ElapsedMillis: time.Since(start).Milliseconds()}
}
