package engine

import "context"

type wfCtxKey struct{}
type activityCtxKey struct{}

// WithWorkflowContext returns a child context carrying wf, so activity
// handlers invoked from within a workflow can retrieve the originating
// WorkflowContext if they need workflow-scoped telemetry.
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, wfCtxKey{}, wf)
}

// WithActivityContext marks ctx as originating from an activity invocation.
func WithActivityContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, activityCtxKey{}, true)
}

// IsActivityContext reports whether ctx is marked as an activity context.
func IsActivityContext(ctx context.Context) bool {
	b, ok := ctx.Value(activityCtxKey{}).(bool)
	return ok && b
}

// WorkflowContextFromContext extracts a WorkflowContext from ctx, or nil.
func WorkflowContextFromContext(ctx context.Context) WorkflowContext {
	if wf, ok := ctx.Value(wfCtxKey{}).(WorkflowContext); ok {
		return wf
	}
	return nil
}
