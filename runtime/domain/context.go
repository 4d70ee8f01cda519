package domain

import "time"

// ContextEntry is one value in a workflow's SharedContext (spec.md §3/§4.5).
type ContextEntry struct {
	Key         string
	AgentID     string
	AgentRole   AgentRole
	Value       any
	Description string
	Timestamp   time.Time
}

// ContextLogAction classifies one SharedContext access-log entry.
type ContextLogAction string

const (
	ContextLogPut      ContextLogAction = "put"
	ContextLogGet      ContextLogAction = "get"
	ContextLogShadowed ContextLogAction = "shadowed"
)

// ContextLogEntry records one read or write against the shared context, used
// for UI diagnostics (spec.md §4.5).
type ContextLogEntry struct {
	Action  ContextLogAction
	Key     string
	Agents  []string
	At      time.Time
}
