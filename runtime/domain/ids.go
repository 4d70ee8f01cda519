// Package domain defines the data model shared across every orchestration
// component (spec.md §3): identifiers, the Plan/Stage graph, artifacts,
// shared-context entries, workflow state, the event union, and HITL
// request/response types. Components depend on this package rather than on
// each other's concrete types, the way the teacher's model package sits
// beneath planner/runtime/hooks.
package domain

import "time"

// SessionID identifies a user conversation. All per-session state is keyed
// by it.
type SessionID string

// WorkflowID uniquely identifies one workflow execution. A session
// accumulates many workflows over time.
type WorkflowID string

// StageID identifies one stage within a Plan.
type StageID string

// AgentRole names one of the enumerated agent handlers (spec.md §4.4).
type AgentRole string

const (
	RoleSupervisor   AgentRole = "supervisor"
	RolePlanner      AgentRole = "planner"
	RoleCoder        AgentRole = "coder"
	RoleReviewer     AgentRole = "reviewer"
	RoleQAGate       AgentRole = "qa_gate"
	RoleSecurityGate AgentRole = "security_gate"
	RoleRefiner      AgentRole = "refiner"
	RoleAggregator   AgentRole = "aggregator"
)

// Now is overridden in tests that need deterministic timestamps; domain
// timestamps (stores, events, checkpoints) call this rather than time.Now()
// directly so a single seam exists. Workflow code reads the clock through
// engine.WorkflowContext.Now() instead, which the in-memory engine answers
// with time.Now().
var Now = time.Now
