package models

import "time"

// AgentPhase represents the lifecycle phase of a tracked session.
type AgentPhase string

const (
	AgentActive AgentPhase = "active"
	AgentEnded  AgentPhase = "ended"
)

// Agent is one tracked external coding-agent session. It is the join point
// between the two telemetry sources: a hook-supplied session id (PushKey) and
// a transcript-derived directory key (PollKey) may both point at the same
// Agent. PushKey, once claimed, is never remapped for the Agent's lifetime.
type Agent struct {
	ID        string
	ProjectID string
	PushKey   string
	PollKey   string
	Phase     AgentPhase

	// LastSeenAt is updated on every event that reaches this Agent.
	// LastPushAt only moves on hook-sourced events and drives the
	// polling scheduler's liveness decision.
	LastSeenAt time.Time
	LastPushAt *time.Time

	// LastAppliedAt/LastAppliedConfidence/LastAppliedSource describe the
	// most recent event that actually mutated state, used for staleness
	// arbitration.
	LastAppliedAt         *time.Time
	LastAppliedConfidence float64
	LastAppliedSource     EventSource

	StartedAt time.Time
	EndedAt   *time.Time
}
