package models

import "time"

// EventSource tags which telemetry path produced an event.
type EventSource string

const (
	SourcePush EventSource = "push"
	SourcePoll EventSource = "poll"
)

// PushKind enumerates the lifecycle hook callbacks accepted at the ingress.
type PushKind string

const (
	PushSessionStart    PushKind = "session_start"
	PushPromptSubmitted PushKind = "prompt_submitted"
	PushTurnStopped     PushKind = "turn_stopped"
	PushNotification    PushKind = "notification"
	PushSessionEnd      PushKind = "session_end"
)

// KnownPushKind reports whether k is one of the accepted hook kinds.
func KnownPushKind(k PushKind) bool {
	switch k {
	case PushSessionStart, PushPromptSubmitted, PushTurnStopped, PushNotification, PushSessionEnd:
		return true
	}
	return false
}

// DropReason records why an ingested event was not applied. Drops are never
// propagated to the caller; they are persisted on the event row and logged.
type DropReason string

const (
	DropNone              DropReason = ""
	DropCorrelationMiss   DropReason = "correlation_miss"
	DropInvalidTransition DropReason = "invalid_transition"
	DropStaleEvent        DropReason = "stale_event"
	DropPollFailure       DropReason = "poll_failure"
	DropIngestOverflow    DropReason = "push_ingest_overflow"
)

// PushEvent is a lifecycle callback emitted by the monitored agent process.
// Push events carry confidence 1.0.
type PushEvent struct {
	SessionID string
	Dir       string
	Kind      PushKind
	Message   string
	Timestamp time.Time
}

// InferredTurn is a single heuristic inference produced by a transcript scan.
type InferredTurn struct {
	Intent     TurnIntent
	Confidence float64
	Timestamp  time.Time
}

// PollSnapshot is the result of scanning a transcript source since the last
// read offset: zero or more inferred turns for one watched directory.
type PollSnapshot struct {
	Dir        string
	SessionID  string
	Inferred   []InferredTurn
	ObservedAt time.Time
}

// NormalizedEvent is the common envelope both sources reduce to before
// correlation and resolution. EventID refers to the durable event log row
// appended at ingest time.
type NormalizedEvent struct {
	EventID    string
	Source     EventSource
	Confidence float64
	Key        string
	Dir        string
	Kind       PushKind
	Intent     TurnIntent
	ObservedAt time.Time
	ArrivedAt  time.Time
}

// Event is the raw, source-tagged event log row. Every ingested signal is
// appended here before correlation, whether or not it is later applied.
type Event struct {
	ID         string
	ProjectID  string
	AgentID    string
	Source     EventSource
	Key        string
	Kind       string
	Intent     TurnIntent
	Confidence float64
	Payload    string
	ObservedAt time.Time
	ArrivedAt  time.Time
	Applied    bool
	DropReason DropReason
}

// StateTransition is the record of one applied state change, the unit
// published to external consumers.
type StateTransition struct {
	ID         string
	ProjectID  string
	AgentID    string
	TaskID     string
	TurnID     string
	OldState   TaskState
	NewState   TaskState
	Intent     TurnIntent
	Source     EventSource
	Confidence float64
	Timestamp  time.Time
	CreatedAt  time.Time
}
