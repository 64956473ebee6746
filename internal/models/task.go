package models

import "time"

// TaskState is the resolved state of a unit of work.
type TaskState string

const (
	TaskIdle          TaskState = "idle"
	TaskCommanded     TaskState = "commanded"
	TaskProcessing    TaskState = "processing"
	TaskAwaitingInput TaskState = "awaiting_input"
	TaskComplete      TaskState = "complete"
)

// TurnIntent classifies a single exchange within a Task.
type TurnIntent string

const (
	IntentCommand    TurnIntent = "command"
	IntentProgress   TurnIntent = "progress"
	IntentQuestion   TurnIntent = "question"
	IntentAnswer     TurnIntent = "answer"
	IntentCompletion TurnIntent = "completion"
)

// Task is one discrete unit of work within an Agent's lifetime, bounded by a
// commanding input and a terminal outcome. An Agent has at most one open Task.
type Task struct {
	ID        string
	AgentID   string
	State     TaskState
	CreatedAt time.Time
	EndedAt   *time.Time
}

// Open reports whether the task has not reached a terminal state.
func (t *Task) Open() bool {
	return t.EndedAt == nil && t.State != TaskComplete
}

// Turn is one exchange unit within a Task. Turns are append-only; the
// sequence number is assigned at creation and is monotonic per Task
// regardless of event arrival order.
type Turn struct {
	ID         string
	TaskID     string
	Intent     TurnIntent
	Source     EventSource
	Confidence float64
	Seq        int
	Timestamp  time.Time
	CreatedAt  time.Time
}
