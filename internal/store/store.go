package store

import (
	"context"
	"time"

	"github.com/joescharf/agentwatch/internal/models"
)

// EventFilter specifies filters for the audit export query over the event log.
type EventFilter struct {
	ProjectID string
	AgentID   string
	Source    models.EventSource
	Since     time.Time
	Until     time.Time
	Limit     int
}

// TransitionFilter specifies filters for listing state transitions.
type TransitionFilter struct {
	ProjectID string
	AgentID   string
	Since     time.Time
	Limit     int
}

// Store defines the persistence interface for agentwatch.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByPath(ctx context.Context, path string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// Agents
	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpdateAgent(ctx context.Context, a *models.Agent) error
	ListAgents(ctx context.Context, projectID string, limit int) ([]*models.Agent, error)
	ListActiveAgents(ctx context.Context, projectID string) ([]*models.Agent, error)

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	GetOpenTask(ctx context.Context, agentID string) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	ListTasks(ctx context.Context, agentID string, limit int) ([]*models.Task, error)

	// Turns (append-only)
	AppendTurn(ctx context.Context, turn *models.Turn) error
	ListTurns(ctx context.Context, taskID string) ([]*models.Turn, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, e *models.Event) error
	MarkEventApplied(ctx context.Context, id, agentID, projectID string) error
	MarkEventDropped(ctx context.Context, id string, reason models.DropReason) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.Event, error)

	// Transitions
	AppendTransition(ctx context.Context, st *models.StateTransition) error
	ListTransitions(ctx context.Context, filter TransitionFilter) ([]*models.StateTransition, error)

	// Transcript read offsets, keyed by source file path
	GetOffset(ctx context.Context, source string) (int64, error)
	SetOffset(ctx context.Context, source string, offset int64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
