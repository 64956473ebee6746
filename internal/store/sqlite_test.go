package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentwatch/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAgent(t *testing.T, s *SQLiteStore, dir string) *models.Agent {
	t.Helper()
	ctx := context.Background()

	p := &models.Project{Path: dir}
	require.NoError(t, s.CreateProject(ctx, p))

	a := &models.Agent{ProjectID: p.ID, PollKey: dir}
	require.NoError(t, s.CreateAgent(ctx, a))
	return a
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Projects ---

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Project{Path: "/tmp/proj-a"}
	err := s.CreateProject(ctx, p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "proj-a", p.Name, "name defaults to path base")
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Path, got.Path)

	got, err = s.GetProjectByPath(ctx, "/tmp/proj-a")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetProjectByPath(ctx, "/tmp/unknown")
	assert.ErrorContains(t, err, "not found")

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

// --- Agents ---

func TestAgentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")
	assert.Equal(t, models.AgentActive, a.Phase)

	got, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/proj-a", got.PollKey)
	assert.Empty(t, got.PushKey)

	now := time.Now().UTC()
	got.PushKey = "sess-1"
	got.LastPushAt = &now
	got.LastAppliedAt = &now
	got.LastAppliedConfidence = 1.0
	require.NoError(t, s.UpdateAgent(ctx, got))

	got2, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got2.PushKey)
	require.NotNil(t, got2.LastPushAt)
	assert.Equal(t, 1.0, got2.LastAppliedConfidence)

	// End the agent, it should drop out of the active list
	ended := time.Now().UTC()
	got2.Phase = models.AgentEnded
	got2.EndedAt = &ended
	require.NoError(t, s.UpdateAgent(ctx, got2))

	active, err := s.ListActiveAgents(ctx, a.ProjectID)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListAgents(ctx, a.ProjectID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAgentPushKeyUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")
	a.PushKey = "sess-1"
	require.NoError(t, s.UpdateAgent(ctx, a))

	dup := &models.Agent{ProjectID: a.ProjectID, PushKey: "sess-1"}
	err := s.CreateAgent(ctx, dup)
	assert.Error(t, err, "second claim of the same push key must fail")

	// Empty push keys do not collide
	b := &models.Agent{ProjectID: a.ProjectID}
	assert.NoError(t, s.CreateAgent(ctx, b))
}

// --- Tasks and turns ---

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")

	open, err := s.GetOpenTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open, "no open task for a fresh agent")

	task := &models.Task{AgentID: a.ID}
	require.NoError(t, s.CreateTask(ctx, task))
	assert.Equal(t, models.TaskProcessing, task.State)

	open, err = s.GetOpenTask(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, task.ID, open.ID)
	assert.True(t, open.Open())

	ended := time.Now().UTC()
	open.State = models.TaskComplete
	open.EndedAt = &ended
	require.NoError(t, s.UpdateTask(ctx, open))

	open, err = s.GetOpenTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open, "completed task is no longer open")

	tasks, err := s.ListTasks(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestAppendTurn_SequenceMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")
	task := &models.Task{AgentID: a.ID}
	require.NoError(t, s.CreateTask(ctx, task))

	base := time.Now().UTC()
	intents := []models.TurnIntent{models.IntentCommand, models.IntentProgress, models.IntentCompletion}
	for i, intent := range intents {
		turn := &models.Turn{
			TaskID:     task.ID,
			Intent:     intent,
			Source:     models.SourcePush,
			Confidence: 1.0,
			// Deliberately out-of-order timestamps: seq must still be monotonic
			Timestamp: base.Add(-time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendTurn(ctx, turn))
		assert.Equal(t, i+1, turn.Seq)
	}

	turns, err := s.ListTurns(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
	}
}

// --- Event log ---

func TestEventLogAppendAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")
	now := time.Now().UTC()

	// Appended before correlation, so no project attribution yet.
	e1 := &models.Event{
		Source:     models.SourcePush,
		Key:        "sess-1",
		Kind:       string(models.PushPromptSubmitted),
		Confidence: 1.0,
		ObservedAt: now,
	}
	require.NoError(t, s.AppendEvent(ctx, e1))

	e2 := &models.Event{
		ProjectID:  a.ProjectID,
		Source:     models.SourcePoll,
		Key:        "/tmp/proj-a",
		Intent:     models.IntentQuestion,
		Confidence: 0.6,
		ObservedAt: now.Add(-time.Minute),
	}
	require.NoError(t, s.AppendEvent(ctx, e2))

	require.NoError(t, s.MarkEventApplied(ctx, e1.ID, a.ID, a.ProjectID))
	require.NoError(t, s.MarkEventDropped(ctx, e2.ID, models.DropStaleEvent))

	// Filter by agent: only the applied event carries the agent id
	events, err := s.ListEvents(ctx, EventFilter{AgentID: a.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Applied)

	// Filter by project: marking applied attributed e1 to the project.
	events, err = s.ListEvents(ctx, EventFilter{ProjectID: a.ProjectID})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Filter by source
	events, err = s.ListEvents(ctx, EventFilter{ProjectID: a.ProjectID, Source: models.SourcePoll})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.DropStaleEvent, events[0].DropReason)

	// Time range excluding everything
	events, err = s.ListEvents(ctx, EventFilter{Until: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, events)
}

// --- Transitions ---

func TestTransitionsList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAgent(t, s, "/tmp/proj-a")
	now := time.Now().UTC()

	st := &models.StateTransition{
		ProjectID:  a.ProjectID,
		AgentID:    a.ID,
		OldState:   models.TaskIdle,
		NewState:   models.TaskProcessing,
		Intent:     models.IntentCommand,
		Source:     models.SourcePush,
		Confidence: 1.0,
		Timestamp:  now,
	}
	require.NoError(t, s.AppendTransition(ctx, st))
	assert.NotEmpty(t, st.ID)

	got, err := s.ListTransitions(ctx, TransitionFilter{AgentID: a.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.TaskProcessing, got[0].NewState)

	got, err = s.ListTransitions(ctx, TransitionFilter{AgentID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Poll offsets ---

func TestOffsets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	off, err := s.GetOffset(ctx, "/tmp/a.jsonl")
	require.NoError(t, err)
	assert.Zero(t, off, "unknown source starts at 0")

	require.NoError(t, s.SetOffset(ctx, "/tmp/a.jsonl", 1024))
	require.NoError(t, s.SetOffset(ctx, "/tmp/a.jsonl", 4096))

	off, err = s.GetOffset(ctx, "/tmp/a.jsonl")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), off)
}
