package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/agentwatch/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Name == "" {
		p.Name = filepath.Base(p.Path)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, path, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Path, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProjectByPath(ctx context.Context, path string) (*models.Project, error) {
	p := &models.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at, updated_at FROM projects WHERE path = ?`, path,
	).Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found at path: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("get project by path: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, created_at, updated_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Agents ---

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	now := time.Now().UTC()
	a.StartedAt = now
	if a.LastSeenAt.IsZero() {
		a.LastSeenAt = now
	}
	if a.Phase == "" {
		a.Phase = models.AgentActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, project_id, push_key, poll_key, phase, last_seen_at, last_push_at, last_applied_at, last_applied_confidence, last_applied_source, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.PushKey, a.PollKey, string(a.Phase),
		a.LastSeenAt, a.LastPushAt, a.LastAppliedAt, a.LastAppliedConfidence,
		string(a.LastAppliedSource), a.StartedAt, a.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	agents, err := s.scanAgents(ctx,
		agentColumns+` FROM agents WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return agents[0], nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *models.Agent) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET push_key=?, poll_key=?, phase=?, last_seen_at=?, last_push_at=?, last_applied_at=?, last_applied_confidence=?, last_applied_source=?, ended_at=? WHERE id=?`,
		a.PushKey, a.PollKey, string(a.Phase), a.LastSeenAt, a.LastPushAt,
		a.LastAppliedAt, a.LastAppliedConfidence, string(a.LastAppliedSource), a.EndedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent not found: %s", a.ID)
	}
	return nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context, projectID string, limit int) ([]*models.Agent, error) {
	query := agentColumns + ` FROM agents`
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.scanAgents(ctx, query, args...)
}

func (s *SQLiteStore) ListActiveAgents(ctx context.Context, projectID string) ([]*models.Agent, error) {
	query := agentColumns + ` FROM agents WHERE phase = 'active'`
	var args []any
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY started_at DESC"
	return s.scanAgents(ctx, query, args...)
}

const agentColumns = `SELECT id, project_id, push_key, poll_key, phase, last_seen_at, last_push_at, last_applied_at, last_applied_confidence, last_applied_source, started_at, ended_at`

// scanAgents is a shared helper for scanning agent rows.
func (s *SQLiteStore) scanAgents(ctx context.Context, query string, args ...any) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*models.Agent
	for rows.Next() {
		a := &models.Agent{}
		var phase, appliedSource string
		var lastPushAt, lastAppliedAt, endedAt sql.NullTime

		if err := rows.Scan(&a.ID, &a.ProjectID, &a.PushKey, &a.PollKey, &phase,
			&a.LastSeenAt, &lastPushAt, &lastAppliedAt, &a.LastAppliedConfidence,
			&appliedSource, &a.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}

		a.Phase = models.AgentPhase(phase)
		a.LastAppliedSource = models.EventSource(appliedSource)
		if lastPushAt.Valid {
			a.LastPushAt = &lastPushAt.Time
		}
		if lastAppliedAt.Valid {
			a.LastAppliedAt = &lastAppliedAt.Time
		}
		if endedAt.Valid {
			a.EndedAt = &endedAt.Time
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Tasks ---

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	t.CreatedAt = time.Now().UTC()
	if t.State == "" {
		t.State = models.TaskProcessing
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, agent_id, state, created_at, ended_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, string(t.State), t.CreatedAt, t.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t := &models.Task{}
	var state string
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, state, created_at, ended_at FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.AgentID, &state, &t.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.State = models.TaskState(state)
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}
	return t, nil
}

// GetOpenTask returns the agent's single open task, or nil if none is open.
func (s *SQLiteStore) GetOpenTask(ctx context.Context, agentID string) (*models.Task, error) {
	t := &models.Task{}
	var state string
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, state, created_at, ended_at FROM tasks
		WHERE agent_id = ? AND ended_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, agentID,
	).Scan(&t.ID, &t.AgentID, &state, &t.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open task: %w", err)
	}
	t.State = models.TaskState(state)
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *models.Task) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET state=?, ended_at=? WHERE id=?`,
		string(t.State), t.EndedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, agentID string, limit int) ([]*models.Task, error) {
	query := `SELECT id, agent_id, state, created_at, ended_at FROM tasks WHERE agent_id = ? ORDER BY created_at DESC`
	args := []any{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		var state string
		var endedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.AgentID, &state, &t.CreatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.State = models.TaskState(state)
		if endedAt.Valid {
			t.EndedAt = &endedAt.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Turns ---

// AppendTurn inserts a turn, assigning the next sequence number for its task.
// Callers serialize per project, so the max-seq read cannot race itself.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
	if turn.ID == "" {
		turn.ID = newULID()
	}
	turn.CreatedAt = time.Now().UTC()

	if turn.Seq == 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE task_id = ?`, turn.TaskID,
		).Scan(&turn.Seq)
		if err != nil {
			return fmt.Errorf("next turn seq: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, task_id, intent, source, confidence, seq, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.TaskID, string(turn.Intent), string(turn.Source),
		turn.Confidence, turn.Seq, turn.Timestamp, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, taskID string) ([]*models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, intent, source, confidence, seq, timestamp, created_at
		FROM turns WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*models.Turn
	for rows.Next() {
		turn := &models.Turn{}
		var intent, source string
		if err := rows.Scan(&turn.ID, &turn.TaskID, &intent, &source,
			&turn.Confidence, &turn.Seq, &turn.Timestamp, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Intent = models.TurnIntent(intent)
		turn.Source = models.EventSource(source)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// --- Event log ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = newULID()
	}
	if e.ArrivedAt.IsZero() {
		e.ArrivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, project_id, agent_id, source, key, kind, intent, confidence, payload, observed_at, arrived_at, applied, drop_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.AgentID, string(e.Source), e.Key, e.Kind,
		string(e.Intent), e.Confidence, e.Payload, e.ObservedAt, e.ArrivedAt,
		boolToInt(e.Applied), string(e.DropReason),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// MarkEventApplied records the applied outcome together with the agent and
// project the event resolved to. Events are appended before correlation, so
// attribution is only known here.
func (s *SQLiteStore) MarkEventApplied(ctx context.Context, id, agentID, projectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET applied=1, agent_id=?, project_id=? WHERE id=?`, agentID, projectID, id)
	if err != nil {
		return fmt.Errorf("mark event applied: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkEventDropped(ctx context.Context, id string, reason models.DropReason) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET applied=0, drop_reason=? WHERE id=?`, string(reason), id)
	if err != nil {
		return fmt.Errorf("mark event dropped: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	query := `SELECT id, project_id, agent_id, source, key, kind, intent, confidence, payload, observed_at, arrived_at, applied, drop_reason FROM events`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, string(filter.Source))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "arrived_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "arrived_at <= ?")
		args = append(args, filter.Until)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY arrived_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		var source, intent, dropReason string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.AgentID, &source, &e.Key, &e.Kind,
			&intent, &e.Confidence, &e.Payload, &e.ObservedAt, &e.ArrivedAt,
			&e.Applied, &dropReason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Source = models.EventSource(source)
		e.Intent = models.TurnIntent(intent)
		e.DropReason = models.DropReason(dropReason)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Transitions ---

func (s *SQLiteStore) AppendTransition(ctx context.Context, st *models.StateTransition) error {
	if st.ID == "" {
		st.ID = newULID()
	}
	st.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, project_id, agent_id, task_id, turn_id, old_state, new_state, intent, source, confidence, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ProjectID, st.AgentID, st.TaskID, st.TurnID,
		string(st.OldState), string(st.NewState), string(st.Intent), string(st.Source),
		st.Confidence, st.Timestamp, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, filter TransitionFilter) ([]*models.StateTransition, error) {
	query := `SELECT id, project_id, agent_id, task_id, turn_id, old_state, new_state, intent, source, confidence, timestamp, created_at FROM transitions`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transitions []*models.StateTransition
	for rows.Next() {
		st := &models.StateTransition{}
		var oldState, newState, intent, source string
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.AgentID, &st.TaskID, &st.TurnID,
			&oldState, &newState, &intent, &source,
			&st.Confidence, &st.Timestamp, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		st.OldState = models.TaskState(oldState)
		st.NewState = models.TaskState(newState)
		st.Intent = models.TurnIntent(intent)
		st.Source = models.EventSource(source)
		transitions = append(transitions, st)
	}
	return transitions, rows.Err()
}

// --- Poll offsets ---

func (s *SQLiteStore) GetOffset(ctx context.Context, source string) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx,
		`SELECT read_offset FROM poll_offsets WHERE source = ?`, source).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get offset: %w", err)
	}
	return offset, nil
}

func (s *SQLiteStore) SetOffset(ctx context.Context, source string, offset int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_offsets (source, read_offset, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET read_offset=excluded.read_offset, updated_at=excluded.updated_at`,
		source, offset, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set offset: %w", err)
	}
	return nil
}
