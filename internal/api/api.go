package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/agentwatch/internal/ingest"
	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/notify"
	"github.com/joescharf/agentwatch/internal/scheduler"
	"github.com/joescharf/agentwatch/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store     store.Store
	gateway   *ingest.Gateway
	scheduler *scheduler.Scheduler
	bus       *notify.Bus
	logger    *slog.Logger
}

// NewServer creates a new API server. The scheduler may be nil when polling
// is disabled.
func NewServer(s store.Store, g *ingest.Gateway, sched *scheduler.Scheduler, bus *notify.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     s,
		gateway:   g,
		scheduler: sched,
		bus:       bus,
		logger:    logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/hooks/{kind}", s.ingestHook)

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/agents", s.listProjectAgents)

	mux.HandleFunc("GET /api/v1/agents/{id}", s.getAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}/tasks", s.listAgentTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}/turns", s.listTaskTurns)

	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("GET /api/v1/transitions", s.listTransitions)

	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Hook ingress ---

// hookPayload is the closed shape hook callbacks carry. Unknown fields are
// ignored; the sender never retries, so only undecodable JSON is rejected.
type hookPayload struct {
	SessionID string `json:"session_id"`
	CWD       string `json:"cwd"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) ingestHook(w http.ResponseWriter, r *http.Request) {
	kind := models.PushKind(r.PathValue("kind"))
	if !models.KnownPushKind(kind) {
		writeError(w, http.StatusBadRequest, "unknown hook kind")
		return
	}

	var payload hookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ts := time.Now().UTC()
	if payload.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, payload.Timestamp); err == nil {
			ts = parsed
		}
	}

	// Accept before processing: the hook caller must never wait on this
	// system, and a dropped event is recoverable from the next poll scan.
	s.gateway.Push(models.PushEvent{
		SessionID: payload.SessionID,
		Dir:       payload.CWD,
		Kind:      kind,
		Message:   payload.Message,
		Timestamp: ts,
	})
	w.WriteHeader(http.StatusAccepted)
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// --- Agents ---

// agentResponse enriches an Agent with its open task, if any.
type agentResponse struct {
	*models.Agent
	TaskID    string           `json:"task_id,omitempty"`
	TaskState models.TaskState `json:"task_state"`
}

func (s *Server) buildAgentResponse(r *http.Request, a *models.Agent) agentResponse {
	resp := agentResponse{Agent: a, TaskState: models.TaskIdle}
	if task, err := s.store.GetOpenTask(r.Context(), a.ID); err == nil && task != nil {
		resp.TaskID = task.ID
		resp.TaskState = task.State
	}
	return resp
}

func (s *Server) listProjectAgents(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	agents, err := s.store.ListAgents(r.Context(), projectID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		result = append(result, s.buildAgentResponse(r, a))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.buildAgentResponse(r, a))
}

func (s *Server) listAgentTasks(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	tasks, err := s.store.ListTasks(r.Context(), agentID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listTaskTurns(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	turns, err := s.store.ListTurns(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// --- Event log / transitions ---

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.EventFilter{
		ProjectID: r.URL.Query().Get("project"),
		AgentID:   r.URL.Query().Get("agent"),
		Source:    models.EventSource(r.URL.Query().Get("source")),
		Since:     queryTime(r, "since"),
		Until:     queryTime(r, "until"),
		Limit:     queryInt(r, "limit"),
	}
	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	filter := store.TransitionFilter{
		ProjectID: r.URL.Query().Get("project"),
		AgentID:   r.URL.Query().Get("agent"),
		Since:     queryTime(r, "since"),
		Limit:     queryInt(r, "limit"),
	}
	transitions, err := s.store.ListTransitions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func queryTime(r *http.Request, key string) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
