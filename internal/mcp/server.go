package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

// Server wraps the agentwatch data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("agentwatch", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.listAgentsTool())
	srv.AddTool(s.agentStatusTool())
	srv.AddTool(s.listTransitionsTool())
	srv.AddTool(s.listEventsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// aw_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("aw_list_projects",
		mcp.WithDescription("List all watched projects. Returns a JSON array with id, name, and path."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	type projectOut struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Path string `json:"path"`
	}

	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{ID: p.ID, Name: p.Name, Path: p.Path}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal projects: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// aw_list_agents
func (s *Server) listAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("aw_list_agents",
		mcp.WithDescription("List agent sessions with their current state. Optionally filter by project path. Each entry has id, project, phase (active/ended), current task state, and last activity time."),
		mcp.WithString("project", mcp.Description("Project path to filter by")),
		mcp.WithString("phase", mcp.Description("Phase filter: active (default lists all)")),
	)
	return tool, s.handleListAgents
}

type agentOut struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Phase      string    `json:"phase"`
	TaskState  string    `json:"task_state"`
	TaskID     string    `json:"task_id,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (s *Server) buildAgentOut(ctx context.Context, a *models.Agent, projectPath string) agentOut {
	out := agentOut{
		ID:         a.ID,
		Project:    projectPath,
		Phase:      string(a.Phase),
		TaskState:  string(models.TaskIdle),
		LastSeenAt: a.LastSeenAt,
	}
	if task, err := s.store.GetOpenTask(ctx, a.ID); err == nil && task != nil {
		out.TaskState = string(task.State)
		out.TaskID = task.ID
	}
	return out
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectPath := request.GetString("project", "")
	phase := request.GetString("phase", "")

	var projects []*models.Project
	if projectPath != "" {
		p, err := s.store.GetProjectByPath(ctx, projectPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", projectPath)), nil
		}
		projects = []*models.Project{p}
	} else {
		var err error
		projects, err = s.store.ListProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
		}
	}

	var out []agentOut
	for _, p := range projects {
		var agents []*models.Agent
		var err error
		if phase == string(models.AgentActive) {
			agents, err = s.store.ListActiveAgents(ctx, p.ID)
		} else {
			agents, err = s.store.ListAgents(ctx, p.ID, 0)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list agents: %v", err)), nil
		}
		for _, a := range agents {
			out = append(out, s.buildAgentOut(ctx, a, p.Path))
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// aw_agent_status
func (s *Server) agentStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("aw_agent_status",
		mcp.WithDescription("Get one agent's full status: phase, open task, recent turns, and the confidence and source of the last applied event."),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent ID")),
	)
	return tool, s.handleAgentStatus
}

func (s *Server) handleAgentStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := request.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent_id"), nil
	}

	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("agent not found: %s", agentID)), nil
	}

	result := map[string]any{
		"id":           a.ID,
		"project_id":   a.ProjectID,
		"phase":        string(a.Phase),
		"push_key":     a.PushKey,
		"poll_key":     a.PollKey,
		"last_seen_at": a.LastSeenAt.Format(time.RFC3339),
		"started_at":   a.StartedAt.Format(time.RFC3339),
	}
	if a.LastAppliedAt != nil {
		result["last_applied_at"] = a.LastAppliedAt.Format(time.RFC3339)
		result["last_applied_confidence"] = a.LastAppliedConfidence
		result["last_applied_source"] = string(a.LastAppliedSource)
	}
	if a.EndedAt != nil {
		result["ended_at"] = a.EndedAt.Format(time.RFC3339)
	}

	if task, err := s.store.GetOpenTask(ctx, a.ID); err == nil && task != nil {
		turns, _ := s.store.ListTurns(ctx, task.ID)
		type turnOut struct {
			Intent     string    `json:"intent"`
			Source     string    `json:"source"`
			Confidence float64   `json:"confidence"`
			Timestamp  time.Time `json:"timestamp"`
		}
		outTurns := make([]turnOut, len(turns))
		for i, turn := range turns {
			outTurns[i] = turnOut{
				Intent:     string(turn.Intent),
				Source:     string(turn.Source),
				Confidence: turn.Confidence,
				Timestamp:  turn.Timestamp,
			}
		}
		result["task"] = map[string]any{
			"id":    task.ID,
			"state": string(task.State),
			"turns": outTurns,
		}
	} else {
		result["task"] = nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// aw_list_transitions
func (s *Server) listTransitionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("aw_list_transitions",
		mcp.WithDescription("List recent state transitions, newest first. Optionally filter by agent ID. Each entry has old_state, new_state, intent, source, confidence, and timestamp."),
		mcp.WithString("agent_id", mcp.Description("Agent ID to filter by")),
		mcp.WithString("limit", mcp.Description("Maximum entries to return (default 50)")),
	)
	return tool, s.handleListTransitions
}

func (s *Server) handleListTransitions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.TransitionFilter{
		AgentID: request.GetString("agent_id", ""),
		Limit:   50,
	}
	if limit := request.GetString("limit", ""); limit != "" {
		fmt.Sscanf(limit, "%d", &filter.Limit)
	}

	transitions, err := s.store.ListTransitions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list transitions: %v", err)), nil
	}

	type transitionOut struct {
		AgentID    string    `json:"agent_id"`
		OldState   string    `json:"old_state"`
		NewState   string    `json:"new_state"`
		Intent     string    `json:"intent,omitempty"`
		Source     string    `json:"source"`
		Confidence float64   `json:"confidence"`
		Timestamp  time.Time `json:"timestamp"`
	}

	out := make([]transitionOut, len(transitions))
	for i, st := range transitions {
		out[i] = transitionOut{
			AgentID:    st.AgentID,
			OldState:   string(st.OldState),
			NewState:   string(st.NewState),
			Intent:     string(st.Intent),
			Source:     string(st.Source),
			Confidence: st.Confidence,
			Timestamp:  st.Timestamp,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal transitions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// aw_list_events
func (s *Server) listEventsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("aw_list_events",
		mcp.WithDescription("List raw ingested events from the audit log, newest first. Shows applied/dropped status and drop reasons. Optionally filter by agent ID or source (push/poll)."),
		mcp.WithString("agent_id", mcp.Description("Agent ID to filter by")),
		mcp.WithString("source", mcp.Description("Source filter: push or poll")),
		mcp.WithString("limit", mcp.Description("Maximum entries to return (default 50)")),
	)
	return tool, s.handleListEvents
}

func (s *Server) handleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.EventFilter{
		AgentID: request.GetString("agent_id", ""),
		Source:  models.EventSource(request.GetString("source", "")),
		Limit:   50,
	}
	if limit := request.GetString("limit", ""); limit != "" {
		fmt.Sscanf(limit, "%d", &filter.Limit)
	}

	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
	}

	type eventOut struct {
		ID         string    `json:"id"`
		Source     string    `json:"source"`
		Key        string    `json:"key"`
		Kind       string    `json:"kind,omitempty"`
		Intent     string    `json:"intent,omitempty"`
		Confidence float64   `json:"confidence"`
		Applied    bool      `json:"applied"`
		DropReason string    `json:"drop_reason,omitempty"`
		ObservedAt time.Time `json:"observed_at"`
	}

	out := make([]eventOut, len(events))
	for i, e := range events {
		out[i] = eventOut{
			ID:         e.ID,
			Source:     string(e.Source),
			Key:        e.Key,
			Kind:       e.Kind,
			Intent:     string(e.Intent),
			Confidence: e.Confidence,
			Applied:    e.Applied,
			DropReason: string(e.DropReason),
			ObservedAt: e.ObservedAt,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal events: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
