package transcript

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/joescharf/agentwatch/internal/models"
)

// entry is one decoded transcript line.
type entry struct {
	Type       string
	SessionID  string
	CWD        string
	Timestamp  time.Time
	Role       string
	StopReason string
	Text       string
	ToolResult bool
}

type rawEntry struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type messagePayload struct {
	Role       string          `json:"role"`
	StopReason string          `json:"stop_reason"`
	Content    json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func parseLine(line []byte) (*entry, error) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}

	e := &entry{Type: raw.Type, SessionID: raw.SessionID, CWD: raw.CWD}

	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, raw.Timestamp)
		}
		if err != nil {
			return nil, err
		}
		e.Timestamp = ts
	}

	if len(raw.Message) > 0 {
		var msg messagePayload
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil, err
		}
		e.Role = msg.Role
		e.StopReason = msg.StopReason
		e.Text, e.ToolResult = decodeContent(msg.Content)
	}

	return e, nil
}

// decodeContent flattens a message content payload to text and reports
// whether it carries a tool result. Content is either a plain string or an
// array of typed blocks.
func decodeContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, false
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}

	var builder strings.Builder
	toolResult := false
	for _, block := range blocks {
		if block.Type == "tool_result" {
			toolResult = true
		}
		if block.Text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteRune(' ')
		}
		builder.WriteString(strings.TrimSpace(block.Text))
	}
	return builder.String(), toolResult
}

// Heuristic confidence per inferred intent. Push telemetry is always 1.0;
// poll inference tops out at 0.9 for unambiguous markers.
const (
	confCommand    = 0.9
	confAnswer     = 0.8
	confCompletion = 0.7
	confQuestion   = 0.6
	confProgress   = 0.5
)

// inferTurn maps one transcript entry to a turn intent. questionOpen tells
// the inference that the previous assistant output asked for input, which
// turns the next user message into an answer rather than a new command.
func inferTurn(e *entry, questionOpen bool) (models.InferredTurn, bool) {
	if e.Timestamp.IsZero() {
		return models.InferredTurn{}, false
	}

	switch {
	case e.Type == "user" && e.Role == "user":
		if e.ToolResult {
			// Tool results come back on user-typed lines while the agent
			// is still working.
			return inferred(models.IntentProgress, confProgress, e), true
		}
		if questionOpen {
			return inferred(models.IntentAnswer, confAnswer, e), true
		}
		return inferred(models.IntentCommand, confCommand, e), true

	case e.Type == "assistant" && e.Role == "assistant":
		text := strings.TrimSpace(e.Text)
		if strings.HasSuffix(text, "?") {
			return inferred(models.IntentQuestion, confQuestion, e), true
		}
		if e.StopReason == "end_turn" {
			return inferred(models.IntentCompletion, confCompletion, e), true
		}
		return inferred(models.IntentProgress, confProgress, e), true
	}

	return models.InferredTurn{}, false
}

func inferred(intent models.TurnIntent, confidence float64, e *entry) models.InferredTurn {
	return models.InferredTurn{Intent: intent, Confidence: confidence, Timestamp: e.Timestamp}
}
