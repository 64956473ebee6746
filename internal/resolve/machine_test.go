package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/agentwatch/internal/models"
)

func TestAdvance_LegalTransitions(t *testing.T) {
	tests := []struct {
		state  models.TaskState
		intent models.TurnIntent
		want   models.TaskState
	}{
		{models.TaskIdle, models.IntentCommand, models.TaskProcessing},
		{models.TaskProcessing, models.IntentProgress, models.TaskProcessing},
		{models.TaskProcessing, models.IntentQuestion, models.TaskAwaitingInput},
		{models.TaskAwaitingInput, models.IntentAnswer, models.TaskProcessing},
		{models.TaskProcessing, models.IntentCompletion, models.TaskComplete},
	}
	for _, tt := range tests {
		got, ok := Advance(tt.state, tt.intent)
		assert.True(t, ok, "%s + %s should be legal", tt.state, tt.intent)
		assert.Equal(t, tt.want, got)
	}
}

func TestAdvance_IllegalTransitions(t *testing.T) {
	tests := []struct {
		state  models.TaskState
		intent models.TurnIntent
	}{
		{models.TaskIdle, models.IntentProgress},
		{models.TaskIdle, models.IntentAnswer},
		{models.TaskIdle, models.IntentCompletion},
		{models.TaskProcessing, models.IntentCommand},
		{models.TaskProcessing, models.IntentAnswer},
		{models.TaskAwaitingInput, models.IntentCommand},
		{models.TaskAwaitingInput, models.IntentQuestion},
		{models.TaskAwaitingInput, models.IntentCompletion},
		{models.TaskComplete, models.IntentProgress},
		{models.TaskComplete, models.IntentCompletion},
	}
	for _, tt := range tests {
		got, ok := Advance(tt.state, tt.intent)
		assert.False(t, ok, "%s + %s should be illegal", tt.state, tt.intent)
		assert.Equal(t, tt.state, got, "state must be unchanged on illegal intent")
	}
}

// Every sequence of legal intents must keep the machine in one of the five
// defined states; exhaustively walk all intent sequences up to depth 5.
func TestAdvance_Closure(t *testing.T) {
	intents := []models.TurnIntent{
		models.IntentCommand, models.IntentProgress, models.IntentQuestion,
		models.IntentAnswer, models.IntentCompletion,
	}
	defined := map[models.TaskState]bool{
		models.TaskIdle:          true,
		models.TaskCommanded:     true,
		models.TaskProcessing:    true,
		models.TaskAwaitingInput: true,
		models.TaskComplete:      true,
	}

	var walk func(state models.TaskState, depth int)
	walk = func(state models.TaskState, depth int) {
		if depth == 0 {
			return
		}
		for _, intent := range intents {
			next, ok := Advance(state, intent)
			if !ok {
				continue
			}
			assert.True(t, defined[next], "undefined state %q from %q + %q", next, state, intent)
			walk(next, depth-1)
		}
	}
	walk(models.TaskIdle, 5)
}
