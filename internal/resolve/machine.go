package resolve

import (
	"fmt"

	"github.com/joescharf/agentwatch/internal/models"
)

// transitionTable maps (current state, intent) to the next state. Absent
// entries are illegal transitions. TaskCommanded is transient: a commanding
// input in IDLE settles in PROCESSING within the same apply, so persisted
// tasks never hold it.
var transitionTable = map[models.TaskState]map[models.TurnIntent]models.TaskState{
	models.TaskIdle: {
		models.IntentCommand: models.TaskCommanded,
	},
	models.TaskCommanded: {
		models.IntentProgress:   models.TaskProcessing,
		models.IntentQuestion:   models.TaskAwaitingInput,
		models.IntentCompletion: models.TaskComplete,
	},
	models.TaskProcessing: {
		models.IntentProgress:   models.TaskProcessing,
		models.IntentQuestion:   models.TaskAwaitingInput,
		models.IntentCompletion: models.TaskComplete,
	},
	models.TaskAwaitingInput: {
		models.IntentAnswer: models.TaskProcessing,
	},
}

// Advance applies intent to state and returns the settled next state. The
// second return is false when the intent is illegal for the state; callers
// log it and leave state unchanged.
func Advance(state models.TaskState, intent models.TurnIntent) (models.TaskState, bool) {
	next, ok := transitionTable[state][intent]
	if !ok {
		return state, false
	}
	if next == models.TaskCommanded {
		next = models.TaskProcessing
	}
	return next, true
}

// TransitionError describes an intent that is illegal for the current state.
type TransitionError struct {
	AgentID string
	From    models.TaskState
	Intent  models.TurnIntent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("intent %q illegal in state %q for agent %s", e.Intent, e.From, e.AgentID)
}
