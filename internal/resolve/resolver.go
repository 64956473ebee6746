package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

// Resolver arbitrates between conflicting or stale signals and drives the
// task state machine. It runs inside each project's single-writer loop, so
// it reads and mutates agent/task rows without additional locking.
type Resolver struct {
	store          store.Store
	logger         *slog.Logger
	livenessWindow time.Duration

	now func() time.Time
}

// New creates a Resolver. livenessWindow bounds how long after the last push
// event poll-derived boundary intents are still suppressed.
func New(s store.Store, logger *slog.Logger, livenessWindow time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:          s,
		logger:         logger,
		livenessWindow: livenessWindow,
		now:            time.Now,
	}
}

// Outcome reports what Apply did with an event. Drop is DropNone when the
// event mutated state, in which case Transition holds the published record.
type Outcome struct {
	Drop       models.DropReason
	Transition *models.StateTransition
}

// Applied reports whether the event produced a state transition.
func (o *Outcome) Applied() bool { return o.Drop == models.DropNone }

// Apply decides whether the correlated event mutates the agent's state and,
// if so, appends the turn and produces exactly one StateTransition. Drops
// are recorded in the outcome, never returned as errors: a returned error
// means the backing store failed, nothing else.
func (r *Resolver) Apply(ctx context.Context, agent *models.Agent, ev *models.NormalizedEvent) (*Outcome, error) {
	agent.LastSeenAt = r.now().UTC()
	if ev.Source == models.SourcePush {
		// Any push event, applied or not, proves hook delivery is alive.
		t := r.now().UTC()
		agent.LastPushAt = &t
	}

	outcome, err := r.apply(ctx, agent, ev)
	if err != nil {
		return nil, err
	}

	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("persist agent: %w", err)
	}
	return outcome, nil
}

func (r *Resolver) apply(ctx context.Context, agent *models.Agent, ev *models.NormalizedEvent) (*Outcome, error) {
	if reason := r.checkStale(agent, ev); reason != models.DropNone {
		r.logger.Debug("event discarded",
			"reason", string(reason), "agent", agent.ID,
			"source", string(ev.Source), "observed_at", ev.ObservedAt)
		return &Outcome{Drop: reason}, nil
	}

	if ev.Source == models.SourcePush {
		switch ev.Kind {
		case models.PushSessionStart:
			return r.applySessionStart(agent, ev)
		case models.PushSessionEnd:
			return r.applySessionEnd(ctx, agent, ev)
		}
	}

	return r.applyIntent(ctx, agent, ev)
}

// checkStale implements the confidence/timestamp arbitration rules: an event
// older than the last applied transition of equal-or-higher confidence is
// discarded, and timestamp ties are broken push > poll.
func (r *Resolver) checkStale(agent *models.Agent, ev *models.NormalizedEvent) models.DropReason {
	last := agent.LastAppliedAt
	if last == nil {
		return models.DropNone
	}
	if ev.ObservedAt.Before(*last) && agent.LastAppliedConfidence >= ev.Confidence {
		return models.DropStaleEvent
	}
	if ev.ObservedAt.Equal(*last) {
		// Ties go to push: an equal-timestamp push event only overrides a
		// previously applied poll inference. Anything else, including an
		// identical replay, is a no-op.
		if ev.Source == models.SourcePush && agent.LastAppliedSource == models.SourcePoll {
			return models.DropNone
		}
		return models.DropStaleEvent
	}
	return models.DropNone
}

// pushLive reports whether a push event has been seen within the liveness
// window, meaning hook telemetry is authoritative for task boundaries.
func (r *Resolver) pushLive(agent *models.Agent) bool {
	return agent.LastPushAt != nil && r.now().Sub(*agent.LastPushAt) < r.livenessWindow
}

func (r *Resolver) applySessionStart(agent *models.Agent, ev *models.NormalizedEvent) (*Outcome, error) {
	agent.Phase = models.AgentActive
	r.noteApplied(agent, ev)

	return &Outcome{Transition: &models.StateTransition{
		ProjectID:  agent.ProjectID,
		AgentID:    agent.ID,
		NewState:   models.TaskIdle,
		Source:     ev.Source,
		Confidence: ev.Confidence,
		Timestamp:  ev.ObservedAt,
	}}, nil
}

func (r *Resolver) applySessionEnd(ctx context.Context, agent *models.Agent, ev *models.NormalizedEvent) (*Outcome, error) {
	oldState := models.TaskIdle

	task, err := r.store.GetOpenTask(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if task != nil {
		oldState = task.State
		ended := r.now().UTC()
		task.EndedAt = &ended
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
	}

	ended := r.now().UTC()
	agent.Phase = models.AgentEnded
	agent.EndedAt = &ended
	r.noteApplied(agent, ev)

	st := &models.StateTransition{
		ProjectID:  agent.ProjectID,
		AgentID:    agent.ID,
		OldState:   oldState,
		NewState:   models.TaskIdle,
		Source:     ev.Source,
		Confidence: ev.Confidence,
		Timestamp:  ev.ObservedAt,
	}
	if task != nil {
		st.TaskID = task.ID
	}
	return &Outcome{Transition: st}, nil
}

func (r *Resolver) applyIntent(ctx context.Context, agent *models.Agent, ev *models.NormalizedEvent) (*Outcome, error) {
	// While hooks are live, poll inference only fills the mid-task
	// question/answer distinction hooks cannot signal. Poll-derived task
	// boundaries are superseded by the authoritative source.
	if ev.Source == models.SourcePoll && r.pushLive(agent) {
		switch ev.Intent {
		case models.IntentQuestion, models.IntentAnswer, models.IntentProgress:
		default:
			return &Outcome{Drop: models.DropStaleEvent}, nil
		}
	}

	task, err := r.store.GetOpenTask(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	state := models.TaskIdle
	if task != nil {
		state = task.State
	}

	next, ok := Advance(state, ev.Intent)
	if !ok {
		terr := &TransitionError{AgentID: agent.ID, From: state, Intent: ev.Intent}
		r.logger.Warn("invalid transition", "error", terr, "source", string(ev.Source))
		return &Outcome{Drop: models.DropInvalidTransition}, nil
	}

	if task == nil {
		// Only a commanding input opens a task.
		task = &models.Task{AgentID: agent.ID, State: next}
		if err := r.store.CreateTask(ctx, task); err != nil {
			return nil, err
		}
	} else {
		task.State = next
		if next == models.TaskComplete {
			ended := r.now().UTC()
			task.EndedAt = &ended
		}
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
	}

	turn := &models.Turn{
		TaskID:     task.ID,
		Intent:     ev.Intent,
		Source:     ev.Source,
		Confidence: ev.Confidence,
		Timestamp:  ev.ObservedAt,
	}
	if err := r.store.AppendTurn(ctx, turn); err != nil {
		return nil, err
	}

	r.noteApplied(agent, ev)

	return &Outcome{Transition: &models.StateTransition{
		ProjectID:  agent.ProjectID,
		AgentID:    agent.ID,
		TaskID:     task.ID,
		TurnID:     turn.ID,
		OldState:   state,
		NewState:   next,
		Intent:     ev.Intent,
		Source:     ev.Source,
		Confidence: ev.Confidence,
		Timestamp:  ev.ObservedAt,
	}}, nil
}

// noteApplied advances the staleness watermark. The watermark is monotonic:
// an out-of-order event that still won arbitration must not rewind it, or a
// replay of the newest applied event would pass checkStale a second time.
// Equal timestamps do update the watermark, so a push that broke a tie
// against a poll inference records itself as the applied source.
func (r *Resolver) noteApplied(agent *models.Agent, ev *models.NormalizedEvent) {
	if agent.LastAppliedAt != nil && ev.ObservedAt.Before(*agent.LastAppliedAt) {
		return
	}
	ts := ev.ObservedAt
	agent.LastAppliedAt = &ts
	agent.LastAppliedConfidence = ev.Confidence
	agent.LastAppliedSource = ev.Source
}

// IntentForPushKind maps hook callback kinds to turn intents. Lifecycle
// kinds (session_start, session_end) carry no intent.
func IntentForPushKind(kind models.PushKind) (models.TurnIntent, bool) {
	switch kind {
	case models.PushPromptSubmitted:
		return models.IntentCommand, true
	case models.PushTurnStopped:
		return models.IntentCompletion, true
	case models.PushNotification:
		return models.IntentQuestion, true
	}
	return "", false
}
