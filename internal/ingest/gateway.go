package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/joescharf/agentwatch/internal/correlate"
	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/notify"
	"github.com/joescharf/agentwatch/internal/resolve"
	"github.com/joescharf/agentwatch/internal/store"
)

// DefaultQueueSize bounds each project's event queue.
const DefaultQueueSize = 256

// Config tunes the gateway.
type Config struct {
	// QueueSize is the per-project queue capacity; DefaultQueueSize if zero.
	QueueSize int
	// OnPush, when set, is invoked with the directory key of every accepted
	// push event. The polling scheduler uses it as its liveness signal.
	OnPush func(dir string)
}

// Gateway normalizes both telemetry sources into a common envelope, appends
// every raw signal to the event log, and funnels events through one bounded
// queue per project. A single consumer goroutine per project performs
// correlation, resolution and state mutation in order, so no two events for
// the same project ever race inside the pipeline.
type Gateway struct {
	store      store.Store
	correlator *correlate.Correlator
	resolver   *resolve.Resolver
	bus        *notify.Bus
	logger     *slog.Logger
	queueSize  int
	onPush     func(dir string)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.Mutex
	queues map[string]chan *models.NormalizedEvent
	closed bool
}

// New creates a Gateway. Call Close to drain consumers on shutdown.
func New(s store.Store, c *correlate.Correlator, r *resolve.Resolver, bus *notify.Bus, logger *slog.Logger, cfg Config) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		store:      s,
		correlator: c,
		resolver:   r,
		bus:        bus,
		logger:     logger,
		queueSize:  cfg.QueueSize,
		onPush:     cfg.OnPush,
		ctx:        ctx,
		cancel:     cancel,
		queues:     make(map[string]chan *models.NormalizedEvent),
	}
}

// Push ingests a lifecycle hook callback. It appends the raw event to the
// log, enqueues it, and returns immediately: the originating agent process
// must never wait on this system. Errors are logged, never returned.
func (g *Gateway) Push(pe models.PushEvent) {
	payload, _ := json.Marshal(pe)

	ev := &models.Event{
		Source:     models.SourcePush,
		Key:        pe.SessionID,
		Kind:       string(pe.Kind),
		Confidence: 1.0,
		Payload:    string(payload),
		ObservedAt: pe.Timestamp,
	}
	if intent, ok := resolve.IntentForPushKind(pe.Kind); ok {
		ev.Intent = intent
	}
	if err := g.store.AppendEvent(g.ctx, ev); err != nil {
		g.logger.Error("event log append failed", "error", err)
		return
	}

	dir := filepath.Clean(pe.Dir)
	if g.onPush != nil {
		g.onPush(dir)
	}

	g.enqueue(dir, &models.NormalizedEvent{
		EventID:    ev.ID,
		Source:     models.SourcePush,
		Confidence: 1.0,
		Key:        pe.SessionID,
		Dir:        pe.Dir,
		Kind:       pe.Kind,
		Intent:     ev.Intent,
		ObservedAt: pe.Timestamp,
		ArrivedAt:  ev.ArrivedAt,
	})
}

// Poll ingests the inferred turns of one transcript scan. Each inference is
// logged and enqueued on the same per-project queue as push events, so the
// two sources are serialized relative to each other.
func (g *Gateway) Poll(snap models.PollSnapshot) {
	dir := filepath.Clean(snap.Dir)
	for _, inf := range snap.Inferred {
		ev := &models.Event{
			Source:     models.SourcePoll,
			Key:        snap.Dir,
			Intent:     inf.Intent,
			Confidence: inf.Confidence,
			ObservedAt: inf.Timestamp,
		}
		if err := g.store.AppendEvent(g.ctx, ev); err != nil {
			g.logger.Error("event log append failed", "error", err)
			continue
		}

		g.enqueue(dir, &models.NormalizedEvent{
			EventID:    ev.ID,
			Source:     models.SourcePoll,
			Confidence: inf.Confidence,
			Key:        snap.Dir,
			Dir:        snap.Dir,
			Intent:     inf.Intent,
			ObservedAt: inf.Timestamp,
			ArrivedAt:  ev.ArrivedAt,
		})
	}
}

// enqueue deposits the event on the project's queue without ever blocking.
// On a full queue the oldest event is dropped and logged as overflow. The
// channel send happens under g.mu: the sends are non-blocking, and holding
// the lock makes them atomic with the consumer's empty-check-and-release, so
// no producer can ever strand an event in a queue that just lost its
// consumer.
func (g *Gateway) enqueue(dir string, ev *models.NormalizedEvent) {
	var shed []string

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	q, ok := g.queues[dir]
	if !ok {
		q = make(chan *models.NormalizedEvent, g.queueSize)
		g.queues[dir] = q
		g.wg.Add(1)
		go g.consume(dir, q)
	}
	g.pending.Add(1)

	delivered := false
	select {
	case q <- ev:
		delivered = true
	default:
	}
	if !delivered {
		// Queue saturated: shed the oldest entry, then retry once. If the
		// consumer drained the slot meanwhile, nothing is shed.
		select {
		case old := <-q:
			shed = append(shed, old.EventID)
		default:
		}
		select {
		case q <- ev:
		default:
			shed = append(shed, ev.EventID)
		}
	}
	g.mu.Unlock()

	for _, id := range shed {
		g.logger.Warn("push ingest overflow, event dropped", "project_key", dir, "event", id)
		g.markDropped(id, models.DropIngestOverflow)
		g.pending.Done()
	}
}

// consume is the project's single-writer loop.
func (g *Gateway) consume(dir string, q chan *models.NormalizedEvent) {
	defer g.wg.Done()
	for {
		select {
		case <-g.ctx.Done():
			return
		case ev := <-q:
			lastAgentEnded := g.process(ev)
			g.pending.Done()
			if lastAgentEnded {
				// Last agent in the project ended; release the queue unless
				// a producer got another event in first. The emptiness check
				// and the map delete are atomic relative to enqueue, which
				// sends under the same lock.
				g.mu.Lock()
				if len(q) == 0 && g.queues[dir] == q {
					delete(g.queues, dir)
					g.mu.Unlock()
					return
				}
				g.mu.Unlock()
			}
		}
	}
}

// process runs one event through correlation and resolution. Returns true
// when the project has no active agents left.
func (g *Gateway) process(ev *models.NormalizedEvent) bool {
	agent, err := g.correlator.Resolve(g.ctx, ev)
	if err != nil {
		if errors.Is(err, correlate.ErrCorrelationMiss) {
			g.logger.Warn("correlation miss", "key", ev.Key, "dir", ev.Dir)
			g.markDropped(ev.EventID, models.DropCorrelationMiss)
			return false
		}
		g.logger.Error("correlation failed", "error", err, "key", ev.Key)
		return false
	}

	outcome, err := g.resolver.Apply(g.ctx, agent, ev)
	if err != nil {
		g.logger.Error("resolution failed", "error", err, "agent", agent.ID)
		return false
	}

	if !outcome.Applied() {
		g.markDropped(ev.EventID, outcome.Drop)
		return false
	}

	if err := g.store.MarkEventApplied(g.ctx, ev.EventID, agent.ID, agent.ProjectID); err != nil {
		g.logger.Error("mark event applied failed", "error", err)
	}

	st := outcome.Transition
	if err := g.store.AppendTransition(g.ctx, st); err != nil {
		g.logger.Error("append transition failed", "error", err)
	}
	if g.bus != nil {
		g.bus.Publish(*st)
	}

	if agent.Phase == models.AgentEnded {
		g.correlator.Release(agent)
		active, err := g.store.ListActiveAgents(g.ctx, agent.ProjectID)
		if err == nil && len(active) == 0 {
			return true
		}
	}
	return false
}

func (g *Gateway) markDropped(eventID string, reason models.DropReason) {
	if err := g.store.MarkEventDropped(g.ctx, eventID, reason); err != nil {
		g.logger.Error("mark event dropped failed", "error", err)
	}
}

// Flush blocks until every accepted event has been fully processed or shed.
func (g *Gateway) Flush() {
	g.pending.Wait()
}

// Close stops all consumer loops. Queued events that were not yet processed
// remain in the event log and are re-resolved from poll scans after restart.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	g.wg.Wait()
}
