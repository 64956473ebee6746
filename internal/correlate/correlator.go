package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

// ErrCorrelationMiss marks an event whose directory hint cannot be resolved
// to a Project. The caller logs and drops the event.
var ErrCorrelationMiss = errors.New("correlation miss")

// Correlator maps external session keys to canonical Agents using an ordered
// cascade of matching strategies. The in-memory index is only mutated from
// within each project's single-writer loop; Snapshot gives read access for
// display without touching the writer path.
type Correlator struct {
	store  store.Store
	logger *slog.Logger

	mu    sync.RWMutex
	byKey map[string]string   // "source:key" -> agent id
	byDir map[string][]string // directory -> open agent ids
}

// New creates a Correlator over the given store.
func New(s store.Store, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		store:  s,
		logger: logger,
		byKey:  make(map[string]string),
		byDir:  make(map[string][]string),
	}
}

// Load seeds the index from active agents in the store, typically at startup.
func (c *Correlator) Load(ctx context.Context) error {
	agents, err := c.store.ListActiveAgents(ctx, "")
	if err != nil {
		return fmt.Errorf("load correlation index: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range agents {
		if a.PushKey != "" {
			c.byKey[indexKey(models.SourcePush, a.PushKey)] = a.ID
		}
		if a.PollKey != "" {
			c.byKey[indexKey(models.SourcePoll, a.PollKey)] = a.ID
		}
		dir := a.PollKey
		if dir == "" {
			continue
		}
		c.byDir[dir] = append(c.byDir[dir], a.ID)
	}
	return nil
}

func indexKey(source models.EventSource, key string) string {
	return string(source) + ":" + key
}

// Resolve runs the matching cascade for a normalized event and returns the
// canonical Agent, creating Agent and Project as needed. Must only be called
// from the owning project's writer loop.
func (c *Correlator) Resolve(ctx context.Context, ev *models.NormalizedEvent) (*models.Agent, error) {
	dir := normalizeDir(ev.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: bad directory hint %q", ErrCorrelationMiss, ev.Dir)
	}

	// 1. Exact match on the external key.
	if agent, err := c.lookup(ctx, ev.Source, ev.Key); err != nil {
		return nil, err
	} else if agent != nil {
		return agent, nil
	}

	switch ev.Source {
	case models.SourcePush:
		// 2. Push-to-poll bridging: an Agent first discovered via polling
		// in the same directory, not yet claimed by any push id, is
		// upgraded to push-confirmed.
		if agent, err := c.bridgePush(ctx, dir, ev.Key); err != nil {
			return nil, err
		} else if agent != nil {
			return agent, nil
		}
	case models.SourcePoll:
		// 3. Poll-to-push bridging: the directory matches an Agent already
		// claimed by a push id; attach the poll key to it.
		if agent, err := c.bridgePoll(ctx, dir, ev.Key); err != nil {
			return nil, err
		} else if agent != nil {
			return agent, nil
		}
	}

	// 4. Directory-only fallback: exactly one open Agent for the directory.
	if agent, err := c.matchDir(ctx, dir, ev); err != nil {
		return nil, err
	} else if agent != nil {
		return agent, nil
	}

	// 5. No match: create a new Agent (and Project if unseen).
	return c.create(ctx, dir, ev)
}

// lookup checks the index for source:key, falling back to nothing: the index
// is authoritative for active agents because every mutation goes through the
// writer loop that also maintains it.
func (c *Correlator) lookup(ctx context.Context, source models.EventSource, key string) (*models.Agent, error) {
	if key == "" {
		return nil, nil
	}
	c.mu.RLock()
	id, ok := c.byKey[indexKey(source, key)]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return c.store.GetAgent(ctx, id)
}

func (c *Correlator) bridgePush(ctx context.Context, dir, pushKey string) (*models.Agent, error) {
	for _, agent := range c.openAgents(ctx, dir) {
		if agent.PushKey != "" {
			continue
		}
		agent.PushKey = pushKey
		if err := c.store.UpdateAgent(ctx, agent); err != nil {
			return nil, fmt.Errorf("claim push key: %w", err)
		}
		c.index(models.SourcePush, pushKey, agent.ID)
		c.logger.Debug("push key bridged to polled agent", "agent", agent.ID, "dir", dir)
		return agent, nil
	}
	return nil, nil
}

func (c *Correlator) bridgePoll(ctx context.Context, dir, pollKey string) (*models.Agent, error) {
	for _, agent := range c.openAgents(ctx, dir) {
		if agent.PushKey == "" {
			continue
		}
		if agent.PollKey == "" {
			agent.PollKey = pollKey
			if err := c.store.UpdateAgent(ctx, agent); err != nil {
				return nil, fmt.Errorf("attach poll key: %w", err)
			}
		}
		c.index(models.SourcePoll, pollKey, agent.ID)
		return agent, nil
	}
	return nil, nil
}

func (c *Correlator) matchDir(ctx context.Context, dir string, ev *models.NormalizedEvent) (*models.Agent, error) {
	// A push event carrying a fresh session id never falls back to a
	// directory match: the push-id claim is permanent, so an open agent
	// holding a different push id is a distinct session.
	if ev.Source == models.SourcePush && ev.Key != "" {
		return nil, nil
	}
	open := c.openAgents(ctx, dir)
	if len(open) != 1 {
		return nil, nil
	}
	agent := open[0]
	if ev.Key != "" {
		c.index(ev.Source, ev.Key, agent.ID)
	}
	return agent, nil
}

func (c *Correlator) create(ctx context.Context, dir string, ev *models.NormalizedEvent) (*models.Agent, error) {
	project, err := c.store.GetProjectByPath(ctx, dir)
	if err != nil {
		project = &models.Project{Path: dir}
		if err := c.store.CreateProject(ctx, project); err != nil {
			return nil, fmt.Errorf("create project for %s: %w", dir, err)
		}
	}

	agent := &models.Agent{ProjectID: project.ID}
	switch ev.Source {
	case models.SourcePush:
		agent.PushKey = ev.Key
	case models.SourcePoll:
		agent.PollKey = ev.Key
	}
	if agent.PollKey == "" {
		agent.PollKey = dir
	}

	if err := c.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	c.mu.Lock()
	if ev.Key != "" {
		c.byKey[indexKey(ev.Source, ev.Key)] = agent.ID
	}
	c.byKey[indexKey(models.SourcePoll, agent.PollKey)] = agent.ID
	c.byDir[dir] = append(c.byDir[dir], agent.ID)
	c.mu.Unlock()

	c.logger.Info("agent created", "agent", agent.ID, "project", project.Name, "source", string(ev.Source))
	return agent, nil
}

// openAgents returns the still-active agents indexed for dir, pruning ended
// ones from the directory index as a side effect.
func (c *Correlator) openAgents(ctx context.Context, dir string) []*models.Agent {
	c.mu.RLock()
	ids := append([]string(nil), c.byDir[dir]...)
	c.mu.RUnlock()

	var open []*models.Agent
	var kept []string
	for _, id := range ids {
		agent, err := c.store.GetAgent(ctx, id)
		if err != nil || agent.Phase != models.AgentActive {
			continue
		}
		open = append(open, agent)
		kept = append(kept, id)
	}

	if len(kept) != len(ids) {
		c.mu.Lock()
		c.byDir[dir] = kept
		c.mu.Unlock()
	}
	return open
}

func (c *Correlator) index(source models.EventSource, key, agentID string) {
	c.mu.Lock()
	c.byKey[indexKey(source, key)] = agentID
	c.mu.Unlock()
}

// Release drops an ended agent's cached mappings. Called when a session end
// is applied.
func (c *Correlator) Release(agent *models.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agent.PushKey != "" {
		delete(c.byKey, indexKey(models.SourcePush, agent.PushKey))
	}
	if agent.PollKey != "" {
		delete(c.byKey, indexKey(models.SourcePoll, agent.PollKey))
	}
	for dir, ids := range c.byDir {
		kept := ids[:0]
		for _, id := range ids {
			if id != agent.ID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(c.byDir, dir)
		} else {
			c.byDir[dir] = kept
		}
	}
}

// Snapshot returns a copy of the key index for display and diagnostics.
func (c *Correlator) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.byKey))
	for k, v := range c.byKey {
		out[k] = v
	}
	return out
}

// normalizeDir canonicalizes a working-directory hint. Returns "" for hints
// that cannot name a project root.
func normalizeDir(dir string) string {
	if dir == "" || !filepath.IsAbs(dir) {
		return ""
	}
	return filepath.Clean(dir)
}
