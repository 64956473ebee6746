package correlate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

func newTestCorrelator(t *testing.T) (*Correlator, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func pushEv(key, dir string) *models.NormalizedEvent {
	return &models.NormalizedEvent{
		Source: models.SourcePush, Confidence: 1.0,
		Key: key, Dir: dir, ObservedAt: time.Now().UTC(),
	}
}

func pollEv(dir string) *models.NormalizedEvent {
	return &models.NormalizedEvent{
		Source: models.SourcePoll, Confidence: 0.6,
		Key: dir, Dir: dir, ObservedAt: time.Now().UTC(),
	}
}

func TestResolve_CreatesAgentAndProject(t *testing.T) {
	c, s := newTestCorrelator(t)
	ctx := context.Background()

	agent, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)
	assert.Equal(t, "S1", agent.PushKey)
	assert.Equal(t, "/p1", agent.PollKey)

	p, err := s.GetProjectByPath(ctx, "/p1")
	require.NoError(t, err)
	assert.Equal(t, agent.ProjectID, p.ID)
	assert.Equal(t, "p1", p.Name)
}

func TestResolve_ExactMatchIsStable(t *testing.T) {
	c, _ := newTestCorrelator(t)
	ctx := context.Background()

	a1, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)

	a2, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)

	// The claimed push id maps to the same agent even with a different
	// directory hint (e.g. a subshell cwd change).
	a3, err := c.Resolve(ctx, pushEv("S1", "/p1/sub"))
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a3.ID)
}

func TestResolve_PushBridgesToPolledAgent(t *testing.T) {
	c, _ := newTestCorrelator(t)
	ctx := context.Background()

	// Agent first discovered via polling, no push id yet.
	polled, err := c.Resolve(ctx, pollEv("/p1"))
	require.NoError(t, err)
	assert.Empty(t, polled.PushKey)

	// First push for the same directory upgrades it.
	pushed, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)
	assert.Equal(t, polled.ID, pushed.ID)
	assert.Equal(t, "S1", pushed.PushKey)
}

func TestResolve_PollBridgesToPushedAgent(t *testing.T) {
	c, _ := newTestCorrelator(t)
	ctx := context.Background()

	pushed, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)

	polled, err := c.Resolve(ctx, pollEv("/p1"))
	require.NoError(t, err)
	assert.Equal(t, pushed.ID, polled.ID, "poll event must join the push-claimed agent")
}

func TestResolve_SecondPushKeyCreatesSecondAgent(t *testing.T) {
	c, _ := newTestCorrelator(t)
	ctx := context.Background()

	a1, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)

	// A different push id in the same directory is a second session: the
	// only open agent already holds a push key, so bridging must not steal it.
	a2, err := c.Resolve(ctx, pushEv("S2", "/p1"))
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, a2.ID)
	assert.Equal(t, "S1", a1.PushKey)
	assert.Equal(t, "S2", a2.PushKey)
}

func TestResolve_CorrelationMiss(t *testing.T) {
	c, _ := newTestCorrelator(t)
	ctx := context.Background()

	_, err := c.Resolve(ctx, pushEv("S1", ""))
	assert.ErrorIs(t, err, ErrCorrelationMiss)

	_, err = c.Resolve(ctx, pushEv("S1", "relative/path"))
	assert.ErrorIs(t, err, ErrCorrelationMiss)
}

func TestRelease_DropsMappings(t *testing.T) {
	c, s := newTestCorrelator(t)
	ctx := context.Background()

	agent, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)

	ended := time.Now().UTC()
	agent.Phase = models.AgentEnded
	agent.EndedAt = &ended
	require.NoError(t, s.UpdateAgent(ctx, agent))
	c.Release(agent)

	assert.Empty(t, c.Snapshot())

	// A new session in the same directory gets a fresh agent.
	next, err := c.Resolve(ctx, pushEv("S9", "/p1"))
	require.NoError(t, err)
	assert.NotEqual(t, agent.ID, next.ID)
}

func TestLoad_SeedsIndexFromStore(t *testing.T) {
	c, s := newTestCorrelator(t)
	ctx := context.Background()

	orig, err := c.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)

	// Fresh correlator over the same store, as after a daemon restart.
	c2 := New(s, nil)
	require.NoError(t, c2.Load(ctx))

	got, err := c2.Resolve(ctx, pushEv("S1", "/p1"))
	require.NoError(t, err)
	assert.Equal(t, orig.ID, got.ID)
}
