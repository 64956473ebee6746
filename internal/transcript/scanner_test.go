package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

func newTestScanner(t *testing.T) (*Scanner, string) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	return NewScanner(root, s, nil), root
}

func writeTranscript(t *testing.T, root, dir, name string, lines ...string) string {
	t.Helper()
	transcriptDir := filepath.Join(root, EncodeDir(dir))
	require.NoError(t, os.MkdirAll(transcriptDir, 0755))

	path := filepath.Join(transcriptDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
	return path
}

func userLine(ts time.Time, text string) string {
	return fmt.Sprintf(`{"type":"user","sessionId":"sess-1","cwd":"/p1","timestamp":%q,"message":{"role":"user","content":%q}}`,
		ts.Format(time.RFC3339Nano), text)
}

func assistantLine(ts time.Time, text, stopReason string) string {
	return fmt.Sprintf(`{"type":"assistant","sessionId":"sess-1","cwd":"/p1","timestamp":%q,"message":{"role":"assistant","stop_reason":%q,"content":[{"type":"text","text":%q}]}}`,
		ts.Format(time.RFC3339Nano), stopReason, text)
}

func toolResultLine(ts time.Time) string {
	return fmt.Sprintf(`{"type":"user","sessionId":"sess-1","cwd":"/p1","timestamp":%q,"message":{"role":"user","content":[{"type":"tool_result","text":"ok"}]}}`,
		ts.Format(time.RFC3339Nano))
}

func TestEncodeDir(t *testing.T) {
	assert.Equal(t, "-home-joe-src-pm", EncodeDir("/home/joe/src/pm"))
	assert.Equal(t, "-home-joe-my-app", EncodeDir("/home/joe/my.app"))
}

func TestScan_InfersIntents(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	writeTranscript(t, root, "/p1", "a.jsonl",
		userLine(base, "add a retry flag"),
		toolResultLine(base.Add(time.Second)),
		assistantLine(base.Add(2*time.Second), "Should I also update the docs?", "end_turn"),
		userLine(base.Add(3*time.Second), "yes"),
		assistantLine(base.Add(4*time.Second), "Done, the flag is wired up.", "end_turn"),
	)

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", snap.SessionID)
	require.Len(t, snap.Inferred, 5)

	wantIntents := []models.TurnIntent{
		models.IntentCommand,
		models.IntentProgress,
		models.IntentQuestion,
		models.IntentAnswer,
		models.IntentCompletion,
	}
	for i, want := range wantIntents {
		assert.Equal(t, want, snap.Inferred[i].Intent, "line %d", i)
		assert.GreaterOrEqual(t, snap.Inferred[i].Confidence, 0.3)
		assert.LessOrEqual(t, snap.Inferred[i].Confidence, 0.9)
	}
	assert.Equal(t, base.Add(4*time.Second), snap.ObservedAt)
}

func TestScan_OnlyNewContent(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	writeTranscript(t, root, "/p1", "a.jsonl", userLine(base, "first"))

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1)

	// Nothing new: empty snapshot.
	snap, err = s.Scan(ctx, "/p1")
	require.NoError(t, err)
	assert.Empty(t, snap.Inferred)

	// Appended content only.
	writeTranscript(t, root, "/p1", "a.jsonl", assistantLine(base.Add(time.Second), "working on it", ""))
	snap, err = s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1)
	assert.Equal(t, models.IntentProgress, snap.Inferred[0].Intent)
}

// A half-written trailing line must stay unconsumed: the offset may only
// move past complete lines, so the finished line is inferred exactly once.
func TestScan_PartialTrailingLineDeferred(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	second := userLine(base.Add(time.Second), "second command")
	path := writeTranscript(t, root, "/p1", "a.jsonl", userLine(base, "first command"))
	appendRaw(t, path, second[:len(second)/2])

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1)

	// The writer completes the line.
	appendRaw(t, path, second[len(second)/2:]+"\n")

	snap, err = s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1, "completed line inferred exactly once")
	assert.Equal(t, models.IntentCommand, snap.Inferred[0].Intent)
	assert.Equal(t, base.Add(time.Second), snap.Inferred[0].Timestamp)
}

func appendRaw(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func TestScan_SkipsMalformedLines(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	writeTranscript(t, root, "/p1", "a.jsonl",
		"not json at all",
		`{"type":"summary","summary":"compacted"}`,
		userLine(base, "do the thing"),
	)

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1)
	assert.Equal(t, models.IntentCommand, snap.Inferred[0].Intent)
}

func TestScan_TruncatedFileRestartsFromZero(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	path := writeTranscript(t, root, "/p1", "a.jsonl",
		userLine(base, "one"), userLine(base.Add(time.Second), "two"))

	_, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)

	// Rewrite shorter than the stored offset.
	require.NoError(t, os.WriteFile(path, []byte(userLine(base.Add(2*time.Second), "three")+"\n"), 0644))

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, snap.Inferred, 1)
}

func TestScan_NoTranscriptDir(t *testing.T) {
	s, _ := newTestScanner(t)

	snap, err := s.Scan(context.Background(), "/nowhere")
	require.NoError(t, err)
	assert.Empty(t, snap.Inferred, "missing transcript dir is an empty scan, not an error")
}

func TestDiscover_ReadsProjectPathFromTranscripts(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	writeTranscript(t, root, "/p1", "a.jsonl", userLine(base, "hello"))

	// A directory whose transcripts never state a cwd is skipped.
	writeTranscript(t, root, "/mystery", "b.jsonl", `{"type":"summary","summary":"compacted"}`)

	dirs, err := s.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p1"}, dirs, "project path read from transcript content, not the encoded name")
}

func TestDiscover_MissingRoot(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "nope"), nil, nil)

	dirs, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestScan_MultipleFiles(t *testing.T) {
	s, root := newTestScanner(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	writeTranscript(t, root, "/p1", "a.jsonl", userLine(base, "in a"))
	writeTranscript(t, root, "/p1", "b.jsonl", userLine(base.Add(time.Second), "in b"))

	snap, err := s.Scan(ctx, "/p1")
	require.NoError(t, err)
	assert.Len(t, snap.Inferred, 2)
}
