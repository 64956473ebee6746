package transcript

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/store"
)

// Scanner reads the append-only JSONL session transcripts for a watched
// directory and turns newly appended lines into inferred turns. Read offsets
// are persisted per file, so each scan only processes new content.
type Scanner struct {
	root   string
	store  store.Store
	logger *slog.Logger
}

// NewScanner creates a Scanner over a transcript root (the directory that
// holds one encoded subdirectory per project, e.g. ~/.claude/projects).
func NewScanner(root string, s store.Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{root: root, store: s, logger: logger}
}

// EncodeDir returns the transcript subdirectory name for a project path,
// mirroring the encoding the agent uses: '/' and '.' become '-'.
func EncodeDir(dir string) string {
	return strings.NewReplacer("/", "-", ".", "-", "\\", "-", ":", "-").Replace(dir)
}

// Discover walks the transcript root and returns the project directories
// that have session transcripts on disk, read from the cwd recorded on the
// transcript lines. The encoded subdirectory names are lossy, so the path
// has to come from the content. This is how polling bootstraps sessions
// that never delivered a hook.
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript root: %w", err)
	}

	var dirs []string
	seen := make(map[string]bool)
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return dirs, err
		}
		if !de.IsDir() {
			continue
		}
		cwd := s.peekCWD(filepath.Join(s.root, de.Name()))
		if cwd == "" || seen[cwd] {
			continue
		}
		seen[cwd] = true
		dirs = append(dirs, cwd)
	}
	return dirs, nil
}

// peekCWD returns the working directory recorded in the first parsable lines
// of any transcript under dir, or "" when none carries one.
func (s *Scanner) peekCWD(dir string) string {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return ""
	}

	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		reader := bufio.NewReaderSize(file, 64*1024)
		for i := 0; i < 20; i++ {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				if e, perr := parseLine(bytes.TrimRight(line, "\r\n")); perr == nil && e.CWD != "" {
					_ = file.Close()
					return e.CWD
				}
			}
			if err != nil {
				break
			}
		}
		_ = file.Close()
	}
	return ""
}

// Scan processes newly appended transcript content for one watched directory
// and returns a snapshot of the inferred turns. An unreadable root or file is
// an error; the scheduler logs it and continues on its next tick.
func (s *Scanner) Scan(ctx context.Context, dir string) (*models.PollSnapshot, error) {
	transcriptDir := filepath.Join(s.root, EncodeDir(dir))
	paths, err := filepath.Glob(filepath.Join(transcriptDir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob transcripts: %w", err)
	}

	snap := &models.PollSnapshot{Dir: dir}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.scanFile(ctx, path, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string, snap *models.PollSnapshot) error {
	offset, err := s.store.GetOffset(ctx, path)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	if info.Size() < offset {
		// Truncated or rotated; start over.
		offset = 0
	}
	if info.Size() == offset {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(offset, 0); err != nil {
		return fmt.Errorf("seek transcript: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)

	consumed := offset
	questionOpen := false
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A trailing line without its newline is a write still in
			// flight. Leave it for the next scan; the offset only ever
			// advances past complete lines.
			break
		}
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		consumed += int64(len(line))

		entry, err := parseLine(bytes.TrimRight(line, "\r\n"))
		if err != nil {
			// Skip invalid lines.
			continue
		}
		if entry.SessionID != "" && snap.SessionID == "" {
			snap.SessionID = entry.SessionID
		}

		inf, ok := inferTurn(entry, questionOpen)
		if !ok {
			continue
		}
		questionOpen = inf.Intent == models.IntentQuestion
		snap.Inferred = append(snap.Inferred, inf)
		if inf.Timestamp.After(snap.ObservedAt) {
			snap.ObservedAt = inf.Timestamp
		}
	}

	if err := s.store.SetOffset(ctx, path, consumed); err != nil {
		return err
	}
	return nil
}
