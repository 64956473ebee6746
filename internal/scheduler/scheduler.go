package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Mode is the polling cadence for one watched directory.
type Mode string

const (
	// ModeReconciliation is the slow safety-net cadence used while push
	// telemetry is flowing.
	ModeReconciliation Mode = "reconciliation"
	// ModeDegraded is the fast cadence used when push telemetry has gone
	// silent and polling is the only signal left.
	ModeDegraded Mode = "degraded"
)

// trigger is an observed condition that may move a watch between modes.
type trigger string

const (
	triggerSilence   trigger = "silence"
	triggerFreshPush trigger = "fresh_push"
)

// modeTransitions is the guard table for mode changes. Degraded recovers
// only through an observed fresh push, never through elapsed time, so an
// unreliable push channel cannot make the cadence flap.
var modeTransitions = map[Mode]map[trigger]Mode{
	ModeReconciliation: {
		triggerSilence: ModeDegraded,
	},
	ModeDegraded: {
		triggerFreshPush: ModeReconciliation,
	},
}

// ScanFunc runs one poll pass over a watched directory.
type ScanFunc func(ctx context.Context, dir string) error

// DiscoverFunc enumerates project directories that have session transcripts
// on disk. It bootstraps polling for sessions that never delivered a hook.
type DiscoverFunc func(ctx context.Context) ([]string, error)

// Config tunes the scheduler cadences.
type Config struct {
	ReconcileInterval time.Duration
	DegradedInterval  time.Duration
	SilenceThreshold  time.Duration
	ScanTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 60 * time.Second
	}
	if c.DegradedInterval <= 0 {
		c.DegradedInterval = 2 * time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 300 * time.Second
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 30 * time.Second
	}
	return c
}

// watch tracks the polling state of one directory.
type watch struct {
	mode     Mode
	lastPush time.Time
	lastScan time.Time
	scanning bool
}

// Scheduler decides when each watched directory gets a poll scan. It owns no
// state-mutation logic itself; the scan callback feeds the ingest pipeline.
type Scheduler struct {
	cfg      Config
	scan     ScanFunc
	discover DiscoverFunc
	logger   *slog.Logger
	now      func() time.Time

	scanWG sync.WaitGroup

	mu           sync.Mutex
	watches      map[string]*watch
	lastDiscover time.Time
	discovering  bool
}

// New creates a Scheduler. The scan callback is invoked under ScanTimeout;
// overruns are logged as poll failures and retried on the next due tick.
// discover may be nil, in which case directories only enter the watch set
// through Watch and NotePush.
func New(cfg Config, scan ScanFunc, discover DiscoverFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		scan:     scan,
		discover: discover,
		logger:   logger,
		now:      time.Now,
		watches:  make(map[string]*watch),
	}
}

// Watch registers a directory for polling. Already-watched directories are
// left untouched.
func (s *Scheduler) Watch(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watches[dir]; ok {
		return
	}
	s.watches[dir] = &watch{mode: ModeReconciliation, lastPush: s.now()}
}

// Forget stops polling a directory.
func (s *Scheduler) Forget(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, dir)
}

// NotePush records an observed push event for a directory. This is the only
// path back from degraded to reconciliation cadence.
func (s *Scheduler) NotePush(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watches[dir]
	if !ok {
		w = &watch{mode: ModeReconciliation}
		s.watches[dir] = w
	}
	w.lastPush = s.now()
	s.apply(dir, w, triggerFreshPush)
}

// Mode reports the current cadence for a directory.
func (s *Scheduler) Mode(dir string) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[dir]; ok {
		return w.mode
	}
	return ModeReconciliation
}

// apply moves a watch through the guard table. Unlisted triggers are no-ops.
func (s *Scheduler) apply(dir string, w *watch, tr trigger) {
	next, ok := modeTransitions[w.mode][tr]
	if !ok || next == w.mode {
		return
	}
	s.logger.Info("poll mode change",
		"dir", dir, "from", w.mode, "to", next, "trigger", tr)
	w.mode = next
}

// Tick runs one scheduling pass: directory discovery when it is due, silence
// detection, then a scan for every directory whose cadence interval has
// elapsed. Scans run on their own goroutines so one hung directory cannot
// stall another's cadence; a directory is never scanned concurrently with
// itself.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	s.maybeDiscover(ctx, now)

	type dueScan struct {
		dir string
		w   *watch
	}

	s.mu.Lock()
	due := make([]dueScan, 0, len(s.watches))
	for dir, w := range s.watches {
		if now.Sub(w.lastPush) > s.cfg.SilenceThreshold {
			s.apply(dir, w, triggerSilence)
		}
		if w.scanning {
			continue
		}
		interval := s.cfg.ReconcileInterval
		if w.mode == ModeDegraded {
			interval = s.cfg.DegradedInterval
		}
		if now.Sub(w.lastScan) >= interval {
			w.scanning = true
			w.lastScan = now
			due = append(due, dueScan{dir: dir, w: w})
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		s.scanWG.Add(1)
		go func(dir string, w *watch) {
			defer s.scanWG.Done()
			s.runScan(ctx, dir)
			s.mu.Lock()
			w.scanning = false
			s.mu.Unlock()
		}(d.dir, d.w)
	}
}

// maybeDiscover kicks off a discovery pass at the reconciliation cadence. New
// directories join the watch set; known ones are untouched.
func (s *Scheduler) maybeDiscover(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.discover == nil || s.discovering ||
		(!s.lastDiscover.IsZero() && now.Sub(s.lastDiscover) < s.cfg.ReconcileInterval) {
		s.mu.Unlock()
		return
	}
	s.discovering = true
	s.lastDiscover = now
	s.mu.Unlock()

	s.scanWG.Add(1)
	go func() {
		defer s.scanWG.Done()
		dctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()

		dirs, err := s.discover(dctx)
		if err != nil {
			s.logger.Warn("transcript discovery failed", "error", err)
		}
		for _, dir := range dirs {
			s.Watch(dir)
		}

		s.mu.Lock()
		s.discovering = false
		s.mu.Unlock()
	}()
}

// runScan executes the scan callback under the hard timeout. A failed or
// timed-out scan waits for the next due tick; there is no immediate retry.
func (s *Scheduler) runScan(ctx context.Context, dir string) {
	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	if err := s.scan(scanCtx, dir); err != nil {
		s.logger.Warn("poll failure", "dir", dir, "error", err)
	}
}

// Run ticks at the degraded cadence until the context is canceled. Directory
// due times are tracked per watch, so the fine-grained ticker only costs a
// map walk for directories still in reconciliation mode.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DegradedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
