package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentwatch/internal/api"
	"github.com/joescharf/agentwatch/internal/correlate"
	"github.com/joescharf/agentwatch/internal/daemon"
	"github.com/joescharf/agentwatch/internal/ingest"
	"github.com/joescharf/agentwatch/internal/notify"
	"github.com/joescharf/agentwatch/internal/resolve"
	"github.com/joescharf/agentwatch/internal/scheduler"
	"github.com/joescharf/agentwatch/internal/transcript"
)

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the correlation engine and API server",
	Long: `Run the agentwatch engine: hook ingress, transcript polling, state
resolution, and the REST/websocket API.

Runs in the foreground by default. Use --daemon to detach into the
background; 'serve stop' and 'serve status' manage the daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveStartRun()
		}
		return serveRun(cmd.Context())
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "Run detached in the background")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "agentwatch-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "agentwatch-serve.log")
}

// processAlive reports whether a process with the given PID exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// serveRun runs the engine in the foreground until interrupted.
func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	correlator := correlate.New(s, logger)
	if err := correlator.Load(ctx); err != nil {
		return fmt.Errorf("load correlation index: %w", err)
	}

	resolver := resolve.New(s, logger, viper.GetDuration("resolve.liveness_window"))
	bus := notify.NewBus()
	defer bus.Close()

	scanner := transcript.NewScanner(viper.GetString("transcript_root"), s, logger)

	var gateway *ingest.Gateway
	sched := scheduler.New(scheduler.Config{
		ReconcileInterval: viper.GetDuration("poll.reconcile_interval"),
		DegradedInterval:  viper.GetDuration("poll.degraded_interval"),
		SilenceThreshold:  viper.GetDuration("poll.silence_threshold"),
		ScanTimeout:       viper.GetDuration("poll.scan_timeout"),
	}, func(ctx context.Context, dir string) error {
		snap, err := scanner.Scan(ctx, dir)
		if err != nil {
			return err
		}
		gateway.Poll(*snap)
		return nil
	}, scanner.Discover, logger)

	gateway = ingest.New(s, correlator, resolver, bus, logger, ingest.Config{
		QueueSize: viper.GetInt("ingest.queue_size"),
		OnPush:    sched.NotePush,
	})
	defer gateway.Close()

	// Resume polling for projects that still had active agents.
	if projects, err := s.ListProjects(ctx); err == nil {
		for _, p := range projects {
			if active, err := s.ListActiveAgents(ctx, p.ID); err == nil && len(active) > 0 {
				sched.Watch(p.Path)
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sched.Run(runCtx)

	addr := viper.GetString("addr")
	apiServer := api.NewServer(s, gateway, sched, bus, logger)
	httpServer := &http.Server{Addr: addr, Handler: apiServer.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentwatch serving", "addr", addr, "version", buildVersion)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals()...)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	gateway.Flush()
	return nil
}

// serveStartRun detaches a background server process and records its PID.
func serveStartRun() error {
	pf := pidFile()
	if pid, err := pf.Read(); err == nil && processAlive(pid) {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	child := exec.Command(exe, "serve", "--addr", viper.GetString("addr"))
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, err := pf.Read()
	if err != nil {
		return fmt.Errorf("server not running (no pid file at %s)", pf.Path)
	}
	if !processAlive(pid) {
		_ = pf.Remove()
		return fmt.Errorf("server not running (stale pid %d removed)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}

	// Give it a moment to exit cleanly before escalating.
	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			_ = pf.Remove()
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Signal(sigKILL())
	_ = pf.Remove()
	ui.Warning("Server killed (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, err := pf.Read()
	if err != nil {
		ui.Info("Server not running")
		return nil
	}
	if !processAlive(pid) {
		ui.Info("Server not running (stale pid file at %s)", pf.Path)
		return nil
	}
	ui.Success("Server running (pid %d), listening on %s", pid, viper.GetString("addr"))
	return nil
}
