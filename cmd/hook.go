package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentwatch/internal/models"
)

// hookBodyLimit caps how much of stdin a hook forwards.
const hookBodyLimit = 1 << 20

var hookCmd = &cobra.Command{
	Use:   "hook <kind>",
	Short: "Forward an agent lifecycle hook to the daemon",
	Long: `Read a hook payload from stdin and forward it to the running daemon.

Intended to be wired into the agent's hook configuration, e.g.:

  {
    "hooks": {
      "SessionStart": [{"hooks": [{"type": "command", "command": "agentwatch hook session_start"}]}]
    }
  }

Kinds: session_start, prompt_submitted, turn_stopped, notification,
session_end.

This command always exits 0. The agent's own flow must never block or
fail because the monitor is down; missed hooks are recovered from
transcript polling.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hookRun(args[0], cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func hookRun(kind string, stdin io.Reader) {
	if !models.KnownPushKind(models.PushKind(kind)) {
		ui.VerboseLog("unknown hook kind %q, dropping", kind)
		return
	}

	body, err := io.ReadAll(io.LimitReader(stdin, hookBodyLimit))
	if err != nil {
		ui.VerboseLog("read hook payload: %v", err)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	url := fmt.Sprintf("http://%s/api/v1/hooks/%s", viper.GetString("addr"), kind)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		// Fire and forget: a down daemon is not the agent's problem.
		ui.VerboseLog("hook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		ui.VerboseLog("hook rejected: %s", resp.Status)
	}
}
