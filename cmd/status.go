package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/output"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show agent status dashboard",
	Long: `Show a cross-project overview of agent sessions and their states.

Without arguments, shows all projects with active agents.
With a project path, shows only that project's agents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath := ""
		if len(args) == 1 {
			projectPath = args[0]
		}
		return statusOverviewRun(projectPath)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include ended agents")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun(projectPath string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var projects []*models.Project
	if projectPath != "" {
		p, err := s.GetProjectByPath(ctx, projectPath)
		if err != nil {
			return fmt.Errorf("project not found: %s", projectPath)
		}
		projects = []*models.Project{p}
	} else {
		projects, err = s.ListProjects(ctx)
		if err != nil {
			return err
		}
	}

	if len(projects) == 0 {
		ui.Info("No projects watched yet. Agents appear as hooks or transcripts arrive.")
		return nil
	}

	table := ui.Table([]string{"Project", "Agent", "Phase", "State", "Conf", "Last Seen"})
	rows := 0

	for _, p := range projects {
		var agents []*models.Agent
		if statusAll {
			agents, err = s.ListAgents(ctx, p.ID, 0)
		} else {
			agents, err = s.ListActiveAgents(ctx, p.ID)
		}
		if err != nil {
			return err
		}

		for _, a := range agents {
			state := models.TaskIdle
			if task, err := s.GetOpenTask(ctx, a.ID); err == nil && task != nil {
				state = task.State
			}

			conf := "-"
			if a.LastAppliedAt != nil {
				conf = output.ConfidenceColor(a.LastAppliedConfidence)
			}

			table.Append([]string{
				output.Cyan(p.Name),
				shortID(a.ID),
				output.PhaseColor(string(a.Phase)),
				output.StateColor(string(state)),
				conf,
				timeAgo(a.LastSeenAt),
			})
			rows++
		}
	}

	if rows == 0 {
		ui.Info("No active agents.")
		return nil
	}
	table.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
