package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/agentwatch/internal/models"
	"github.com/joescharf/agentwatch/internal/output"
	"github.com/joescharf/agentwatch/internal/store"
)

var (
	eventsAgent   string
	eventsProject string
	eventsSource  string
	eventsSince   string
	eventsLimit   int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the raw event audit log",
	Long: `Show ingested events from the append-only audit log, newest first.

Every push hook and every inferred poll turn is recorded here before
processing, including events that were later dropped, with the reason.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventsRun()
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsAgent, "agent", "", "Filter by agent ID")
	eventsCmd.Flags().StringVar(&eventsProject, "project", "", "Filter by project ID")
	eventsCmd.Flags().StringVar(&eventsSource, "source", "", "Filter by source: push or poll")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events observed after this RFC3339 time")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to show")
	rootCmd.AddCommand(eventsCmd)
}

func eventsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.EventFilter{
		ProjectID: eventsProject,
		AgentID:   eventsAgent,
		Source:    models.EventSource(eventsSource),
		Limit:     eventsLimit,
	}
	if eventsSince != "" {
		since, err := time.Parse(time.RFC3339, eventsSince)
		if err != nil {
			return fmt.Errorf("invalid --since value (want RFC3339): %w", err)
		}
		filter.Since = since
	}

	events, err := s.ListEvents(context.Background(), filter)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		ui.Info("No events match.")
		return nil
	}

	table := ui.Table([]string{"Observed", "Source", "Signal", "Conf", "Outcome"})
	for _, e := range events {
		signal := e.Kind
		if signal == "" {
			signal = string(e.Intent)
		}

		outcome := output.Green("applied")
		if !e.Applied {
			if e.DropReason != models.DropNone {
				outcome = output.Red(string(e.DropReason))
			} else {
				outcome = output.Yellow("pending")
			}
		}

		table.Append([]string{
			e.ObservedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Source),
			signal,
			output.ConfidenceColor(e.Confidence),
			outcome,
		})
	}
	table.Render()
	return nil
}
