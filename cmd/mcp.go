package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/agentwatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to query agentwatch natively for agent
sessions, state transitions, and the event audit log. Configure in
Claude Code with:

  {
    "mcpServers": {
      "agentwatch": { "command": "agentwatch", "args": ["mcp"] }
    }
  }

Available tools: aw_list_projects, aw_list_agents, aw_agent_status,
aw_list_transitions, aw_list_events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
