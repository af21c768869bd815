package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/mcpserver"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Agent introspection",
}

var agentDiagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Print the agent state machine as a Mermaid diagram",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(agent.Mermaid())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as an MCP server over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		return mcpserver.New(e, version).Serve()
	},
}

func init() {
	agentCmd.AddCommand(agentDiagramCmd)
}
