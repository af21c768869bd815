package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportOut string
	renderOut string
	searchK  int
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect, export and import a conversation graph",
}

var graphShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the node and edge tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		g, err := e.Graph(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		printTables(g)
		return nil
	},
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the graph as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		data, err := e.ExportGraph(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		return writeOutput(exportOut, data)
	},
}

var graphImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the graph with a JSON artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		e, err := openEngine()
		if err != nil {
			return err
		}
		g, err := e.ImportGraph(cmd.Context(), conversationID, data)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d edges.\n", g.Len())
		return nil
	},
}

var graphRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the graph as a standalone HTML page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		page, err := e.RenderGraph(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		if page == "" {
			warn("graph is empty, nothing to render")
			return nil
		}
		return writeOutput(renderOut, []byte(page))
	},
}

var graphExploreCmd = &cobra.Command{
	Use:   "explore <node>",
	Short: "List the relationships touching a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		rels, err := e.ExploreNode(cmd.Context(), conversationID, args[0])
		if err != nil {
			return err
		}
		printList(rels)
		return nil
	},
}

var graphSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the nodes semantically closest to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		matches, err := e.SearchNodes(cmd.Context(), conversationID, args[0], searchK)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(matches)
			return nil
		}
		for _, m := range matches {
			fmt.Printf("  %.3f  %s %s\n", m.Score, m.Name, mutedStyle.Render("("+m.Label+")"))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{graphShowCmd, graphExportCmd, graphImportCmd, graphRenderCmd, graphExploreCmd, graphSearchCmd} {
		addConversationFlag(c, true)
		graphCmd.AddCommand(c)
	}
	graphExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	graphRenderCmd.Flags().StringVarP(&renderOut, "output", "o", "graph.html", "output file, - for stdout")
	graphSearchCmd.Flags().IntVarP(&searchK, "k", "k", 5, "number of nodes to return")
}

// writeOutput writes data to path, or to stdout when path is empty or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, mutedStyle.Render("wrote "+path))
	return nil
}
