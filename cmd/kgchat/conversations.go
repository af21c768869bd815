package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	newName  string
	runLimit int
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		list, err := e.ListConversations(cmd.Context())
		if err != nil {
			return err
		}
		printConversations(list)
		return nil
	},
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a conversation with the default ontology",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		conv, err := e.NewConversation(cmd.Context(), newName, nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(conv)
			return nil
		}
		fmt.Println(conv.ID)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation with its graph and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		if err := e.DeleteConversation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted " + args[0])
		return nil
	},
}

var conversationsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		msgs, err := e.Messages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printMessages(msgs)
		return nil
	},
}

var conversationsRunsCmd = &cobra.Command{
	Use:   "runs <id>",
	Short: "Print recent agent runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		runs, err := e.RunLogs(cmd.Context(), args[0], runLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(runs)
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-14s steps=%d edges=+%d %dms  %s",
				r.CreatedAt, r.Route, r.Steps, r.EdgesAdded, r.ElapsedMs, r.Query)
			if r.Error != "" {
				fmt.Println(errorStyle.Render(line + "  ✗ " + r.Error))
				continue
			}
			fmt.Println(line)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		s, err := e.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(s)
			return nil
		}
		fmt.Printf("conversations %d\nedges         %d\nnodes         %d\nembeddings    %d\nmessages      %d\nruns          %d\n",
			s.Conversations, s.Edges, s.Nodes, s.Embeddings, s.Messages, s.Runs)
		return nil
	},
}

func init() {
	conversationsCreateCmd.Flags().StringVar(&newName, "name", "", "conversation name")
	conversationsRunsCmd.Flags().IntVar(&runLimit, "limit", 20, "maximum runs to show")
	conversationsCmd.AddCommand(conversationsListCmd, conversationsCreateCmd, conversationsDeleteCmd,
		conversationsHistoryCmd, conversationsRunsCmd)
}
