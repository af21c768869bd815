package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Parse documents and chat their text into a conversation",
	Long:  "Parse documents (txt, md, pdf, xlsx) and send each one through the agent.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		for _, path := range args {
			if _, err := os.Stat(path); err != nil {
				return err
			}
			fmt.Println(titleStyle.Render(path))
			reply, err := e.Ingest(cmd.Context(), conversationID, path)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			printReply(reply)
		}
		return nil
	},
}

func init() {
	addConversationFlag(ingestCmd, true)
}
