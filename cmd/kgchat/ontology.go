package main

import (
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat/kg"
)

var labelDescription string

var ontologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "Show and edit a conversation ontology",
}

var ontologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the ontology",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		o, err := e.Ontology(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		printOntology(o)
		return nil
	},
}

var ontologyAddLabelCmd = &cobra.Command{
	Use:   "add-label <name>",
	Short: "Add an entity label",
	Args:  cobra.ExactArgs(1),
	RunE: editOntology(func(cmd *cobra.Command, args []string) (kg.Ontology, error) {
		return engine.AddLabel(cmd.Context(), conversationID, kg.Label{Name: args[0], Description: labelDescription})
	}),
}

var ontologyRemoveLabelCmd = &cobra.Command{
	Use:   "remove-label <name>",
	Short: "Remove an entity label",
	Args:  cobra.ExactArgs(1),
	RunE: editOntology(func(cmd *cobra.Command, args []string) (kg.Ontology, error) {
		return engine.RemoveLabel(cmd.Context(), conversationID, args[0])
	}),
}

var ontologyAddRelCmd = &cobra.Command{
	Use:   "add-rel <relationship>",
	Short: "Add a relationship description",
	Args:  cobra.ExactArgs(1),
	RunE: editOntology(func(cmd *cobra.Command, args []string) (kg.Ontology, error) {
		return engine.AddRelationship(cmd.Context(), conversationID, args[0])
	}),
}

var ontologyRemoveRelCmd = &cobra.Command{
	Use:   "remove-rel <relationship>",
	Short: "Remove a relationship description",
	Args:  cobra.ExactArgs(1),
	RunE: editOntology(func(cmd *cobra.Command, args []string) (kg.Ontology, error) {
		return engine.RemoveRelationship(cmd.Context(), conversationID, args[0])
	}),
}

func init() {
	for _, c := range []*cobra.Command{ontologyShowCmd, ontologyAddLabelCmd, ontologyRemoveLabelCmd, ontologyAddRelCmd, ontologyRemoveRelCmd} {
		addConversationFlag(c, true)
		ontologyCmd.AddCommand(c)
	}
	ontologyAddLabelCmd.Flags().StringVarP(&labelDescription, "description", "d", "", "label description")
}

// editOntology opens the engine, applies edit and prints the result.
func editOntology(edit func(*cobra.Command, []string) (kg.Ontology, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if _, err := openEngine(); err != nil {
			return err
		}
		o, err := edit(cmd, args)
		if err != nil {
			return err
		}
		printOntology(o)
		return nil
	}
}
