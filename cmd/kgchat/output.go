package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/kg"
)

var (
	colorAccent  = lipgloss.Color("#2CD7C7")
	colorMuted   = lipgloss.Color("#6C7A89")
	colorError   = lipgloss.Color("#E74C3C")
	colorWarning = lipgloss.Color("#F4D03F")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	userStyle      = lipgloss.NewStyle().Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(colorAccent)
	replyBox       = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
}

func printReply(r *kgchat.Reply) {
	if jsonOutput {
		printJSON(r)
		return
	}
	fmt.Println(replyBox.Render(r.Generation))
	meta := fmt.Sprintf("route %s · %d steps · %d chunk(s) · %d edges added · %dms",
		r.Route, r.Steps, r.Chunks, r.EdgesAdded, r.ElapsedMs)
	fmt.Println(mutedStyle.Render(meta))
}

func printMessages(msgs []kgchat.Message) {
	if jsonOutput {
		printJSON(msgs)
		return
	}
	for _, m := range msgs {
		switch {
		case m.IsError:
			fmt.Println(errorStyle.Render("assistant ✗ ") + m.Content)
		case m.Role == "user":
			fmt.Println(userStyle.Render("you › ") + m.Content)
		default:
			fmt.Println(assistantStyle.Render("assistant › ") + m.Content)
		}
	}
}

func printConversations(list []kgchat.Conversation) {
	if jsonOutput {
		printJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println(mutedStyle.Render("No conversations yet."))
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEDGES\tUPDATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Name, c.EdgeCount, c.UpdatedAt)
	}
	w.Flush()
}

func printOntology(o kg.Ontology) {
	if jsonOutput {
		printJSON(o)
		return
	}
	fmt.Println(titleStyle.Render("Labels"))
	labels := o.Labels()
	if len(labels) == 0 {
		fmt.Println(mutedStyle.Render("  (none: open extraction)"))
	}
	for _, l := range labels {
		if l.Description != "" {
			fmt.Printf("  • %s %s\n", l.Name, mutedStyle.Render("("+l.Description+")"))
		} else {
			fmt.Printf("  • %s\n", l.Name)
		}
	}
	fmt.Println(titleStyle.Render("Relationships"))
	rels := o.Relationships()
	if len(rels) == 0 {
		fmt.Println(mutedStyle.Render("  (none)"))
	}
	for _, r := range rels {
		fmt.Printf("  • %s\n", r)
	}
}

// printTables prints the node and edge tables of a graph.
func printTables(g *kg.Graph) {
	nodes, edges := g.Tables()
	if jsonOutput {
		printJSON(map[string]any{"nodes": nodes, "edges": edges})
		return
	}
	if len(nodes) == 0 {
		fmt.Println(mutedStyle.Render(kg.EmptyGraphSentinel + "."))
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tLABEL\tCOUNT")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%d\n", n.Name, n.Label, n.Count)
	}
	w.Flush()
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTARGET\tRELATIONSHIP")
	for _, e := range edges {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Source, e.Target, e.Relationship)
	}
	w.Flush()
}

func printList(items []string) {
	if jsonOutput {
		printJSON(items)
		return
	}
	for _, s := range items {
		fmt.Println("  • " + s)
	}
}

func warn(msg string) {
	fmt.Fprintln(os.Stderr, warningStyle.Render("⚠ "+strings.TrimSpace(msg)))
}
