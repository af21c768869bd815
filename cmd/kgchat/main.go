// Command kgchat is the command-line client of the knowledge graph chat
// engine: an interactive chat REPL plus graph, ontology and conversation
// management and an MCP stdio server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat"
)

var version = "dev"

var (
	configPath     string
	logLevel       string
	jsonOutput     bool
	conversationID string

	engine kgchat.Engine
	cfg    kgchat.Config
)

var rootCmd = &cobra.Command{
	Use:           "kgchat",
	Short:         "Build and explore knowledge graphs by chatting",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		cfg = kgchat.DefaultConfig()
		if configPath != "" {
			if cfg, err = kgchat.LoadConfig(configPath); err != nil {
				return err
			}
		}
		return cfg.ApplyEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if engine != nil {
			engine.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("KGCHAT_CONFIG"), "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(ontologyCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statsCmd)
}

// openEngine creates the engine on first use.
func openEngine() (kgchat.Engine, error) {
	if engine != nil {
		return engine, nil
	}
	e, err := kgchat.New(cfg)
	if err != nil {
		return nil, err
	}
	engine = e
	return engine, nil
}

// addConversationFlag registers the -c flag on commands that act on one
// conversation.
func addConversationFlag(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation ID")
	if required {
		_ = cmd.MarkFlagRequired("conversation")
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
