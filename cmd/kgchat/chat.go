package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/kgchat"
)

var chatName string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat on a conversation",
	Long: `Start an interactive chat. Without -c a new conversation is created.

Lines starting with a slash are commands:
  /graph     print the node and edge tables
  /ontology  print the conversation ontology
  /history   print the message history
  /quit      leave the chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		id := conversationID
		if id == "" {
			conv, err := e.NewConversation(ctx, chatName, nil)
			if err != nil {
				return err
			}
			id = conv.ID
			fmt.Println(mutedStyle.Render("conversation " + id))
		}
		msgs, err := e.Messages(ctx, id)
		if err != nil {
			return err
		}
		printMessages(msgs)
		return repl(ctx, e, id, os.Stdin, isatty.IsTerminal(os.Stdin.Fd()))
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Send one query to a conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		reply, err := e.Chat(cmd.Context(), conversationID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printReply(reply)
		return nil
	},
}

func init() {
	addConversationFlag(chatCmd, false)
	chatCmd.Flags().StringVar(&chatName, "name", "", "name for a new conversation")
	addConversationFlag(askCmd, true)
}

// repl reads queries line by line until EOF, /quit or cancellation. A
// failed query is reported and the loop continues. The prompt is printed
// only for interactive input.
func repl(ctx context.Context, e kgchat.Engine, id string, in io.Reader, prompt bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if prompt {
			fmt.Print(userStyle.Render("you › "))
		}
		if !scanner.Scan() {
			if prompt {
				fmt.Println()
			}
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := replCommand(ctx, e, id, line); quit {
				return nil
			}
			continue
		}

		reply, err := e.Chat(ctx, id, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			printError(err)
			continue
		}
		printReply(reply)
	}
}

func replCommand(ctx context.Context, e kgchat.Engine, id, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/graph":
		g, err := e.Graph(ctx, id)
		if err != nil {
			printError(err)
			return false
		}
		printTables(g)
	case "/ontology":
		o, err := e.Ontology(ctx, id)
		if err != nil {
			printError(err)
			return false
		}
		printOntology(o)
	case "/history":
		msgs, err := e.Messages(ctx, id)
		if err != nil {
			printError(err)
			return false
		}
		printMessages(msgs)
	default:
		warn("unknown command " + line)
	}
	return false
}
