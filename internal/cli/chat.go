package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"edubot/internal/models"
)

// Turn is one exchange of an interactive session.
type Turn struct {
	Query  string
	Answer *models.Answer
	Err    error
}

// ConversationHistory lives only as long as the session that owns it.
type ConversationHistory struct {
	turns []Turn
}

func (h *ConversationHistory) Append(t Turn) {
	h.turns = append(h.turns, t)
}

func (h *ConversationHistory) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *ConversationHistory) Len() int {
	return len(h.turns)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Read one question per line and print the answer with its sources.
Type "exit" or send EOF to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newAnswerer(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer r.Close()

		history := &ConversationHistory{}
		if err := runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), r, history); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bye. %d questions asked.\n", history.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, a answerer, history *ConversationHistory) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "exit", "quit":
			return nil
		}

		ans, err := a.Answer(ctx, line)
		history.Append(Turn{Query: line, Answer: ans, Err: err})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		printAnswer(out, ans)
	}
}
