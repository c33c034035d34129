package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"edubot/internal/helper"
	"edubot/internal/models"
)

var askJSON bool

type answerer interface {
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

var askCmd = &cobra.Command{
	Use:   "ask <query> [query...]",
	Short: "Answer one or more questions",
	Long: `Answer each query from the indexed documents. Several queries run in
parallel, bounded by generation.max_concurrency.

Examples:
  edubot ask "What is the capital of France?"
  edubot ask "first question" "second question" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	r, err := newAnswerer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	answers, errs := askAll(cmd.Context(), r, args, cfg.Generation.MaxConcurrency)
	if askJSON {
		helper.PrettyPrint(cmd.OutOrStdout(), askResults(args, answers, errs))
	} else {
		for i, ans := range answers {
			if errs[i] != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Query: %s\nError: %v\n\n", args[i], errs[i])
				continue
			}
			printAnswer(cmd.OutOrStdout(), ans)
		}
	}
	return errors.Join(errs...)
}

// AskResult is one entry of the --json output. Failed queries carry the
// error kind and message instead of an answer.
type AskResult struct {
	Query   string               `json:"query"`
	Result  string               `json:"result,omitempty"`
	Sources []models.ScoredChunk `json:"sources,omitempty"`
	Kind    string               `json:"kind,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func askResults(queries []string, answers []*models.Answer, errs []error) []AskResult {
	out := make([]AskResult, len(queries))
	for i, q := range queries {
		out[i].Query = q
		if errs[i] != nil {
			out[i].Kind = string(models.KindOf(errs[i]))
			out[i].Error = errs[i].Error()
			continue
		}
		out[i].Result = answers[i].Result
		out[i].Sources = answers[i].Sources
	}
	return out
}

// askAll answers every query with at most limit in flight. Results keep the
// order of queries; a failed query leaves a nil answer and its error.
func askAll(ctx context.Context, a answerer, queries []string, limit int) ([]*models.Answer, []error) {
	answers := make([]*models.Answer, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, q := range queries {
		g.Go(func() error {
			ans, err := a.Answer(ctx, q)
			if err != nil {
				log.Error().Err(err).Str("kind", string(models.KindOf(err))).Int("query", i).Msg("Query failed")
				errs[i] = err
				return nil
			}
			answers[i] = ans
			return nil
		})
	}
	_ = g.Wait()
	return answers, errs
}

func printAnswer(w io.Writer, ans *models.Answer) {
	fmt.Fprintf(w, "Query: %s\n", ans.Query)
	fmt.Fprintf(w, "Answer: %s\n", ans.Result)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for i, s := range ans.Sources {
			fmt.Fprintf(w, "  %d. %s (similarity %.3f)\n", i+1, s.SourceID(), s.Similarity)
		}
	}
	fmt.Fprintln(w)
}
