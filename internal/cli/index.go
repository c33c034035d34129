package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"edubot/internal/config"
	"edubot/internal/indexer"
)

var indexQuiet bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the PDF directory",
	Long: `Extract the text of every PDF in indexer.source_directory, split it into
overlapping chunks, embed them and replace the index at index.path.

Examples:
  edubot index
  edubot index --config prod.yaml --quiet`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&indexQuiet, "quiet", "q", false, "disable the progress bar")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	var progress io.Writer = os.Stderr
	if indexQuiet {
		progress = nil
	}

	sum, err := indexer.Run(cmd.Context(), cfg, indexer.Options{Progress: progress})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Files indexed:  %d\n", sum.Files)
	if sum.Skipped > 0 {
		fmt.Fprintf(out, "  Files skipped:  %d\n", sum.Skipped)
	}
	fmt.Fprintf(out, "  Pages:          %d\n", sum.Pages)
	fmt.Fprintf(out, "  Chunks created: %d\n", sum.Chunks)
	fmt.Fprintf(out, "  Dimension:      %d\n", sum.Dimension)
	fmt.Fprintf(out, "\nIndex stored at: %s\n", indexLocation(cfg))
	if sum.ExportErr != nil {
		fmt.Fprintf(out, "Warning: export to %s failed: %v\n", cfg.Index.ExportFile, sum.ExportErr)
	}
	return nil
}

func indexLocation(cfg *config.Config) string {
	if cfg.Index.Backend == "pgvector" {
		return "postgres collection " + cfg.Index.Collection
	}
	return cfg.Index.Path
}
