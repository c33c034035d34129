// Package cli holds the edubot commands.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"edubot/internal/config"
	"edubot/internal/helper"
	"edubot/internal/rag"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

// newAnswerer is replaced in tests.
var newAnswerer = func(ctx context.Context, cfg *config.Config) (*rag.RAG, error) {
	return rag.New(ctx, cfg)
}

var rootCmd = &cobra.Command{
	Use:   "edubot",
	Short: "Answer questions from a corpus of PDF documents",
	Long: `edubot indexes a directory of PDFs into a vector store and answers
questions by retrieving relevant passages and handing them to a language model.

Example usage:
  edubot index                              # Build the index from indexer.source_directory
  edubot ask "What is photosynthesis?"      # Answer one question
  edubot chat                               # Interactive session
  edubot serve                              # HTTP API for a chat UI`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("Could not load .env")
		}

		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		helper.SetupLogger(level, cfg.Logging.Format, os.Stderr)
		log.Debug().Str("config", cfgFile).Msg("Loaded config")
		return nil
	},
}

// Execute runs the command selected by the process arguments.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from config)")
}

func GetConfig() *config.Config {
	return cfg
}
