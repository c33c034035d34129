// Package indexer turns a directory of PDFs into a persisted similarity index.
package indexer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/tmc/langchaingo/embeddings"

	"edubot/internal/chromemdb"
	"edubot/internal/config"
	"edubot/internal/embedding"
	"edubot/internal/models"
	"edubot/internal/parser"
	"edubot/internal/vectorstore"
)

type Options struct {
	// Embedder overrides the embedder built from the config.
	Embedder embeddings.Embedder
	// Progress receives the embedding progress bar. Nil disables it.
	Progress io.Writer
}

// Summary describes a finished indexing run.
type Summary struct {
	Files     int
	Skipped   int
	Pages     int
	Chunks    int
	Dimension int
	Elapsed   time.Duration
	// ExportErr is set when the index was written but its export failed.
	ExportErr error
}

// Run rebuilds the index from cfg.Indexer.SourceDirectory. The previous index
// is replaced only when every step succeeds.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	files, err := parser.Discover(cfg.Indexer.SourceDirectory, cfg.Indexer.Glob)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.Indexer.SourceDirectory).Int("files", len(files)).Msg("Discovered documents")

	splitter, err := parser.NewSplitter(cfg.Indexer)
	if err != nil {
		return nil, err
	}
	exportKey, err := cfg.Index.ExportKey()
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := parser.ParsePDF(file, cfg.Indexer.ValidatePDF)
		if err == nil {
			var fileChunks []models.Chunk
			fileChunks, err = parser.ChunkPages(pages, splitter)
			if err == nil {
				sum.Pages += len(pages)
				chunks = append(chunks, fileChunks...)
				sum.Files++
				log.Debug().Str("file", file).Int("pages", len(pages)).Int("chunks", len(fileChunks)).Msg("Chunked document")
				continue
			}
		}
		if !cfg.Indexer.SkipOnError {
			return nil, err
		}
		sum.Skipped++
		log.Warn().Err(err).Str("file", file).Msg("Skipping unreadable document")
	}

	if len(chunks) == 0 {
		return nil, models.Errorf(models.KindNoDocumentsFound, cfg.Indexer.SourceDirectory,
			"no extractable text in %d matching files", len(files))
	}
	sum.Chunks = len(chunks)

	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = embedding.NewEmbedder(&cfg.Embedder)
		if err != nil {
			return nil, err
		}
	}

	var progress func(int)
	if opts.Progress != nil {
		bar := progressbar.NewOptions(len(chunks),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Embedding"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(opts.Progress)
			}),
		)
		progress = func(n int) { _ = bar.Add(n) }
	}

	embedded, err := embedding.GenerateEmbedding(ctx, embedder, chunks, cfg.Embedder.BatchSize, progress)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	sum.Dimension = len(embedded[0].Embedding)

	manifest := models.Manifest{
		SchemaVersion:    models.ManifestSchemaVersion,
		EmbedderProvider: cfg.Embedder.Provider,
		EmbedderModel:    cfg.Embedder.Model,
		Dimension:        sum.Dimension,
		ChunkSize:        cfg.Indexer.ChunkSize,
		ChunkOverlap:     cfg.Indexer.ChunkOverlap,
		ChunkUnit:        cfg.Indexer.ChunkUnit,
		CreatedAt:        time.Now().UTC(),
	}

	writer, err := vectorstore.NewWriter(ctx, &cfg.Index)
	if err != nil {
		return nil, err
	}
	defer writer.Close()
	if err := writer.Write(ctx, manifest, embedded); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	// the new index is already in place; a failed export does not undo it
	if cfg.Index.ExportFile != "" {
		if err := export(&cfg.Index, exportKey); err != nil {
			sum.ExportErr = err
			log.Warn().Err(err).Str("file", cfg.Index.ExportFile).Msg("Export failed")
		}
	}

	sum.Elapsed = time.Since(start)
	log.Info().
		Int("files", sum.Files).
		Int("skipped", sum.Skipped).
		Int("pages", sum.Pages).
		Int("chunks", sum.Chunks).
		Int("dimension", sum.Dimension).
		Dur("elapsed", sum.Elapsed).
		Msg("Index built")
	return sum, nil
}

// export writes the freshly built chromem collection to a single file.
func export(cfg *config.IndexConfig, key string) error {
	if cfg.Backend != "chromem" && cfg.Backend != "" {
		log.Warn().Str("backend", cfg.Backend).Msg("Export is only supported for the chromem backend")
		return nil
	}
	idx, err := chromemdb.Open(cfg.Path, cfg.Collection, cfg.Compress)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Export(cfg.ExportFile, key); err != nil {
		return err
	}
	log.Info().Str("file", cfg.ExportFile).Bool("encrypted", key != "").Msg("Exported index")
	return nil
}
