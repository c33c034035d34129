// Package vectorstore selects the persisted similarity index backend.
package vectorstore

import (
	"context"

	"edubot/internal/chromemdb"
	"edubot/internal/config"
	"edubot/internal/db"
	"edubot/internal/models"
)

// Index is a read-only, persisted similarity index. Safe for concurrent readers.
type Index interface {
	Manifest() models.Manifest
	Count() int
	// Search returns at most k chunks ranked as models.RankChunks does.
	Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error)
	Close() error
}

// Writer replaces the persisted index with a new set of chunks.
type Writer interface {
	Write(ctx context.Context, manifest models.Manifest, chunks []models.EmbeddedChunk) error
	Close() error
}

// Open loads the index described by cfg. Failures are IndexUnavailable.
func Open(ctx context.Context, cfg *config.IndexConfig) (Index, error) {
	switch cfg.Backend {
	case "pgvector":
		idx, err := db.Open(ctx, &cfg.Postgres, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "chromem", "":
		idx, err := chromemdb.Open(cfg.Path, cfg.Collection, cfg.Compress)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, models.Errorf(models.KindConfigurationError, "index.backend", "unknown backend %q", cfg.Backend)
	}
}

func NewWriter(ctx context.Context, cfg *config.IndexConfig) (Writer, error) {
	switch cfg.Backend {
	case "pgvector":
		w, err := db.NewWriter(ctx, &cfg.Postgres, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "chromem", "":
		return chromemdb.NewWriter(cfg.Path, cfg.Collection, cfg.Compress), nil
	default:
		return nil, models.Errorf(models.KindConfigurationError, "index.backend", "unknown backend %q", cfg.Backend)
	}
}
