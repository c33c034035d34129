package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"edubot/internal/config"
	"edubot/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:edubot_chunks,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Collection    string          `bun:"collection,notnull"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source,notnull"`
	PageNumber    int             `bun:"page_number,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Similarity    float64         `bun:"similarity,scanonly"`
}

type ManifestRecord struct {
	bun.BaseModel `bun:"table:edubot_manifests,alias:m"`
	Collection    string          `bun:"collection,pk"`
	Data          models.Manifest `bun:"data,type:jsonb,notnull"`
}

// PGIndex stores one collection of chunks in a pgvector table.
type PGIndex struct {
	db         *bun.DB
	collection string
	manifest   models.Manifest
	count      int
}

type Writer struct {
	db         *bun.DB
	collection string
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.PostgresConfig) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
}

func connect(ctx context.Context, cfg *config.PostgresConfig) (*bun.DB, error) {
	db := NewDB(ConnectDB(cfg), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitDB(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ManifestRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create manifests table: %w", err)
	}
	return nil
}

func NewWriter(ctx context.Context, cfg *config.PostgresConfig, collection string) (*Writer, error) {
	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Writer{db: db, collection: collection}, nil
}

// Write replaces the collection's rows and manifest in a single transaction.
func (w *Writer) Write(ctx context.Context, manifest models.Manifest, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return errors.New("no chunks to index")
	}
	if err := InitDB(ctx, w.db); err != nil {
		return err
	}

	docs := make([]Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = Document{
			Collection: w.collection,
			Content:    ch.Content,
			Source:     ch.Source,
			PageNumber: ch.PageNumber,
			ChunkIndex: ch.ChunkIndex,
			Embedding:  pgvector.NewVector(ch.Embedding),
		}
	}
	manifest.ChunkCount = len(docs)

	return w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := DropDocuments(ctx, tx, w.collection); err != nil {
			return err
		}
		if err := StoreDocuments(ctx, tx, docs); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&ManifestRecord{Collection: w.collection, Data: manifest}).
			On("CONFLICT (collection) DO UPDATE").
			Set("data = EXCLUDED.data").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store manifest: %w", err)
		}
		log.Debug().Str("collection", w.collection).Int("documents", len(docs)).Msg("Persisted pgvector index")
		return nil
	})
}

func (w *Writer) Close() error { return w.db.Close() }

// StoreDocuments inserts docs in batches.
func StoreDocuments(ctx context.Context, db bun.IDB, docs []Document) error {
	const batch = 500
	for start := 0; start < len(docs); start += batch {
		part := docs[start:min(start+batch, len(docs))]
		if _, err := db.NewInsert().Model(&part).Exec(ctx); err != nil {
			return fmt.Errorf("store documents: %w", err)
		}
	}
	return nil
}

// drop every row of a collection
func DropDocuments(ctx context.Context, db bun.IDB, collection string) error {
	_, err := db.NewDelete().Model((*Document)(nil)).Where("collection = ?", collection).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}

// Open connects and loads the collection's manifest. Every failure is IndexUnavailable.
func Open(ctx context.Context, cfg *config.PostgresConfig, collection string) (*PGIndex, error) {
	unavailable := func(err error) error {
		return models.NewError(models.KindIndexUnavailable, "postgres:"+collection, err)
	}

	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, unavailable(err)
	}

	var rec ManifestRecord
	err = db.NewSelect().Model(&rec).Where("collection = ?", collection).Scan(ctx)
	if err != nil {
		db.Close()
		return nil, unavailable(fmt.Errorf("load manifest: %w", err))
	}

	count, err := db.NewSelect().Model((*Document)(nil)).Where("collection = ?", collection).Count(ctx)
	if err != nil {
		db.Close()
		return nil, unavailable(err)
	}
	if count == 0 || count != rec.Data.ChunkCount {
		db.Close()
		return nil, unavailable(fmt.Errorf("collection holds %d rows, manifest records %d", count, rec.Data.ChunkCount))
	}

	return &PGIndex{db: db, collection: collection, manifest: rec.Data, count: count}, nil
}

func (p *PGIndex) Manifest() models.Manifest { return p.manifest }

func (p *PGIndex) Count() int { return p.count }

// Search ranks by cosine distance; ties fall back to chunk position.
func (p *PGIndex) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	vec := pgvector.NewVector(embedding)

	var docs []Document
	err := p.db.NewSelect().
		Model(&docs).
		Column("content", "source", "page_number", "chunk_index").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		Where("collection = ?", p.collection).
		OrderExpr("embedding <=> ?", vec).
		OrderExpr("source, page_number, chunk_index").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.ScoredChunk, len(docs))
	for i, d := range docs {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{
				Content:    d.Content,
				Source:     d.Source,
				PageNumber: d.PageNumber,
				ChunkIndex: d.ChunkIndex,
			},
			Similarity: float32(d.Similarity),
		}
	}
	models.RankChunks(out)
	return out, nil
}

func (p *PGIndex) Close() error { return p.db.Close() }
