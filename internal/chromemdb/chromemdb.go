package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"edubot/internal/helper"
	"edubot/internal/models"
)

const manifestFile = "manifest.yaml"

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
	compress   bool
	manifest   models.Manifest
}

// Writer builds a persistent chromem database at dbPath.
type Writer struct {
	dbPath         string
	collectionName string
	compress       bool
}

// vectors are always computed before they reach chromem
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents and queries must carry precomputed embeddings")
}

func NewWriter(dbPath, collectionName string, compress bool) *Writer {
	return &Writer{dbPath: dbPath, collectionName: collectionName, compress: compress}
}

// Write builds the database in a sibling temporary directory and swaps it
// into place only once every document and the manifest are on disk. On
// failure the previous index, if any, is left untouched.
func (w *Writer) Write(ctx context.Context, manifest models.Manifest, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return errors.New("no chunks to index")
	}

	parent := filepath.Dir(w.dbPath)
	if err := helper.CreateFolder(parent); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(w.dbPath)+".build-*")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	db, err := chromem.NewPersistentDB(tmp, w.compress)
	if err != nil {
		return fmt.Errorf("failed to create database: %v", err)
	}
	c, err := db.CreateCollection(w.collectionName, map[string]string{
		"embedder_provider": manifest.EmbedderProvider,
		"embedder_model":    manifest.EmbedderModel,
	}, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %v", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        helper.ChunkID(ch.Source, ch.PageNumber, ch.ChunkIndex),
			Content:   ch.Content,
			Metadata:  createMetadata(ch.Chunk),
			Embedding: ch.Embedding,
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}

	manifest.ChunkCount = c.Count()
	if err := writeManifest(tmp, manifest); err != nil {
		return err
	}

	if err := swap(tmp, w.dbPath); err != nil {
		return err
	}
	committed = true
	log.Debug().Str("path", w.dbPath).Int("documents", manifest.ChunkCount).Msg("Persisted chromem index")
	return nil
}

func (w *Writer) Close() error { return nil }

// swap moves the freshly built directory to dst, replacing what was there.
func swap(built, dst string) error {
	backup := ""
	if _, err := os.Stat(dst); err == nil {
		backup = fmt.Sprintf("%s.old-%d", dst, time.Now().UnixNano())
		if err := os.Rename(dst, backup); err != nil {
			return fmt.Errorf("failed to move previous index aside: %w", err)
		}
	}
	if err := os.Rename(built, dst); err != nil {
		if backup != "" {
			os.Rename(backup, dst)
		}
		return fmt.Errorf("failed to install index: %w", err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			log.Warn().Err(err).Str("path", backup).Msg("Could not remove previous index")
		}
	}
	return nil
}

// Open loads a database written by Writer. Every failure is IndexUnavailable.
func Open(dbPath, collectionName string, compress bool) (*VectorDBManager, error) {
	unavailable := func(err error) error {
		return models.NewError(models.KindIndexUnavailable, dbPath, err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		return nil, unavailable(err)
	}
	manifest, err := readManifest(dbPath)
	if err != nil {
		return nil, unavailable(err)
	}

	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to load database: %v", err))
	}
	c := db.GetCollection(collectionName, noEmbedding)
	if c == nil {
		return nil, unavailable(fmt.Errorf("collection %q not found", collectionName))
	}
	if c.Count() == 0 || c.Count() != manifest.ChunkCount {
		return nil, unavailable(fmt.Errorf("collection %q holds %d documents, manifest records %d",
			collectionName, c.Count(), manifest.ChunkCount))
	}

	return &VectorDBManager{
		db:         db,
		collection: c,
		dbPath:     dbPath,
		compress:   compress,
		manifest:   manifest,
	}, nil
}

func (m *VectorDBManager) Manifest() models.Manifest { return m.manifest }

func (m *VectorDBManager) Count() int { return m.collection.Count() }

// Search performs a cosine similarity search. k is clamped to the collection size.
//
// chromem picks its top k by similarity alone, so equal scores at the cut-off
// would be chosen arbitrarily. Every document is scored and ranked here before
// truncating, which keeps ties ordered by (source, page, chunk index).
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	// exit if embedding is not provided
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	n := m.collection.Count()
	k = min(k, n)
	if k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	out := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk, err := parseMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", r.ID, err)
		}
		chunk.Content = r.Content
		out = append(out, models.ScoredChunk{Chunk: chunk, Similarity: r.Similarity})
	}
	models.RankChunks(out)
	return out[:k], nil
}

// export to file
func (m *VectorDBManager) Export(filePath, encryptionKey string) error {
	if filePath == "" {
		return fmt.Errorf("export file path is required")
	}
	log.Debug().Str("collection", m.collection.Name).Str("file", filePath).Bool("compress", m.compress).
		Bool("encrypted", encryptionKey != "").Msg("Exporting collection")

	err := m.db.ExportToFile(filePath, m.compress, encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

func (m *VectorDBManager) Close() error { return nil }

func createMetadata(c models.Chunk) map[string]string {
	return map[string]string{
		models.MetaSource:     c.Source,
		models.MetaPageNumber: strconv.Itoa(c.PageNumber),
		models.MetaChunkIndex: strconv.Itoa(c.ChunkIndex),
	}
}

func parseMetadata(meta map[string]string) (models.Chunk, error) {
	page, err := strconv.Atoi(meta[models.MetaPageNumber])
	if err != nil {
		return models.Chunk{}, fmt.Errorf("bad %s metadata: %w", models.MetaPageNumber, err)
	}
	idx, err := strconv.Atoi(meta[models.MetaChunkIndex])
	if err != nil {
		return models.Chunk{}, fmt.Errorf("bad %s metadata: %w", models.MetaChunkIndex, err)
	}
	return models.Chunk{Source: meta[models.MetaSource], PageNumber: page, ChunkIndex: idx}, nil
}

func writeManifest(dir string, manifest models.Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (models.Manifest, error) {
	var manifest models.Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return manifest, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("corrupt manifest: %w", err)
	}
	if manifest.SchemaVersion != models.ManifestSchemaVersion {
		return manifest, fmt.Errorf("unsupported index schema version %d", manifest.SchemaVersion)
	}
	return manifest, nil
}
