package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edubot/internal/models"
)

func testManifest() models.Manifest {
	return models.Manifest{
		SchemaVersion:    models.ManifestSchemaVersion,
		EmbedderProvider: "hashing",
		EmbedderModel:    "fnv",
		Dimension:        3,
		ChunkSize:        50,
		ChunkOverlap:     10,
		ChunkUnit:        "chars",
		CreatedAt:        time.Now().UTC(),
	}
}

func chunk(page, idx int, text string, vec ...float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk:     models.Chunk{Content: text, Source: "doc.pdf", PageNumber: page, ChunkIndex: idx},
		Embedding: vec,
	}
}

func TestWriteAndSearch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	chunks := []models.EmbeddedChunk{
		chunk(1, 0, "x axis", 1, 0, 0),
		chunk(1, 1, "mostly x", 0.8, 0.6, 0),
		chunk(2, 0, "y axis", 0, 1, 0),
		chunk(2, 1, "z axis", 0, 0, 1),
	}
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), chunks); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	idx, err := Open(path, "test", false)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if idx.Count() != 4 {
		t.Errorf("expected 4 documents, got %d", idx.Count())
	}
	if m := idx.Manifest(); m.ChunkCount != 4 || m.EmbedderModel != "fnv" {
		t.Errorf("unexpected manifest %+v", m)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "x axis" || results[1].Content != "mostly x" {
		t.Errorf("unexpected order: %q, %q", results[0].Content, results[1].Content)
	}
	if results[0].PageNumber != 1 || results[1].ChunkIndex != 1 {
		t.Errorf("metadata not restored: %+v", results)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("expected descending similarity")
	}

	// k larger than the index is clamped
	all, err := idx.Search(ctx, []float32{0, 0, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 results, got %d", len(all))
	}
	if all[0].Content != "z axis" {
		t.Errorf("expected z axis first, got %q", all[0].Content)
	}
}

func TestSearchBreaksTiesByPosition(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	// every chunk shares one vector, written in reverse order
	var chunks []models.EmbeddedChunk
	for page := 5; page >= 1; page-- {
		for idx := 3; idx >= 0; idx-- {
			chunks = append(chunks, chunk(page, idx, fmt.Sprintf("page %d chunk %d", page, idx), 1, 1, 0))
		}
	}
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), chunks); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	idx, err := Open(path, "test", false)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	want := [][2]int{{1, 0}, {1, 1}, {1, 2}}
	for run := 0; run < 10; run++ {
		results, err := idx.Search(ctx, []float32{1, 1, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != len(want) {
			t.Fatalf("expected %d results, got %d", len(want), len(results))
		}
		for i, w := range want {
			if results[i].PageNumber != w[0] || results[i].ChunkIndex != w[1] {
				t.Fatalf("run %d: result %d is page %d chunk %d, expected page %d chunk %d",
					run, i, results[i].PageNumber, results[i].ChunkIndex, w[0], w[1])
			}
		}
	}
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	first := []models.EmbeddedChunk{chunk(1, 0, "old", 1, 0, 0), chunk(1, 1, "old too", 0, 1, 0)}
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), first); err != nil {
		t.Fatal(err)
	}
	second := []models.EmbeddedChunk{chunk(1, 0, "new", 0, 0, 1)}
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), second); err != nil {
		t.Fatal(err)
	}

	idx, err := Open(path, "test", false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected the old index to be replaced, got %d documents", idx.Count())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the index directory to remain, got %d entries", len(entries))
	}
}

func TestWriteEmptyKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), []models.EmbeddedChunk{chunk(1, 0, "keep", 1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), nil); err == nil {
		t.Fatal("expected error for an empty chunk set")
	}
	if _, err := Open(path, "test", false); err != nil {
		t.Errorf("expected previous index to survive, got %v", err)
	}
}

func TestOpenUnavailable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	built := filepath.Join(dir, "built")
	if err := NewWriter(built, "test", false).Write(ctx, testManifest(), []models.EmbeddedChunk{chunk(1, 0, "a", 1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	noManifest := filepath.Join(dir, "no-manifest")
	if err := os.Mkdir(noManifest, 0o755); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(dir, "corrupt")
	if err := os.Mkdir(corrupt, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, manifestFile), []byte("::: not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name, path, collection string
	}{
		{"missing path", filepath.Join(dir, "missing"), "test"},
		{"missing manifest", noManifest, "test"},
		{"corrupt manifest", corrupt, "test"},
		{"unknown collection", built, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, tt.collection, false)
			if !errors.Is(err, models.ErrIndexUnavailable) {
				t.Errorf("expected IndexUnavailable, got %v", err)
			}
		})
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := NewWriter(path, "test", false).Write(ctx, testManifest(), []models.EmbeddedChunk{chunk(1, 0, "a", 1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	idx, err := Open(path, "test", false)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "export.gob")
	if err := idx.Export(out, ""); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Errorf("expected non-empty export file, got %v", err)
	}
}
