package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"edubot/internal/config"
	"edubot/internal/models"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder(64)
	text := "The capital of France is Paris."

	docs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		t.Fatal(err)
	}
	query, err := e.EmbedQuery(ctx, text)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs[0]) != 64 || len(query) != 64 {
		t.Fatalf("expected dimension 64, got %d and %d", len(docs[0]), len(query))
	}
	for i := range query {
		if math.Abs(float64(docs[0][i]-query[i])) > 1e-6 {
			t.Fatalf("index-time and query-time vectors differ at %d: %f vs %f", i, docs[0][i], query[i])
		}
	}
}

func TestHashingEmbedderNormalized(t *testing.T) {
	e := NewHashingEmbedder(32)
	for _, text := range []string{"hello world", "...", ""} {
		vec, _ := e.EmbedQuery(context.Background(), text)
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("%q: expected unit norm, got %f", text, sum)
		}
	}
}

func TestHashingEmbedderSimilarity(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder(256)
	q, _ := e.EmbedQuery(ctx, "What is the capital of France?")
	a, _ := e.EmbedQuery(ctx, "The capital of France is Paris.")
	b, _ := e.EmbedQuery(ctx, "Bananas grow in tropical regions.")
	if dot(q, a) <= dot(q, b) {
		t.Errorf("expected related text to score higher: %f <= %f", dot(q, a), dot(q, b))
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

type countingEmbedder struct {
	*HashingEmbedder
	calls int
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.HashingEmbedder.EmbedDocuments(ctx, texts)
}

func TestGenerateEmbeddingBatches(t *testing.T) {
	chunks := make([]models.Chunk, 5)
	for i := range chunks {
		chunks[i] = models.Chunk{Content: "chunk text", Source: "a.pdf", PageNumber: 1, ChunkIndex: i}
	}
	e := &countingEmbedder{HashingEmbedder: NewHashingEmbedder(16)}

	done := 0
	out, err := GenerateEmbedding(context.Background(), e, chunks, 2, func(n int) { done += n })
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 embedded chunks, got %d", len(out))
	}
	if e.calls != 3 {
		t.Errorf("expected 3 batches, got %d", e.calls)
	}
	if done != 5 {
		t.Errorf("expected progress of 5, got %d", done)
	}
	if out[4].ChunkIndex != 4 {
		t.Errorf("expected chunk order preserved, got index %d", out[4].ChunkIndex)
	}
}

type failingEmbedder struct{ *HashingEmbedder }

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func TestGenerateEmbeddingError(t *testing.T) {
	chunks := []models.Chunk{{Content: "x"}}
	_, err := GenerateEmbedding(context.Background(), failingEmbedder{NewHashingEmbedder(8)}, chunks, 4, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.EmbedderConfig{Provider: "sentence-transformers"})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestNewEmbedderHashing(t *testing.T) {
	e, err := NewEmbedder(&config.EmbedderConfig{Provider: "hashing", Dimension: 12})
	if err != nil {
		t.Fatal(err)
	}
	vec, _ := e.EmbedQuery(context.Background(), "hi")
	if len(vec) != 12 {
		t.Errorf("expected dimension 12, got %d", len(vec))
	}
}
