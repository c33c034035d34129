package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"edubot/internal/chromemdb"
	"edubot/internal/config"
	"edubot/internal/embedding"
	"edubot/internal/indexer"
	"edubot/internal/models"
	"edubot/internal/pdftest"
)

const dim = 256

// fakeModel echoes a fixed reply and records every prompt it receives.
type fakeModel struct {
	mu      sync.Mutex
	reply   string
	fail    int
	prompts []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var prompt string
	for _, part := range messages[0].Parts {
		if text, ok := part.(llms.TextContent); ok {
			prompt += text.Text
		}
	}
	f.prompts = append(f.prompts, prompt)
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("model crashed")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Embedder.Provider = "hashing"
	cfg.Embedder.Model = "fnv"
	cfg.Embedder.Dimension = dim
	cfg.Index.Path = filepath.Join(t.TempDir(), "db")
	return cfg
}

// buildIndex stores texts as chunks of a single page each.
func buildIndex(t *testing.T, cfg *config.Config, texts ...string) {
	t.Helper()
	ctx := context.Background()
	e := embedding.NewHashingEmbedder(dim)
	chunks := make([]models.EmbeddedChunk, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedQuery(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		chunks[i] = models.EmbeddedChunk{
			Chunk:     models.Chunk{Content: text, Source: "notes.pdf", PageNumber: i + 1},
			Embedding: vec,
		}
	}
	manifest := models.Manifest{
		SchemaVersion:    models.ManifestSchemaVersion,
		EmbedderProvider: "hashing",
		EmbedderModel:    "fnv",
		Dimension:        dim,
		CreatedAt:        time.Now().UTC(),
	}
	if err := chromemdb.NewWriter(cfg.Index.Path, cfg.Index.Collection, false).Write(ctx, manifest, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	cfg := testConfig(t)
	buildIndex(t, cfg, "The capital of France is Paris.")
	m := &fakeModel{reply: "Paris"}
	r, err := New(context.Background(), cfg, WithModel(m))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Answer(context.Background(), q)
		if !errors.Is(err, models.ErrInvalidQuery) {
			t.Errorf("%q: expected InvalidQuery, got %v", q, err)
		}
	}
	if m.calls() != 0 {
		t.Errorf("expected no model calls, got %d", m.calls())
	}
}

func TestAnswerRanksSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.K = 3
	buildIndex(t, cfg,
		"Bananas are yellow and grow in bunches.",
		"The capital of France is Paris.",
		"France borders Spain and Germany.",
		"Paris is the capital and largest city of France.",
		"Rivers flow into the sea.",
	)
	m := &fakeModel{reply: "Paris"}
	r, err := New(context.Background(), cfg, WithModel(m))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ans, err := r.Answer(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Result != "Paris" {
		t.Errorf("expected result Paris, got %q", ans.Result)
	}
	if len(ans.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(ans.Sources))
	}
	for i := 1; i < len(ans.Sources); i++ {
		if ans.Sources[i].Similarity > ans.Sources[i-1].Similarity {
			t.Errorf("sources not in descending similarity at %d: %f > %f",
				i, ans.Sources[i].Similarity, ans.Sources[i-1].Similarity)
		}
	}

	texts := make([]string, len(ans.Sources))
	for i, s := range ans.Sources {
		texts[i] = s.Content
	}
	if !strings.Contains(ans.Prompt, strings.Join(texts, "\n\n")) {
		t.Errorf("expected prompt context in rank order, got %q", ans.Prompt)
	}
	if !strings.Contains(ans.Prompt, "What is the capital of France?") {
		t.Error("expected the question in the prompt")
	}
	if m.prompts[0] != ans.Prompt {
		t.Error("expected the model to receive the rendered prompt")
	}
}

func TestNewMissingIndex(t *testing.T) {
	cfg := testConfig(t)
	loaded := 0
	loader := func(*config.GenerationConfig) (llms.Model, error) {
		loaded++
		return &fakeModel{}, nil
	}

	r, err := New(context.Background(), cfg, WithModelLoader(loader))
	if !errors.Is(err, models.ErrIndexUnavailable) {
		t.Fatalf("expected IndexUnavailable, got %v", err)
	}
	if r != nil {
		t.Error("expected no answerer on failure")
	}
	if loaded != 0 {
		t.Errorf("expected the model loader not to run, ran %d times", loaded)
	}
}

func TestNewEmbedderMismatch(t *testing.T) {
	cfg := testConfig(t)
	buildIndex(t, cfg, "The capital of France is Paris.")
	cfg.Embedder.Model = "other"

	_, err := New(context.Background(), cfg, WithModel(&fakeModel{}))
	if !errors.Is(err, models.ErrIndexUnavailable) {
		t.Errorf("expected IndexUnavailable, got %v", err)
	}
}

func TestNewModelLoadFailure(t *testing.T) {
	cfg := testConfig(t)
	buildIndex(t, cfg, "The capital of France is Paris.")
	loader := func(*config.GenerationConfig) (llms.Model, error) {
		return nil, errors.New("checkpoint not found")
	}

	_, err := New(context.Background(), cfg, WithModelLoader(loader))
	if !errors.Is(err, models.ErrGeneration) {
		t.Errorf("expected GenerationError, got %v", err)
	}
}

func TestNewBadPromptTemplate(t *testing.T) {
	templates := []string{
		"Context: {context} Question: {question",
		"Context: {context}",
		"Question: {question}",
	}
	for _, tmpl := range templates {
		cfg := testConfig(t)
		buildIndex(t, cfg, "The capital of France is Paris.")
		cfg.PromptTemplate = tmpl
		loaded := 0
		loader := func(*config.GenerationConfig) (llms.Model, error) {
			loaded++
			return &fakeModel{}, nil
		}

		_, err := New(context.Background(), cfg, WithModelLoader(loader))
		if !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("%q: expected ConfigurationError, got %v", tmpl, err)
		}
		if loaded != 0 {
			t.Errorf("%q: expected the model loader not to run", tmpl)
		}
	}
}

func TestAnswerRecoversAfterGenerationError(t *testing.T) {
	cfg := testConfig(t)
	buildIndex(t, cfg, "The capital of France is Paris.")
	m := &fakeModel{reply: "Paris", fail: 1}
	r, err := New(context.Background(), cfg, WithModel(m))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.Answer(context.Background(), "capital of France?")
	if !errors.Is(err, models.ErrGeneration) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	ans, err := r.Answer(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("expected the next query to succeed, got %v", err)
	}
	if ans.Result != "Paris" {
		t.Errorf("expected Paris, got %q", ans.Result)
	}
}

func TestAnswerConcurrent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Generation.MaxConcurrency = 2
	buildIndex(t, cfg, "The capital of France is Paris.", "Apples are red.")
	m := &fakeModel{reply: "ok"}
	r, err := New(context.Background(), cfg, WithModel(m))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Answer(context.Background(), fmt.Sprintf("question %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if m.calls() != 8 {
		t.Errorf("expected 8 model calls, got %d", m.calls())
	}
}

func TestEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexer.SourceDirectory = t.TempDir()
	cfg.Indexer.ChunkSize = 50
	cfg.Indexer.ChunkOverlap = 10
	pdftest.Write(t, filepath.Join(cfg.Indexer.SourceDirectory, "geo.pdf"),
		"The capital of France is Paris.", "Bananas are yellow.", "Apples are red.")

	if _, err := indexer.Run(context.Background(), cfg, indexer.Options{}); err != nil {
		t.Fatalf("indexing failed: %v", err)
	}

	m := &fakeModel{reply: "<think>hmm</think> Paris."}
	r, err := New(context.Background(), cfg, WithModel(m))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ans, err := r.Answer(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Result != "Paris." {
		t.Errorf("expected think block stripped, got %q", ans.Result)
	}
	if len(ans.Sources) == 0 || !strings.Contains(ans.Sources[0].Content, "Paris") {
		t.Fatalf("expected the Paris chunk first, got %+v", ans.Sources)
	}
	if ans.Sources[0].PageNumber != 1 {
		t.Errorf("expected page 1, got %d", ans.Sources[0].PageNumber)
	}
	if !strings.Contains(ans.Prompt, ans.Sources[0].Content) {
		t.Error("expected the top chunk verbatim in the prompt")
	}
}
