// Package rag answers questions from the indexed corpus.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/sync/semaphore"

	"edubot/internal/config"
	"edubot/internal/embedding"
	"edubot/internal/llmservice"
	"edubot/internal/models"
	"edubot/internal/vectorstore"
)

// ModelLoader builds the text-generation model.
type ModelLoader func(cfg *config.GenerationConfig) (llms.Model, error)

type options struct {
	index     vectorstore.Index
	embedder  embeddings.Embedder
	loadModel ModelLoader
}

type Option func(*options)

// WithIndex uses an already opened index; Close closes it.
func WithIndex(idx vectorstore.Index) Option {
	return func(o *options) { o.index = idx }
}

func WithEmbedder(e embeddings.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func WithModel(m llms.Model) Option {
	return func(o *options) {
		o.loadModel = func(*config.GenerationConfig) (llms.Model, error) { return m, nil }
	}
}

func WithModelLoader(fn ModelLoader) Option {
	return func(o *options) { o.loadModel = fn }
}

// RAG holds everything loaded once per process: the index, the embedder,
// the generation model and the bound prompt. It is safe for concurrent use.
type RAG struct {
	cfg      *config.Config
	index    vectorstore.Index
	embedder embeddings.Embedder
	llm      llms.Model
	prompt   prompts.PromptTemplate
	sem      *semaphore.Weighted
}

// New opens the index and loads the models. On failure nothing stays open.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*RAG, error) {
	o := options{loadModel: llmservice.NewModel}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompt := prompts.PromptTemplate{
		Template:       cfg.PromptTemplate,
		InputVariables: []string{"context", "question"},
		TemplateFormat: prompts.TemplateFormatFString,
	}
	if _, err := prompt.Format(map[string]any{"context": "", "question": ""}); err != nil {
		return nil, models.NewError(models.KindConfigurationError, "prompt_template", err)
	}

	idx := o.index
	if idx == nil {
		var err error
		idx, err = vectorstore.Open(ctx, &cfg.Index)
		if err != nil {
			return nil, err
		}
	}

	r, err := load(idx, cfg, o)
	if err != nil {
		if cerr := idx.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Could not close index")
		}
		return nil, err
	}
	r.prompt = prompt
	return r, nil
}

func load(idx vectorstore.Index, cfg *config.Config, o options) (*RAG, error) {
	manifest := idx.Manifest()
	configured := models.Manifest{EmbedderProvider: cfg.Embedder.Provider, EmbedderModel: cfg.Embedder.Model}
	if !manifest.SameEmbedder(configured) {
		return nil, models.Errorf(models.KindIndexUnavailable, cfg.Index.Path,
			"index was built with %s/%s, configured embedder is %s/%s",
			manifest.EmbedderProvider, manifest.EmbedderModel, cfg.Embedder.Provider, cfg.Embedder.Model)
	}

	embedder := o.embedder
	if embedder == nil {
		var err error
		embedder, err = embedding.NewEmbedder(&cfg.Embedder)
		if err != nil {
			return nil, err
		}
	}

	llm, err := o.loadModel(&cfg.Generation)
	if err != nil {
		if models.KindOf(err) == models.KindInternal {
			err = models.NewError(models.KindGenerationError, cfg.Generation.Checkpoint, err)
		}
		return nil, err
	}

	log.Info().
		Int("chunks", idx.Count()).
		Int("dimension", manifest.Dimension).
		Str("embedder", manifest.EmbedderModel).
		Str("model", cfg.Generation.Checkpoint).
		Msg("Answerer ready")

	return &RAG{
		cfg:      cfg,
		index:    idx,
		embedder: embedder,
		llm:      llm,
		sem:      semaphore.NewWeighted(int64(cfg.Generation.MaxConcurrency)),
	}, nil
}

// Answer runs one retrieval-QA call. A failed call leaves r usable.
func (r *RAG) Answer(ctx context.Context, query string) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.Errorf(models.KindInvalidQuery, "", "query must not be empty")
	}
	start := time.Now()

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if dim := r.index.Manifest().Dimension; len(queryEmbedding) != dim {
		return nil, models.Errorf(models.KindIndexUnavailable, "",
			"query embedding has dimension %d, index has %d", len(queryEmbedding), dim)
	}

	sources, err := r.index.Search(ctx, queryEmbedding, r.cfg.Retrieval.K)
	if err != nil {
		return nil, models.NewError(models.KindIndexUnavailable, "", err)
	}

	prompt, err := r.render(sources, query)
	if err != nil {
		return nil, err
	}

	result, err := r.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("sources", len(sources)).Dur("elapsed", time.Since(start)).Msg("Answered query")
	return &models.Answer{Query: query, Result: result, Sources: sources, Prompt: prompt}, nil
}

func (r *RAG) render(sources []models.ScoredChunk, query string) (string, error) {
	texts := make([]string, len(sources))
	for i, s := range sources {
		texts[i] = s.Content
	}
	prompt, err := r.prompt.Format(map[string]any{
		"context":  strings.Join(texts, models.ContextSeparator),
		"question": query,
	})
	if err != nil {
		return "", models.NewError(models.KindConfigurationError, "prompt_template", err)
	}
	return prompt, nil
}

func (r *RAG) generate(ctx context.Context, prompt string) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", models.NewError(models.KindGenerationError, r.cfg.Generation.Checkpoint, err)
	}
	defer r.sem.Release(1)

	result, err := llmservice.GenerateContent(ctx, r.llm, &r.cfg.Generation, prompt)
	if err != nil {
		return "", models.NewError(models.KindGenerationError, r.cfg.Generation.Checkpoint, err)
	}
	return result, nil
}

func (r *RAG) Close() error {
	return r.index.Close()
}
