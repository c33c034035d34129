package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"edubot/internal/config"
	"edubot/internal/models"
)

const defaultOllamaURL = "http://localhost:11434"

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg *config.EmbedderConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
		"device":          cfg.Device,
	}).Msg("Loading embedder")

	switch cfg.Provider {
	case "hashing":
		return NewHashingEmbedder(cfg.Dimension), nil
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, models.Errorf(models.KindConfigurationError, "embedder.provider", "unknown provider %q", cfg.Provider)
	}
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.EmbedderConfig) (*embeddings.EmbedderImpl, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	opts := []ollama.Option{
		ollama.WithServerURL(baseURL),
		ollama.WithModel(cfg.Model),
	}
	if cfg.Device == "cpu" {
		opts = append(opts, ollama.WithRunnerNumGPU(0))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// NewOpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
func NewOpenAIEmbedder(cfg *config.EmbedderConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		opts = append(opts, openai.WithToken(key))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds chunks in batches of batchSize. progress, if set,
// is called with the number of chunks finished in each batch.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int, progress func(int)) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	chunkEmbeddings := make([]models.EmbeddedChunk, 0, len(chunks))
	dimension := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}

		for i, vec := range vectors {
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) == 0 || len(vec) != dimension {
				return nil, fmt.Errorf("chunk %s has embedding dimension %d, expected %d",
					chunks[start+i].SourceID(), len(vec), dimension)
			}
			chunkEmbeddings = append(chunkEmbeddings, models.EmbeddedChunk{
				Chunk:     chunks[start+i],
				Embedding: vec,
			})
		}
		if progress != nil {
			progress(len(vectors))
		}
	}

	return chunkEmbeddings, nil
}
