package llmservice

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"edubot/internal/config"
	"edubot/internal/models"
)

const defaultOllamaURL = "http://localhost:11434"

var thinkRe = regexp.MustCompile(models.ThinkTag)

// NewModel loads the text-generation model selected by cfg.ModelType.
func NewModel(cfg *config.GenerationConfig) (llms.Model, error) {
	log.Debug().Interface("generation", map[string]any{
		"model_type":     cfg.ModelType,
		"checkpoint":     cfg.Checkpoint,
		"base_url":       cfg.BaseURL,
		"max_new_tokens": cfg.MaxNewTokens,
		"temperature":    cfg.Temperature,
	}).Msg("Loading generation model")

	switch cfg.ModelType {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		llm, err := ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(cfg.Checkpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("initialize ollama client: %w", err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Checkpoint)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, openai.WithToken(strings.TrimPrefix(key, "Bearer ")))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("initialize openai client: %w", err)
		}
		return llm, nil
	default:
		return nil, models.Errorf(models.KindConfigurationError, "generation.model_type", "unknown model type %q", cfg.ModelType)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, cfg *config.GenerationConfig, prompt string) (string, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt,
		llms.WithMaxTokens(cfg.MaxNewTokens),
		llms.WithTemperature(cfg.Temperature),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("generation aborted after %s: %w", cfg.Timeout, ctx.Err())
		}
		return "", err
	}

	if cfg.StripThink {
		res = thinkRe.ReplaceAllString(res, "")
	}
	return strings.TrimSpace(res), nil
}
