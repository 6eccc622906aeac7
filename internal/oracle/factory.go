package oracle

import (
	"context"
	"fmt"

	"lowvibe/internal/config"
	"lowvibe/internal/logging"
	"lowvibe/internal/ratelimit"
)

// New builds the oracle selected by cfg. When calls is enabled every
// completion is traced to disk.
func New(ctx context.Context, cfg config.OracleConfig, calls *logging.CallLog) (Oracle, error) {
	retry := RetryConfig{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		MaxDelay:   DefaultRetryConfig().MaxDelay,
	}
	validator := NewValidator()

	var inner Oracle
	switch cfg.Backend {
	case "ollama", "":
		o, err := NewOllama(OllamaConfig{
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			ContextLength: cfg.ContextLength,
			HTTPTimeout:   cfg.Timeout,
			Retry:         retry,
		}, validator)
		if err != nil {
			return nil, err
		}
		inner = o
	case "gemini":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Retry:       retry,
		}, validator)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown oracle backend %q", cfg.Backend)
	}

	logging.Info("oracle ready", "backend", cfg.Backend, "model", cfg.Model, "rpm", cfg.RequestsPerMinute)
	inner = Limit(inner, ratelimit.PerMinute(cfg.RequestsPerMinute))
	if calls.Enabled() {
		return Record(inner, calls, cfg.Backend, cfg.Model), nil
	}
	return inner, nil
}
