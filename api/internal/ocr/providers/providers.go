// Package providers builds the engine registry from configuration.
package providers

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"medlist/api/internal/config"
	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/anthropic"
	"medlist/api/internal/ocr/gemini"
	"medlist/api/internal/ocr/openai"
)

// Build registers an engine for every provider that has a key. The returned
// close func releases long-lived clients and is safe to call once.
func Build(ctx context.Context, cfg *config.Config, promptText string, log *zap.Logger) (*ocr.Engines, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}
	base := ocr.Settings{
		Prompt:    promptText,
		MaxTokens: cfg.MaxTokens,
		Attempts:  cfg.UpstreamAttempts,
	}

	var (
		engs    []ocr.Engine
		closers []func() error
	)
	if cfg.AnthropicAPIKey != "" {
		s := base
		s.APIKey, s.Model, s.BaseURL = cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL
		engs = append(engs, anthropic.New(s))
	}
	if cfg.OpenAIAPIKey != "" {
		s := base
		s.APIKey, s.Model, s.BaseURL = cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL
		engs = append(engs, openai.New(s))
	}
	if cfg.GeminiAPIKey != "" {
		s := base
		s.APIKey, s.Model = cfg.GeminiAPIKey, cfg.GeminiModel
		g, err := gemini.New(ctx, s)
		if err != nil {
			return nil, nil, errors.Wrap(err, "gemini engine")
		}
		engs = append(engs, g)
		closers = append(closers, g.Close)
	}

	for _, e := range engs {
		log.Info("engine ready", zap.String("engine", e.Name()), zap.String("model", e.GetModel()))
	}
	reg := ocr.NewEngines(cfg.DefaultLLM, engs...)
	if _, err := reg.GetEngine(""); err != nil {
		return nil, nil, errors.Wrap(err, "default engine")
	}

	return reg, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("close engine", zap.Error(err))
			}
		}
	}, nil
}
