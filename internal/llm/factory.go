package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/quizforge/internal/logger"
)

// NewProvider creates a Provider from configuration.
//
// The returned chain is caller → timeout → rate limit → retry → logging →
// base, so every attempt is logged, retries share the rate budget, and the
// timeout bounds the whole call including backoff.
func NewProvider(ctx context.Context, cfg Config, eventRepo EventRecorder, log *logger.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	p := WithLogging(base, cfg.Provider, eventRepo, log)
	p = WithRetry(p, cfg.Retry)
	p = WithRateLimit(p, cfg.RateLimit)
	p = WithTimeout(p, cfg.Timeout)
	return p, nil
}
