package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainGenerator is the seam between LangChainProvider and the
// langchaingo model, so tests can substitute a fake without a real
// endpoint.
type langchainGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LangChainProvider adjudicates via a locally-hosted, OpenAI-compatible
// endpoint (e.g. LocalAI or Ollama), the last link in the chain when
// cloud providers are unavailable.
type LangChainProvider struct {
	generator langchainGenerator
	breaker   *gobreaker.CircuitBreaker
}

// NewLangChainProvider builds a provider against an OpenAI-compatible
// endpoint serving model, such as a LocalAI or Ollama instance.
func NewLangChainProvider(endpoint, model string) (*LangChainProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("langchain provider: endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("langchain provider: model is required")
	}

	llm, err := openai.New(
		openai.WithBaseURL(endpoint),
		openai.WithModel(model),
		openai.WithToken("unused"),
	)
	if err != nil {
		return nil, fmt.Errorf("langchain provider: failed to construct model: %w", err)
	}

	return newLangChainProvider(&sdkLangChainGenerator{model: llm}), nil
}

func newLangChainProvider(g langchainGenerator) *LangChainProvider {
	return &LangChainProvider{
		generator: g,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "langchain-adjudicator",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Name identifies this provider in the chain and in logs.
func (p *LangChainProvider) Name() string { return "langchain_local" }

// IsAvailable reports whether the breaker currently admits requests.
func (p *LangChainProvider) IsAvailable(ctx context.Context) bool {
	return p.breaker.State() != gobreaker.StateOpen
}

// Generate asks the model to adjudicate prompt, routed through the breaker.
func (p *LangChainProvider) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("langchain provider: %w", err)
	}
	return result.(string), nil
}

type sdkLangChainGenerator struct {
	model llms.Model
}

func (s *sdkLangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s.model, prompt)
}
