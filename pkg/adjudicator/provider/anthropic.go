package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
)

const anthropicMaxTokens = 256

// anthropicMessenger is the seam between AnthropicProvider and the SDK,
// so tests can substitute a fake without reaching the network.
type anthropicMessenger interface {
	CreateMessage(ctx context.Context, prompt string) (string, error)
}

// AnthropicProvider adjudicates via the Anthropic Messages API, guarded by
// a circuit breaker so a string of failures opens the chain quickly
// instead of paying the per-call timeout on every request.
type AnthropicProvider struct {
	messenger anthropicMessenger
	breaker   *gobreaker.CircuitBreaker
}

// NewAnthropicProvider builds a provider for the given model, authenticated
// with apiKey.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic provider: API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic provider: model is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newAnthropicProvider(&sdkAnthropicMessenger{client: client, model: model}), nil
}

func newAnthropicProvider(m anthropicMessenger) *AnthropicProvider {
	return &AnthropicProvider{
		messenger: m,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "anthropic-adjudicator",
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
func (p *AnthropicProvider) Name() string { return "anthropic" }

// IsAvailable reports whether the breaker currently admits requests.
// The breaker itself, not a separate ping, is the liveness signal: a
// freshly-opened breaker means the last few calls failed within the
// window, which is a stronger signal than a point-in-time health check.
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	return p.breaker.State() != gobreaker.StateOpen
}

// Generate asks the model to adjudicate prompt, routed through the breaker.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.messenger.CreateMessage(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("anthropic provider: %w", err)
	}
	return result.(string), nil
}

type sdkAnthropicMessenger struct {
	client anthropic.Client
	model  string
}

func (s *sdkAnthropicMessenger) CreateMessage(ctx context.Context, prompt string) (string, error) {
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return message.Content[0].Text, nil
}
