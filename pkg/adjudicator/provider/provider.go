// Package provider implements the ordered LLM provider chain behind the
// Agent Adjudicator (Tier 3): an availability probe, a per-provider
// circuit breaker, and failover across cloud, managed, and local-inference
// backends.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/pkg/shared/logging"
)

// LivenessProbeTimeout bounds how long an availability check may take
// before the provider is treated as unavailable.
const LivenessProbeTimeout = 2 * time.Second

// GenerateTimeout bounds a single provider's Generate call.
const GenerateTimeout = 10 * time.Second

// Provider is one LLM backend in the adjudication chain.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is the outcome of Manager.Generate.
type Result struct {
	Content  string
	Provider string
}

// ErrAllProvidersFailed is returned when every provider in the chain was
// unavailable or errored; callers (the Adjudicator) must translate this
// into the "llm_unavailable" fallback rather than surfacing it.
var ErrAllProvidersFailed = fmt.Errorf("adjudicator: all providers failed or were unavailable")

// Manager tries an ordered list of providers until one succeeds.
type Manager struct {
	providers []Provider
	logger    *logrus.Logger
}

// NewManager builds a Manager over providers, tried in the given order.
func NewManager(logger *logrus.Logger, providers ...Provider) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{providers: providers, logger: logger}
}

// AvailableProviders reports the name of every provider whose liveness
// probe currently succeeds, in chain order.
func (m *Manager) AvailableProviders(ctx context.Context) []string {
	var names []string
	for _, p := range m.providers {
		probeCtx, cancel := context.WithTimeout(ctx, LivenessProbeTimeout)
		available := p.IsAvailable(probeCtx)
		cancel()
		if available {
			names = append(names, p.Name())
		}
	}
	return names
}

// Generate tries each provider in order, skipping any whose liveness probe
// fails, and returns the first successful generation. It never surfaces a
// provider-specific error to the caller; exhausting the chain yields
// ErrAllProvidersFailed.
func (m *Manager) Generate(ctx context.Context, prompt string) (Result, error) {
	for _, p := range m.providers {
		probeCtx, cancel := context.WithTimeout(ctx, LivenessProbeTimeout)
		available := p.IsAvailable(probeCtx)
		cancel()
		if !available {
			m.logger.WithFields(logging.NewFields().Component("adjudicator").Custom("provider", p.Name()).ToLogrus()).
				Debug("provider unavailable, skipping")
			continue
		}

		genCtx, cancel := context.WithTimeout(ctx, GenerateTimeout)
		content, err := p.Generate(genCtx, prompt)
		cancel()
		if err != nil {
			m.logger.WithFields(logging.NewFields().Component("adjudicator").Custom("provider", p.Name()).Error(err).ToLogrus()).
				Warn("provider generation failed, trying next")
			continue
		}

		return Result{Content: content, Provider: p.Name()}, nil
	}

	return Result{}, ErrAllProvidersFailed
}
