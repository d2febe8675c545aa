// Command sentinel-gateway wires the Control Tower (pkg/gateway) over the
// configured policy, pattern library, semantic index, and Tier-3 provider
// chain, and drives it as a newline-delimited JSON filter: one evaluate
// request per line of stdin, one verdict per line of stdout. No HTTP
// surface, auth, or durable metrics sink is part of this module; a caller
// that wants those wraps this process or imports pkg/gateway directly.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/internal/config"
	"github.com/jordigilh/sentinel-gate/pkg/adjudicator"
	"github.com/jordigilh/sentinel-gate/pkg/adjudicator/provider"
	"github.com/jordigilh/sentinel-gate/pkg/gateway"
	"github.com/jordigilh/sentinel-gate/pkg/patterns"
	"github.com/jordigilh/sentinel-gate/pkg/policy"
	"github.com/jordigilh/sentinel-gate/pkg/semantic"
	"github.com/jordigilh/sentinel-gate/pkg/shared/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithFields(logging.NewFields().Component("main").Error(err).ToLogrus()).
			Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	gw, store, err := buildGateway(cfg, logger)
	if err != nil {
		logger.WithFields(logging.NewFields().Component("main").Error(err).ToLogrus()).
			Fatal("failed to build gateway")
	}

	stop := make(chan struct{})
	if err := store.Watch(stop); err != nil {
		logger.WithFields(logging.NewFields().Component("main").Error(err).ToLogrus()).
			Warn("policy hot-reload watcher unavailable, falling back to static policy")
	}
	defer close(stop)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runFilter(ctx, gw, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		logger.WithFields(logging.NewFields().Component("main").Error(err).ToLogrus()).
			Fatal("filter loop exited with an error")
	}
}

// runFilter reads one JSON evaluateRequest per line from in and writes one
// JSON evaluateResponse per line to out, until in is exhausted, ctx is
// canceled (SIGINT/SIGTERM), or a write error occurs. A line that fails to
// decode produces an error verdict on that line rather than aborting the
// whole stream.
func runFilter(ctx context.Context, gw *gateway.Gateway, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req evaluateRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(evaluateResponse{Explanation: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		verdict := gw.EvaluateResponse(ctx, req.Text, req.Context)
		if err := enc.Encode(toResponse(verdict)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// buildGateway wires C1-C9 from cfg: the policy store, pattern screener,
// semantic manager, and the optional Tier-3 provider chain (only
// providers with credentials configured are added, in cfg.Providers.Order).
func buildGateway(cfg *config.Config, logger *logrus.Logger) (*gateway.Gateway, *policy.Store, error) {
	store, err := policy.NewStore(cfg.Policy.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("policy store: %w", err)
	}

	cache, err := semantic.NewScoreCache(context.Background(), cfg.Redis.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("semantic score cache: %w", err)
	}

	semMgr, err := semantic.NewManager(context.Background(), store, semantic.NewHashingEmbedder(), cache)
	if err != nil {
		return nil, nil, fmt.Errorf("semantic manager: %w", err)
	}

	lib, err := patterns.NewLibrary(patterns.DefaultSpecs())
	if err != nil {
		return nil, nil, fmt.Errorf("pattern library: %w", err)
	}
	screener := patterns.NewScreener(lib)

	adj, err := buildAdjudicator(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("adjudicator: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		PolicyStore: store,
		Screener:    screener,
		SemanticMgr: semMgr,
		Adjudicator: adj,
		Logger:      logger,
		Deadline:    cfg.Server.Deadline,
	})
	if err != nil {
		return nil, nil, err
	}
	return gw, store, nil
}

// buildAdjudicator assembles the Tier-3 provider chain in the configured
// order, skipping any provider whose required credentials are absent. A
// chain with zero providers yields a nil Adjudicator, so the router's
// tier3Available gate never escalates to Tier 3.
func buildAdjudicator(cfg *config.Config, logger *logrus.Logger) (*adjudicator.Adjudicator, error) {
	var providers []provider.Provider

	for _, name := range cfg.Providers.Order {
		switch name {
		case "anthropic":
			if cfg.Providers.Anthropic.APIKey == "" {
				continue
			}
			p, err := provider.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model)
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			providers = append(providers, p)

		case "bedrock":
			if cfg.Providers.Bedrock.Region == "" {
				continue
			}
			p, err := provider.NewBedrockProvider(context.Background(), cfg.Providers.Bedrock.Region, cfg.Providers.Bedrock.ModelID)
			if err != nil {
				return nil, fmt.Errorf("bedrock provider: %w", err)
			}
			providers = append(providers, p)

		case "langchain":
			if cfg.Providers.LangChain.BaseURL == "" {
				continue
			}
			p, err := provider.NewLangChainProvider(cfg.Providers.LangChain.BaseURL, cfg.Providers.LangChain.Model)
			if err != nil {
				return nil, fmt.Errorf("langchain provider: %w", err)
			}
			providers = append(providers, p)
		}
	}

	if len(providers) == 0 {
		return nil, nil
	}

	mgr := provider.NewManager(logger, providers...)

	var cache adjudicator.Cache
	if cfg.Redis.Addr != "" {
		cache = adjudicator.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		cache = adjudicator.NewLRUCache(0)
	}

	return adjudicator.New(mgr, cache, logger), nil
}

type evaluateRequest struct {
	Text    string            `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

type evaluateResponse struct {
	Action           string  `json:"action"`
	TierUsed         int     `json:"tier_used"`
	Method           string  `json:"method"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	FailureClass     string  `json:"failure_class,omitempty"`
	Severity         string  `json:"severity,omitempty"`
	Explanation      string  `json:"explanation"`
}

func toResponse(v gateway.Verdict) evaluateResponse {
	resp := evaluateResponse{
		Action:           string(v.Action),
		TierUsed:         v.TierUsed,
		Method:           v.Method,
		Confidence:       v.Confidence,
		ProcessingTimeMs: v.ProcessingTimeMs,
		Explanation:      v.Explanation,
	}
	if v.FailureClass != nil {
		resp.FailureClass = string(*v.FailureClass)
	}
	if v.Severity != nil {
		resp.Severity = string(*v.Severity)
	}
	return resp
}
