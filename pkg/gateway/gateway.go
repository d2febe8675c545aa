// Package gateway implements the Control Tower (C8): the single
// EvaluateResponse entry point that orchestrates the Input Guard, Tier 1
// Screener, Tier Router, Semantic Index, and Agent Adjudicator into one
// Verdict, plus statistics and hot-reload plumbing.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/pkg/adjudicator"
	"github.com/jordigilh/sentinel-gate/pkg/guard"
	"github.com/jordigilh/sentinel-gate/pkg/patterns"
	"github.com/jordigilh/sentinel-gate/pkg/policy"
	"github.com/jordigilh/sentinel-gate/pkg/router"
	"github.com/jordigilh/sentinel-gate/pkg/semantic"
	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
	"github.com/jordigilh/sentinel-gate/pkg/shared/logging"
	"github.com/jordigilh/sentinel-gate/pkg/stats"
)

// defaultDeadline is applied when the caller's context carries no
// deadline of its own.
const defaultDeadline = 15 * time.Second

// maxErrorExplanationLength truncates the error_fallback explanation.
const maxErrorExplanationLength = 100

// Verdict is the external result of EvaluateResponse.
type Verdict struct {
	Action           policy.EnforcementAction
	TierUsed         int
	Method           string
	Confidence       float64
	ProcessingTimeMs int64
	FailureClass     *policy.FailureClass
	Severity         *policy.SeverityLevel
	Explanation      string
}

// Gateway orchestrates C1-C7 into Verdicts and tracks statistics.
type Gateway struct {
	policyStore    *policy.Store
	screener       *patterns.Screener
	semanticMgr    *semantic.Manager
	adjudicator    *adjudicator.Adjudicator
	stats          *stats.Stats
	observer       Observer
	logger         *logrus.Logger
	deadline       time.Duration
	tier3Available bool
}

// Config wires the Gateway's collaborators. Adjudicator is optional: a
// nil Adjudicator means Tier 3 is never available, and the router's
// escalation rule always evaluates false.
type Config struct {
	PolicyStore    *policy.Store
	Screener       *patterns.Screener
	SemanticMgr    *semantic.Manager
	Adjudicator    *adjudicator.Adjudicator
	Stats          *stats.Stats
	Observer       Observer
	Logger         *logrus.Logger
	Deadline       time.Duration
}

// New builds a Gateway from cfg, applying defaults for any optional field.
func New(cfg Config) (*Gateway, error) {
	if cfg.PolicyStore == nil {
		return nil, sharederrors.ValidationError("PolicyStore", "is required")
	}
	if cfg.Screener == nil {
		return nil, sharederrors.ValidationError("Screener", "is required")
	}
	if cfg.SemanticMgr == nil {
		return nil, sharederrors.ValidationError("SemanticMgr", "is required")
	}

	if cfg.Stats == nil {
		cfg.Stats = stats.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}

	return &Gateway{
		policyStore:    cfg.PolicyStore,
		screener:       cfg.Screener,
		semanticMgr:    cfg.SemanticMgr,
		adjudicator:    cfg.Adjudicator,
		stats:          cfg.Stats,
		observer:       cfg.Observer,
		logger:         cfg.Logger,
		deadline:       cfg.Deadline,
		tier3Available: cfg.Adjudicator != nil,
	}, nil
}

// EvaluateResponse is the core's single entry point: it never returns an
// error. Any internal failure, including a deadline miss, is mapped to a
// conservative Verdict instead, so the request never fails outward.
func (g *Gateway) EvaluateResponse(ctx context.Context, text string, reqContext map[string]string) Verdict {
	start := time.Now()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.deadline)
		defer cancel()
	}

	type outcome struct {
		verdict Verdict
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{verdict: g.errorFallback(start, sharederrors.FailedTo("evaluate response", fmt.Errorf("panic: %v", r)))}
			}
		}()
		done <- outcome{verdict: g.evaluate(ctx, text, reqContext, start)}
	}()

	select {
	case o := <-done:
		g.finish(ctx, o.verdict)
		return o.verdict
	case <-ctx.Done():
		v := Verdict{
			Action:           policy.ActionBlock,
			TierUsed:         3,
			Method:           "timeout_protection",
			Confidence:       0.75,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Explanation:      "request exceeded the end-to-end deadline",
		}
		g.finish(ctx, v)
		return v
	}
}

func (g *Gateway) finish(ctx context.Context, v Verdict) {
	g.stats.RecordTier(v.TierUsed)
	g.observer.ObserveVerdict(ctx, v)
}

func (g *Gateway) errorFallback(start time.Time, err error) Verdict {
	msg := err.Error()
	if len(msg) > maxErrorExplanationLength {
		msg = msg[:maxErrorExplanationLength]
	}
	g.logger.WithFields(logging.NewFields().Component("gateway").Error(err).ToLogrus()).
		Error("unexpected internal error, falling back to ALLOW")
	return Verdict{
		Action:           policy.ActionAllow,
		TierUsed:         1,
		Method:           "error_fallback",
		Confidence:       0.5,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Explanation:      msg,
	}
}

// evaluate runs the C1-C7 pipeline. Any error from a collaborator is
// caught here and mapped to the error_fallback Verdict rather than
// propagated.
func (g *Gateway) evaluate(ctx context.Context, text string, reqContext map[string]string, start time.Time) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = g.errorFallback(start, sharederrors.FailedTo("evaluate response", fmt.Errorf("panic: %v", r)))
		}
	}()

	sanitized, guardVerdict := guard.Sanitize(text)
	if guardVerdict != nil {
		tierStart := time.Now()
		g.observer.ObserveTier(ctx, 1, guardVerdict.Method, time.Since(tierStart))
		return Verdict{
			Action:           policy.EnforcementAction(guardVerdict.Action),
			TierUsed:         1,
			Method:           guardVerdict.Method,
			Confidence:       guardVerdict.Confidence,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Explanation:      guardVerdict.Explanation,
		}
	}

	tier1Start := time.Now()
	r1 := g.screener.Screen(ctx, sanitized)
	g.observer.ObserveTier(ctx, 1, r1.Method, time.Since(tier1Start))

	decision := router.Route(r1.Confidence)

	var result patterns.TierResult
	tierUsed := decision.Tier

	switch decision.Tier {
	case 1:
		result = r1

	case 2:
		tier2Start := time.Now()
		tier2Result, err := g.sweepToTierResult(ctx, sanitized)
		g.observer.ObserveTier(ctx, 2, "semantic", time.Since(tier2Start))
		if err != nil {
			return g.errorFallback(start, err)
		}

		if router.ShouldEscalate(tier2Result, g.tier3Available) {
			tierUsed = 3
			tier3Start := time.Now()
			result = g.adjudicate(ctx, sanitized, reqContext, tier2Result.FailureClass)
			g.observer.ObserveTier(ctx, 3, result.Method, time.Since(tier3Start))
		} else {
			result = tier2Result
		}

	default: // 3: direct gray-zone/deep-analysis route, no prior classification
		tier3Start := time.Now()
		result = g.adjudicate(ctx, sanitized, reqContext, nil)
		g.observer.ObserveTier(ctx, 3, result.Method, time.Since(tier3Start))
	}

	action, severity := g.mapToAction(result)

	return Verdict{
		Action:           action,
		TierUsed:         tierUsed,
		Method:           result.Method,
		Confidence:       result.Confidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		FailureClass:     result.FailureClass,
		Severity:         severity,
		Explanation:      result.Explanation,
	}
}

// sweepToTierResult runs the Tier 2 class sweep and adapts its result into
// the common TierResult shape the router and action-mapping step consume.
func (g *Gateway) sweepToTierResult(ctx context.Context, text string) (patterns.TierResult, error) {
	sweep, err := g.semanticMgr.Sweep(ctx, text)
	if err != nil {
		return patterns.TierResult{}, err
	}

	if sweep.ShouldAllow {
		return patterns.TierResult{
			Method:      "semantic",
			Confidence:  sweep.Score,
			ShouldAllow: boolPtr(true),
			Explanation: "no policy example cleared its similarity threshold",
		}, nil
	}

	class := sweep.FailureClass
	return patterns.TierResult{
		Method:       "semantic",
		Confidence:   sweep.Score,
		FailureClass: &class,
		ShouldAllow:  boolPtr(false),
		Explanation:  fmt.Sprintf("nearest policy example matched %s", class),
	}, nil
}

func (g *Gateway) adjudicate(ctx context.Context, text string, reqContext map[string]string, candidateClass *policy.FailureClass) patterns.TierResult {
	if g.adjudicator == nil {
		return patterns.TierResult{
			Method:      "llm_unavailable",
			Confidence:  0.5,
			ShouldAllow: boolPtr(true),
			Explanation: "llm_unavailable",
		}
	}

	decision := g.adjudicator.Analyze(ctx, text, reqContext)

	if decision.Decision != "BLOCK" {
		return patterns.TierResult{
			Method:      "agent_adjudication",
			Confidence:  decision.Confidence,
			ShouldAllow: boolPtr(true),
			Explanation: decision.Reasoning,
		}
	}

	return patterns.TierResult{
		Method:       "agent_adjudication",
		Confidence:   decision.Confidence,
		FailureClass: candidateClass,
		ShouldAllow:  boolPtr(false),
		Explanation:  decision.Reasoning,
	}
}

// mapToAction resolves the final action from a failure class when one is
// present, falling back to WARN/ALLOW purely from shouldAllow otherwise.
// A direct Tier-3 BLOCK with no carried-over Tier-2 classification maps
// to WARN rather than BLOCK: Tier 3 alone never assigns a failure class.
func (g *Gateway) mapToAction(result patterns.TierResult) (policy.EnforcementAction, *policy.SeverityLevel) {
	if result.FailureClass != nil {
		entry, ok := g.policyStore.Current().Policy(*result.FailureClass)
		if ok {
			severity := entry.Severity
			return entry.Action, &severity
		}
	}

	if result.ShouldAllow != nil && !*result.ShouldAllow {
		medium := policy.SeverityMedium
		return policy.ActionWarn, &medium
	}

	return policy.ActionAllow, nil
}

// GetStats returns the current tier distribution and health assessment.
func (g *Gateway) GetStats() stats.Snapshot {
	return g.stats.Distribution()
}

// ResetStats zeroes every tier counter.
func (g *Gateway) ResetStats() {
	g.stats.Reset()
}

// ReloadPolicy forces an immediate policy reload; idempotent, since
// callers may otherwise rely on the lazy hash-compare inside the
// semantic Manager.
func (g *Gateway) ReloadPolicy() error {
	return g.policyStore.Reload()
}

func boolPtr(b bool) *bool { return &b }
