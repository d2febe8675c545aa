package patterns

import (
	"context"
	"time"

	"github.com/jordigilh/sentinel-gate/pkg/policy"
)

// screenTruncateLength is the local truncation applied before regex
// screening, independent of the Input Guard's own MaxLength.
const screenTruncateLength = 500

// perPatternTimeout bounds the wall-clock budget of a single pattern
// search; a timeout yields "no match" and the scan continues.
const perPatternTimeout = 500 * time.Millisecond

// TierResult is the internal result record every tier returns. ShouldAllow
// is a tri-state: true/false/unknown (nil) pending Control Tower mapping.
type TierResult struct {
	Method       string
	Confidence   float64
	FailureClass *policy.FailureClass
	ShouldAllow  *bool
	Explanation  string
	PatternName  string
}

func boolPtr(b bool) *bool { return &b }

// Screener implements the Tier 1 deterministic pattern match: truncate,
// allow-patterns first, then highest-confidence block pattern, else
// uncertain.
type Screener struct {
	library *Library
}

// NewScreener builds a Screener over library.
func NewScreener(library *Library) *Screener {
	return &Screener{library: library}
}

// Screen runs the Tier 1 algorithm against sanitized text.
func (s *Screener) Screen(ctx context.Context, text string) TierResult {
	if len(text) > screenTruncateLength {
		text = text[:screenTruncateLength]
	}

	for _, p := range s.library.AllowPatterns() {
		if matchWithTimeout(ctx, p, text) {
			return TierResult{
				Method:      "regex_anti",
				Confidence:  p.Confidence,
				ShouldAllow: boolPtr(true),
				Explanation: "matched allow-pattern: " + p.Description,
				PatternName: p.Name,
			}
		}
	}

	var best *Pattern
	for _, p := range s.library.BlockPatterns() {
		if !matchWithTimeout(ctx, p, text) {
			continue
		}
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	if best != nil {
		return TierResult{
			Method:       "regex_strong",
			Confidence:   best.Confidence,
			FailureClass: best.FailureClass,
			ShouldAllow:  boolPtr(false),
			Explanation:  "matched block-pattern: " + best.Description,
			PatternName:  best.Name,
		}
	}

	return TierResult{
		Method:      "regex_uncertain",
		Confidence:  0.5,
		ShouldAllow: nil,
		Explanation: "no deterministic pattern matched",
	}
}

// matchWithTimeout runs p.Regex.MatchString on its own goroutine bounded
// by perPatternTimeout; a timeout or panic inside the engine is treated as
// "no match" so the scan continues (cooperative cancellation, never abort).
func matchWithTimeout(ctx context.Context, p *Pattern, text string) bool {
	ctx, cancel := context.WithTimeout(ctx, perPatternTimeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		defer func() {
			if recover() != nil {
				result <- false
			}
		}()
		result <- p.Regex.MatchString(text)
	}()

	select {
	case matched := <-result:
		return matched
	case <-ctx.Done():
		return false
	}
}
