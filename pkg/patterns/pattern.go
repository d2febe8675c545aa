// Package patterns implements the compiled Pattern Library (C2) and the
// Tier 1 Screener (C3) that matches sanitized text against it.
package patterns

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"sort"

	"github.com/jordigilh/sentinel-gate/pkg/policy"
)

// maxNestingDepth and maxQuantifiers bound the alternation/nesting
// complexity NewLibrary accepts. Go's RE2 engine is already linear-time in
// input length, so this heuristic guards against a different failure
// mode: a pathologically large compiled program from deep alternation
// nesting, not catastrophic backtracking.
const (
	maxNestingDepth = 12
	maxQuantifiers  = 20
)

// Pattern is one compiled deterministic detector: either a block pattern
// (FailureClass set) or an allow-pattern (FailureClass nil, evidence of
// legitimacy).
type Pattern struct {
	Name         string
	Regex        *regexp.Regexp
	FailureClass *policy.FailureClass
	Confidence   float64
	Description  string
}

// IsAllowPattern reports whether p is an allow-pattern.
func (p *Pattern) IsAllowPattern() bool {
	return p.FailureClass == nil
}

// PatternSpec is the uncompiled source for a Pattern.
type PatternSpec struct {
	Name         string
	RegexSource  string
	FailureClass *policy.FailureClass
	Confidence   float64
	Description  string
}

// Library is a registry of compiled patterns, sorted allow-patterns-first
// so Tier 1 screening checks legitimacy evidence before block signatures.
type Library struct {
	patterns []*Pattern
}

// NewLibrary compiles specs once, rejecting any whose source trips the
// bounded-complexity heuristic, and sorts the result allow-patterns-first.
func NewLibrary(specs []PatternSpec) (*Library, error) {
	patterns := make([]*Pattern, 0, len(specs))

	for _, spec := range specs {
		if err := checkComplexity(spec.RegexSource); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", spec.Name, err)
		}
		re, err := regexp.Compile(spec.RegexSource)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: failed to compile: %w", spec.Name, err)
		}
		patterns = append(patterns, &Pattern{
			Name:         spec.Name,
			Regex:        re,
			FailureClass: spec.FailureClass,
			Confidence:   spec.Confidence,
			Description:  spec.Description,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].IsAllowPattern() && !patterns[j].IsAllowPattern()
	})

	return &Library{patterns: patterns}, nil
}

// AllowPatterns returns the allow-patterns, in library order.
func (l *Library) AllowPatterns() []*Pattern {
	var out []*Pattern
	for _, p := range l.patterns {
		if p.IsAllowPattern() {
			out = append(out, p)
		}
	}
	return out
}

// BlockPatterns returns the block-patterns, in library order.
func (l *Library) BlockPatterns() []*Pattern {
	var out []*Pattern
	for _, p := range l.patterns {
		if !p.IsAllowPattern() {
			out = append(out, p)
		}
	}
	return out
}

// checkComplexity rejects regex sources whose parsed AST nests or
// alternates beyond the bounded heuristic, guarding against alternation
// explosion in the compiled program rather than backtracking (RE2 has
// none).
func checkComplexity(source string) error {
	re, err := syntax.Parse(source, syntax.Perl)
	if err != nil {
		return fmt.Errorf("invalid regex syntax: %w", err)
	}

	depth, quantifiers := measure(re, 0)
	if depth > maxNestingDepth {
		return fmt.Errorf("nesting depth %d exceeds bound %d", depth, maxNestingDepth)
	}
	if quantifiers > maxQuantifiers {
		return fmt.Errorf("quantifier count %d exceeds bound %d", quantifiers, maxQuantifiers)
	}
	return nil
}

func measure(re *syntax.Regexp, depth int) (maxDepth, quantifiers int) {
	maxDepth = depth
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		quantifiers++
	}
	for _, sub := range re.Sub {
		d, q := measure(sub, depth+1)
		if d > maxDepth {
			maxDepth = d
		}
		quantifiers += q
	}
	return maxDepth, quantifiers
}
