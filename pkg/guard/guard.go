// Package guard implements the Input Guard: the first stage every
// candidate text passes through, normalizing it and short-circuiting
// adversarial shapes before any detector spends cycles on them.
package guard

import (
	"regexp"
	"strings"
)

// MaxLength is the default maximum sanitized text length, M, after which
// text is truncated.
const MaxLength = 10_000

// MinLength is the minimum trimmed length below which text is trivially
// allowed without further screening.
const MinLength = 3

// repetitionRunLength is the shortest run of one repeated character that
// HasExcessiveRepetition treats as pathological.
const repetitionRunLength = 21

// attackSignatures mirrors the signature set the Pattern Library seeds its
// default block patterns from, so both layers stay in lockstep.
var attackSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)etc/passwd`),
	regexp.MustCompile(`(?i)cmd\.exe`),
}

// Verdict is the Input Guard's early-exit decision, if any. A nil Verdict
// means the caller should continue to Tier 1.
type Verdict struct {
	Action      string
	Method      string
	Confidence  float64
	Explanation string
}

// Sanitize normalizes text (NUL stripping, whitespace collapse, trim,
// truncation to MaxLength) and evaluates the pathological gate and the
// short-circuit length rule. It returns the sanitized text and, if the
// gate or short rule fired, a non-nil early Verdict.
func Sanitize(text string) (string, *Verdict) {
	cleaned := strings.ReplaceAll(text, "\x00", "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if len(cleaned) > MaxLength {
		cleaned = cleaned[:MaxLength]
	}

	if v := pathologicalGate(cleaned); v != nil {
		return cleaned, v
	}

	if len(cleaned) < MinLength {
		return cleaned, &Verdict{
			Action:      "ALLOW",
			Method:      "regex_skipped",
			Confidence:  0.5,
			Explanation: "text too short to screen",
		}
	}

	return cleaned, nil
}

func pathologicalGate(text string) *Verdict {
	if HasExcessiveRepetition(text) || HasLowCharacterDiversity(text) || MatchesAttackSignature(text) {
		return &Verdict{
			Action:      "BLOCK",
			Method:      "regex_pathological",
			Confidence:  0.95,
			Explanation: "input matched a pathological shape or known attack signature",
		}
	}
	return nil
}

// HasExcessiveRepetition reports whether text is dominated by a single
// character: either one character accounts for more than 80% of a text
// longer than 50 bytes, or a run of 21+ identical characters appears
// anywhere (20 copies does not trigger; 21 does).
func HasExcessiveRepetition(text string) bool {
	run := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= repetitionRunLength {
			return true
		}
		prev = r
	}
	if len(text) <= 50 {
		return false
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}
	for _, c := range counts {
		if float64(c)/float64(total) > 0.80 {
			return true
		}
	}
	return false
}

// HasLowCharacterDiversity reports whether text is longer than 100
// characters but uses fewer than 5 distinct characters.
func HasLowCharacterDiversity(text string) bool {
	if len(text) <= 100 {
		return false
	}
	seen := make(map[rune]struct{})
	for _, r := range text {
		seen[r] = struct{}{}
		if len(seen) >= 5 {
			return false
		}
	}
	return true
}

// MatchesAttackSignature reports whether text matches any known
// case-insensitive attack signature (SQL clauses, script tags,
// javascript: URIs, path traversal, etc/passwd, cmd.exe).
func MatchesAttackSignature(text string) bool {
	for _, sig := range attackSignatures {
		if sig.MatchString(text) {
			return true
		}
	}
	return false
}
