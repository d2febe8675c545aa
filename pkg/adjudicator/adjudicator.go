// Package adjudicator implements the Agent Adjudicator (Tier 3):
// cooperative LLM-agent adjudication backed by a decision cache and the
// provider failover chain in pkg/adjudicator/provider.
package adjudicator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/sentinel-gate/pkg/adjudicator/provider"
	"github.com/jordigilh/sentinel-gate/pkg/shared/logging"
)

// maxTextLength is the truncation applied to the candidate text before
// hashing and prompting.
const maxTextLength = 2000

const unavailableReasoning = "llm_unavailable"

// Decision is the Tier 3 result: ALLOW or BLOCK, with a confidence and a
// human-readable reasoning string.
type Decision struct {
	Decision   string
	Confidence float64
	Reasoning  string
	Cached     bool
}

// CacheEntry is one record in the decision cache.
type CacheEntry struct {
	Key        string
	Decision   string
	Confidence float64
	Reasoning  string
	CachedAt   time.Time
}

// Cache is the Tier 3 decision cache: bounded, with hit/miss counters,
// purgeable wholesale on policy reload.
type Cache interface {
	Get(key string) (CacheEntry, bool)
	Set(entry CacheEntry)
	Purge()
	Hits() uint64
	Misses() uint64
}

var promptTemplate = strings.TrimSpace(`
You are adjudicating whether the following model output should be ALLOWed
or BLOCKed under the active safety policy. Respond with a single word,
ALLOW or BLOCK, followed by a brief justification.

Context: %s

Text under review:
%s
`)

// blockToken matches a literal BLOCK answer token; allowToken matches a
// literal ALLOW token. Both are case-insensitive.
var (
	blockToken = regexp.MustCompile(`(?i)\bBLOCK\b`)
	allowToken = regexp.MustCompile(`(?i)\bALLOW\b`)
)

// Adjudicator orchestrates Tier 3: truncate, hash, cache lookup, provider
// generation on miss, and response parsing.
type Adjudicator struct {
	providers *provider.Manager
	cache     Cache
	logger    *logrus.Logger
}

// New builds an Adjudicator over providers and cache.
func New(providers *provider.Manager, cache Cache, logger *logrus.Logger) *Adjudicator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adjudicator{providers: providers, cache: cache, logger: logger}
}

// Analyze runs the Tier 3 pipeline against text and context.
func (a *Adjudicator) Analyze(ctx context.Context, text string, reqContext map[string]string) Decision {
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}

	key := decisionKey(text, reqContext)

	if entry, ok := a.cache.Get(key); ok {
		return Decision{
			Decision:   entry.Decision,
			Confidence: entry.Confidence,
			Reasoning:  entry.Reasoning,
			Cached:     true,
		}
	}

	result, err := a.providers.Generate(ctx, buildPrompt(text, reqContext))
	if err != nil {
		a.logger.WithFields(logging.NewFields().Component("adjudicator").Error(err).ToLogrus()).
			Warn("all providers failed, falling back to allow")
		return Decision{Decision: "ALLOW", Confidence: 0.5, Reasoning: unavailableReasoning}
	}

	decision, confidence, reasoning := parseVerdict(result.Content)

	a.cache.Set(CacheEntry{
		Key:        key,
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reasoning,
	})

	return Decision{Decision: decision, Confidence: confidence, Reasoning: reasoning}
}

// decisionKey hashes text and a deterministic serialization of reqContext
// so identical (text, context) pairs always resolve to the same cache key.
func decisionKey(text string, reqContext map[string]string) string {
	keys := make([]string, 0, len(reqContext))
	for k := range reqContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, k+"="+reqContext[k])
	}

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte("\x00"))
	h.Write([]byte(strings.Join(ordered, "&")))
	return hex.EncodeToString(h.Sum(nil))
}

func buildPrompt(text string, reqContext map[string]string) string {
	serialized, err := json.Marshal(reqContext)
	if err != nil {
		serialized = []byte("{}")
	}
	return fmt.Sprintf(promptTemplate, serialized, text)
}

// parseVerdict reduces a provider's free-text reply to a structured
// decision: a literal BLOCK token not contradicted by a later ALLOW token
// in the same sentence yields BLOCK with confidence 0.8; any other shape,
// including a parse failure, defaults to ALLOW with confidence 0.5.
func parseVerdict(reply string) (decision string, confidence float64, reasoning string) {
	reasoning = strings.TrimSpace(reply)
	if reasoning == "" {
		return "ALLOW", 0.5, "empty provider response"
	}

	for _, sentence := range splitSentences(reply) {
		blockIdx := blockToken.FindStringIndex(sentence)
		if blockIdx == nil {
			continue
		}
		allowIdx := allowToken.FindStringIndex(sentence)
		if allowIdx != nil && allowIdx[0] > blockIdx[0] {
			continue
		}
		return "BLOCK", 0.8, reasoning
	}

	return "ALLOW", 0.5, reasoning
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
}
