package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
)

// PolicyEntry is the operator-authored configuration for one failure class:
// the action/severity pair to apply on detection, the confidence bar a
// detector must clear, and the labeled examples that seed the semantic
// index for this class. Action may be left blank, in which case it is
// resolved from Severity via the default severity→action Rego policy.
type PolicyEntry struct {
	Action              EnforcementAction `yaml:"action"`
	Severity            SeverityLevel     `yaml:"severity" validate:"required"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	MessageTemplate     string            `yaml:"message_template"`
	Examples            []string          `yaml:"examples"`
}

// rawDocument mirrors the on-disk YAML shape before validation.
type rawDocument struct {
	FailurePolicies map[string]PolicyEntry `yaml:"failure_policies"`
}

// Document is the fully parsed, validated policy: one PolicyEntry per
// failure class, plus the SHA-256 of the source bytes used as its identity
// for hot-reload comparisons.
type Document struct {
	entries map[FailureClass]PolicyEntry
	hash    string

	mu sync.RWMutex
}

// Hash returns the SHA-256 hex digest of the document's source bytes.
func (d *Document) Hash() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hash
}

// Policy returns the PolicyEntry configured for failureClass, and whether
// one was configured.
func (d *Document) Policy(failureClass FailureClass) (PolicyEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[failureClass]
	return entry, ok
}

// ShouldEnforce reports whether confidence clears the configured threshold
// for failureClass. An unconfigured class never enforces.
func (d *Document) ShouldEnforce(failureClass FailureClass, confidence float64) bool {
	entry, ok := d.Policy(failureClass)
	if !ok {
		return false
	}
	return confidence >= entry.ConfidenceThreshold
}

// Examples returns every (failureClass, text) pair across all entries, in
// a stable order, for seeding the semantic index.
func (d *Document) Examples() []Example {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Example
	for _, class := range AllFailureClasses {
		entry, ok := d.entries[class]
		if !ok {
			continue
		}
		for _, text := range entry.Examples {
			out = append(out, Example{FailureClass: class, Text: text})
		}
	}
	return out
}

// Example is one labeled policy example, prior to embedding.
type Example struct {
	FailureClass FailureClass
	Text         string
}

var structValidator = validator.New()

var (
	defaultResolver     *SeverityActionResolver
	defaultResolverOnce sync.Once
	defaultResolverErr  error
)

func resolveDefaultAction(ctx context.Context, severity SeverityLevel) (EnforcementAction, error) {
	defaultResolverOnce.Do(func() {
		defaultResolver, defaultResolverErr = NewSeverityActionResolver(ctx, "")
	})
	if defaultResolverErr != nil {
		return "", defaultResolverErr
	}
	return defaultResolver.Resolve(ctx, severity)
}

// Load reads, parses, and validates the policy document at path. It is a
// configuration-fatal error (per the error-handling design, surfaced only
// at startup/reload, never mid-request) for the file to be missing,
// malformed, or structurally invalid.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load policy document", "policy", path, err)
	}
	return Parse(raw)
}

// Parse validates and builds a Document from raw YAML bytes.
func Parse(raw []byte) (*Document, error) {
	var rd rawDocument
	if err := yaml.Unmarshal(raw, &rd); err != nil {
		return nil, sharederrors.ParseError("policy document", "yaml", err)
	}

	entries := make(map[FailureClass]PolicyEntry, len(rd.FailurePolicies))
	seenExamples := make(map[string]FailureClass)

	for className, entry := range rd.FailurePolicies {
		class := FailureClass(className)
		if !class.IsValid() {
			return nil, &ErrUnknownFailureClass{Class: className}
		}
		if !entry.Severity.IsValid() {
			return nil, sharederrors.ConfigurationError(
				fmt.Sprintf("failure_policies.%s.severity", className),
				fmt.Sprintf("invalid severity %q", entry.Severity))
		}
		if entry.Action == "" {
			resolved, err := resolveDefaultAction(context.Background(), entry.Severity)
			if err != nil {
				return nil, sharederrors.ConfigurationError(
					fmt.Sprintf("failure_policies.%s.action", className), err.Error())
			}
			entry.Action = resolved
		} else if !entry.Action.IsValid() {
			return nil, sharederrors.ConfigurationError(
				fmt.Sprintf("failure_policies.%s.action", className),
				fmt.Sprintf("invalid action %q", entry.Action))
		}
		if err := structValidator.Struct(entry); err != nil {
			return nil, sharederrors.ConfigurationError(
				fmt.Sprintf("failure_policies.%s", className), err.Error())
		}
		for _, example := range entry.Examples {
			if prior, dup := seenExamples[example]; dup {
				return nil, sharederrors.ConfigurationError(
					"examples",
					fmt.Sprintf("example %q appears in both %s and %s", example, prior, class))
			}
			seenExamples[example] = class
		}

		entries[class] = entry
	}

	sum := sha256.Sum256(raw)
	return &Document{
		entries: entries,
		hash:    hex.EncodeToString(sum[:]),
	}, nil
}
