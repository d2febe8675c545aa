package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
)

// defaultActionModule maps a severity level to its default enforcement
// action as policy-as-code, so an operator can override the mapping by
// shipping a different Rego module without a binary rebuild. It reproduces
// the fixed severity→action table the core previously hard-coded as a Go
// map literal.
const defaultActionModule = `
package sentinelgate.severity

default action := "WARN"

action := "ALLOW" if { input.severity == "INFO" }
action := "WARN" if { input.severity == "LOW" }
action := "WARN" if { input.severity == "MEDIUM" }
action := "BLOCK" if { input.severity == "HIGH" }
action := "BLOCK" if { input.severity == "CRITICAL" }
`

// SeverityActionResolver evaluates the embedded (or operator-supplied)
// Rego module to pick a default EnforcementAction for a PolicyEntry whose
// author left Action unset.
type SeverityActionResolver struct {
	query rego.PreparedEvalQuery
}

// NewSeverityActionResolver prepares the default severity→action Rego
// query. An empty module falls back to defaultActionModule.
func NewSeverityActionResolver(ctx context.Context, module string) (*SeverityActionResolver, error) {
	if module == "" {
		module = defaultActionModule
	}

	query, err := rego.New(
		rego.Query("data.sentinelgate.severity.action"),
		rego.Module("severity.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("prepare severity policy", "policy", "severity.rego", err)
	}

	return &SeverityActionResolver{query: query}, nil
}

// Resolve returns the default EnforcementAction for severity.
func (r *SeverityActionResolver) Resolve(ctx context.Context, severity SeverityLevel) (EnforcementAction, error) {
	results, err := r.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"severity": string(severity),
	}))
	if err != nil {
		return "", sharederrors.FailedToWithDetails("evaluate severity policy", "policy", string(severity), err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", sharederrors.ConfigurationError("severity", fmt.Sprintf("no action mapped for severity %q", severity))
	}

	action, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", sharederrors.ConfigurationError("severity", "rego query returned a non-string action")
	}

	resolved := EnforcementAction(action)
	if !resolved.IsValid() {
		return "", sharederrors.ConfigurationError("severity", fmt.Sprintf("rego module produced invalid action %q", action))
	}
	return resolved, nil
}
