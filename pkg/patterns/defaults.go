package patterns

import "github.com/jordigilh/sentinel-gate/pkg/policy"

func classPtr(c policy.FailureClass) *policy.FailureClass {
	return &c
}

// DefaultSpecs is the seed pattern set: attack signatures shared with the
// Input Guard's pathological gate (SQL clauses, script tags, javascript:
// URIs, path traversal, etc/passwd, cmd.exe) as block patterns, plus
// direct-injection signatures and citation/allow exemplars, so both layers
// stay in lockstep.
func DefaultSpecs() []PatternSpec {
	return []PatternSpec{
		{
			Name:         "sql_injection",
			RegexSource:  `(?i)\b(union\s+select|drop\s+table|or\s+1\s*=\s*1|;\s*--)\b`,
			FailureClass: classPtr(policy.PromptInjection),
			Confidence:   0.9,
			Description:  "SQL injection clause",
		},
		{
			Name:         "script_tag",
			RegexSource:  `(?i)<script[\s>]`,
			FailureClass: classPtr(policy.DangerousContent),
			Confidence:   0.9,
			Description:  "embedded script tag",
		},
		{
			Name:         "javascript_uri",
			RegexSource:  `(?i)javascript:`,
			FailureClass: classPtr(policy.DangerousContent),
			Confidence:   0.85,
			Description:  "javascript: URI",
		},
		{
			Name:         "path_traversal",
			RegexSource:  `\.\./`,
			FailureClass: classPtr(policy.DangerousContent),
			Confidence:   0.8,
			Description:  "directory traversal sequence",
		},
		{
			Name:         "etc_passwd",
			RegexSource:  `(?i)etc/passwd`,
			FailureClass: classPtr(policy.DangerousContent),
			Confidence:   0.9,
			Description:  "sensitive system file reference",
		},
		{
			Name:         "cmd_exe",
			RegexSource:  `(?i)cmd\.exe`,
			FailureClass: classPtr(policy.DangerousContent),
			Confidence:   0.85,
			Description:  "Windows shell invocation",
		},
		{
			Name:         "direct_injection",
			RegexSource:  `(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`,
			FailureClass: classPtr(policy.PromptInjection),
			Confidence:   0.9,
			Description:  "direct instruction-override attempt",
		},
		{
			Name:         "reveal_system_prompt",
			RegexSource:  `(?i)(reveal|show|print|repeat)\s+(the\s+|your\s+)?system\s+prompt`,
			FailureClass: classPtr(policy.PromptInjection),
			Confidence:   0.9,
			Description:  "system prompt exfiltration attempt",
		},
		{
			Name:         "citation_reference",
			RegexSource:  `(?i)according to the (retrieved )?document\s*\[\d+\]`,
			FailureClass: nil,
			Confidence:   0.8,
			Description:  "grounded citation reference",
		},
		{
			Name:         "hedged_uncertainty",
			RegexSource:  `(?i)\bi('m| am) not (entirely |completely )?sure\b`,
			FailureClass: nil,
			Confidence:   0.6,
			Description:  "appropriately hedged uncertainty",
		},
	}
}
