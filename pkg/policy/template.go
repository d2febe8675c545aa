package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"

	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
)

// fieldRef matches a `{{ .path }}` placeholder in a message_template, whose
// inner expression is evaluated as a JQ query against the request Context.
var fieldRef = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// RenderMessage expands entry.MessageTemplate's `{{ .field }}` placeholders
// by evaluating each as a JQ-style expression against context, so an
// operator can pull structured values out of the request without the core
// hand-rolling a template language. A placeholder whose query yields
// nothing (or only null) renders as an empty string; an expression that
// fails to parse or evaluate makes RenderMessage return an error.
func RenderMessage(template string, context map[string]string) (string, error) {
	if template == "" {
		return "", nil
	}

	input := make(map[string]interface{}, len(context))
	for k, v := range context {
		input[k] = v
	}

	var evalErr error
	rendered := fieldRef.ReplaceAllStringFunc(template, func(match string) string {
		expr := fieldRef.FindStringSubmatch(match)[1]
		value, err := evalJQField(expr, input)
		if err != nil {
			evalErr = err
			return ""
		}
		return value
	})
	if evalErr != nil {
		return "", evalErr
	}
	return rendered, nil
}

func evalJQField(expr string, input map[string]interface{}) (string, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return "", sharederrors.ParseError(fmt.Sprintf("message template expression %q", expr), "jq", err)
	}

	iter := query.Run(input)
	var parts []string
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return "", sharederrors.FailedTo(fmt.Sprintf("evaluate message template expression %q", expr), err)
		}
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, ""), nil
}
