// Package materializer implements the Code Materializer (component D):
// deterministic, non-executing substitution of {name} placeholders in a
// template with the caller's parameters.
package materializer

import (
	"encoding/json"
	"strings"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

// Materialize substitutes every {name} placeholder in template with the
// JSON textual form of params[name]. A placeholder with no matching
// parameter fails the whole call with missing_parameter before any
// substitution is committed — materialization is all-or-nothing. Unknown
// parameters present in params but absent from template are ignored, which
// keeps intents forward-compatible with templates that don't yet consume a
// newly added field.
//
// Materialize performs pure string substitution; it never imports,
// evaluates, or otherwise executes the template.
func Materialize(template string, params map[string]any) (string, error) {
	names, err := placeholders(template)
	if err != nil {
		return "", err
	}

	substitutions := make(map[string]string, len(names))
	for _, name := range names {
		value, ok := params[name]
		if !ok {
			return "", sberrors.MissingParameter(name)
		}
		text, err := json.Marshal(value)
		if err != nil {
			return "", sberrors.InvalidRequest("parameter " + name + " is not JSON-serializable")
		}
		substitutions[name] = string(text)
	}

	var b strings.Builder
	b.Grow(len(template))
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			if end := strings.IndexByte(template[i:], '}'); end >= 0 {
				name := template[i+1 : i+end]
				if text, ok := substitutions[name]; ok {
					b.WriteString(text)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String(), nil
}

// placeholders scans template for the set of distinct {name} placeholders,
// in a single pass with no backtracking.
func placeholders(template string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	i := 0
	for i < len(template) {
		if template[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			break
		}
		name := template[i+1 : i+end]
		if name != "" && !strings.ContainsAny(name, "{}") && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += end + 1
	}
	return names, nil
}
