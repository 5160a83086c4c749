// Package expression implements the two interpolation syntaxes nodes use
// to pull upstream data and credentials into their parameters, plus the
// condition-expression language used by the if and switch handlers.
package expression

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
)

// CredentialLookup resolves a credential by name for the {{name}} fallback.
type CredentialLookup func(name string) (string, bool)

// Context is the interpolation data available to a single handler
// invocation: the upstream input, optionally the workflow's settings, and
// any extras the handler declares, plus a credential fallback.
type Context struct {
	Data       map[string]any
	Credential CredentialLookup
}

// NewContext builds an interpolation Context from the pieces a handler
// assembles: the upstream input map, an optional settings map (included
// only when the handler opts in), and handler-declared extras. Later maps
// win on key collision, matching merge-at-the-top-level semantics used
// elsewhere in the engine.
func NewContext(input map[string]any, settings map[string]any, extras map[string]any, cred CredentialLookup) Context {
	data := dynvalue.Copy(input)
	if settings != nil {
		dynvalue.MergeShallow(data, settings)
	}
	if extras != nil {
		dynvalue.MergeShallow(data, extras)
	}
	return Context{Data: data, Credential: cred}
}

var (
	dollarPlaceholder = regexp.MustCompile(`\$\{([^}]*)\}`)
	bracePlaceholder  = regexp.MustCompile(`\{\{([^}]*)\}\}`)
)

// Interpolate applies both syntaxes in order to s: first `${path}` dotted
// navigation (missing path -> empty string), then `{{name}}` looked up in
// the same data map, falling back to a credential lookup by name, and
// finally left literal if neither resolves. Because replacement goes
// through ReplaceAllStringFunc rather than a $-template substitution, the
// resolved values are inserted verbatim and can't be misread as further
// regex metacharacters.
func Interpolate(s string, ctx Context) string {
	s = dollarPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(dollarPlaceholder.FindStringSubmatch(match)[1])
		val, ok := dynvalue.ByPath(map[string]any(ctx.Data), path)
		if !ok || val == nil {
			return ""
		}
		return toDisplayString(val)
	})

	s = bracePlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(bracePlaceholder.FindStringSubmatch(match)[1])
		if val, ok := dynvalue.ByPath(map[string]any(ctx.Data), name); ok && val != nil {
			return toDisplayString(val)
		}
		if ctx.Credential != nil {
			if val, ok := ctx.Credential(name); ok {
				return val
			}
		}
		return match
	})

	return s
}

func toDisplayString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// EvaluateTemplate recursively applies Interpolate to every string leaf of
// value, walking nested maps and lists; non-string, non-container values
// pass through unchanged.
func EvaluateTemplate(value any, ctx Context) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = EvaluateTemplate(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = EvaluateTemplate(item, ctx)
		}
		return out
	default:
		return v
	}
}
