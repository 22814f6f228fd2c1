// Package template implements the engine's whole-string dotted-path
// template substitution: "{{a.b.c}}" resolves against an evaluation
// context, descending through nested objects and returning nil as soon
// as a segment is missing or the current value isn't an object.
//
// This is hand-rolled rather than built on a JMESPath-style expression
// library because the evaluation context's results map is keyed by
// stringified node ids ("1", "2", ...), and JMESPath's identifier
// grammar cannot address a path segment that starts with a digit
// without bracket-quoting it — which would change the wire syntax this
// spec requires. The original implementation this was distilled from
// hand-rolls the identical walk for the same reason.
package template

import "strings"

// Context is the per-execution evaluation context: accumulated node
// results keyed by stringified node id, plus the triggering event.
type Context struct {
	Results map[string]interface{}
	Trigger interface{}
}

func (c Context) asMap() map[string]interface{} {
	return map[string]interface{}{
		"results": c.Results,
		"trigger": c.Trigger,
	}
}

// Resolve walks value, substituting any string that is an exact
// "{{expr}}" token with the dotted-path lookup of expr against ctx.
// Objects and arrays are recursed into; every other value, including a
// string with embedded or partial templates, passes through unchanged.
func Resolve(value interface{}, ctx Context) interface{} {
	return resolve(value, ctx.asMap())
}

func resolve(value interface{}, ctx map[string]interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			out[k] = resolve(child, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = resolve(child, ctx)
		}
		return out
	case string:
		if expr, ok := templateExpr(v); ok {
			return evalPath(expr, ctx)
		}
		return v
	default:
		return value
	}
}

// templateExpr reports whether s is an exact "{{ ... }}" token and
// returns its trimmed inner expression.
func templateExpr(s string) (string, bool) {
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") || len(s) < 4 {
		return "", false
	}
	return strings.TrimSpace(s[2 : len(s)-2]), true
}

// evalPath walks a dotted path over ctx, returning nil on a missing key
// or on encountering a non-object value before the path is exhausted.
func evalPath(expr string, ctx map[string]interface{}) interface{} {
	var current interface{} = ctx
	for _, part := range strings.Split(expr, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
