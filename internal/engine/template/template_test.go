package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_DottedPath(t *testing.T) {
	ctx := Context{
		Results: map[string]interface{}{
			"1": map[string]interface{}{
				"result": map[string]interface{}{"status": "processed"},
			},
		},
	}

	got := Resolve("{{results.1.result.status}}", ctx)
	assert.Equal(t, "processed", got)
}

func TestResolve_UnresolvedPathYieldsNil(t *testing.T) {
	ctx := Context{Results: map[string]interface{}{}}
	assert.Nil(t, Resolve("{{results.99.result.status}}", ctx))
}

func TestResolve_NonObjectIntermediateYieldsNil(t *testing.T) {
	ctx := Context{Results: map[string]interface{}{"1": "not-an-object"}}
	assert.Nil(t, Resolve("{{results.1.result}}", ctx))
}

func TestResolve_EmbeddedTemplateNotSupported(t *testing.T) {
	ctx := Context{Results: map[string]interface{}{"1": "x"}}
	got := Resolve("hello {{results.1}}", ctx)
	assert.Equal(t, "hello {{results.1}}", got)
}

func TestResolve_RecursesIntoObjectsAndArrays(t *testing.T) {
	ctx := Context{Results: map[string]interface{}{"1": "resolved"}}
	value := map[string]interface{}{
		"a": []interface{}{"{{results.1}}", "literal"},
		"b": 42,
	}

	got := Resolve(value, ctx).(map[string]interface{})
	assert.Equal(t, []interface{}{"resolved", "literal"}, got["a"])
	assert.Equal(t, 42, got["b"])
}

// Property 3: a value with no template tokens round-trips byte-identical,
// and resolving an already-resolved value is a no-op.
func TestResolve_Idempotent(t *testing.T) {
	ctx := Context{Results: map[string]interface{}{"1": map[string]interface{}{"status": "processed"}}}
	value := map[string]interface{}{
		"plain":    "no templates here",
		"nested":   map[string]interface{}{"n": 1},
		"resolved": "{{results.1.status}}",
	}

	once := Resolve(value, ctx)
	twice := Resolve(once, ctx)
	assert.Equal(t, once, twice)

	resolved := once.(map[string]interface{})
	assert.Equal(t, value["plain"], resolved["plain"])
	assert.Equal(t, value["nested"], resolved["nested"])
}
