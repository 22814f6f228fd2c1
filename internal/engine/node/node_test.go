package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowengine/engine/internal/engine/domain"
)

func TestRun_UnknownTypeFallback(t *testing.T) {
	r := NewRegistry(465)
	n := domain.Node{ID: 1, Data: map[string]interface{}{"type": "no-such-type"}}

	envelope, err := r.Run(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, "no-such-type", envelope["type"])
	assert.Equal(t, map[string]interface{}{"status": "processed", "type": "no-such-type"}, envelope["result"])
}

func TestRun_MissingTypeDefaultsToUnknown(t *testing.T) {
	r := NewRegistry(465)
	n := domain.Node{ID: 1, Data: map[string]interface{}{}}

	envelope, err := r.Run(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", envelope["type"])
}

func TestRun_RegisteredHandlerError(t *testing.T) {
	r := NewRegistry(465)
	wantErr := assert.AnError
	r.Register("boom", HandlerFunc(func(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
		return nil, wantErr
	}))

	_, err := r.Run(context.Background(), domain.Node{ID: 1, Data: map[string]interface{}{"type": "boom"}}, nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestEnvelope_Shape(t *testing.T) {
	env := Envelope(5, "email", map[string]interface{}{"status": "sent"})
	assert.EqualValues(t, 5, env["node_id"])
	assert.Equal(t, "email", env["type"])
	assert.Equal(t, map[string]interface{}{"status": "sent"}, env["result"])
}

// TestRun_BreakerIsolatedPerNodeType confirms a node type tripping its
// circuit breaker doesn't affect a different, healthy node type — each
// gets its own entry in the registry's breaker map.
func TestRun_BreakerIsolatedPerNodeType(t *testing.T) {
	r := NewRegistry(465)
	r.Register("flaky", HandlerFunc(func(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
		return nil, assert.AnError
	}))
	r.Register("healthy", HandlerFunc(func(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}))

	for i := 0; i < 5; i++ {
		_, err := r.Run(context.Background(), domain.Node{ID: 1, Data: map[string]interface{}{"type": "flaky"}}, nil)
		assert.Error(t, err)
	}

	envelope, err := r.Run(context.Background(), domain.Node{ID: 2, Data: map[string]interface{}{"type": "healthy"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, envelope["result"])

	states := r.BreakerStates()
	assert.Contains(t, states, "flaky")
	assert.Contains(t, states, "healthy")
}
