// Package node implements the Node Executor: a dispatch table mapping a
// node's data.type to a handler that produces a result or an error.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/pkg/resilience"
)

// DefaultTimeout bounds every handler invocation, matching the registry's
// base executor default in the lineage this was adapted from.
const DefaultTimeout = 30 * time.Second

// Handler is the single capability every node kind implements.
type Handler interface {
	Run(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error)

func (f HandlerFunc) Run(ctx context.Context, nodeType string, inputs map[string]interface{}, credentials map[string]domain.Credential) (interface{}, error) {
	return f(ctx, nodeType, inputs, credentials)
}

// Registry is a closed enumeration of node kinds, safe for concurrent
// reads once built; built once at process start. Each node type gets its
// own circuit breaker — an email or telegram integration that starts
// failing shouldn't be retried node-by-node forever while ai_agent or
// unknown nodes, which never leave the process, stay untouched.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
	breakers *resilience.CircuitBreakerRegistry
}

// NewRegistry builds the registry with the engine's built-in handlers
// already registered.
func NewRegistry(smtpPort int) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		breakers: resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig("node")),
	}
	r.Register("ai_agent", aiAgentHandler{})
	r.Register("email", emailHandler{smtpPort: smtpPort})
	r.Register("telegram", telegramHandler{client: newHTTPClient()})
	r.fallback = unknownHandler{}
	return r
}

// BreakerStates reports the current circuit-breaker state per node type
// that has executed at least once; exposed on the worker's debug
// surface so an operator can see which integration is tripped.
func (r *Registry) BreakerStates() map[string]gobreaker.State {
	return r.breakers.States()
}

// Register adds or replaces the handler for a node type.
func (r *Registry) Register(nodeType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = h
}

func (r *Registry) get(nodeType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[nodeType]; ok {
		return h
	}
	return r.fallback
}

// Envelope is the {node_id, type, result} shape stored in the evaluation
// context's results map. It's a plain map rather than a struct so the
// Template Resolver can walk it like any other JSON value.
func Envelope(nodeID int64, nodeType string, result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"node_id": nodeID,
		"type":    nodeType,
		"result":  result,
	}
}

// Run resolves node.data.type to a handler, invokes it under a bounded
// deadline, and wraps the outcome in the standard envelope. A handler
// error propagates unwrapped-of-envelope to the caller (the DAG
// Scheduler / single-node path), which is responsible for failing the
// job.
func (r *Registry) Run(ctx context.Context, n domain.Node, credentials map[string]domain.Credential) (map[string]interface{}, error) {
	nodeType := n.Type()
	if nodeType == "" {
		nodeType = "unknown"
	}
	handler := r.get(nodeType)

	runCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	breaker := r.breakers.Get(nodeType)
	result, err := breaker.ExecuteWithContext(runCtx, func(ctx context.Context) (interface{}, error) {
		return handler.Run(ctx, nodeType, n.Data, credentials)
	})
	if err != nil {
		return nil, err
	}
	return Envelope(n.ID, nodeType, result), nil
}
