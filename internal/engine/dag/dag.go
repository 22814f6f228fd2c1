// Package dag implements the DAG Scheduler: builds the adjacency/in-degree
// model from a workflow's nodes and connections, topologically orders
// them with Kahn's algorithm using FIFO tie-breaking, and runs each node
// in order through the Template Resolver and Node Executor, threading a
// results context between them.
package dag

import (
	"context"
	"fmt"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/internal/engine/node"
	"github.com/flowengine/engine/internal/engine/template"
)

// ErrCycle is returned (wrapped) when the execution order produced by
// the BFS does not cover every node — a cycle or a dangling reference.
var ErrCycle = fmt.Errorf("workflow graph has cycles or disconnected nodes")

// Result is the outcome of a full workflow run.
type Result struct {
	WorkflowID int64                  `json:"workflow_id"`
	Order      []int64                `json:"order"`
	Results    map[string]interface{} `json:"results"`
}

type Scheduler struct {
	registry *node.Registry
}

func NewScheduler(registry *node.Registry) *Scheduler {
	return &Scheduler{registry: registry}
}

// Run executes a workflow job: orders its nodes topologically and runs
// each one in turn, accumulating results in a shared evaluation context.
func (s *Scheduler) Run(ctx context.Context, job domain.Job) (Result, error) {
	nodeMap := make(map[int64]domain.Node, len(job.Nodes))
	adjacency := make(map[int64][]int64, len(job.Nodes))
	inDegree := make(map[int64]int, len(job.Nodes))
	for _, n := range job.Nodes {
		nodeMap[n.ID] = n
		inDegree[n.ID] = 0
	}
	for _, c := range job.Connections {
		adjacency[c.From] = append(adjacency[c.From], c.To)
		inDegree[c.To]++
	}

	order, err := topologicalOrder(job.Nodes, adjacency, inDegree)
	if err != nil {
		return Result{}, err
	}

	var triggerVal interface{}
	if job.Trigger != nil {
		triggerVal = triggerToMap(job.Trigger)
	}
	evalCtx := template.Context{Results: make(map[string]interface{}), Trigger: triggerVal}

	for _, id := range order {
		n, ok := nodeMap[id]
		if !ok {
			continue
		}
		resolved := template.Resolve(n.Data, evalCtx).(map[string]interface{})
		n.Data = resolved

		envelope, err := s.registry.Run(ctx, n, job.Credentials)
		if err != nil {
			return Result{}, fmt.Errorf("dag: node %d (%s): %w", id, n.Type(), err)
		}
		evalCtx.Results[fmt.Sprintf("%d", id)] = envelope
	}

	return Result{
		WorkflowID: job.WorkflowID,
		Order:      order,
		Results:    evalCtx.Results,
	}, nil
}

// RunSingleNode runs exactly the named node with an empty results map
// and the job's trigger, skipping graph construction entirely.
func (s *Scheduler) RunSingleNode(ctx context.Context, job domain.Job) (map[string]interface{}, error) {
	if job.Node == nil {
		return nil, fmt.Errorf("dag: node job missing node")
	}
	var triggerVal interface{}
	if job.Trigger != nil {
		triggerVal = triggerToMap(job.Trigger)
	}
	evalCtx := template.Context{Results: map[string]interface{}{}, Trigger: triggerVal}

	n := *job.Node
	resolved := template.Resolve(n.Data, evalCtx).(map[string]interface{})
	n.Data = resolved

	envelope, err := s.registry.Run(ctx, n, job.Credentials)
	if err != nil {
		return nil, fmt.Errorf("dag: node %d (%s): %w", n.ID, n.Type(), err)
	}
	return map[string]interface{}{
		"node_id": n.ID,
		"result":  envelope,
	}, nil
}

// topologicalOrder runs Kahn's algorithm with a FIFO work queue seeded
// by input order, so ties among ready nodes resolve by node insertion
// order — stable and deterministic given the input.
func topologicalOrder(nodes []domain.Node, adjacency map[int64][]int64, inDegree map[int64]int) ([]int64, error) {
	ready := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	order := make([]int64, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, child := range adjacency[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

func triggerToMap(t *domain.Trigger) map[string]interface{} {
	headers := make(map[string]interface{}, len(t.Headers))
	for k, v := range t.Headers {
		headers[k] = v
	}
	query := make(map[string]interface{}, len(t.Query))
	for k, v := range t.Query {
		query[k] = v
	}
	return map[string]interface{}{
		"headers": headers,
		"query":   query,
		"body":    t.Body,
		"method":  t.Method,
		"path":    t.Path,
	}
}
