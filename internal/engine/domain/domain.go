// Package domain holds the shared shapes passed between the engine's
// components: execution jobs, the DAG's nodes and connections, and the
// durable execution record.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ExecutionType distinguishes a full workflow run from a single-node run.
type ExecutionType string

const (
	ExecutionTypeWorkflow ExecutionType = "workflow"
	ExecutionTypeNode     ExecutionType = "node"
)

// Status is the lifecycle state of an Execution Record.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// Node is a typed unit of work inside a workflow. Data carries the
// handler selector under the "type" key plus handler-specific input
// fields, which may hold template tokens.
type Node struct {
	ID        int64                  `json:"id"`
	PositionX float64                `json:"positionX"`
	PositionY float64                `json:"positionY"`
	Data      map[string]interface{} `json:"data"`
}

// Type returns node.data.type, or "" if absent/not a string.
func (n Node) Type() string {
	if n.Data == nil {
		return ""
	}
	t, _ := n.Data["type"].(string)
	return t
}

// Connection is a directed edge between two node ids within one workflow.
type Connection struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Credential is an opaque per-platform secret bundle resolved by the
// caller (Trigger Intake) and threaded through the job untouched by the
// scheduler; only the node handler that needs it parses data.
type Credential struct {
	ID       int64                  `json:"id"`
	Title    string                 `json:"title"`
	Platform string                 `json:"platform"`
	Data     map[string]interface{} `json:"data"`
}

// Trigger captures the external event that caused a job to be enqueued.
type Trigger struct {
	Headers map[string]string      `json:"headers"`
	Query   map[string]string      `json:"query"`
	Body    interface{}            `json:"body"`
	Method  string                 `json:"method"`
	Path    string                 `json:"path"`
}

// Job is the envelope placed on the queue.
type Job struct {
	ExecutionID    string                `json:"execution_id"`
	UserID         int64                 `json:"user_id"`
	ExecutionType  ExecutionType         `json:"execution_type"`
	WorkflowID     int64                 `json:"workflow_id,omitempty"`
	NodeID         *int64                `json:"node_id,omitempty"`
	WorkflowName   string                `json:"workflow_name,omitempty"`
	WorkflowTitle  string                `json:"workflow_title,omitempty"`
	Credentials    map[string]Credential `json:"credentials"`
	Nodes          []Node                `json:"nodes,omitempty"`
	Node           *Node                 `json:"node,omitempty"`
	Connections    []Connection          `json:"connections,omitempty"`
	Trigger        *Trigger              `json:"trigger,omitempty"`
	RetryCount     int                   `json:"retry_count"`
}

// Record is the durable Execution Record. The engine only ever inserts
// one (from Trigger Intake); transitions after that are owned by the
// orchestrator and reached only through the Callback Reporter.
type Record struct {
	ExecutionID string     `gorm:"column:execution_id;uniqueIndex;size:64" json:"execution_id"`
	UserID      int64      `gorm:"column:user_id" json:"user_id"`
	WorkflowID  int64      `gorm:"column:workflow_id" json:"workflow_id"`
	NodeID      *int64     `gorm:"column:node_id" json:"node_id,omitempty"`
	Status      Status     `gorm:"column:status;size:32" json:"status"`
	Result      string     `gorm:"column:result;type:text" json:"result,omitempty"`
	Error       string     `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Record) TableName() string { return "executions" }

// StatusSnapshot is the advisory payload kept in the status store.
type StatusSnapshot struct {
	ExecutionID string      `json:"execution_id"`
	Status      Status      `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// Webhook is a trigger registration looked up by (path, method).
type Webhook struct {
	ID         int64  `gorm:"column:id;primaryKey" json:"id"`
	Name       string `gorm:"column:name" json:"name"`
	Method     string `gorm:"column:method;size:16" json:"method"`
	Path       string `gorm:"column:path;size:255;index" json:"path"`
	Header     string `gorm:"column:header;size:128" json:"header"`
	Secret     string `gorm:"column:secret;size:255" json:"secret"`
	WorkflowID int64  `gorm:"column:workflow_id" json:"workflow_id"`
}

func (Webhook) TableName() string { return "webhooks" }

// Workflow is the minimal shape Trigger Intake needs to materialize a job.
type Workflow struct {
	ID      int64  `gorm:"column:id;primaryKey" json:"id"`
	Name    string `gorm:"column:name" json:"name"`
	Title   string `gorm:"column:title" json:"title"`
	UserID  int64  `gorm:"column:user_id" json:"user_id"`
	Enabled bool   `gorm:"column:enabled" json:"enabled"`
}

func (Workflow) TableName() string { return "workflows" }

// WorkflowNode is the storage row backing a workflow's nodes.
type WorkflowNode struct {
	ID         int64                  `gorm:"column:id;primaryKey" json:"id"`
	PositionX  float64                `gorm:"column:position_x" json:"positionX"`
	PositionY  float64                `gorm:"column:position_y" json:"positionY"`
	WorkflowID int64                  `gorm:"column:workflow_id;index" json:"workflow_id"`
	Data       map[string]interface{} `gorm:"-" json:"data"`
	DataJSON   string                 `gorm:"column:data;type:text" json:"-"`
}

func (WorkflowNode) TableName() string { return "nodes" }

func (n *WorkflowNode) BeforeSave(tx *gorm.DB) error {
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return err
	}
	n.DataJSON = string(raw)
	return nil
}

func (n *WorkflowNode) AfterFind(tx *gorm.DB) error {
	if n.DataJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(n.DataJSON), &n.Data)
}

// WorkflowConnection is the storage row backing a workflow's edges.
type WorkflowConnection struct {
	ID         int64 `gorm:"column:id;primaryKey" json:"id"`
	FromNodeID int64 `gorm:"column:from_node_id" json:"from_node_id"`
	ToNodeID   int64 `gorm:"column:to_node_id" json:"to_node_id"`
	WorkflowID int64 `gorm:"column:workflow_id;index" json:"workflow_id"`
}

func (WorkflowConnection) TableName() string { return "connections" }

// StoredCredential is the storage row a user's platform credentials live in.
type StoredCredential struct {
	ID       int64                  `gorm:"column:id;primaryKey" json:"id"`
	UserID   int64                  `gorm:"column:user_id;index" json:"user_id"`
	Title    string                 `gorm:"column:title" json:"title"`
	Platform string                 `gorm:"column:platform;size:64" json:"platform"`
	Data     map[string]interface{} `gorm:"-" json:"data"`
	DataJSON string                 `gorm:"column:data;type:text" json:"-"`
}

func (StoredCredential) TableName() string { return "credentials" }

func (c *StoredCredential) BeforeSave(tx *gorm.DB) error {
	raw, err := json.Marshal(c.Data)
	if err != nil {
		return err
	}
	c.DataJSON = string(raw)
	return nil
}

func (c *StoredCredential) AfterFind(tx *gorm.DB) error {
	if c.DataJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(c.DataJSON), &c.Data)
}
