// Package repository provides gorm-backed durable storage for the one
// write path the engine itself owns (the Execution Record insert made
// by Trigger Intake) plus the read paths Trigger Intake needs to
// materialize a job: webhook lookup, workflow/nodes/connections, and a
// user's credentials.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flowengine/engine/internal/engine/domain"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, rec domain.Record) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("repository: create execution record: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) Get(ctx context.Context, executionID string) (domain.Record, error) {
	var rec domain.Record
	err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).First(&rec).Error
	if err != nil {
		return domain.Record{}, fmt.Errorf("repository: get execution record: %w", err)
	}
	return rec, nil
}

// UpdateStatus mirrors the orchestrator's own write path. The worker
// never calls this directly — it only ever reaches the orchestrator
// through the callback reporter — but it is exercised by tests and
// exists so the repository's contract matches the durable record's
// full lifecycle, not just its creation.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, executionID string, status domain.Status, result, errMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"result":     result,
		"error":      errMsg,
		"updated_at": time.Now(),
	}
	err := r.db.WithContext(ctx).Model(&domain.Record{}).Where("execution_id = ?", executionID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("repository: update execution status: %w", err)
	}
	return nil
}

// WebhookRepository looks up trigger registrations by (path, method) and
// loads the workflow graph and user credentials a matched webhook needs.
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) FindByPathAndMethod(ctx context.Context, path, method string) (domain.Webhook, error) {
	var wh domain.Webhook
	err := r.db.WithContext(ctx).Where("path = ? AND method = ?", path, method).First(&wh).Error
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("repository: find webhook: %w", err)
	}
	return wh, nil
}

func (r *WebhookRepository) GetWorkflow(ctx context.Context, workflowID int64) (domain.Workflow, error) {
	var wf domain.Workflow
	err := r.db.WithContext(ctx).Where("id = ?", workflowID).First(&wf).Error
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("repository: get workflow: %w", err)
	}
	return wf, nil
}

func (r *WebhookRepository) GetNodes(ctx context.Context, workflowID int64) ([]domain.WorkflowNode, error) {
	var nodes []domain.WorkflowNode
	err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Find(&nodes).Error
	if err != nil {
		return nil, fmt.Errorf("repository: get nodes: %w", err)
	}
	return nodes, nil
}

func (r *WebhookRepository) GetConnections(ctx context.Context, workflowID int64) ([]domain.WorkflowConnection, error) {
	var conns []domain.WorkflowConnection
	err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Find(&conns).Error
	if err != nil {
		return nil, fmt.Errorf("repository: get connections: %w", err)
	}
	return conns, nil
}

func (r *WebhookRepository) GetCredentials(ctx context.Context, userID int64) (map[string]domain.Credential, error) {
	var stored []domain.StoredCredential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("repository: get credentials: %w", err)
	}
	out := make(map[string]domain.Credential, len(stored))
	for _, c := range stored {
		out[c.Platform] = domain.Credential{ID: c.ID, Title: c.Title, Platform: c.Platform, Data: c.Data}
	}
	return out, nil
}

// Migrate creates/updates the tables this package and the Execution
// Repository own. engine-ingest calls it at startup with whichever
// driver is configured, and the sqlite test harness calls it per test.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Record{},
		&domain.Webhook{},
		&domain.Workflow{},
		&domain.WorkflowNode{},
		&domain.WorkflowConnection{},
		&domain.StoredCredential{},
	)
}
