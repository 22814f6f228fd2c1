package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flowengine/engine/internal/engine/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestExecutionRepository_CreateGetUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewExecutionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Record{
		ExecutionID: "exec-1",
		UserID:      7,
		WorkflowID:  3,
		Status:      domain.StatusQueued,
	}))

	got, err := repo.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusQueued, got.Status)
	require.EqualValues(t, 7, got.UserID)

	require.NoError(t, repo.UpdateStatus(ctx, "exec-1", domain.StatusCompleted, `{"ok":true}`, ""))

	got, err = repo.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, got.Status)
	require.Equal(t, `{"ok":true}`, got.Result)
}

func TestExecutionRepository_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewExecutionRepository(db)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestWebhookRepository_FindAndLoadGraph(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Workflow{ID: 1, Name: "wf", Title: "Workflow", UserID: 9, Enabled: true}).Error)
	require.NoError(t, db.Create(&domain.Webhook{ID: 1, Name: "hook", Method: "POST", Path: "/hooks/x", Header: "X-Signature", Secret: "k", WorkflowID: 1}).Error)
	require.NoError(t, db.Create(&domain.WorkflowNode{ID: 1, WorkflowID: 1, Data: map[string]interface{}{"type": "unknown"}}).Error)
	require.NoError(t, db.Create(&domain.WorkflowNode{ID: 2, WorkflowID: 1, Data: map[string]interface{}{"type": "unknown"}}).Error)
	require.NoError(t, db.Create(&domain.WorkflowConnection{ID: 1, WorkflowID: 1, FromNodeID: 1, ToNodeID: 2}).Error)
	require.NoError(t, db.Create(&domain.StoredCredential{ID: 1, UserID: 9, Title: "Email", Platform: "email", Data: map[string]interface{}{"sender_email": "a@b.com"}}).Error)

	wh, err := repo.FindByPathAndMethod(ctx, "/hooks/x", "POST")
	require.NoError(t, err)
	require.Equal(t, int64(1), wh.WorkflowID)
	require.Equal(t, "k", wh.Secret)

	wf, err := repo.GetWorkflow(ctx, wh.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, int64(9), wf.UserID)

	nodes, err := repo.GetNodes(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "unknown", nodes[0].Data["type"])

	conns, err := repo.GetConnections(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	creds, err := repo.GetCredentials(ctx, wf.UserID)
	require.NoError(t, err)
	require.Contains(t, creds, "email")
	require.Equal(t, "a@b.com", creds["email"].Data["sender_email"])
}

func TestWebhookRepository_FindByPathAndMethod_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookRepository(db)

	_, err := repo.FindByPathAndMethod(context.Background(), "/nope", "GET")
	require.Error(t, err)
}
