package trigger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/internal/engine/queue"
	"github.com/flowengine/engine/internal/engine/repository"
	"github.com/flowengine/engine/pkg/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(rdb, logger.NewNop())

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	require.NoError(t, db.Create(&domain.Workflow{ID: 1, Name: "wf", Title: "Workflow", UserID: 9, Enabled: true}).Error)
	require.NoError(t, db.Create(&domain.Webhook{ID: 1, Name: "hook", Method: "POST", Path: "/hooks/x", Header: "X-Signature", Secret: "k", WorkflowID: 1}).Error)
	require.NoError(t, db.Create(&domain.Webhook{ID: 2, Name: "open", Method: "GET", Path: "/hooks/open", Header: "", WorkflowID: 1}).Error)
	require.NoError(t, db.Create(&domain.WorkflowNode{ID: 1, WorkflowID: 1, Data: map[string]interface{}{"type": "unknown"}}).Error)

	handler := NewHandler(repository.NewWebhookRepository(db), q, repository.NewExecutionRepository(db), logger.NewNop())
	router := gin.New()
	handler.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, q
}

func sign(secret, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + "\n" + path + "\n" + timestamp + "\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// S5 — matching signature yields 200 and a queued execution.
func TestHandle_ValidSignature_Queues(t *testing.T) {
	srv, q := newTestServer(t)

	body := []byte(`{"a":1}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("k", "POST", "/hooks/x", ts, body)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/webhook/hooks/x", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", ts)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Equal(t, "queued", decoded["status"])
	require.NotEmpty(t, decoded["execution_id"])

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, int64(1), job.WorkflowID)
}

// S5 — altering a single byte of the body invalidates the signature.
func TestHandle_TamperedBody_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign("k", "POST", "/hooks/x", ts, []byte(`{"a":1}`))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/webhook/hooks/x", bytes.NewReader([]byte(`{"a":2}`)))
	require.NoError(t, err)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", ts)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Property 7 — a stale timestamp is rejected regardless of signature validity.
func TestHandle_StaleTimestamp_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"a":1}`)
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	sig := sign("k", "POST", "/hooks/x", ts, body)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/webhook/hooks/x", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", ts)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandle_MissingSignatureHeaders_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/webhook/hooks/x", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandle_UnknownPath_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/webhook/does/not/exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// An unsigned webhook (empty header field) requires no signature at all.
func TestHandle_UnsignedWebhook_Queues(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/webhook/hooks/open")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
