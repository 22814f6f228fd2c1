// Package trigger implements Trigger Intake: the webhook endpoint that
// validates an optional HMAC signature, materializes an Execution Job,
// enqueues it, and durably records it as queued.
package trigger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/internal/engine/queue"
	"github.com/flowengine/engine/internal/engine/repository"
	"github.com/flowengine/engine/pkg/logger"
)

const maxClockSkew = 300 * time.Second

var (
	errMissingSigningHeaders = errors.New("missing signature or timestamp")
	errInvalidTimestamp      = errors.New("invalid timestamp")
	errStaleTimestamp        = errors.New("stale timestamp")
	errInvalidSignature      = errors.New("invalid signature")
)

type Handler struct {
	webhooks *repository.WebhookRepository
	queue    *queue.Client
	executor *repository.ExecutionRepository
	log      logger.Logger
}

func NewHandler(webhooks *repository.WebhookRepository, q *queue.Client, executor *repository.ExecutionRepository, log logger.Logger) *Handler {
	return &Handler{webhooks: webhooks, queue: q, executor: executor, log: log}
}

// Register mounts the webhook intake route on the given router group for
// every HTTP method the spec allows.
func (h *Handler) Register(router gin.IRouter) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		router.Handle(method, "/api/v1/webhook/*path", h.Handle)
	}
}

func (h *Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	method := strings.ToUpper(c.Request.Method)
	path := normalizePath(c.Param("path"))

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	wh, err := h.webhooks.FindByPathAndMethod(ctx, path, method)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
		return
	}

	if wh.Header != "" {
		if err := verifySignature(c.Request.Header, wh, method, path, rawBody); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	workflow, err := h.webhooks.GetWorkflow(ctx, wh.WorkflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}

	storedNodes, err := h.webhooks.GetNodes(ctx, workflow.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load nodes"})
		return
	}
	storedConns, err := h.webhooks.GetConnections(ctx, workflow.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load connections"})
		return
	}
	credentials, err := h.webhooks.GetCredentials(ctx, workflow.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load credentials"})
		return
	}

	var body interface{}
	_ = json.Unmarshal(rawBody, &body) // malformed body is tolerated: body stays nil

	job := domain.Job{
		UserID:        workflow.UserID,
		ExecutionType: domain.ExecutionTypeWorkflow,
		WorkflowID:    workflow.ID,
		WorkflowName:  workflow.Name,
		WorkflowTitle: workflow.Title,
		Credentials:   credentials,
		Nodes:         toDomainNodes(storedNodes),
		Connections:   toDomainConnections(storedConns),
		Trigger: &domain.Trigger{
			Headers: flattenHeaders(c.Request.Header),
			Query:   flattenQuery(c.Request.URL.Query()),
			Body:    body,
			Method:  method,
			Path:    path,
		},
	}

	executionID, err := h.queue.Enqueue(ctx, job)
	if err != nil {
		h.log.Error("trigger: enqueue failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue execution"})
		return
	}

	if err := h.executor.Create(ctx, domain.Record{
		ExecutionID: executionID,
		UserID:      workflow.UserID,
		WorkflowID:  workflow.ID,
		Status:      domain.StatusQueued,
	}); err != nil {
		h.log.Error("trigger: failed to persist execution record", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"execution_id": executionID, "status": "queued"})
}

// verifySignature reproduces HMAC-SHA256(secret, METHOD\nPATH\nTS\n+body)
// hex-encoded, compared in constant time.
func verifySignature(headers http.Header, wh domain.Webhook, method, path string, rawBody []byte) error {
	signature := headers.Get(wh.Header)
	timestamp := headers.Get("X-Timestamp")
	if signature == "" || timestamp == "" {
		return errMissingSigningHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errInvalidTimestamp
	}
	if abs(time.Now().Unix()-ts) > int64(maxClockSkew.Seconds()) {
		return errStaleTimestamp
	}

	message := fmt.Sprintf("%s\n%s\n%s\n", method, path, timestamp)
	mac := hmac.New(sha256.New, []byte(wh.Secret))
	mac.Write([]byte(message))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return errInvalidSignature
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func flattenQuery(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func toDomainNodes(stored []domain.WorkflowNode) []domain.Node {
	out := make([]domain.Node, len(stored))
	for i, n := range stored {
		out[i] = domain.Node{ID: n.ID, PositionX: n.PositionX, PositionY: n.PositionY, Data: n.Data}
	}
	return out
}

func toDomainConnections(stored []domain.WorkflowConnection) []domain.Connection {
	out := make([]domain.Connection, len(stored))
	for i, c := range stored {
		out[i] = domain.Connection{From: c.FromNodeID, To: c.ToNodeID}
	}
	return out
}
