// Package callback posts authoritative status transitions back to the
// orchestrator over an authenticated HTTP callback.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/internal/engine/metrics"
	"github.com/flowengine/engine/pkg/logger"
	"github.com/flowengine/engine/pkg/resilience"
)

const callbackTimeout = 10 * time.Second

// postRetryConfig allows a single Report two attempts (one quick retry)
// before letting the circuit breaker and the caller's own
// swallow-and-log policy take over. This is distinct from the job-level
// retry in the Worker Loop: it only smooths over a blip within one
// status transition, never spans job attempts.
func postRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.ShouldRetry = func(err error) bool {
		var se *statusError
		if errors.As(err, &se) {
			return resilience.IsRetryableHTTPStatus(se.code)
		}
		return err != nil
	}
	return cfg
}

type statusUpdate struct {
	ExecutionID string      `json:"execution_id"`
	Status      domain.Status `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       interface{} `json:"error,omitempty"`
}

type Reporter struct {
	baseURL string
	secret  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	log     logger.Logger
}

func New(baseURL, secret string, log logger.Logger) *Reporter {
	return &Reporter{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: callbackTimeout},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("callback-reporter")),
		log:     log,
	}
}

// Report posts the transition and swallows any failure: the status
// store is the secondary signal, and the next transition re-establishes
// state, so a broken callback must never fail the worker loop.
func (r *Reporter) Report(ctx context.Context, executionID string, status domain.Status, result, errPayload interface{}) {
	update := statusUpdate{ExecutionID: executionID, Status: status, Result: result, Error: errPayload}
	body, err := json.Marshal(update)
	if err != nil {
		r.log.Error("callback: marshal failed", "execution_id", executionID, "error", err)
		return
	}

	start := time.Now()
	_, err = r.breaker.ExecuteWithContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, resilience.Retry(ctx, postRetryConfig(), func() error {
			return r.post(ctx, body)
		})
	})
	metrics.CallbackLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		r.log.Warn("callback: post failed, continuing", "execution_id", executionID, "status", status, "error", err)
	}
}

// statusError carries the HTTP status code so ShouldRetry can tell a
// transient 5xx/429 apart from a permanent 4xx like an invalid secret.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("callback: unexpected status %d", e.code) }

func (r *Reporter) post(ctx context.Context, body []byte) error {
	url := r.baseURL + "/api/v1/execution/status/update"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("callback: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.secret != "" {
		req.Header.Set("X-Engine-Secret", r.secret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}
