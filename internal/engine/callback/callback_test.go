package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/pkg/logger"
)

func TestReport_Success(t *testing.T) {
	var gotBody statusUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s", r.Header.Get("X-Engine-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(srv.URL, "s", logger.NewNop())
	r.Report(context.Background(), "exec-1", domain.StatusCompleted, map[string]interface{}{"ok": true}, nil)

	assert.Equal(t, "exec-1", gotBody.ExecutionID)
	assert.Equal(t, domain.StatusCompleted, gotBody.Status)
}

// A 5xx response is retried within the same Report call before being
// swallowed; Report never panics or blocks the caller on failure.
func TestReport_RetriesTransientFailureThenSwallows(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(srv.URL, "s", logger.NewNop())
	require.NotPanics(t, func() {
		r.Report(context.Background(), "exec-2", domain.StatusFailed, nil, map[string]interface{}{"error": "boom"})
	})

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// A permanent 4xx (e.g. bad secret) is not retried.
func TestReport_PermanentFailureNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := New(srv.URL, "wrong-secret", logger.NewNop())
	r.Report(context.Background(), "exec-3", domain.StatusFailed, nil, nil)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReport_UnreachableServer_Swallowed(t *testing.T) {
	r := New("http://127.0.0.1:1", "s", logger.NewNop())
	require.NotPanics(t, func() {
		r.Report(context.Background(), "exec-4", domain.StatusProcessing, nil, nil)
	})
}
