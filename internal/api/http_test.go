package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelhorn/pgmq-worker/pkg/wakeup"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", func(ctx context.Context) (wakeup.PresenceRecord, error) {
		return wakeup.PresenceRecord{}, nil
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusReturnsPresence(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := NewServer(":0", func(ctx context.Context) (wakeup.PresenceRecord, error) {
		return wakeup.PresenceRecord{
			Worker:      "w-1",
			Queues:      []string{"orders", "emails"},
			Status:      wakeup.StatusBusy,
			CurrentJobs: map[string]time.Time{"orders/42": now},
		}, nil
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got wakeup.PresenceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "w-1", got.Worker)
	assert.Equal(t, wakeup.StatusBusy, got.Status)
	assert.Equal(t, []string{"orders", "emails"}, got.Queues)
	require.Contains(t, got.CurrentJobs, "orders/42")
	assert.True(t, got.CurrentJobs["orders/42"].Equal(now))
}

func TestStatusUnavailable(t *testing.T) {
	srv := NewServer(":0", func(ctx context.Context) (wakeup.PresenceRecord, error) {
		return wakeup.PresenceRecord{}, errors.New("loop stopped")
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	srv := NewServer(":0", func(ctx context.Context) (wakeup.PresenceRecord, error) {
		return wakeup.PresenceRecord{}, nil
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
