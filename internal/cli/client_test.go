package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/poller/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"running":            true,
			"paused":             false,
			"state":              "idle",
			"messages_processed": 99,
		})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).PollerStatus()
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, int64(99), status.MessagesProcessed)
}

func TestPollerPause_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "poller not running"})
	}))
	defer srv.Close()

	err := NewClient(srv.URL).PollerPause()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poller not running")
}

func TestPollerForceCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status": "completed_with_errors",
			"error":  "queue receive failed",
		})
	}))
	defer srv.Close()

	status, cycleErr, err := NewClient(srv.URL).PollerForceCycle()
	require.NoError(t, err)
	assert.Equal(t, "completed_with_errors", status)
	assert.Equal(t, "queue receive failed", cycleErr)
}

func TestDLQDrain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/dlq/drain", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(5), req["batch_size"])
		assert.Equal(t, true, req["delete_after"])

		json.NewEncoder(w).Encode(map[string]int{
			"total_processed": 12,
			"successful":      10,
			"errors":          2,
			"deleted":         10,
		})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).DLQDrain(5, true, 3)
	require.NoError(t, err)
	assert.Equal(t, 12, result.TotalProcessed)
	assert.Equal(t, 10, result.Deleted)
}

func TestDLQDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReceiptHandles []string `json:"receipt_handles"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]int{"deleted": len(req.ReceiptHandles)})
	}))
	defer srv.Close()

	deleted, err := NewClient(srv.URL).DLQDelete([]string{"rh-1", "rh-2", "rh-3"})
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
}
