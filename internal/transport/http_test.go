package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSubmitPostsToQueueEndpoint(t *testing.T) {
	var gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, 5*time.Second, 100)
	require.NoError(t, err)

	err = tr.Submit(context.Background(), SubmitRequest{
		EnvelopeID: "task_abc",
		TaskName:   "deliver_webhook",
		Args:       []byte(`["https://example.test/hook"]`),
		Queue:      "webhook",
	})
	require.NoError(t, err)

	assert.Equal(t, "/queues/webhook/tasks", gotPath)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &msg))
	assert.Equal(t, "task_abc", msg["envelope_id"])
	assert.Equal(t, "deliver_webhook", msg["task"])
}

func TestHTTPSubmitServerErrorsAreUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		tr, err := NewHTTPTransport(srv.URL, 5*time.Second, 100)
		require.NoError(t, err)

		err = tr.Submit(context.Background(), SubmitRequest{EnvelopeID: "task_x", TaskName: "t", Queue: "sync"})
		assert.ErrorIs(t, err, ErrUnavailable, "status %d", status)
		srv.Close()
	}
}

func TestHTTPSubmitClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`unknown task "t"`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, 5*time.Second, 100)
	require.NoError(t, err)

	err = tr.Submit(context.Background(), SubmitRequest{EnvelopeID: "task_x", TaskName: "t", Queue: "sync"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestHTTPSubmitConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	tr, err := NewHTTPTransport(srv.URL, time.Second, 100)
	require.NoError(t, err)

	err = tr.Submit(context.Background(), SubmitRequest{EnvelopeID: "task_x", TaskName: "t", Queue: "sync"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL, time.Second, 100)
	require.NoError(t, err)
	assert.NoError(t, tr.Ping(context.Background()))
}

func TestNewHTTPTransportRequiresURL(t *testing.T) {
	_, err := NewHTTPTransport("", time.Second, 10)
	assert.Error(t, err)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(429))
	assert.True(t, retryableStatus(500))
	assert.True(t, retryableStatus(503))
	assert.False(t, retryableStatus(404))
	assert.False(t, retryableStatus(422))
	assert.False(t, retryableStatus(200))
}
