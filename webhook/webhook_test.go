package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSignsPayload(t *testing.T) {
	t.Parallel()

	const secret = "batch-secret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL, Secret: secret}
	event := &Event{Type: EventBatchCompleted, SessionID: "abc", Timestamp: 1234}
	require.NoError(t, c.Send(context.Background(), event))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventBatchCompleted, decoded.Type)
	assert.Equal(t, "abc", decoded.SessionID)
}

func TestSendNoSecretSkipsSignature(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL}
	require.NoError(t, c.Send(context.Background(), &Event{Type: EventBatchCompleted}))
}

func TestSendEndpointError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL}
	err := c.Send(context.Background(), &Event{Type: EventBatchCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendWithRetryRecovers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{
		URL:     srv.URL,
		Backoff: []time.Duration{time.Millisecond, time.Millisecond},
	}
	err := c.sendWithRetry(context.Background(), &Event{Type: EventBatchCompleted})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetryGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Client{
		URL:     srv.URL,
		Backoff: []time.Duration{time.Millisecond},
	}
	err := c.sendWithRetry(context.Background(), &Event{Type: EventBatchCompleted})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendWithRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Client{
		URL:     srv.URL,
		Backoff: []time.Duration{time.Minute},
	}
	err := c.sendWithRetry(ctx, &Event{Type: EventBatchCompleted})
	require.ErrorIs(t, err, context.Canceled)
}
