package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newTestClient(opts ...Option) *Client {
	return New(append([]Option{WithBaseDelay(5 * time.Millisecond)}, opts...)...)
}

func TestGetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "package-health/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"name": "react"}`)
	}))
	defer server.Close()

	var p payload
	err := newTestClient().GetJSON(context.Background(), server.URL+"/react", &p)

	require.NoError(t, err)
	assert.Equal(t, "react", p.Name)
}

func TestGetJSON_NotFoundIsNotRetried(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var p payload
	err := newTestClient().GetJSON(context.Background(), server.URL+"/missing", &p)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGetJSON_RetriesRateLimitAndServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&requests, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"name": "ok"}`)
		}
	}))
	defer server.Close()

	var p payload
	err := newTestClient().GetJSON(context.Background(), server.URL, &p)

	require.NoError(t, err)
	assert.Equal(t, "ok", p.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestGetJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var p payload
	err := newTestClient(WithMaxRetries(2)).GetJSON(context.Background(), server.URL, &p)

	assert.ErrorIs(t, err, ErrUpstreamDown)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "one attempt plus two retries")
}

func TestGetJSON_ClientErrorIsPermanent(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad query")
	}))
	defer server.Close()

	var p payload
	err := newTestClient().GetJSON(context.Background(), server.URL, &p)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "bad query", httpErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGetJSON_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(WithMaxRetries(0), WithTripThreshold(2))
	var p payload
	for i := 0; i < 2; i++ {
		_ = c.GetJSON(context.Background(), server.URL, &p)
	}

	err := c.GetJSON(context.Background(), server.URL, &p)
	assert.ErrorIs(t, err, ErrUpstreamDown)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "open circuit must not reach the server")
	assert.Contains(t, c.BreakerStates(), hostOf(server.URL))
	assert.Equal(t, "open", c.BreakerStates()[hostOf(server.URL)])
}

func TestGetJSON_NotFoundDoesNotTripCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(WithTripThreshold(1))
	var p payload
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.GetJSON(context.Background(), server.URL, &p), ErrNotFound)
	}
	assert.Equal(t, "closed", c.BreakerStates()[hostOf(server.URL)])
}

func TestGetJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var p payload
	err := New(WithBaseDelay(time.Second), WithMaxRetries(10)).GetJSON(ctx, server.URL, &p)
	assert.Error(t, err)
}

func TestClose_StopsDNSRefresh(t *testing.T) {
	c := New()

	c.Close()

	select {
	case <-c.refreshDone:
	default:
		t.Fatal("DNS refresh still running after Close")
	}
	assert.NotPanics(t, c.Close, "Close is idempotent")
}
