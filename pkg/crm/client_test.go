package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookPath = "/rest/1/s3cr3t"

// sleepRecorder replaces real backoff waits with a log of requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestClient(t *testing.T, timeout time.Duration, handler http.HandlerFunc) (*Client, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		WebhookURL:    srv.URL + webhookPath + "/",
		Timeout:       timeout,
		MaxRetries:    3,
		BackoffFactor: 1.5,
	})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

var defaultSchedule = []time.Duration{
	1500 * time.Millisecond,
	2250 * time.Millisecond,
	3375 * time.Millisecond,
}

func TestNewClient_RequiresWebhook(t *testing.T) {
	_, err := NewClient(Config{WebhookURL: "  "})
	require.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://example.bitrix24.ru/rest/1/x", MaxRetries: -1})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, c.MaxRetries())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, DefaultBackoffFactor, c.backoffFactor)
}

func TestBackoff_IsFactorPowAttempt(t *testing.T) {
	c, err := NewClient(DefaultConfig("https://example.bitrix24.ru/rest/1/x"))
	require.NoError(t, err)
	for n := 1; n <= c.MaxRetries(); n++ {
		assert.Equal(t, defaultSchedule[n-1], c.Backoff(n), "attempt %d", n)
	}
}

func TestCall_SuccessOnFirstAttempt(t *testing.T) {
	var requests int32
	c, rec := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webhookPath+"/profile", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "value", params["key"])
		writeJSON(w, http.StatusOK, `{"result":{"ID":"1"},"time":{}}`)
	})

	result, err := c.Call(context.Background(), "profile", map[string]any{"key": "value"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ID":"1"}`, string(result))
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
	assert.Empty(t, rec.recorded())
}

func TestCall_NilParamsSendsEmptyObject(t *testing.T) {
	c, _ := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.NotNil(t, params)
		writeJSON(w, http.StatusOK, `{"result":true}`)
	})
	_, err := c.Call(context.Background(), "app.info", nil)
	require.NoError(t, err)
}

func TestCall_TimeoutsExhaustRetries(t *testing.T) {
	var requests int32
	c, rec := newTestClient(t, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := c.Call(context.Background(), MethodUserGet, nil)
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "want *TransportError, got %T", err)
	assert.True(t, transportErr.Timeout())
	assert.EqualValues(t, 4, atomic.LoadInt32(&requests))
	assert.Equal(t, defaultSchedule, rec.recorded())
}

func TestCall_RemoteErrorRetriedAndPreserved(t *testing.T) {
	var requests int32
	c, rec := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, http.StatusUnauthorized, `{"error": "NO_AUTH_FOUND", "error_description": "bad webhook"}`)
	})

	_, err := c.Call(context.Background(), MethodUserGet, nil)
	require.Error(t, err)

	var apiErr *RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NO_AUTH_FOUND", apiErr.Code)
	assert.Equal(t, "bad webhook", apiErr.Description)
	assert.Equal(t, MethodUserGet, apiErr.Method)
	assert.True(t, IsRemoteError(err, "NO_AUTH_FOUND"))
	assert.EqualValues(t, 4, atomic.LoadInt32(&requests))
	assert.Equal(t, defaultSchedule, rec.recorded())
}

func TestCall_LastRemoteErrorWins(t *testing.T) {
	var requests int32
	c, _ := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n < 4 {
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"QUERY_LIMIT_EXCEEDED","error_description":"Too many requests"}`)
			return
		}
		writeJSON(w, http.StatusForbidden, `{"error":"insufficient_scope","error_description":"im"}`)
	})

	_, err := c.Call(context.Background(), MethodIMNotify, nil)
	var apiErr *RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "insufficient_scope", apiErr.Code)
}

func TestCall_RecoversAfterTransientFailures(t *testing.T) {
	var requests int32
	c, rec := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "<html>bad gateway</html>")
		case 2:
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"QUERY_LIMIT_EXCEEDED"}`)
		default:
			writeJSON(w, http.StatusOK, `{"result":[1,2,3]}`)
		}
	})

	result, err := c.Call(context.Background(), "batch", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(result))
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
	assert.Equal(t, defaultSchedule[:2], rec.recorded())
}

func TestCall_MalformedBodyIsTransportFailure(t *testing.T) {
	c, _ := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "not json")
	})

	_, err := c.Call(context.Background(), MethodUserGet, nil)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusOK, transportErr.StatusCode)
	assert.False(t, transportErr.Timeout())
}

func TestCall_EmptyEnvelopeIsRetriedTransportFailure(t *testing.T) {
	for name, body := range map[string]string{
		"null body":       `null`,
		"empty object":    `{}`,
		"only pagination": `{"total":0}`,
	} {
		t.Run(name, func(t *testing.T) {
			var requests int32
			c, rec := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&requests, 1)
				writeJSON(w, http.StatusOK, body)
			})

			_, err := c.Call(context.Background(), MethodUserGet, nil)
			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr), "want *TransportError, got %T", err)
			assert.ErrorIs(t, err, errEmptyEnvelope)
			assert.EqualValues(t, c.MaxRetries()+1, atomic.LoadInt32(&requests))
			assert.Equal(t, defaultSchedule, rec.recorded())
		})
	}
}

func TestCall_NullResultIsAccepted(t *testing.T) {
	c, _ := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"result":null}`)
	})

	res, err := c.Call(context.Background(), MethodUserGet, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(res))
}

func TestCall_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, http.StatusOK, `{"error":"ACCESS_DENIED"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{WebhookURL: srv.URL, MaxRetries: 0})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep

	_, err = c.Call(context.Background(), MethodUserGet, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
	assert.Empty(t, rec.recorded())
}

func TestCall_CancelledContextIsNotRetried(t *testing.T) {
	var requests int32
	c, rec := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, http.StatusOK, `{"result":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, MethodUserGet, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 0, atomic.LoadInt32(&requests))
	assert.Empty(t, rec.recorded())
}

func TestCall_CancelDuringBackoffStopsRetrying(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, http.StatusOK, `{"error":"INTERNAL_SERVER_ERROR"}`)
	}))
	defer srv.Close()

	c, err := NewClient(DefaultConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err = c.Call(ctx, MethodUserGet, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestTransportError_DoesNotLeakWebhook(t *testing.T) {
	c, _ := newTestClient(t, 20*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c.maxRetries = 0

	_, err := c.Call(context.Background(), MethodUserGet, nil)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "s3cr3t"), "error text leaks webhook path: %s", err)
	assert.Contains(t, err.Error(), MethodUserGet)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
