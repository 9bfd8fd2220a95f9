// Package crm provides the Bitrix24 inbound-webhook client used by the assistant.
//
// Every remote operation is a JSON POST to <webhook>/<method>. A call is retried
// with exponential backoff when the transport fails, when the body is not JSON, or
// when the body carries an "error" code. Retry state lives only for one call.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

const logPrefix = "crm:client"

const (
	DefaultTimeout       = 10 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 1.5

	maxResponseBytes = 16 << 20
)

// Config holds client configuration.
type Config struct {
	// WebhookURL is the pre-authorized base path, e.g. https://corp.bitrix24.ru/rest/1/abc123.
	WebhookURL string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Negative means default.
	MaxRetries int
	// BackoffFactor is the base of the exponential delay: factor^attempt seconds.
	BackoffFactor float64
}

// DefaultConfig returns the default client configuration for the given webhook.
func DefaultConfig(webhookURL string) Config {
	return Config{
		WebhookURL:    webhookURL,
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// Client issues retried calls against the Bitrix24 REST webhook.
// It is safe for concurrent use; no state is shared between calls.
type Client struct {
	webhookURL    string
	httpClient    *http.Client
	maxRetries    int
	backoffFactor float64
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Client. Zero or negative Timeout and BackoffFactor fall back
// to defaults, as does a negative MaxRetries; zero MaxRetries means a single attempt.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.WebhookURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s - webhook URL is required", logPrefix)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	return &Client{
		webhookURL:    base,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    maxRetries,
		backoffFactor: factor,
		sleep:         sleepContext,
	}, nil
}

// MaxRetries returns the configured retry ceiling.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// Backoff returns the delay inserted before retry number attempt (1-based).
func (c *Client) Backoff(attempt int) time.Duration {
	seconds := math.Pow(c.backoffFactor, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

var errEmptyEnvelope = errors.New("response has neither result nor error")

// envelope is the top-level shape of every Bitrix24 REST response.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Next             *int            `json:"next"`
	Total            *int            `json:"total"`
}

// errorCode reports the remote error code when the body carries one.
func (e *envelope) errorCode() (string, bool) {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var code string
	if err := json.Unmarshal(raw, &code); err == nil {
		return code, true
	}
	return string(raw), true
}

// Call invokes a remote method and returns the "result" member of the response.
// Exhausted retries return either a *RemoteAPIError (last remote error seen)
// or a *TransportError wrapping the last transport failure.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	env, err := c.post(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

func (c *Client) post(ctx context.Context, method string, params map[string]any) (*envelope, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %s params: %w", logPrefix, method, err)
	}
	endpoint := c.webhookURL + "/" + method

	attempt := 0
	for {
		env, err := c.do(ctx, method, endpoint, body)
		if err == nil {
			return env, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		attempt++
		if attempt > c.maxRetries {
			slog.Error(fmt.Sprintf("%s - %s failed permanently after %d attempts: %v", logPrefix, method, attempt, err))
			return nil, err
		}
		delay := c.Backoff(attempt)
		slog.Warn(fmt.Sprintf("%s - %s failed (attempt %d), retry in %.2fs: %v", logPrefix, method, attempt, delay.Seconds(), err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s - %s retry wait aborted: %w", logPrefix, method, err)
		}
	}
}

// do performs exactly one physical attempt.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}

	// Bitrix24 reports semantic errors with 4xx/5xx statuses and a JSON body, so the
	// status code alone decides nothing.
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &TransportError{Method: method, StatusCode: resp.StatusCode, Err: err}
	}
	if code, ok := env.errorCode(); ok {
		return nil, &RemoteAPIError{Method: method, Code: code, Description: env.ErrorDescription}
	}
	// a literal null body decodes into an empty envelope
	if len(env.Result) == 0 {
		return nil, &TransportError{Method: method, StatusCode: resp.StatusCode, Err: errEmptyEnvelope}
	}
	return &env, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
