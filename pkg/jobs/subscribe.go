package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/wookiee/ai-assistant/pkg/commsutil"
)

const subscribeLogPrefix = "jobs:subscribe"

// Subscribe serves r on subject until the subscription is drained. Each request
// runs in its own goroutine under ctx with requestTimeout, shortened by the
// caller's ctx.timeoutMs, so a long digest batch does not hold up health checks.
func Subscribe(ctx context.Context, nc *comms.Conn, subject string, r *Router, requestTimeout time.Duration) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectJobs
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		go serve(ctx, msg, r, requestTimeout)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", subscribeLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", subscribeLogPrefix, subject))
	return sub, nil
}

func serve(ctx context.Context, msg *comms.Msg, r *Router, requestTimeout time.Duration) {
	var req JobRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", subscribeLogPrefix, err))
		respond(msg, errorResponse("", "INVALID_REQUEST", "Failed to decode request", false))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < requestTimeout {
			cancel()
			reqCtx, cancel = context.WithTimeout(ctx, d)
		}
	}
	defer cancel()

	respond(msg, r.Dispatch(reqCtx, &req))
}

func respond(msg *comms.Msg, resp *JobResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", subscribeLogPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond: %v", subscribeLogPrefix, err))
	}
}

// Request sends one job request and waits for its response.
func Request(ctx context.Context, nc *comms.Conn, subject, method string, params any) (*JobResponse, error) {
	if subject == "" {
		subject = commsutil.SubjectJobs
	}
	req := JobRequest{ID: uuid.NewString(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode params: %w", subscribeLogPrefix, err)
		}
		req.Params = raw
	}
	if dl, ok := ctx.Deadline(); ok {
		req.Ctx = &InvocationContext{RequestID: req.ID, TimeoutMs: int(time.Until(dl).Milliseconds())}
	}
	data, err := commsutil.EncodePayload(req)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode request: %w", subscribeLogPrefix, err)
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("%s - %s request failed: %w", subscribeLogPrefix, method, err)
	}
	var resp JobResponse
	if err := commsutil.DecodePayload(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("%s - failed to decode response: %w", subscribeLogPrefix, err)
	}
	return &resp, nil
}
