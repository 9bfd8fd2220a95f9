package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wookiee/ai-assistant/pkg/assistant"
	"github.com/wookiee/ai-assistant/pkg/commsutil"
	"github.com/wookiee/ai-assistant/pkg/digest"
)

const logPrefix = "jobs:router"

// DigestRunner runs one batch digest.
type DigestRunner interface {
	Run(ctx context.Context, kind digest.Kind) (*digest.Result, error)
	CountUsers(ctx context.Context) (int, error)
}

// HealthChecker reports service health.
type HealthChecker interface {
	Health(ctx context.Context) *assistant.HealthOutput
}

// Router routes COMMS job requests to the digest runner.
type Router struct {
	runner       DigestRunner
	health       HealthChecker
	batchTimeout time.Duration
}

// NewRouter creates a new Router. Digest batches run without a deadline until
// WithBatchTimeout sets one.
func NewRouter(runner DigestRunner, health HealthChecker) *Router {
	return &Router{runner: runner, health: health}
}

// WithBatchTimeout bounds each digest batch by d instead of the request deadline.
func (r *Router) WithBatchTimeout(d time.Duration) *Router {
	r.batchTimeout = d
	return r
}

// Dispatch routes a request to the matching job and returns a response.
func (r *Router) Dispatch(ctx context.Context, req *JobRequest) *JobResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case MethodMorningDigest:
		return r.handleDigest(ctx, req, digest.KindMorning)
	case MethodEveningDigest:
		return r.handleDigest(ctx, req, digest.KindEvening)
	case MethodHealth:
		return r.handleHealth(ctx, req)
	default:
		return errorResponse(req.ID, "METHOD_NOT_FOUND", fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (r *Router) handleDigest(ctx context.Context, req *JobRequest, kind digest.Kind) *JobResponse {
	var params DigestParams
	if err := commsutil.DecodeParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", fmt.Sprintf("Failed to parse %s params", req.Method), false)
	}
	if r.runner == nil {
		return errorResponse(req.ID, "INTERNAL_ERROR", "digest runner not configured", true)
	}

	if params.DryRun {
		n, err := r.runner.CountUsers(ctx)
		if err != nil {
			return jobErrorToResponse(req.ID, err)
		}
		return &JobResponse{ID: req.ID, Ok: true, Result: &DigestResult{Kind: string(kind), UsersNotified: n, DryRun: true}}
	}

	// the requester may stop waiting; the batch still reaches every user
	batchCtx, cancel := digest.BatchContext(ctx, r.batchTimeout)
	defer cancel()
	res, err := r.runner.Run(batchCtx, kind)
	if err != nil {
		return jobErrorToResponse(req.ID, err)
	}
	return &JobResponse{ID: req.ID, Ok: true, Result: &DigestResult{
		Kind:          string(res.Kind),
		UsersNotified: res.Processed,
		Failed:        res.Failed,
		DurationMs:    res.Duration.Milliseconds(),
	}}
}

func (r *Router) handleHealth(ctx context.Context, req *JobRequest) *JobResponse {
	if r.health == nil {
		return errorResponse(req.ID, "INTERNAL_ERROR", "health check not configured", true)
	}
	return &JobResponse{ID: req.ID, Ok: true, Result: r.health.Health(ctx)}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *JobResponse {
	return &JobResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func jobErrorToResponse(id string, err error) *JobResponse {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorResponse(id, "TIMEOUT", err.Error(), true)
	}
	var aErr *assistant.AssistantError
	if errors.As(err, &aErr) {
		return &JobResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      aErr.Code,
				Message:   aErr.Message,
				Details:   aErr.Details,
				Retryable: aErr.Retryable(),
			},
		}
	}
	return errorResponse(id, "INTERNAL_ERROR", err.Error(), true)
}
