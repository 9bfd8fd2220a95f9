// Package jobs serves scheduled batch jobs over COMMS request/reply.
package jobs

import "encoding/json"

// Method names accepted on the jobs subject.
const (
	MethodMorningDigest = "morningDigest"
	MethodEveningDigest = "eveningDigest"
	MethodHealth        = "health"
)

// JobRequest is the JSON envelope for incoming COMMS job requests.
type JobRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// JobResponse is the JSON envelope for COMMS job responses.
type JobResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// DigestParams are the optional params of the digest methods.
type DigestParams struct {
	// DryRun counts linked users without composing or sending anything.
	DryRun bool `json:"dryRun,omitempty"`
}

// DigestResult is the result of a digest method.
type DigestResult struct {
	Kind          string `json:"kind"`
	UsersNotified int    `json:"usersNotified"`
	Failed        int    `json:"failed"`
	DurationMs    int64  `json:"durationMs"`
	DryRun        bool   `json:"dryRun,omitempty"`
}
