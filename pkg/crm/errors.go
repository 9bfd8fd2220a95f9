package crm

import (
	"errors"
	"fmt"
	"net/url"
)

// RemoteAPIError is a well-formed response carrying an explicit error code.
type RemoteAPIError struct {
	Method      string `json:"method"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *RemoteAPIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("bitrix24 %s: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("bitrix24 %s: %s: %s", e.Method, e.Code, e.Description)
}

// TransportError is a connectivity, timeout or malformed-body failure.
// The original error stays reachable through errors.As / errors.Is.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

// Error omits the request URL: the webhook path is a credential.
func (e *TransportError) Error() string {
	cause := e.Err
	var urlErr *url.Error
	if errors.As(e.Err, &urlErr) {
		cause = urlErr.Err
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("bitrix24 %s: HTTP %d: %v", e.Method, e.StatusCode, cause)
	}
	return fmt.Sprintf("bitrix24 %s: %v", e.Method, cause)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a transport timeout.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// IsRemoteError reports whether err carries a Bitrix24 error code.
func IsRemoteError(err error, code string) bool {
	var apiErr *RemoteAPIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return code == "" || apiErr.Code == code
}
