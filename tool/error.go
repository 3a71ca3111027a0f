package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ToolErrorCodeToolNotFound is returned when a tool name is missing or unknown.
	ToolErrorCodeToolNotFound = "TOOL_NOT_FOUND"
	// ToolErrorCodeInvalidRequest is returned when a request or template is malformed.
	ToolErrorCodeInvalidRequest = "INVALID_REQUEST"
	// ToolErrorCodeUnresolvedPlaceholder is returned when a [[...]] reference has no value.
	ToolErrorCodeUnresolvedPlaceholder = "UNRESOLVED_PLACEHOLDER"
	// ToolErrorCodeInputMissing is returned when an input file does not exist.
	ToolErrorCodeInputMissing = "INPUT_MISSING"
	// ToolErrorCodeTransportFailure is returned when process or network I/O fails.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeTimeout is returned when invocation times out.
	ToolErrorCodeTimeout = "TIMEOUT"
	// ToolErrorCodeUpstreamFailure is returned when the tool exits non-zero.
	ToolErrorCodeUpstreamFailure = "UPSTREAM_FAILURE"
	// ToolErrorCodeDownloadFailed is returned when an install download fails.
	ToolErrorCodeDownloadFailed = "DOWNLOAD_FAILED"
	// ToolErrorCodeChecksumMismatch is returned when a download does not match its digest.
	ToolErrorCodeChecksumMismatch = "CHECKSUM_MISMATCH"
	// ToolErrorCodeInvocationFailed is a generic fallback for tool invocation failures.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

// ErrToolNotFound is wrapped by errors for unknown tool names.
var ErrToolNotFound = errors.New("tool: not found")

// ToolError is a structured error that carries a machine-readable code and
// retryability through the runner, the CLI and observability hooks.
type ToolError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, retryable bool, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:      cleanCode,
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// AsToolError returns the first *ToolError in err's chain.
func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ErrorCode returns the code of the first *ToolError in err's chain, or "".
func ErrorCode(err error) string {
	if toolErr, ok := AsToolError(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

func toolErrorCodeOrDefault(err error, fallback string) string {
	if code := ErrorCode(err); strings.TrimSpace(code) != "" {
		return code
	}
	if strings.TrimSpace(fallback) == "" {
		return ToolErrorCodeInvocationFailed
	}
	return fallback
}

func isRetryableError(err error) bool {
	if toolErr, ok := AsToolError(err); ok {
		return toolErr.Retryable
	}
	return false
}
