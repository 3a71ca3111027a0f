package cli

import (
	"fmt"

	"github.com/petal-labs/toolpack/tool"
)

// Process exit codes.
const (
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitNotFound     = 5
	exitTimeout      = 10
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// toolExitError maps a tool error code onto a process exit code.
func toolExitError(action string, err error) *ExitError {
	code := exitRuntime
	switch tool.ErrorCode(err) {
	case tool.ToolErrorCodeToolNotFound:
		code = exitNotFound
	case tool.ToolErrorCodeInvalidRequest, tool.ToolErrorCodeUnresolvedPlaceholder:
		code = exitInputParse
	case tool.ToolErrorCodeInputMissing:
		code = exitFileNotFound
	case tool.ToolErrorCodeTimeout:
		code = exitTimeout
	}
	return exitError(code, "%s: %v", action, err)
}
