package tool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// ExecResult is the captured outcome of one process run.
type ExecResult struct {
	Stdout     []byte
	Stderr     []byte
	ExitCode   int
	DurationMS int64
}

// ExecAdapter runs assembled command lines as subprocesses.
type ExecAdapter struct {
	// Timeout bounds each run when the context has no deadline.
	Timeout time.Duration
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is added to the inherited environment.
	Env map[string]string
}

// Run executes argv and captures stdout and stderr.
func (a *ExecAdapter) Run(ctx context.Context, argv []string) (ExecResult, error) {
	if a == nil {
		return ExecResult{}, newToolError(ToolErrorCodeInvalidRequest, "tool: exec adapter is nil", false, nil)
	}
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return ExecResult{}, newToolError(ToolErrorCodeInvalidRequest, "tool: exec command is empty", false, nil)
	}

	execCtx, cancel := withInvokeTimeout(ctx, a.Timeout)
	defer cancel()

	// #nosec G204 -- argv is assembled from the tool manifest.
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = a.Dir
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(a.Env)...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExecResult{}, withToolErrorDetails(
			newToolError(ToolErrorCodeTransportFailure, "tool: start "+argv[0]+": "+err.Error(), false, err),
			map[string]any{"command": argv[0]},
		)
	}
	waitErr := cmd.Wait()

	result := ExecResult{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		ExitCode:   cmd.ProcessState.ExitCode(),
		DurationMS: elapsedMS(start),
	}
	return result, decodeExecResult(execCtx, result, waitErr)
}

func withInvokeTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); !hasDeadline && timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return parent, func() {}
}

func decodeExecResult(execCtx context.Context, result ExecResult, waitErr error) error {
	if execCtx.Err() != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return newToolError(ToolErrorCodeTimeout, "tool: invocation timed out", true, execCtx.Err())
		}
		return newToolError(ToolErrorCodeTransportFailure, "tool: invocation canceled", false, execCtx.Err())
	}
	if waitErr == nil {
		return nil
	}

	message := strings.TrimSpace(string(result.Stderr))
	if message == "" {
		message = waitErr.Error()
	}
	return withToolErrorDetails(
		newToolError(ToolErrorCodeUpstreamFailure, "tool: invocation failed: "+message, false, waitErr),
		map[string]any{
			"stderr":    message,
			"exit_code": result.ExitCode,
		},
	)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
