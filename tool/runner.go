package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/petal-labs/toolpack/manifest"
)

// RunRequest selects a tool and supplies per-run bindings.
type RunRequest struct {
	Tool string
	// Params bind bare [[name]] references.
	Params map[string]string
	// Files override files.<package>.<key> aliases, keyed by package.key.
	Files map[string]string
	// DryRun assembles the command without executing it.
	DryRun bool
	// Timeout overrides the adapter timeout when positive.
	Timeout time.Duration
}

// RunResult is the outcome of a run.
type RunResult struct {
	Invocation Invocation
	// Output is the declared output value (trimmed stdout).
	Output     string
	ExitCode   int
	DurationMS int64
	DryRun     bool
	// HistoryID is set when the run was recorded.
	HistoryID string
}

// Runner ties a manifest to resolution, installation, execution and history.
type Runner struct {
	Manifest manifest.Manifest
	Bindings Bindings
	Exec     *ExecAdapter
	// Installer is optional; Install fails without one.
	Installer *Installer
	// History is optional; runs are not recorded without one.
	History *History
	// Logger receives run progress. If nil, slog.Default() is used.
	Logger *slog.Logger
	// WorkDir is where relative input files are searched first. If empty,
	// the process working directory is used.
	WorkDir string
	// ProjectRoot bounds the upward input search. If empty, only WorkDir is
	// searched.
	ProjectRoot string
}

func (r *Runner) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Lookup returns the descriptor for name or a TOOL_NOT_FOUND error.
func (r *Runner) Lookup(name string) (manifest.ToolDescriptor, error) {
	if strings.TrimSpace(name) == "" {
		return manifest.ToolDescriptor{}, newToolError(ToolErrorCodeToolNotFound, "tool: name is required",
			false, fmt.Errorf("%w: empty name", ErrToolNotFound))
	}
	desc, ok := r.Manifest.Lookup(name)
	if !ok {
		return manifest.ToolDescriptor{}, withToolErrorDetails(
			newToolError(ToolErrorCodeToolNotFound, "tool: unknown tool "+name, false, fmt.Errorf("%w: %s", ErrToolNotFound, name)),
			map[string]any{"known": r.Manifest.Names()},
		)
	}
	return desc, nil
}

func (r *Runner) bindingsFor(req RunRequest) Bindings {
	b := r.Bindings
	b.Params = req.Params
	b.Files = req.Files
	return b
}

// Prepare resolves a tool's command line without running it.
func (r *Runner) Prepare(ctx context.Context, req RunRequest) (manifest.ToolDescriptor, Invocation, error) {
	desc, err := r.Lookup(req.Tool)
	if err != nil {
		return manifest.ToolDescriptor{}, Invocation{}, err
	}
	inv, err := Assemble(desc, r.bindingsFor(req).Resolver(ctx))
	if err != nil {
		return desc, Invocation{}, err
	}
	return desc, inv, nil
}

// Run assembles and executes a tool, returning its declared output.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	start := time.Now()
	obs := ToolInvokeObservation{ToolName: req.Tool, DryRun: req.DryRun}

	result, err := r.run(ctx, req, start)
	obs.Package = result.Invocation.Package
	obs.ExitCode = result.ExitCode
	obs.DurationMS = elapsedMS(start)
	if err != nil {
		obs.ErrorCode = toolErrorCodeOrDefault(err, ToolErrorCodeInvocationFailed)
		emitInvokeObservation(obs)
		r.logger().Debug("tool run failed", "tool", req.Tool, "code", obs.ErrorCode, "error", err)
		return result, err
	}
	obs.Success = true
	emitInvokeObservation(obs)
	return result, nil
}

func (r *Runner) run(ctx context.Context, req RunRequest, start time.Time) (RunResult, error) {
	desc, inv, err := r.Prepare(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	inv, err = r.locateInputs(inv, !req.DryRun)
	result := RunResult{Invocation: inv, DryRun: req.DryRun}
	if err != nil {
		return result, err
	}
	r.logger().Debug("assembled command", "tool", desc.Name, "command", inv.CommandLine())

	if req.DryRun {
		return result, nil
	}

	adapter := r.Exec
	if adapter == nil {
		adapter = &ExecAdapter{}
	}
	if req.Timeout > 0 {
		clone := *adapter
		clone.Timeout = req.Timeout
		adapter = &clone
	}

	execResult, err := adapter.Run(ctx, inv.Argv())
	result.ExitCode = execResult.ExitCode
	result.DurationMS = execResult.DurationMS
	if err != nil {
		return result, err
	}

	output, err := extractOutput(desc.Output, execResult)
	if err != nil {
		return result, err
	}
	result.Output = output

	if r.History != nil {
		entry, err := r.History.Append(ctx, HistoryEntry{
			Tool:       desc.Name,
			Package:    desc.Package,
			StartedAt:  start.UTC(),
			DurationMS: execResult.DurationMS,
			Argv:       inv.Argv(),
			Components: inv.Components,
			Output:     output,
		})
		if err != nil {
			r.logger().Warn("recording run history failed", "tool", desc.Name, "error", err)
		} else {
			result.HistoryID = entry.ID
		}
	}
	return result, nil
}

// locateInputs replaces each relative input path with the first existing
// file found from the working directory up to the project root. When strict,
// an input that cannot be found is an INPUT_MISSING error; otherwise it is
// left as assembled.
func (r *Runner) locateInputs(inv Invocation, strict bool) (Invocation, error) {
	workDir := r.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return inv, newToolError(ToolErrorCodeInvocationFailed, "tool: resolving working directory: "+err.Error(), false, err)
		}
		workDir = wd
	}

	components := make([]Component, len(inv.Components))
	copy(components, inv.Components)
	inv.Components = components

	for i, c := range components {
		if !c.Input {
			continue
		}
		path, err := LocateInput(c.Value, workDir, r.ProjectRoot)
		if err == nil {
			if path != c.Value {
				r.logger().Debug("located input file", "value", c.Value, "path", path)
			}
			components[i].Value = path
			continue
		}
		if !strict {
			continue
		}
		return inv, withToolErrorDetails(
			newToolError(ToolErrorCodeInputMissing, fmt.Sprintf("tool: input file %s %v", c.Value, err), false, err),
			map[string]any{"path": c.Value},
		)
	}
	return inv, nil
}

var errInputNotFound = errors.New("does not exist")

// LocateInput finds an input file. Absolute paths are only checked. A
// relative path is tried against workDir and then each parent directory up
// to and including root; the first regular file wins. Without a root, or
// when workDir is outside it, only workDir is tried.
func LocateInput(value, workDir, root string) (string, error) {
	if filepath.IsAbs(value) {
		return value, checkInputFile(value)
	}

	dir := filepath.Clean(workDir)
	stop := dir
	if root != "" {
		stop = filepath.Clean(root)
		if rel, err := filepath.Rel(stop, dir); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			stop = dir
		}
	}

	for {
		candidate := filepath.Join(dir, value)
		if err := checkInputFile(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, errInputNotFound) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if dir == stop || parent == dir {
			return "", errInputNotFound
		}
		dir = parent
	}
}

// checkInputFile reports errInputNotFound for missing paths and directories.
func checkInputFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errInputNotFound
	case err != nil:
		return err
	case info.IsDir():
		return errInputNotFound
	}
	return nil
}

func extractOutput(spec manifest.OutputSpec, res ExecResult) (string, error) {
	if spec.Location != manifest.OutputLocationStdout || spec.Type != manifest.OutputTypeValue {
		return "", newToolError(ToolErrorCodeInvalidRequest,
			fmt.Sprintf("tool: unsupported output %s/%s", spec.Type, spec.Location), false, nil)
	}
	return strings.TrimRight(string(res.Stdout), " \t\r\n"), nil
}

// Install runs the install tasks of the named tool.
func (r *Runner) Install(ctx context.Context, name string, force bool) ([]InstallResult, error) {
	desc, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if r.Installer == nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: no installer configured", false, nil)
	}
	return r.Installer.Install(ctx, desc, r.Bindings.Resolver(ctx), force)
}

// InstallAll installs every tool in manifest order. A target already
// handled earlier in the pass is not downloaded again, even when forced.
func (r *Runner) InstallAll(ctx context.Context, force bool) ([]InstallResult, error) {
	if r.Installer == nil {
		return nil, newToolError(ToolErrorCodeInvalidRequest, "tool: no installer configured", false, nil)
	}
	var all []InstallResult
	seen := map[string]bool{}
	for _, desc := range r.Manifest.Tools() {
		results, err := r.Installer.install(ctx, desc, r.Bindings.Resolver(ctx), force, seen)
		all = append(all, results...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
