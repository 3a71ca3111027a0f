package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/petal-labs/toolpack/manifest"
	"github.com/petal-labs/toolpack/placeholder"
)

// InstallResult reports one install task.
type InstallResult struct {
	Tool     string `json:"tool"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Skipped  bool   `json:"skipped"`
	Bytes    int64  `json:"bytes,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// Installer runs the install tasks of a descriptor.
type Installer struct {
	Downloader *Downloader
	// Logger receives progress messages. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (i *Installer) logger() *slog.Logger {
	if i != nil && i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

// Install performs every task of desc in order. Targets that already exist
// are skipped unless force is set. It stops at the first failing task.
func (i *Installer) Install(ctx context.Context, desc manifest.ToolDescriptor, resolver placeholder.Resolver, force bool) ([]InstallResult, error) {
	return i.install(ctx, desc, resolver, force, map[string]bool{})
}

// install tracks handled targets in seen. A target already in seen is never
// forced again, so shared targets download at most once per pass.
func (i *Installer) install(
	ctx context.Context,
	desc manifest.ToolDescriptor,
	resolver placeholder.Resolver,
	force bool,
	seen map[string]bool,
) ([]InstallResult, error) {
	results := make([]InstallResult, 0, len(desc.Install.Tasks))
	for idx, task := range desc.Install.Tasks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := i.runTask(ctx, desc, idx, task, resolver, force, seen)
		if err != nil {
			return results, err
		}
		seen[result.Target] = true
		results = append(results, result)
	}
	return results, nil
}

func (i *Installer) runTask(
	ctx context.Context,
	desc manifest.ToolDescriptor,
	idx int,
	task manifest.InstallTask,
	resolver placeholder.Resolver,
	force bool,
	seen map[string]bool,
) (InstallResult, error) {
	start := time.Now()
	obs := ToolInstallObservation{
		ToolName: desc.Name,
		Package:  desc.Package,
		Source:   task.Source,
	}

	if task.Type != manifest.InstallTaskDownload {
		err := newToolError(ToolErrorCodeInvalidRequest, "tool: unsupported install task type "+string(task.Type), false, nil)
		obs.ErrorCode = err.Code
		emitInstallObservation(obs)
		return InstallResult{}, err
	}

	target, err := placeholder.Expand(task.Target, resolver)
	if err != nil {
		toolErr := withToolErrorDetails(assembleError(desc.Name, idx, manifest.Const(task.Target), err),
			map[string]any{"install_task": idx})
		obs.ErrorCode = toolErr.Code
		emitInstallObservation(obs)
		return InstallResult{}, toolErr
	}

	result := InstallResult{Tool: desc.Name, Source: task.Source, Target: target}
	if !force || seen[target] {
		if _, err := os.Stat(target); err == nil {
			i.logger().Debug("install target present, skipping", "tool", desc.Name, "target", target)
			result.Skipped = true
			obs.Skipped = true
			obs.Success = true
			obs.DurationMS = elapsedMS(start)
			emitInstallObservation(obs)
			return result, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			toolErr := newToolError(ToolErrorCodeDownloadFailed, "tool: stat install target: "+err.Error(), false, err)
			obs.ErrorCode = toolErr.Code
			emitInstallObservation(obs)
			return InstallResult{}, toolErr
		}
	}

	i.logger().Info("downloading", "tool", desc.Name, "source", task.Source, "target", target)
	dl, err := i.Downloader.Download(ctx, DownloadRequest{
		Tool:   desc.Name,
		Source: task.Source,
		Target: target,
		SHA256: task.SHA256,
	})
	obs.Attempts = dl.Attempts
	obs.Bytes = dl.Bytes
	obs.DurationMS = elapsedMS(start)
	if err != nil {
		obs.ErrorCode = toolErrorCodeOrDefault(err, ToolErrorCodeDownloadFailed)
		emitInstallObservation(obs)
		return InstallResult{}, err
	}
	obs.Success = true
	emitInstallObservation(obs)

	result.Bytes = dl.Bytes
	result.Attempts = dl.Attempts
	result.SHA256 = dl.SHA256
	return result, nil
}
