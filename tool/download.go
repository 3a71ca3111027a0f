package tool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultDownloadTimeout     = 5 * time.Minute
	defaultDownloadAttempts    = 3
	defaultDownloadInitialWait = 500 * time.Millisecond
	defaultDownloadMaxWait     = 10 * time.Second
)

// Downloader fetches install artifacts over HTTP with exponential backoff.
type Downloader struct {
	Client          *http.Client
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DownloadRequest describes one artifact to fetch.
type DownloadRequest struct {
	Tool   string
	Source string
	Target string
	// SHA256 is the expected hex digest; empty skips verification.
	SHA256 string
}

// DownloadResult reports what was written.
type DownloadResult struct {
	Bytes    int64
	Attempts int
	SHA256   string
}

func (d *Downloader) client() *http.Client {
	if d != nil && d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: defaultDownloadTimeout}
}

func (d *Downloader) policy(ctx context.Context) backoff.BackOff {
	attempts := defaultDownloadAttempts
	initial := defaultDownloadInitialWait
	maxWait := defaultDownloadMaxWait
	if d != nil {
		if d.MaxAttempts > 0 {
			attempts = d.MaxAttempts
		}
		if d.InitialInterval > 0 {
			initial = d.InitialInterval
		}
		if d.MaxInterval > 0 {
			maxWait = d.MaxInterval
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxWait
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Download fetches req.Source into req.Target. The file is written to a
// temporary sibling, verified, made executable and renamed into place.
func (d *Downloader) Download(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Target) == "" {
		return DownloadResult{}, newToolError(ToolErrorCodeInvalidRequest, "tool: download source and target are required", false, nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Target), 0o750); err != nil {
		return DownloadResult{}, newToolError(ToolErrorCodeDownloadFailed, "tool: create target dir: "+err.Error(), false, err)
	}

	var (
		attempts int
		tmpPath  string
		written  int64
		digest   string
	)
	operation := func() error {
		attempts++
		path, n, sum, err := d.fetchOnce(ctx, req)
		if err != nil {
			return err
		}
		tmpPath, written, digest = path, n, sum
		return nil
	}
	notify := func(err error, _ time.Duration) {
		emitRetryObservation(ToolRetryObservation{
			ToolName:  req.Tool,
			Source:    req.Source,
			Attempt:   attempts,
			ErrorCode: toolErrorCodeOrDefault(err, ToolErrorCodeDownloadFailed),
		})
	}

	if err := backoff.RetryNotify(operation, d.policy(ctx), notify); err != nil {
		return DownloadResult{Attempts: attempts}, withToolErrorDetails(
			newToolError(ToolErrorCodeDownloadFailed, fmt.Sprintf("tool: download %s: %v", req.Source, err), isRetryableError(err), err),
			map[string]any{"source": req.Source, "attempts": attempts},
		)
	}

	result := DownloadResult{Bytes: written, Attempts: attempts, SHA256: digest}
	if want := strings.TrimSpace(req.SHA256); want != "" && !strings.EqualFold(want, digest) {
		_ = os.Remove(tmpPath)
		return result, withToolErrorDetails(
			newToolError(ToolErrorCodeChecksumMismatch, "tool: checksum mismatch for "+req.Source, false, nil),
			map[string]any{"expected": strings.ToLower(want), "actual": digest},
		)
	}

	// #nosec G302 -- installed artifacts must be executable.
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return result, newToolError(ToolErrorCodeDownloadFailed, "tool: chmod download: "+err.Error(), false, err)
	}
	if err := os.Rename(tmpPath, req.Target); err != nil {
		_ = os.Remove(tmpPath)
		return result, newToolError(ToolErrorCodeDownloadFailed, "tool: move download into place: "+err.Error(), false, err)
	}
	return result, nil
}

// fetchOnce performs one GET. Errors worth retrying are returned as is;
// everything else is wrapped with backoff.Permanent.
func (d *Downloader) fetchOnce(ctx context.Context, req DownloadRequest) (string, int64, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Source, nil)
	if err != nil {
		return "", 0, "", backoff.Permanent(newToolError(ToolErrorCodeInvalidRequest, "tool: build download request", false, err))
	}
	resp, err := d.client().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, "", backoff.Permanent(newToolError(ToolErrorCodeTransportFailure, "tool: download canceled", false, ctx.Err()))
		}
		return "", 0, "", newToolError(ToolErrorCodeTransportFailure, "tool: download request failed", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := withToolErrorDetails(
			newToolError(ToolErrorCodeUpstreamFailure, fmt.Sprintf("tool: download returned status %d", resp.StatusCode), false, nil),
			map[string]any{"status": resp.StatusCode},
		)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			statusErr.Retryable = true
			return "", 0, "", statusErr
		}
		return "", 0, "", backoff.Permanent(statusErr)
	}

	out, err := os.CreateTemp(filepath.Dir(req.Target), "."+filepath.Base(req.Target)+".*.tmp")
	if err != nil {
		return "", 0, "", backoff.Permanent(newToolError(ToolErrorCodeDownloadFailed, "tool: create temp file", false, err))
	}

	hash := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(out, hash), resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(out.Name())
		return "", 0, "", newToolError(ToolErrorCodeTransportFailure, "tool: writing download", true, errors.Join(copyErr, closeErr))
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(out.Name())
		return "", 0, "", newToolError(ToolErrorCodeTransportFailure,
			fmt.Sprintf("tool: download incomplete: got %d bytes, expected %d", written, resp.ContentLength), true, nil)
	}
	return out.Name(), written, hex.EncodeToString(hash.Sum(nil)), nil
}
