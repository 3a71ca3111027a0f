package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/petal-labs/toolpack/manifest"
	"github.com/petal-labs/toolpack/placeholder"
)

func installDescriptor(source string) manifest.ToolDescriptor {
	return manifest.ToolDescriptor{
		Name:    "eq-sim-ji",
		Package: "urban-integration",
		Command: []manifest.CommandToken{manifest.Const("java")},
		Output:  manifest.OutputSpec{Type: manifest.OutputTypeValue, Location: manifest.OutputLocationStdout},
		Install: manifest.InstallSpec{Tasks: []manifest.InstallTask{{
			Type:   manifest.InstallTaskDownload,
			Source: source,
			Target: "[[pmngr.urban-integration.jarDir]]/EQSimilariyPrinter.jar",
		}}},
	}
}

func TestInstallerSkipsPresentTarget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("jar"))
	}))
	defer srv.Close()

	rec := &recordingObserver{}
	SetObserver(rec)
	t.Cleanup(func() { SetObserver(nil) })

	dir := t.TempDir()
	resolver := placeholder.Map{"pmngr.urban-integration.jarDir": dir}
	installer := &Installer{Downloader: fastDownloader(1)}
	desc := installDescriptor(srv.URL)

	results, err := installer.Install(context.Background(), desc, resolver, false)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(results) != 1 || results[0].Skipped || results[0].Target != filepath.Join(dir, "EQSimilariyPrinter.jar") {
		t.Fatalf("Install() = %+v", results)
	}

	results, err = installer.Install(context.Background(), desc, resolver, false)
	if err != nil {
		t.Fatalf("Install(again) error = %v", err)
	}
	if !results[0].Skipped {
		t.Fatal("second Install() did not skip")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}

	if _, err := installer.Install(context.Background(), desc, resolver, true); err != nil {
		t.Fatalf("Install(force) error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls after force = %d, want 2", calls.Load())
	}

	obs := rec.installations()
	if len(obs) != 3 || !obs[1].Skipped || !obs[2].Success || obs[2].Bytes != 3 {
		t.Fatalf("install observations = %+v", obs)
	}
}

func TestInstallerUnresolvedTarget(t *testing.T) {
	installer := &Installer{Downloader: fastDownloader(1)}
	_, err := installer.Install(context.Background(), installDescriptor("https://example.com/x.jar"), placeholder.Map{}, false)
	if got := ErrorCode(err); got != ToolErrorCodeUnresolvedPlaceholder {
		t.Fatalf("ErrorCode() = %q, want %q", got, ToolErrorCodeUnresolvedPlaceholder)
	}
}

func TestInstallerPropagatesDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	dir := t.TempDir()
	installer := &Installer{Downloader: fastDownloader(3)}
	_, err := installer.Install(context.Background(), installDescriptor(srv.URL),
		placeholder.Map{"pmngr.urban-integration.jarDir": dir}, false)
	if got := ErrorCode(err); got != ToolErrorCodeDownloadFailed {
		t.Fatalf("ErrorCode() = %q, want %q", got, ToolErrorCodeDownloadFailed)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "EQSimilariyPrinter.jar")); !os.IsNotExist(statErr) {
		t.Fatalf("target exists after failed install: %v", statErr)
	}
}
