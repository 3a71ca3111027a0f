package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/config"
	"github.com/petal-labs/toolpack/manifest"
	"github.com/petal-labs/toolpack/otel"
	"github.com/petal-labs/toolpack/settings"
	"github.com/petal-labs/toolpack/tool"
)

// BindGlobalFlags registers the persistent flags shared by every subcommand.
func BindGlobalFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.String("manifest", "", "Tool manifest file (defaults to the builtin manifest)")
	flags.String("store", "", "File alias store driver: sqlite | file")
	flags.String("store-path", "", "File alias store location")
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all output except errors")
}

// environment is the per-invocation state shared by subcommands.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	layers  settings.Layers
	workDir string
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, exitError(exitValidation, "loading config: %v", err)
	}

	if path, _ := cmd.Flags().GetString("manifest"); strings.TrimSpace(path) != "" {
		cfg.Manifest = path
	}
	storeChanged := false
	if driver, _ := cmd.Flags().GetString("store"); strings.TrimSpace(driver) != "" {
		cfg.StoreDriver = strings.ToLower(strings.TrimSpace(driver))
		storeChanged = true
	}
	if path, _ := cmd.Flags().GetString("store-path"); strings.TrimSpace(path) != "" {
		cfg.StorePath = path
	} else if storeChanged && os.Getenv("TOOLPACK_STORE_PATH") == "" {
		cfg.StorePath = cfg.DefaultStorePath(cfg.StoreDriver)
	}
	if err := cfg.Validate(); err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, exitError(exitRuntime, "resolving working directory: %v", err)
	}

	layers, err := settings.NewLayers(cfg.Home, workDir)
	if err != nil {
		return nil, exitError(exitInputParse, "%v", err)
	}

	return &environment{
		cfg:     cfg,
		logger:  newLogger(cmd, cfg),
		layers:  layers,
		workDir: workDir,
	}, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := cfg.ParsedLogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadManifest returns the configured manifest, or the builtin one.
// Manifests with error diagnostics are rejected.
func (e *environment) loadManifest() (manifest.Manifest, error) {
	m, err := e.readManifest(e.cfg.Manifest)
	if err != nil {
		return manifest.Manifest{}, err
	}
	if err := manifest.Check(m); err != nil {
		return manifest.Manifest{}, exitError(exitValidation, "%v (run 'toolpack validate' for details)", err)
	}
	return m, nil
}

func (e *environment) readManifest(path string) (manifest.Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return manifest.Builtin(), nil
	}
	m, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return manifest.Manifest{}, exitError(exitFileNotFound, "manifest not found: %s", path)
		}
		return manifest.Manifest{}, exitError(exitInputParse, "%v", err)
	}
	e.logger.Debug("loaded manifest", "path", path, "tools", m.Len())
	return m, nil
}

// openStore opens the configured file alias store. The returned close
// function is never nil.
func (e *environment) openStore() (tool.Store, func(), error) {
	switch e.cfg.StoreDriver {
	case config.StoreFile:
		return tool.NewFileStore(e.cfg.StorePath), func() {}, nil
	default:
		store, err := tool.NewSQLiteStore(tool.SQLiteStoreConfig{DSN: e.cfg.StorePath})
		if err != nil {
			return nil, nil, exitError(exitRuntime, "opening file alias store: %v", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				e.logger.Warn("closing file alias store failed", "error", err)
			}
		}, nil
	}
}

// newRunner wires a runner over the manifest, merged settings and store.
func (e *environment) newRunner(m manifest.Manifest, store tool.Store) (*tool.Runner, error) {
	tree, err := e.layers.Merged()
	if err != nil {
		return nil, exitError(exitInputParse, "reading settings: %v", err)
	}
	return &tool.Runner{
		Manifest: m,
		Bindings: tool.Bindings{
			Settings:    tree,
			PackagesDir: e.cfg.PackagesDir,
			Store:       store,
		},
		Exec: &tool.ExecAdapter{Timeout: e.cfg.InvokeTimeout},
		Installer: &tool.Installer{
			Downloader: &tool.Downloader{
				Client:      &http.Client{Timeout: e.cfg.HTTPTimeout},
				MaxAttempts: e.cfg.DownloadAttempts,
			},
			Logger: e.logger,
		},
		History:     tool.NewHistory(e.cfg.HistoryPath),
		Logger:      e.logger,
		WorkDir:     e.workDir,
		ProjectRoot: e.projectRoot(),
	}, nil
}

// projectRoot returns the directory holding the enclosing project marker,
// or "" outside a project.
func (e *environment) projectRoot() string {
	dir, err := settings.FindProjectDir(e.workDir)
	if err != nil {
		return ""
	}
	return filepath.Dir(dir)
}

// startTelemetry installs the OpenTelemetry tool observer. The returned
// function flushes it and is never nil.
func (e *environment) startTelemetry(ctx context.Context) func() {
	telemetry, err := otel.Setup(ctx, otel.Config{
		ServiceName: "toolpack",
		Endpoint:    e.cfg.OtelExporterOtlpEndpoint,
		Insecure:    e.cfg.OtelExporterOtlpInsecure,
		Logger:      e.logger,
	})
	if err != nil {
		e.logger.Warn("telemetry disabled", "error", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
