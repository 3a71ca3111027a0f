// Package tool runs the command-line tools described by a manifest.
//
// The package is split by concern:
//   - resolver: placeholder namespaces bound to settings, file aliases and parameters
//   - registry: file-alias records and storage interfaces (JSON file, SQLite)
//   - assemble: command template to argv
//   - exec_adapter: subprocess execution with timeouts
//   - download/install: fetching tool artifacts
//   - history: append-only execution log
//   - runner: the orchestration used by the CLI
package tool
