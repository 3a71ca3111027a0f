package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one successful tool run.
type HistoryEntry struct {
	ID         string      `json:"id"`
	Tool       string      `json:"tool"`
	Package    string      `json:"package"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Argv       []string    `json:"argv"`
	Components []Component `json:"components"`
	Output     string      `json:"output"`
}

// CommandLine renders the entry's argv for display.
func (e HistoryEntry) CommandLine() string {
	return JoinCommandLine(e.Argv)
}

// History is an append-only JSON-lines execution log.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory returns a history backed by path.
func NewHistory(path string) *History {
	return &History{path: path}
}

// Path returns the backing file path.
func (h *History) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Append writes entry as one line, assigning an ID when missing.
func (h *History) Append(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return HistoryEntry{}, err
	}
	if h == nil || strings.TrimSpace(h.path) == "" {
		return HistoryEntry{}, errors.New("tool: history path is empty")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("tool: encode history entry: %w", err)
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o750); err != nil {
		return HistoryEntry{}, fmt.Errorf("tool: create history dir: %w", err)
	}
	// #nosec G304 -- path is configured by caller.
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("tool: open history: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return HistoryEntry{}, fmt.Errorf("tool: write history: %w", err)
	}
	if err := f.Close(); err != nil {
		return HistoryEntry{}, fmt.Errorf("tool: close history: %w", err)
	}
	return entry, nil
}

// Entries returns all entries in append order. A missing file is empty.
func (h *History) Entries(ctx context.Context) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil || strings.TrimSpace(h.path) == "" {
		return nil, errors.New("tool: history path is empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// #nosec G304 -- path is configured by caller.
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("tool: open history: %w", err)
	}
	defer f.Close()

	entries := []HistoryEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("tool: decode history line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tool: read history: %w", err)
	}
	return entries, nil
}

// Lines returns the command line of every entry in append order.
func (h *History) Lines(ctx context.Context) ([]string, error) {
	entries, err := h.Entries(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.CommandLine()
	}
	return lines, nil
}
