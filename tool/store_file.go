package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const fileStoreVersionV1 = "1"

var errEmptyStorePath = errors.New("tool: file store path is empty")

type fileStoreDocument struct {
	Version string      `json:"version"`
	Files   []FileAlias `json:"files"`
}

// FileStore persists file aliases in a local JSON file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed alias store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// List returns all aliases ordered by package and key.
func (s *FileStore) List(ctx context.Context) ([]FileAlias, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("tool: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	aliases, err := s.load()
	if err != nil {
		return nil, err
	}
	return slices.Clone(aliases), nil
}

// Get returns an alias by package and key.
func (s *FileStore) Get(ctx context.Context, pkg, key string) (FileAlias, bool, error) {
	aliases, err := s.List(ctx)
	if err != nil {
		return FileAlias{}, false, err
	}
	for _, alias := range aliases {
		if alias.Package == pkg && alias.Key == key {
			return alias, true, nil
		}
	}
	return FileAlias{}, false, nil
}

// Upsert inserts or replaces an alias.
func (s *FileStore) Upsert(ctx context.Context, alias FileAlias) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("tool: file store is nil")
	}
	if err := validateAlias(alias); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aliases, err := s.load()
	if err != nil {
		return err
	}

	index := slices.IndexFunc(aliases, func(a FileAlias) bool {
		return a.Package == alias.Package && a.Key == alias.Key
	})
	if alias.RegisteredAt.IsZero() {
		alias.RegisteredAt = time.Now().UTC()
	}
	if index >= 0 {
		aliases[index] = alias
	} else {
		aliases = append(aliases, alias)
	}
	return s.save(aliases)
}

// Delete removes an alias. Deleting a missing alias is a no-op.
func (s *FileStore) Delete(ctx context.Context, pkg, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("tool: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aliases, err := s.load()
	if err != nil {
		return err
	}
	filtered := slices.DeleteFunc(aliases, func(a FileAlias) bool {
		return a.Package == pkg && a.Key == key
	})
	return s.save(filtered)
}

func (s *FileStore) load() ([]FileAlias, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	// #nosec G304 -- path is configured by caller and constrained to local filesystem usage.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FileAlias{}, nil
		}
		return nil, fmt.Errorf("tool: read file aliases: %w", err)
	}
	if len(data) == 0 {
		return []FileAlias{}, nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tool: decode file aliases: %w", err)
	}
	if doc.Files == nil {
		doc.Files = []FileAlias{}
	}
	sortAliases(doc.Files)
	return doc.Files, nil
}

func (s *FileStore) save(aliases []FileAlias) error {
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}

	aliases = slices.Clone(aliases)
	if aliases == nil {
		aliases = []FileAlias{}
	}
	sortAliases(aliases)

	data, err := json.MarshalIndent(fileStoreDocument{
		Version: fileStoreVersionV1,
		Files:   aliases,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("tool: encode file aliases: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("tool: create store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("tool: write temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("tool: replace store file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
