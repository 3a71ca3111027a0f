package tool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInvalidAlias is returned for malformed package.key alias names.
var ErrInvalidAlias = errors.New("tool: invalid file alias")

// FileAlias binds a files.<package>.<key> placeholder to a local path.
type FileAlias struct {
	Package      string    `json:"package"`
	Key          string    `json:"key"`
	Path         string    `json:"path"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
}

// Name returns the dotted package.key form used in placeholders.
func (a FileAlias) Name() string {
	return a.Package + "." + a.Key
}

// ParseAliasName splits "package.key". The package is the first dotted
// component; the key is the remainder and may contain dots.
func ParseAliasName(name string) (pkg, key string, err error) {
	pkg, key, found := strings.Cut(strings.TrimSpace(name), ".")
	pkg = strings.TrimSpace(pkg)
	key = strings.TrimSpace(key)
	if !found || pkg == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q (want package.key)", ErrInvalidAlias, name)
	}
	return pkg, key, nil
}

// Store abstracts persistence for file aliases.
type Store interface {
	List(ctx context.Context) ([]FileAlias, error)
	Get(ctx context.Context, pkg, key string) (FileAlias, bool, error)
	Upsert(ctx context.Context, alias FileAlias) error
	Delete(ctx context.Context, pkg, key string) error
}

func validateAlias(alias FileAlias) error {
	if strings.TrimSpace(alias.Package) == "" || strings.TrimSpace(alias.Key) == "" {
		return fmt.Errorf("%w: package and key are required", ErrInvalidAlias)
	}
	if strings.Contains(alias.Package, ".") {
		return fmt.Errorf("%w: package %q contains a dot", ErrInvalidAlias, alias.Package)
	}
	if strings.TrimSpace(alias.Path) == "" {
		return fmt.Errorf("%w: %s has no path", ErrInvalidAlias, alias.Name())
	}
	return nil
}

func sortAliases(aliases []FileAlias) {
	slices.SortFunc(aliases, func(a, b FileAlias) int {
		if c := strings.Compare(a.Package, b.Package); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
}
