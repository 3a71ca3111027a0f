package tool

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/petal-labs/toolpack/placeholder"
	"github.com/petal-labs/toolpack/settings"
)

// Bindings holds everything placeholders can resolve against for one run.
type Bindings struct {
	// Settings is the merged settings tree.
	Settings settings.Tree
	// PackagesDir is the root under which each package gets a directory.
	PackagesDir string
	// Store holds registered file aliases.
	Store Store
	// Files overrides file aliases for this run, keyed by package.key.
	Files map[string]string
	// Params are caller-supplied values for bare references.
	Params map[string]string
}

// PackageDir returns the default directory for pkg.
func (b Bindings) PackageDir(pkg string) string {
	return filepath.Join(b.PackagesDir, pkg)
}

// Resolver returns a placeholder resolver over b. ctx bounds store lookups.
func (b Bindings) Resolver(ctx context.Context) placeholder.Resolver {
	return placeholder.Namespaces{
		ByName: map[string]placeholder.Resolver{
			placeholder.NamespacePackageManager: placeholder.ResolverFunc(b.resolvePackagePath),
			placeholder.NamespaceFiles: placeholder.ResolverFunc(func(ref placeholder.Reference) (string, error) {
				return b.resolveFile(ctx, ref)
			}),
		},
		Params: placeholder.Chain{
			placeholder.Map(b.Params),
			placeholder.ResolverFunc(b.resolveSetting),
		},
	}
}

// pmngr.<pkg>.<key>: explicit setting, else the package directory.
func (b Bindings) resolvePackagePath(ref placeholder.Reference) (string, error) {
	if v, ok := b.Settings.GetString(ref.Raw); ok {
		return v, nil
	}
	pkg, _, err := ParseAliasName(ref.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", placeholder.ErrUnresolved, err)
	}
	if b.PackagesDir == "" {
		return "", placeholder.Unresolved(ref)
	}
	return b.PackageDir(pkg), nil
}

func (b Bindings) resolveFile(ctx context.Context, ref placeholder.Reference) (string, error) {
	if v, ok := b.Files[ref.Path]; ok {
		return v, nil
	}
	pkg, key, err := ParseAliasName(ref.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", placeholder.ErrUnresolved, err)
	}
	if b.Store == nil {
		return "", placeholder.Unresolved(ref)
	}
	alias, ok, err := b.Store.Get(ctx, pkg, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", placeholder.Unresolved(ref)
	}
	return alias.Path, nil
}

func (b Bindings) resolveSetting(ref placeholder.Reference) (string, error) {
	if v, ok := b.Settings.GetString(ref.Raw); ok {
		return v, nil
	}
	return "", placeholder.Unresolved(ref)
}
