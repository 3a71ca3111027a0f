package settings

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// ContextDirName holds the context settings files inside a project
	// directory.
	ContextDirName = "contexts"
	// ContextListName maps relative directories to context files, one
	// "path<TAB>file" pair per line.
	ContextListName = "contexts.tsv"
)

var (
	// ErrContextExists is returned when the directory already has a context.
	ErrContextExists = errors.New("settings: context already exists")
	// ErrProjectRoot is returned when a context is requested for the project
	// root itself, which uses the project settings file.
	ErrProjectRoot = errors.New("settings: cannot create a context in the project root")
)

// Context is a settings file bound to a directory below the project root.
type Context struct {
	// Path is the slash-separated directory relative to the project root.
	Path string
	// File is the absolute path of the context settings file.
	File string
}

// ReadContexts loads the context listing of a project directory. A missing
// listing yields an empty map.
func ReadContexts(projectDir string) (map[string]string, error) {
	path := filepath.Join(projectDir, ContextListName)
	f, err := os.Open(path) // #nosec G304 -- path inside the project directory
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("settings: reading contexts: %w", err)
	}
	defer f.Close()

	contexts := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rel, file, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "\t")
		if !ok || rel == "" || file == "" {
			continue
		}
		contexts[rel] = file
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("settings: reading contexts: %w", err)
	}
	return contexts, nil
}

// RelativePath returns workDir relative to the root of projectDir, using
// forward slashes. The project root itself yields "".
func RelativePath(projectDir, workDir string) (string, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("settings: resolving %s: %w", workDir, err)
	}
	rel, err := filepath.Rel(filepath.Dir(projectDir), abs)
	if err != nil {
		return "", fmt.Errorf("settings: %s is not below the project: %w", workDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("settings: %s is not below the project", workDir)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// ContextsFor returns the contexts along the path from the project root to
// workDir, outermost first.
func ContextsFor(projectDir, workDir string) ([]Context, error) {
	rel, err := RelativePath(projectDir, workDir)
	if err != nil || rel == "" {
		return nil, err
	}
	listing, err := ReadContexts(projectDir)
	if err != nil {
		return nil, err
	}

	var out []Context
	parts := strings.Split(rel, "/")
	for i := 1; i <= len(parts); i++ {
		key := strings.Join(parts[:i], "/")
		if file, ok := listing[key]; ok {
			out = append(out, Context{Path: key, File: filepath.Join(projectDir, ContextDirName, file)})
		}
	}
	return out, nil
}

// CreateContext registers a new, empty context for workDir.
func CreateContext(projectDir, workDir string) (Context, error) {
	rel, err := RelativePath(projectDir, workDir)
	if err != nil {
		return Context{}, err
	}
	if rel == "" {
		return Context{}, ErrProjectRoot
	}
	listing, err := ReadContexts(projectDir)
	if err != nil {
		return Context{}, err
	}
	if _, ok := listing[rel]; ok {
		return Context{}, fmt.Errorf("%w: %s", ErrContextExists, rel)
	}

	dir := filepath.Join(projectDir, ContextDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Context{}, fmt.Errorf("settings: creating context directory: %w", err)
	}
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ".yaml"
	ctx := Context{Path: rel, File: filepath.Join(dir, name)}
	if err := Write(ctx.File, Tree{}); err != nil {
		return Context{}, err
	}

	f, err := os.OpenFile(filepath.Join(projectDir, ContextListName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return Context{}, fmt.Errorf("settings: opening context listing: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\n", rel, name); err != nil {
		_ = f.Close()
		return Context{}, fmt.Errorf("settings: writing context listing: %w", err)
	}
	if err := f.Close(); err != nil {
		return Context{}, fmt.Errorf("settings: writing context listing: %w", err)
	}
	return ctx, nil
}
