package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ProjectDirName marks a project root.
	ProjectDirName = ".toolpack"
	// FileName is the settings file inside a home or project directory.
	FileName = "settings.yaml"
)

// ErrNoProject is returned when no project directory encloses a path.
var ErrNoProject = errors.New("settings: not inside a project")

// Layers is an ordered list of settings files, lowest precedence first.
type Layers struct {
	Files []string
	// Contexts are the directory context files. They are also the last
	// entries of Files.
	Contexts []string
}

// NewLayers returns the user file under home followed by the project layers
// enclosing workDir, if any.
func NewLayers(home, workDir string) (Layers, error) {
	layers := Layers{Files: []string{filepath.Join(home, FileName)}}
	dir, err := FindProjectDir(workDir)
	if err != nil || filepath.Clean(dir) == filepath.Clean(home) {
		return layers, nil
	}
	project, err := ProjectLayers(dir, workDir)
	if err != nil {
		return Layers{}, err
	}
	layers.Files = append(layers.Files, project.Files...)
	layers.Contexts = project.Contexts
	return layers, nil
}

// ProjectLayers returns the project settings file of projectDir followed by
// the context files along the path to workDir.
func ProjectLayers(projectDir, workDir string) (Layers, error) {
	contexts, err := ContextsFor(projectDir, workDir)
	if err != nil {
		return Layers{}, err
	}
	layers := Layers{Files: []string{filepath.Join(projectDir, FileName)}}
	for _, c := range contexts {
		layers.Files = append(layers.Files, c.File)
		layers.Contexts = append(layers.Contexts, c.File)
	}
	return layers, nil
}

// Merged reads every layer and merges them in order.
func (l Layers) Merged() (Tree, error) {
	merged := Tree{}
	for _, f := range l.Files {
		t, err := Read(f)
		if err != nil {
			return nil, err
		}
		Merge(merged, t)
	}
	return merged, nil
}

// Get returns the effective scalar value of key.
func (l Layers) Get(key string) (any, error) {
	t, err := l.Merged()
	if err != nil {
		return nil, err
	}
	return t.Get(key)
}

// Top returns the highest-precedence file.
func (l Layers) Top() (string, bool) {
	if len(l.Files) == 0 {
		return "", false
	}
	return l.Files[len(l.Files)-1], true
}

// FindProjectDir walks up from start until a directory containing
// ProjectDirName is found and returns that marker directory. start itself
// must not lie inside a marker directory.
func FindProjectDir(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("settings: resolving %s: %w", start, err)
	}
	dir := abs
	for {
		if filepath.Base(dir) == ProjectDirName {
			return "", fmt.Errorf("settings: invalid working directory %s", start)
		}
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s", ErrNoProject, start)
		}
		dir = parent
	}
}

// InitProject creates the marker directory under dir and returns its path.
func InitProject(dir string) (string, error) {
	path := filepath.Join(dir, ProjectDirName)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("settings: creating project directory: %w", err)
	}
	return path, nil
}
