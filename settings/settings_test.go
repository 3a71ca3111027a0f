package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTreeGetSet(t *testing.T) {
	tree := Tree{}
	if err := tree.Set("pmngr.urban-integration.jarDir", "/opt/tools"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := tree.Set("threshold", 0.5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := tree.GetString("pmngr.urban-integration.jarDir")
	if !ok || got != "/opt/tools" {
		t.Fatalf("GetString() = %q, %v", got, ok)
	}
	if got, _ := tree.GetString("threshold"); got != "0.5" {
		t.Fatalf("GetString(threshold) = %q", got)
	}

	if _, err := tree.Get("pmngr.urban-integration"); !errors.Is(err, ErrNotScalar) {
		t.Fatalf("Get(section) error = %v, want ErrNotScalar", err)
	}
	if _, err := tree.Get("pmngr.other.jarDir"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Get(missing) error = %v, want ErrUnknownKey", err)
	}
	if _, err := tree.Get("threshold.sub"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Get(under scalar) error = %v, want ErrUnknownKey", err)
	}
	if err := tree.Set("threshold.sub", "x"); err == nil {
		t.Fatal("Set(under scalar) error = nil")
	}
	if err := tree.Set("a..b", "x"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Set(a..b) error = %v, want ErrInvalidKey", err)
	}
}

func TestTreeDeletePrunesSections(t *testing.T) {
	tree := Tree{}
	_ = tree.Set("a.b.c", "1")
	_ = tree.Set("a.d", "2")

	if err := tree.Set("a.b.c", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if _, err := tree.Get("a.b"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Get(a.b) error = %v, want pruned", err)
	}
	if got, _ := tree.GetString("a.d"); got != "2" {
		t.Fatalf("GetString(a.d) = %q", got)
	}

	_ = tree.Set("a.d", nil)
	if len(tree) != 0 {
		t.Fatalf("tree = %v, want empty", tree)
	}

	// Deleting an absent key is a no-op.
	if err := tree.Set("x.y", nil); err != nil {
		t.Fatalf("Set(absent, nil) error = %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := Tree{"a": map[string]any{"x": "1", "y": "2"}, "b": "keep"}
	over := Tree{"a": map[string]any{"y": "3", "z": "4"}, "c": "new"}

	merged := Merge(base, over)
	want := map[string]string{"a.x": "1", "a.y": "3", "a.z": "4", "b": "keep", "c": "new"}
	for key, v := range want {
		if got, _ := merged.GetString(key); got != v {
			t.Errorf("GetString(%s) = %q, want %q", key, got, v)
		}
	}

	// Scalars replace sections and vice versa.
	merged = Merge(Tree{"a": map[string]any{"x": "1"}}, Tree{"a": "flat"})
	if got, _ := merged.GetString("a"); got != "flat" {
		t.Fatalf("GetString(a) = %q, want flat", got)
	}
}

func TestFlattenSorted(t *testing.T) {
	tree := Tree{}
	_ = tree.Set("z", "1")
	_ = tree.Set("a.b", "2")
	_ = tree.Set("a.a", "3")

	got := tree.Flatten()
	want := []string{"a.a", "a.b", "z"}
	if len(got) != len(want) {
		t.Fatalf("len(Flatten()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i] {
			t.Errorf("Flatten()[%d] = %q, want %q", i, got[i].Key, want[i])
		}
	}
}

func TestReadWriteUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	tree, err := Read(path)
	if err != nil {
		t.Fatalf("Read(missing) error = %v", err)
	}
	if len(tree) != 0 {
		t.Fatalf("Read(missing) = %v, want empty", tree)
	}

	if err := Update(path, "pmngr.pkg.jarDir", "/opt/pkg"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := Update(path, "eq1", "A"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tree, err = Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got, _ := tree.GetString("pmngr.pkg.jarDir"); got != "/opt/pkg" {
		t.Fatalf("GetString() = %q", got)
	}

	if err := Update(path, "eq1", nil); err != nil {
		t.Fatalf("Update(nil) error = %v", err)
	}
	tree, _ = Read(path)
	if _, ok := tree.GetString("eq1"); ok {
		t.Fatal("eq1 still present after delete")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestReadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("a: [unclosed"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("Read() error = nil")
	}
}

func TestLayersPrecedence(t *testing.T) {
	root := t.TempDir()
	home := filepath.Join(root, "home")
	project := filepath.Join(root, "work")
	workDir := filepath.Join(project, "sub", "dir")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	projectDir, err := InitProject(project)
	if err != nil {
		t.Fatalf("InitProject() error = %v", err)
	}

	_ = Update(filepath.Join(home, FileName), "eq1", "user")
	_ = Update(filepath.Join(home, FileName), "eq2", "user")
	_ = Update(filepath.Join(projectDir, FileName), "eq1", "project")

	layers, err := NewLayers(home, workDir)
	if err != nil {
		t.Fatalf("NewLayers() error = %v", err)
	}
	if len(layers.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2 (%v)", len(layers.Files), layers.Files)
	}
	if top, _ := layers.Top(); top != filepath.Join(projectDir, FileName) {
		t.Fatalf("Top() = %q", top)
	}

	v, err := layers.Get("eq1")
	if err != nil || v != "project" {
		t.Fatalf("Get(eq1) = %v, %v, want project", v, err)
	}
	v, err = layers.Get("eq2")
	if err != nil || v != "user" {
		t.Fatalf("Get(eq2) = %v, %v, want user", v, err)
	}
}

func TestContextOverridesProject(t *testing.T) {
	root := t.TempDir()
	home := filepath.Join(root, "home")
	project := filepath.Join(root, "work")
	sub := filepath.Join(project, "sub")
	workDir := filepath.Join(sub, "dir")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	projectDir, err := InitProject(project)
	if err != nil {
		t.Fatalf("InitProject() error = %v", err)
	}
	_ = Update(filepath.Join(projectDir, FileName), "eq1", "project")
	_ = Update(filepath.Join(projectDir, FileName), "eq2", "project")

	if _, err := CreateContext(projectDir, project); !errors.Is(err, ErrProjectRoot) {
		t.Fatalf("CreateContext(root) error = %v, want ErrProjectRoot", err)
	}
	outer, err := CreateContext(projectDir, sub)
	if err != nil {
		t.Fatalf("CreateContext(sub) error = %v", err)
	}
	if outer.Path != "sub" {
		t.Fatalf("Path = %q, want sub", outer.Path)
	}
	if _, err := CreateContext(projectDir, sub); !errors.Is(err, ErrContextExists) {
		t.Fatalf("CreateContext(sub again) error = %v, want ErrContextExists", err)
	}
	inner, err := CreateContext(projectDir, workDir)
	if err != nil {
		t.Fatalf("CreateContext(sub/dir) error = %v", err)
	}
	if inner.Path != "sub/dir" {
		t.Fatalf("Path = %q, want sub/dir", inner.Path)
	}
	_ = Update(outer.File, "eq1", "sub")
	_ = Update(outer.File, "eq2", "sub")
	_ = Update(inner.File, "eq2", "dir")

	layers, err := NewLayers(home, workDir)
	if err != nil {
		t.Fatalf("NewLayers() error = %v", err)
	}
	if len(layers.Files) != 4 || len(layers.Contexts) != 2 {
		t.Fatalf("layers = %+v", layers)
	}
	if top, _ := layers.Top(); top != inner.File {
		t.Fatalf("Top() = %q, want %q", top, inner.File)
	}
	if v, _ := layers.Get("eq1"); v != "sub" {
		t.Fatalf("Get(eq1) = %v, want sub", v)
	}
	if v, _ := layers.Get("eq2"); v != "dir" {
		t.Fatalf("Get(eq2) = %v, want dir", v)
	}

	// A sibling directory only sees the project file.
	other := filepath.Join(project, "other")
	_ = os.MkdirAll(other, 0o750)
	layers, err = NewLayers(home, other)
	if err != nil {
		t.Fatalf("NewLayers(other) error = %v", err)
	}
	if v, _ := layers.Get("eq1"); v != "project" {
		t.Fatalf("Get(eq1) in sibling = %v, want project", v)
	}
}

func TestFindProjectDir(t *testing.T) {
	root := t.TempDir()
	if _, err := FindProjectDir(root); !errors.Is(err, ErrNoProject) {
		t.Fatalf("FindProjectDir() error = %v, want ErrNoProject", err)
	}

	marker, _ := InitProject(root)
	nested := filepath.Join(root, "a", "b")
	_ = os.MkdirAll(nested, 0o750)

	got, err := FindProjectDir(nested)
	if err != nil {
		t.Fatalf("FindProjectDir() error = %v", err)
	}
	if got != marker {
		t.Fatalf("FindProjectDir() = %q, want %q", got, marker)
	}

	if _, err := FindProjectDir(marker); err == nil {
		t.Fatal("FindProjectDir(inside marker) error = nil")
	}
}
