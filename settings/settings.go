// Package settings stores nested key/value settings in YAML files.
//
// Keys are dotted paths ("pmngr.urban-integration.jarDir"). Several files can
// be layered; later layers override earlier ones key by key.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownKey is returned when a key path does not exist.
	ErrUnknownKey = errors.New("settings: unknown key")
	// ErrNotScalar is returned when a key path names a nested section.
	ErrNotScalar = errors.New("settings: key is a section")
	// ErrInvalidKey is returned for empty keys or path components.
	ErrInvalidKey = errors.New("settings: invalid key")
)

// Tree is a nested settings document.
type Tree map[string]any

func splitKey(key string) ([]string, error) {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		parts[i] = p
	}
	return parts, nil
}

// Get returns the scalar value at key.
func (t Tree) Get(key string) (any, error) {
	parts, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	var el any = map[string]any(t)
	for _, p := range parts {
		m, ok := asMap(el)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		el, ok = m[p]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}
	if _, ok := asMap(el); ok {
		return nil, fmt.Errorf("%w: %q", ErrNotScalar, key)
	}
	return el, nil
}

// GetString returns the value at key formatted as a string.
func (t Tree) GetString(key string) (string, bool) {
	v, err := t.Get(key)
	if err != nil || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Set stores value at key, creating intermediate sections. A nil value
// deletes the key and prunes sections left empty.
func (t Tree) Set(key string, value any) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}
	if value == nil {
		t.remove(parts)
		return nil
	}
	el := map[string]any(t)
	for _, p := range parts[:len(parts)-1] {
		next, ok := el[p]
		if !ok {
			child := map[string]any{}
			el[p] = child
			el = child
			continue
		}
		child, ok := asMap(next)
		if !ok {
			return fmt.Errorf("settings: cannot create %q under value %v", key, next)
		}
		el[p] = child
		el = child
	}
	el[parts[len(parts)-1]] = value
	return nil
}

func (t Tree) remove(parts []string) {
	var walk func(m map[string]any, parts []string) bool
	walk = func(m map[string]any, parts []string) bool {
		if len(parts) == 1 {
			delete(m, parts[0])
			return len(m) == 0
		}
		child, ok := asMap(m[parts[0]])
		if !ok {
			return false
		}
		if walk(child, parts[1:]) {
			delete(m, parts[0])
		} else {
			m[parts[0]] = child
		}
		return len(m) == 0
	}
	walk(t, parts)
}

// Flatten returns every scalar as a dotted key, sorted.
func (t Tree) Flatten() []KeyValue {
	var out []KeyValue
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := asMap(v); ok {
				walk(key, child)
				continue
			}
			out = append(out, KeyValue{Key: key, Value: fmt.Sprint(v)})
		}
	}
	walk("", t)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// KeyValue is one flattened setting.
type KeyValue struct {
	Key   string
	Value string
}

// Merge copies src into dst recursively; sections merge, scalars replace.
// dst is modified and returned.
func Merge(dst, src Tree) Tree {
	if dst == nil {
		dst = Tree{}
	}
	mergeMaps(dst, src)
	return dst
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		srcChild, srcIsMap := asMap(v)
		dstChild, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			mergeMaps(dstChild, srcChild)
			dst[k] = dstChild
			continue
		}
		if srcIsMap {
			dst[k] = cloneMap(srcChild)
			continue
		}
		dst[k] = v
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if child, ok := asMap(v); ok {
			out[k] = cloneMap(child)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Tree:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

// Read loads a settings file. A missing file yields an empty tree.
func Read(path string) (Tree, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from config
	if err != nil {
		if os.IsNotExist(err) {
			return Tree{}, nil
		}
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	if t == nil {
		t = Tree{}
	}
	return t, nil
}

// Write saves t to path atomically.
func Write(path string, t Tree) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("settings: creating directory: %w", err)
	}
	data, err := yaml.Marshal(map[string]any(t))
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("settings: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("settings: replacing file: %w", err)
	}
	return nil
}

// Update reads path, sets key (nil deletes) and writes the file back.
func Update(path, key string, value any) error {
	t, err := Read(path)
	if err != nil {
		return err
	}
	if err := t.Set(key, value); err != nil {
		return err
	}
	return Write(path, t)
}
