package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a manifest serialization format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format from the file extension (.yaml/.yml -> YAML,
// anything else -> JSON).
func FormatFromPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return FormatYAML
	}
	return FormatJSON
}

// Load reads and decodes a manifest file.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: reading file %s: %w", path, err)
	}
	m, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest. YAML input is converted to JSON first so both
// formats share one strict decoder.
func Parse(data []byte, format Format) (Manifest, error) {
	jsonData := data
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return Manifest{}, err
		}
		jsonData = converted
	}

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.DisallowUnknownFields()

	var tools []ToolDescriptor
	if err := dec.Decode(&tools); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decoding tools: %w", err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return Manifest{}, errors.New("manifest: unexpected data after tool list")
	}
	return Manifest{tools: tools}, nil
}

// Encode serializes the manifest as a top-level list of descriptors.
func Encode(m Manifest, format Format) ([]byte, error) {
	tools := m.tools
	if tools == nil {
		tools = []ToolDescriptor{}
	}
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(tools); err != nil {
			return nil, fmt.Errorf("manifest: encoding YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("manifest: encoding YAML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(tools, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("manifest: encoding JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("manifest: unknown format %q", format)
	}
}

// EncodeDescriptor serializes a single descriptor.
func EncodeDescriptor(desc ToolDescriptor, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(desc)
		if err != nil {
			return nil, fmt.Errorf("manifest: encoding YAML: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(desc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("manifest: encoding JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("manifest: unknown format %q", format)
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest: parsing YAML: %w", err)
	}
	if raw == nil {
		raw = []any{}
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest: converting YAML: %w", err)
	}
	return out, nil
}
