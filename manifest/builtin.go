package manifest

import (
	_ "embed"
	"fmt"
)

// BuiltinPackage is the package grouping of the shipped manifest.
const BuiltinPackage = "urban-integration"

//go:embed builtin/urban-integration.yaml
var builtinYAML []byte

// BuiltinYAML returns the raw shipped manifest document.
func BuiltinYAML() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}

// Builtin returns the shipped manifest. It panics if the embedded document
// does not decode, which only happens on a broken build.
func Builtin() Manifest {
	m, err := Parse(builtinYAML, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("manifest: builtin manifest: %v", err))
	}
	return m
}
