package tool

import (
	"errors"

	"al.essio.dev/pkg/shellescape"

	"github.com/petal-labs/toolpack/manifest"
	"github.com/petal-labs/toolpack/placeholder"
)

// IOType is the role of one assembled argv element.
type IOType string

const (
	IOConst IOType = "const"
	IOExec  IOType = "exec"
	IOFile  IOType = "file"
	IOValue IOType = "value"
)

func ioTypeFor(tok manifest.CommandToken) IOType {
	varType, ok := tok.VarType()
	if !ok {
		return IOConst
	}
	switch varType {
	case manifest.VarExec:
		return IOExec
	case manifest.VarFile:
		return IOFile
	default:
		return IOValue
	}
}

// Component is one assembled argv element with its role.
type Component struct {
	Value string `json:"value"`
	IO    IOType `json:"io"`
	Input bool   `json:"input,omitempty"`
}

// Invocation is a fully resolved command line.
type Invocation struct {
	Tool       string      `json:"tool"`
	Package    string      `json:"package"`
	Components []Component `json:"components"`
}

// Argv returns the command line, one element per template token.
func (inv Invocation) Argv() []string {
	argv := make([]string, len(inv.Components))
	for i, c := range inv.Components {
		argv[i] = c.Value
	}
	return argv
}

// InputFiles returns the paths of FILE components marked as inputs.
func (inv Invocation) InputFiles() []string {
	var out []string
	for _, c := range inv.Components {
		if c.Input {
			out = append(out, c.Value)
		}
	}
	return out
}

// CommandLine renders argv for display, quoting elements that need it.
func (inv Invocation) CommandLine() string {
	return JoinCommandLine(inv.Argv())
}

// JoinCommandLine renders argv with POSIX shell quoting where needed.
func JoinCommandLine(argv []string) string {
	return shellescape.QuoteCommand(argv)
}

// Assemble expands every token of desc's command template. Each token yields
// exactly one argv element; CONST values are copied verbatim.
func Assemble(desc manifest.ToolDescriptor, resolver placeholder.Resolver) (Invocation, error) {
	if len(desc.Command) == 0 {
		return Invocation{}, newToolError(ToolErrorCodeInvalidRequest, "tool: "+desc.Name+" has an empty command", false, nil)
	}

	inv := Invocation{
		Tool:       desc.Name,
		Package:    desc.Package,
		Components: make([]Component, 0, len(desc.Command)),
	}
	for i, tok := range desc.Command {
		value := tok.Value()
		if tok.IsVar() {
			expanded, err := placeholder.Expand(value, resolver)
			if err != nil {
				return Invocation{}, assembleError(desc.Name, i, tok, err)
			}
			value = expanded
		}
		inv.Components = append(inv.Components, Component{
			Value: value,
			IO:    ioTypeFor(tok),
			Input: tok.AsInput(),
		})
	}
	return inv, nil
}

func assembleError(name string, index int, tok manifest.CommandToken, err error) *ToolError {
	code := ToolErrorCodeInvocationFailed
	switch {
	case placeholder.IsUnresolved(err):
		code = ToolErrorCodeUnresolvedPlaceholder
	case errors.Is(err, placeholder.ErrSyntax):
		code = ToolErrorCodeInvalidRequest
	}
	return withToolErrorDetails(
		newToolError(code, "tool: "+name+": "+err.Error(), false, err),
		map[string]any{
			"token": index,
			"value": tok.Value(),
		},
	)
}
