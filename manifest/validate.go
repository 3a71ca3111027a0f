package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/petal-labs/toolpack/placeholder"
)

// Severity defines diagnostic severity produced by validators.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes.
const (
	CodeRequired         = "REQUIRED"
	CodeDuplicateName    = "DUPLICATE_NAME"
	CodeInvalidEnum      = "INVALID_ENUM"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeInvalidReference = "INVALID_REFERENCE"
	CodeNoReference      = "NO_REFERENCE"
	CodeInvalidURL       = "INVALID_URL"
	CodeInvalidDigest    = "INVALID_DIGEST"
)

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Validator checks a manifest.
type Validator interface {
	ValidateManifest(m Manifest) []Diagnostic
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(m Manifest) []Diagnostic

// ValidateManifest calls f.
func (f ValidatorFunc) ValidateManifest(m Manifest) []Diagnostic {
	return f(m)
}

// Result aggregates diagnostics from one or more validation passes.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors returns true when at least one error-severity diagnostic exists.
func (r Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity diagnostics.
func (r Result) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Pipeline composes manifest validators.
type Pipeline struct {
	validators []Validator
}

// Add appends a validator to the pipeline.
func (p *Pipeline) Add(v Validator) {
	p.validators = append(p.validators, v)
}

// Run executes all validators and returns aggregated findings.
func (p Pipeline) Run(m Manifest) Result {
	result := Result{Diagnostics: make([]Diagnostic, 0)}
	for _, v := range p.validators {
		result.Diagnostics = append(result.Diagnostics, v.ValidateManifest(m)...)
	}
	return result
}

// DefaultPipeline returns the structural checks every manifest must pass.
func DefaultPipeline() Pipeline {
	var p Pipeline
	p.Add(ValidatorFunc(validateNames))
	p.Add(ValidatorFunc(validateCommands))
	p.Add(ValidatorFunc(validateOutputs))
	p.Add(ValidatorFunc(validateInstalls))
	return p
}

// Validate runs the default pipeline.
func Validate(m Manifest) Result {
	return DefaultPipeline().Run(m)
}

// ValidationError wraps error diagnostics as an error.
type ValidationError struct {
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	if len(e.Diagnostics) == 1 {
		return fmt.Sprintf("manifest: validation error: %s", e.Diagnostics[0].Message)
	}
	return fmt.Sprintf("manifest: %d validation errors (first: %s)", len(e.Diagnostics), e.Diagnostics[0].Message)
}

// Check returns a *ValidationError when the manifest has error diagnostics.
func Check(m Manifest) error {
	result := Validate(m)
	if !result.HasErrors() {
		return nil
	}
	return &ValidationError{Diagnostics: result.Errors()}
}

func errorf(field, code, format string, args ...any) Diagnostic {
	return Diagnostic{Field: field, Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func warnf(field, code, format string, args ...any) Diagnostic {
	return Diagnostic{Field: field, Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

func toolField(i int, suffix string) string {
	return fmt.Sprintf("tools[%d].%s", i, suffix)
}

func validateNames(m Manifest) []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]int, len(m.tools))
	for i, t := range m.tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			diags = append(diags, errorf(toolField(i, "name"), CodeRequired, "tool %d has no name", i))
			continue
		}
		if first, ok := seen[name]; ok {
			diags = append(diags, errorf(toolField(i, "name"), CodeDuplicateName,
				"tool %q duplicates the name of tool %d", name, first))
			continue
		}
		seen[name] = i
		if strings.TrimSpace(t.Package) == "" {
			diags = append(diags, errorf(toolField(i, "package"), CodeRequired, "tool %q has no package", name))
		}
	}
	return diags
}

func validateCommands(m Manifest) []Diagnostic {
	var diags []Diagnostic
	for i, t := range m.tools {
		if len(t.Command) == 0 {
			diags = append(diags, errorf(toolField(i, "command"), CodeRequired, "tool %q has an empty command", t.Name))
			continue
		}
		for j, tok := range t.Command {
			field := toolField(i, fmt.Sprintf("command[%d]", j))
			switch {
			case tok.IsZero():
				diags = append(diags, errorf(field, CodeInvalidToken, "tool %q token %d is uninitialised", t.Name, j))
			case tok.IsConst():
				if tok.varType != "" || tok.asInput {
					diags = append(diags, errorf(field, CodeInvalidToken, "tool %q CONST token %q carries a varType", t.Name, tok.value))
				}
			case tok.IsVar():
				diags = append(diags, validateVarToken(t.Name, field, tok)...)
			}
		}
	}
	return diags
}

func validateVarToken(tool, field string, tok CommandToken) []Diagnostic {
	var diags []Diagnostic
	if !tok.varType.Valid() {
		diags = append(diags, errorf(field, CodeInvalidEnum, "tool %q VAR token %q has varType %q", tool, tok.value, tok.varType))
	}
	if tok.asInput && tok.varType != VarFile {
		diags = append(diags, errorf(field, CodeInvalidToken, "tool %q asInput set on %s token %q", tool, tok.varType, tok.value))
	}
	refs, err := placeholder.References(tok.value)
	if err != nil {
		return append(diags, errorf(field, CodeInvalidReference, "tool %q token %q: %v", tool, tok.value, err))
	}
	if len(refs) == 0 {
		diags = append(diags, warnf(field, CodeNoReference, "tool %q VAR token %q references no placeholder", tool, tok.value))
	}
	return diags
}

func validateOutputs(m Manifest) []Diagnostic {
	var diags []Diagnostic
	for i, t := range m.tools {
		if !t.Output.Type.Valid() {
			diags = append(diags, errorf(toolField(i, "output.type"), CodeInvalidEnum, "tool %q output type %q is not one of [%s]", t.Name, t.Output.Type, OutputTypeValue))
		}
		if !t.Output.Location.Valid() {
			diags = append(diags, errorf(toolField(i, "output.location"), CodeInvalidEnum, "tool %q output location %q is not one of [%s]", t.Name, t.Output.Location, OutputLocationStdout))
		}
	}
	return diags
}

func validateInstalls(m Manifest) []Diagnostic {
	var diags []Diagnostic
	for i, t := range m.tools {
		for j, task := range t.Install.Tasks {
			field := toolField(i, fmt.Sprintf("install.tasks[%d]", j))
			if !task.Type.Valid() {
				diags = append(diags, errorf(field+".type", CodeInvalidEnum, "tool %q install task %d type %q is not one of [%s]", t.Name, j, task.Type, InstallTaskDownload))
			}
			if strings.TrimSpace(task.Source) == "" {
				diags = append(diags, errorf(field+".source", CodeRequired, "tool %q install task %d has no source", t.Name, j))
			} else if u, err := url.Parse(task.Source); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				diags = append(diags, errorf(field+".source", CodeInvalidURL, "tool %q install task %d source %q is not an http(s) URL", t.Name, j, task.Source))
			}
			if strings.TrimSpace(task.Target) == "" {
				diags = append(diags, errorf(field+".target", CodeRequired, "tool %q install task %d has no target", t.Name, j))
			} else if _, err := placeholder.References(task.Target); err != nil {
				diags = append(diags, errorf(field+".target", CodeInvalidReference, "tool %q install task %d target: %v", t.Name, j, err))
			}
			if task.SHA256 != "" && !isHexDigest(task.SHA256) {
				diags = append(diags, errorf(field+".sha256", CodeInvalidDigest, "tool %q install task %d sha256 is not a 64 character hex digest", t.Name, j))
			}
		}
	}
	return diags
}

func isHexDigest(s string) bool {
	sum, err := hex.DecodeString(s)
	return err == nil && len(sum) == sha256.Size
}
