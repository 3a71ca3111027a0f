package manifest

import (
	"fmt"
	"slices"
)

// OutputType is the value category a tool returns.
type OutputType string

const (
	OutputTypeValue OutputType = "VALUE"
)

// OutputLocation identifies where a tool result is captured.
type OutputLocation string

const (
	OutputLocationStdout OutputLocation = "STDOUT"
)

// InstallTaskType is the kind of an install task.
type InstallTaskType string

const (
	InstallTaskDownload InstallTaskType = "DOWNLOAD"
)

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	return t == OutputTypeValue
}

// UnmarshalText rejects values outside the closed enumeration.
func (t *OutputType) UnmarshalText(text []byte) error {
	v := OutputType(text)
	if !v.Valid() {
		return fmt.Errorf("%w: output type %q", ErrUnknownEnum, v)
	}
	*t = v
	return nil
}

// Valid reports whether l is a known output location.
func (l OutputLocation) Valid() bool {
	return l == OutputLocationStdout
}

// UnmarshalText rejects values outside the closed enumeration.
func (l *OutputLocation) UnmarshalText(text []byte) error {
	v := OutputLocation(text)
	if !v.Valid() {
		return fmt.Errorf("%w: output location %q", ErrUnknownEnum, v)
	}
	*l = v
	return nil
}

// Valid reports whether t is a known install task type.
func (t InstallTaskType) Valid() bool {
	return t == InstallTaskDownload
}

// UnmarshalText rejects values outside the closed enumeration.
func (t *InstallTaskType) UnmarshalText(text []byte) error {
	v := InstallTaskType(text)
	if !v.Valid() {
		return fmt.Errorf("%w: install task type %q", ErrUnknownEnum, v)
	}
	*t = v
	return nil
}

// ToolDescriptor is one entry of the manifest.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Package     string         `json:"package" yaml:"package"`
	Description string         `json:"description" yaml:"description"`
	Command     []CommandToken `json:"command" yaml:"command"`
	Output      OutputSpec     `json:"output" yaml:"output"`
	Install     InstallSpec    `json:"install" yaml:"install"`
}

// OutputSpec declares where the tool result can be found.
type OutputSpec struct {
	Type     OutputType     `json:"type" yaml:"type"`
	Location OutputLocation `json:"location" yaml:"location"`
}

// InstallSpec lists the tasks that make a tool runnable.
type InstallSpec struct {
	Tasks []InstallTask `json:"tasks" yaml:"tasks"`
}

// InstallTask is a single install step.
type InstallTask struct {
	Type   InstallTaskType `json:"type" yaml:"type"`
	Source string          `json:"source" yaml:"source"`
	Target string          `json:"target" yaml:"target"`
	// SHA256 is an optional hex digest the downloaded artifact must match.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Manifest is the immutable, ordered list of tool descriptors.
type Manifest struct {
	tools []ToolDescriptor
}

// New builds a manifest from descriptors in authoring order.
func New(tools ...ToolDescriptor) Manifest {
	return Manifest{tools: cloneDescriptors(tools)}
}

// Tools returns a copy of all descriptors in authoring order.
func (m Manifest) Tools() []ToolDescriptor {
	return cloneDescriptors(m.tools)
}

// Len returns the number of descriptors.
func (m Manifest) Len() int {
	return len(m.tools)
}

// Names returns descriptor names in authoring order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.tools))
	for _, t := range m.tools {
		names = append(names, t.Name)
	}
	return names
}

// Lookup returns the first descriptor with the given name.
func (m Manifest) Lookup(name string) (ToolDescriptor, bool) {
	for _, t := range m.tools {
		if t.Name == name {
			return cloneDescriptor(t), true
		}
	}
	return ToolDescriptor{}, false
}

// Packages returns the distinct package names in first-seen order.
func (m Manifest) Packages() []string {
	var out []string
	for _, t := range m.tools {
		if !slices.Contains(out, t.Package) {
			out = append(out, t.Package)
		}
	}
	return out
}

func cloneDescriptors(in []ToolDescriptor) []ToolDescriptor {
	out := make([]ToolDescriptor, len(in))
	for i := range in {
		out[i] = cloneDescriptor(in[i])
	}
	return out
}

func cloneDescriptor(in ToolDescriptor) ToolDescriptor {
	out := in
	out.Command = slices.Clone(in.Command)
	out.Install.Tasks = slices.Clone(in.Install.Tasks)
	return out
}
