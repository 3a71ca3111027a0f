// Package placeholder parses and expands [[namespace.path]] references in
// manifest strings.
//
// A reference whose first dotted component is pmngr or files addresses the
// package-manager path registry or the file registry. Any other reference is
// a caller-supplied parameter named by the whole path.
package placeholder

import (
	"errors"
	"fmt"
	"strings"
)

const (
	openDelim  = "[["
	closeDelim = "]]"
)

// Well-known namespaces.
const (
	NamespacePackageManager = "pmngr"
	NamespaceFiles          = "files"
)

var (
	// ErrSyntax is returned for an unterminated or empty reference.
	ErrSyntax = errors.New("placeholder: invalid expression")
	// ErrUnresolved is returned when a resolver has no value for a reference.
	ErrUnresolved = errors.New("placeholder: unresolved reference")
)

// Reference is one [[...]] occurrence.
type Reference struct {
	// Raw is the trimmed text between the brackets.
	Raw string
	// Namespace is pmngr, files, or empty for a caller parameter.
	Namespace string
	// Path is the remainder after the namespace; for parameters it is Raw.
	Path string
}

// Qualified reports whether the reference addresses a registry namespace.
func (r Reference) Qualified() bool {
	return r.Namespace != ""
}

func (r Reference) String() string {
	return openDelim + r.Raw + closeDelim
}

// ParseReference classifies the text between brackets.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrSyntax)
	}
	head, rest, found := strings.Cut(raw, ".")
	if found && (head == NamespacePackageManager || head == NamespaceFiles) {
		if strings.TrimSpace(rest) == "" {
			return Reference{}, fmt.Errorf("%w: %s namespace without path", ErrSyntax, head)
		}
		return Reference{Raw: raw, Namespace: head, Path: rest}, nil
	}
	return Reference{Raw: raw, Path: raw}, nil
}

// Segment is either literal text or a reference.
type Segment struct {
	Literal string
	Ref     *Reference
}

// Parse splits s into literal and reference segments in order.
func Parse(s string) ([]Segment, error) {
	var segments []Segment
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated reference in %q", ErrSyntax, s)
		}
		end += start + len(openDelim)
		if start > 0 {
			segments = append(segments, Segment{Literal: rest[:start]})
		}
		ref, err := ParseReference(rest[start+len(openDelim) : end])
		if err != nil {
			return nil, fmt.Errorf("%w in %q", err, s)
		}
		segments = append(segments, Segment{Ref: &ref})
		rest = rest[end+len(closeDelim):]
	}
	if rest != "" {
		segments = append(segments, Segment{Literal: rest})
	}
	return segments, nil
}

// References returns every reference in s in order of appearance.
func References(s string) ([]Reference, error) {
	segments, err := Parse(s)
	if err != nil {
		return nil, err
	}
	var refs []Reference
	for _, seg := range segments {
		if seg.Ref != nil {
			refs = append(refs, *seg.Ref)
		}
	}
	return refs, nil
}

// HasReferences reports whether s contains at least one opening bracket pair.
func HasReferences(s string) bool {
	return strings.Contains(s, openDelim)
}

// Expand substitutes every reference in s using r.
func Expand(s string, r Resolver) (string, error) {
	segments, err := Parse(s)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segments {
		if seg.Ref == nil {
			b.WriteString(seg.Literal)
			continue
		}
		value, err := r.Resolve(*seg.Ref)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
	}
	return b.String(), nil
}
