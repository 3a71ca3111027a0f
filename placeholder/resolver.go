package placeholder

import (
	"errors"
	"fmt"
)

// Resolver returns the value for a reference.
type Resolver interface {
	Resolve(ref Reference) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ref Reference) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ref Reference) (string, error) {
	return f(ref)
}

// Map resolves references by their raw text. It is typically used for
// caller-supplied parameters.
type Map map[string]string

// Resolve looks up ref.Raw.
func (m Map) Resolve(ref Reference) (string, error) {
	if v, ok := m[ref.Raw]; ok {
		return v, nil
	}
	return "", Unresolved(ref)
}

// Namespaces dispatches qualified references by namespace and everything else
// to Params.
type Namespaces struct {
	ByName map[string]Resolver
	Params Resolver
}

// Resolve implements Resolver.
func (n Namespaces) Resolve(ref Reference) (string, error) {
	if !ref.Qualified() {
		if n.Params == nil {
			return "", Unresolved(ref)
		}
		return n.Params.Resolve(ref)
	}
	r, ok := n.ByName[ref.Namespace]
	if !ok || r == nil {
		return "", fmt.Errorf("%w: no resolver for namespace %q in %s", ErrUnresolved, ref.Namespace, ref)
	}
	return r.Resolve(ref)
}

// Chain tries resolvers in order and returns the first value found. Errors
// other than ErrUnresolved stop the chain.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ref Reference) (string, error) {
	for _, r := range c {
		v, err := r.Resolve(ref)
		if err == nil {
			return v, nil
		}
		if !IsUnresolved(err) {
			return "", err
		}
	}
	return "", Unresolved(ref)
}

// Unresolved builds the error returned for a missing reference.
func Unresolved(ref Reference) error {
	return fmt.Errorf("%w: %s", ErrUnresolved, ref)
}

// IsUnresolved reports whether err marks a missing reference.
func IsUnresolved(err error) bool {
	return errors.Is(err, ErrUnresolved)
}
