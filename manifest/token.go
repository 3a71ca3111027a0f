package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEnum is returned when a value is outside a closed enumeration.
	ErrUnknownEnum = errors.New("manifest: unknown enumeration value")
	// ErrInvalidToken is returned for token kind/varType combinations that
	// cannot be represented.
	ErrInvalidToken = errors.New("manifest: invalid command token")
)

// TokenKind distinguishes constant from variable command tokens.
type TokenKind string

const (
	TokenConst TokenKind = "CONST"
	TokenVar   TokenKind = "VAR"
)

// VarType is the semantic role of the value a VAR token references.
type VarType string

const (
	VarExec  VarType = "EXEC"
	VarFile  VarType = "FILE"
	VarValue VarType = "VALUE"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenConst || k == TokenVar
}

// UnmarshalText rejects values outside the closed enumeration.
func (k *TokenKind) UnmarshalText(text []byte) error {
	v := TokenKind(text)
	if !v.Valid() {
		return fmt.Errorf("%w: token kind %q", ErrUnknownEnum, v)
	}
	*k = v
	return nil
}

// Valid reports whether t is a known variable type.
func (t VarType) Valid() bool {
	switch t {
	case VarExec, VarFile, VarValue:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects values outside the closed enumeration.
func (t *VarType) UnmarshalText(text []byte) error {
	v := VarType(text)
	if !v.Valid() {
		return fmt.Errorf("%w: var type %q", ErrUnknownEnum, v)
	}
	*t = v
	return nil
}

// CommandToken is one element of a command template. The zero value is not a
// valid token; use Const, Var or InputFile, or decode one from a manifest.
type CommandToken struct {
	kind    TokenKind
	value   string
	varType VarType
	asInput bool
}

// Const returns a constant token.
func Const(value string) CommandToken {
	return CommandToken{kind: TokenConst, value: value}
}

// Var returns a variable token with the given role. It panics on an unknown
// role; manifests decoded from data report the error instead.
func Var(varType VarType, value string) CommandToken {
	if !varType.Valid() {
		panic(fmt.Sprintf("manifest: invalid var type %q", varType))
	}
	return CommandToken{kind: TokenVar, value: value, varType: varType}
}

// InputFile returns a FILE variable token marked as a required input.
func InputFile(value string) CommandToken {
	return CommandToken{kind: TokenVar, value: value, varType: VarFile, asInput: true}
}

// Kind returns the token kind.
func (t CommandToken) Kind() TokenKind { return t.kind }

// Value returns the literal or placeholder pattern.
func (t CommandToken) Value() string { return t.value }

// VarType returns the variable role and whether the token has one. CONST
// tokens never have a role.
func (t CommandToken) VarType() (VarType, bool) {
	return t.varType, t.kind == TokenVar
}

// AsInput reports whether a FILE token references a required input.
func (t CommandToken) AsInput() bool { return t.asInput }

// IsConst reports whether the token is a constant.
func (t CommandToken) IsConst() bool { return t.kind == TokenConst }

// IsVar reports whether the token is a variable.
func (t CommandToken) IsVar() bool { return t.kind == TokenVar }

// IsZero reports whether t was never initialised.
func (t CommandToken) IsZero() bool { return t.kind == "" }

func (t CommandToken) String() string {
	if t.kind == TokenVar {
		return fmt.Sprintf("VAR(%s)%s", t.varType, t.value)
	}
	return t.value
}

type tokenDocument struct {
	Kind    TokenKind `json:"kind" yaml:"kind"`
	Value   string    `json:"value" yaml:"value"`
	VarType VarType   `json:"varType,omitempty" yaml:"varType,omitempty"`
	AsInput bool      `json:"asInput,omitempty" yaml:"asInput,omitempty"`
}

func (t CommandToken) document() tokenDocument {
	return tokenDocument{
		Kind:    t.kind,
		Value:   t.value,
		VarType: t.varType,
		AsInput: t.asInput,
	}
}

func tokenFromDocument(doc tokenDocument) (CommandToken, error) {
	switch doc.Kind {
	case TokenConst:
		if doc.VarType != "" {
			return CommandToken{}, fmt.Errorf("%w: CONST token %q has varType %s", ErrInvalidToken, doc.Value, doc.VarType)
		}
		if doc.AsInput {
			return CommandToken{}, fmt.Errorf("%w: CONST token %q has asInput", ErrInvalidToken, doc.Value)
		}
		return Const(doc.Value), nil
	case TokenVar:
		if doc.VarType == "" {
			return CommandToken{}, fmt.Errorf("%w: VAR token %q has no varType", ErrInvalidToken, doc.Value)
		}
		if doc.AsInput && doc.VarType != VarFile {
			return CommandToken{}, fmt.Errorf("%w: asInput on %s token %q", ErrInvalidToken, doc.VarType, doc.Value)
		}
		return CommandToken{kind: TokenVar, value: doc.Value, varType: doc.VarType, asInput: doc.AsInput}, nil
	case "":
		return CommandToken{}, fmt.Errorf("%w: missing kind", ErrInvalidToken)
	default:
		return CommandToken{}, fmt.Errorf("%w: token kind %q", ErrUnknownEnum, doc.Kind)
	}
}

// MarshalJSON encodes the token in manifest form.
func (t CommandToken) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("%w: zero token", ErrInvalidToken)
	}
	return json.Marshal(t.document())
}

// UnmarshalJSON decodes and checks a token. Unknown keys are rejected.
func (t *CommandToken) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc tokenDocument
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	tok, err := tokenFromDocument(doc)
	if err != nil {
		return err
	}
	*t = tok
	return nil
}

// MarshalYAML encodes the token in manifest form.
func (t CommandToken) MarshalYAML() (any, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("%w: zero token", ErrInvalidToken)
	}
	return t.document(), nil
}
