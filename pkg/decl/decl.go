// Package decl is the declaration model consumed by the validator and the
// binding generators: types, their exposed fields and their methods, each
// carrying the source spans diagnostics point at.
//
// Declarations are usually produced by a front end; Load and Parse read them
// from YAML files.
package decl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/bindkit/pkg/attr"
	"github.com/haivivi/bindkit/pkg/span"
)

// DefaultModule is the module classes are qualified with when none is given.
const DefaultModule = "builtins"

// FieldDecl is a field of a host type.
type FieldDecl struct {
	// Name is the host field name. Tuple fields have no name.
	Name string `msgpack:"name,omitempty"`
	// Index is the position of a tuple field.
	Index int `msgpack:"index"`
	// Type is the declared host type, as written.
	Type    string        `msgpack:"type"`
	Tuple   bool          `msgpack:"tuple"`
	Options []attr.Option `msgpack:"options,omitempty"`

	Span span.Span `msgpack:"-"`
}

// Context returns the attribute context the field's options are checked in.
func (f *FieldDecl) Context() attr.Context {
	if f.Tuple {
		return attr.TupleField
	}
	return attr.NamedField
}

// HostName returns the field's name for messages: its name, or its index for
// tuple fields.
func (f *FieldDecl) HostName() string {
	if f.Tuple {
		return fmt.Sprintf("%d", f.Index)
	}
	return f.Name
}

// ParamKind tags a method parameter.
type ParamKind int

const (
	ParamValue ParamKind = iota
	ParamToken
)

func (k ParamKind) String() string {
	if k == ParamToken {
		return "token"
	}
	return "value"
}

// Param is a method parameter.
type Param struct {
	Name string    `msgpack:"name"`
	Kind ParamKind `msgpack:"kind"`
	Type string    `msgpack:"type,omitempty"`

	Span span.Span `msgpack:"-"`
}

// MethodKind is the role of a method on the foreign side.
type MethodKind int

const (
	MethodPlain MethodKind = iota
	MethodGetter
	MethodSetter
	MethodStatic
	MethodClass
)

func (k MethodKind) String() string {
	switch k {
	case MethodGetter:
		return "getter"
	case MethodSetter:
		return "setter"
	case MethodStatic:
		return "static"
	case MethodClass:
		return "class"
	default:
		return "plain"
	}
}

// MarshalText encodes the kind by name.
func (k MethodKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseMethodKind maps a source spelling to a MethodKind.
func ParseMethodKind(s string) (MethodKind, bool) {
	switch s {
	case "", "plain", "method":
		return MethodPlain, true
	case "getter":
		return MethodGetter, true
	case "setter":
		return MethodSetter, true
	case "static", "staticmethod":
		return MethodStatic, true
	case "class", "classmethod":
		return MethodClass, true
	}
	return MethodPlain, false
}

// MethodDecl is a method of a host type.
type MethodDecl struct {
	Name   string     `msgpack:"name"`
	Kind   MethodKind `msgpack:"kind"`
	Params []Param    `msgpack:"params,omitempty"`
	// Returns is the declared result type, empty for none.
	Returns string `msgpack:"returns,omitempty"`
	// Error is the declared error type, empty when the method cannot fail.
	Error   string        `msgpack:"error,omitempty"`
	Doc     string        `msgpack:"doc,omitempty"`
	Options []attr.Option `msgpack:"options,omitempty"`

	Span     span.Span `msgpack:"-"`
	NameSpan span.Span `msgpack:"-"`
}

// ValueParams returns the parameters that are not interpreter tokens.
func (m *MethodDecl) ValueParams() []Param {
	var out []Param
	for _, p := range m.Params {
		if p.Kind == ParamValue {
			out = append(out, p)
		}
	}
	return out
}

// TakesToken reports whether the first parameter is an interpreter token.
func (m *MethodDecl) TakesToken() bool {
	return len(m.Params) > 0 && m.Params[0].Kind == ParamToken
}

// ExposedName is the attribute name of a getter or setter: the method name
// without its get_/set_ (or Go-style Get/Set) prefix.
func (m *MethodDecl) ExposedName() string {
	switch m.Kind {
	case MethodGetter:
		return trimAccessorPrefix(m.Name, "get_", "Get")
	case MethodSetter:
		return trimAccessorPrefix(m.Name, "set_", "Set")
	}
	return m.Name
}

func trimAccessorPrefix(s, snake, camel string) string {
	if rest, ok := strings.CutPrefix(s, snake); ok && rest != "" {
		return rest
	}
	if rest, ok := strings.CutPrefix(s, camel); ok && rest != "" && unicode.IsUpper([]rune(rest)[0]) {
		return rest
	}
	return s
}

// TypeDecl is a host type exposed as a foreign class.
type TypeDecl struct {
	Name   string `msgpack:"name"`
	Module string `msgpack:"module,omitempty"`
	Doc    string `msgpack:"doc,omitempty"`
	// Tuple marks a type whose fields are positional.
	Tuple bool `msgpack:"tuple"`
	// Dict gives instances a __dict__.
	Dict bool `msgpack:"dict"`
	// Weakref makes instances weakly referenceable.
	Weakref bool `msgpack:"weakref"`
	// Subclass allows foreign code to subclass the type.
	Subclass bool `msgpack:"subclass"`
	// GC opts the type into cyclic garbage collection.
	GC      bool         `msgpack:"gc"`
	Fields  []FieldDecl  `msgpack:"fields,omitempty"`
	Methods []MethodDecl `msgpack:"methods,omitempty"`

	Span span.Span `msgpack:"-"`
}

// QualName is the dotted name the class is registered under.
func (t *TypeDecl) QualName() string {
	m := t.Module
	if m == "" {
		m = DefaultModule
	}
	return m + "." + t.Name
}

// Set is a set of declarations, usually one file.
type Set struct {
	File   string     `msgpack:"-"`
	Module string     `msgpack:"module,omitempty"`
	Types  []TypeDecl `msgpack:"types"`
}

// Lookup returns the type named name.
func (s *Set) Lookup(name string) (*TypeDecl, bool) {
	for i := range s.Types {
		if s.Types[i].Name == name {
			return &s.Types[i], true
		}
	}
	return nil, false
}

// Digest returns a stable hex digest of the declarations, ignoring source
// positions.
func Digest(s *Set) (string, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("decl: digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
