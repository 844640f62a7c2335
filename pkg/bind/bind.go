// Package bind turns validated declarations into the class definitions an
// embedded interpreter registers: one ClassDef per type, with a trampoline
// for every exposed method and property accessor.
//
// Generate builds definitions at run time by reflecting over the host types.
// Package gen emits the same definitions as Go source ahead of time; both
// share ClassDef and Generator.Wrap.
package bind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/haivivi/bindkit/pkg/bridge"
	"github.com/haivivi/bindkit/pkg/convert"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/foreign"
)

var (
	// ErrNoHost is returned when a declared type has no host type.
	ErrNoHost = errors.New("bind: no host type")

	// ErrHostMismatch is returned when a host type does not have the
	// declared field or method, or its signature disagrees.
	ErrHostMismatch = errors.New("bind: host does not match declaration")

	// ErrUnmappedError is returned when a method's error type has no
	// exception mapping.
	ErrUnmappedError = errors.New("bind: error type has no exception mapping")

	// ErrNoEntry is returned by Unit.Call for unknown names.
	ErrNoEntry = errors.New("bind: no such entry")
)

// Flags are the type flags of a class.
type Flags uint32

const (
	FlagDefault Flags = 0
	// FlagHaveGC opts the class into cyclic garbage collection.
	FlagHaveGC Flags = 1 << iota
	// FlagBaseType allows foreign subclasses.
	FlagBaseType
)

// String lists the set flags.
func (f Flags) String() string {
	if f == FlagDefault {
		return "default"
	}
	s := ""
	if f&FlagHaveGC != 0 {
		s += "|have_gc"
	}
	if f&FlagBaseType != 0 {
		s += "|base_type"
	}
	return "default" + s
}

// MarshalText encodes the flags as String does.
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Trampoline is the uniform entry point the interpreter calls. self is the
// host receiver (nil for static and class methods), args are borrowed. On
// failure the exception is already pending and the error is *bridge.Raised.
type Trampoline func(ctx context.Context, self any, args []*foreign.Object) (*foreign.Object, error)

// Body is the typed glue a trampoline wraps. It runs with a live token and
// returns host errors unconverted.
type Body func(tok *foreign.Token, self any, args []*foreign.Object) (*foreign.Object, error)

// MethodDef is a callable attribute.
type MethodDef struct {
	Name  string          `json:"name"`
	Doc   string          `json:"doc,omitempty"`
	Kind  decl.MethodKind `json:"kind"`
	Arity int             `json:"arity"`
	Call  Trampoline      `json:"-"`
}

// PropertyDef is a data attribute. A nil Get makes it write-only, a nil Set
// read-only.
type PropertyDef struct {
	Name string     `json:"name"`
	Doc  string     `json:"doc,omitempty"`
	Get  Trampoline `json:"-"`
	Set  Trampoline `json:"-"`
}

// MemberDef is a fixed slot in the instance layout.
type MemberDef struct {
	Name     string `json:"name"`
	Offset   int    `json:"offset"`
	ReadOnly bool   `json:"readonly"`
}

// Slot offsets in the instance layout: object header, host pointer, then the
// optional dict and weak-reference list.
const (
	ptrSize    = 8
	headerSize = 2 * ptrSize
	slotsStart = headerSize + ptrSize
)

// ClassDef is the definition of one foreign class.
type ClassDef struct {
	Name       string        `json:"name"`
	QualName   string        `json:"qualname"`
	Doc        string        `json:"doc,omitempty"`
	Flags      Flags         `json:"flags"`
	Methods    []MethodDef   `json:"methods"`
	Properties []PropertyDef `json:"properties"`
	Members    []MemberDef   `json:"members,omitempty"`
	// BasicSize is the instance size in bytes.
	BasicSize int `json:"basicsize"`

	props map[string]int
	dicts sync.Map // host receiver -> *foreign.Object
}

// NewClass returns an empty class for t with flags, members and the
// __dict__ property derived from the declaration.
func (g *Generator) NewClass(t *decl.TypeDecl) *ClassDef {
	g.init()
	c := &ClassDef{
		Name:      t.Name,
		QualName:  t.QualName(),
		Doc:       t.Doc,
		BasicSize: slotsStart,
		props:     make(map[string]int),
	}
	if t.GC || t.Dict {
		c.Flags |= FlagHaveGC
	}
	if t.Subclass {
		c.Flags |= FlagBaseType
	}
	if t.Dict {
		c.Members = append(c.Members, MemberDef{Name: "__dictoffset__", Offset: c.BasicSize, ReadOnly: true})
		c.BasicSize += ptrSize
		c.AddProperty(PropertyDef{Name: "__dict__", Get: g.Wrap(t.Name+".__dict__", 0, c.instanceDict)})
	}
	if t.Weakref {
		c.Members = append(c.Members, MemberDef{Name: "__weaklistoffset__", Offset: c.BasicSize, ReadOnly: true})
		c.BasicSize += ptrSize
	}
	return c
}

// AddMethod appends a method.
func (c *ClassDef) AddMethod(m MethodDef) {
	c.Methods = append(c.Methods, m)
}

// AddProperty adds p, merging it with an existing property of the same name:
// a getter and a setter declared separately become one property.
func (c *ClassDef) AddProperty(p PropertyDef) {
	if c.props == nil {
		c.props = make(map[string]int)
	}
	i, ok := c.props[p.Name]
	if !ok {
		c.props[p.Name] = len(c.Properties)
		c.Properties = append(c.Properties, p)
		return
	}
	cur := &c.Properties[i]
	if p.Get != nil {
		cur.Get = p.Get
	}
	if p.Set != nil {
		cur.Set = p.Set
	}
	if cur.Doc == "" {
		cur.Doc = p.Doc
	}
}

// Property returns the property named name.
func (c *ClassDef) Property(name string) (*PropertyDef, bool) {
	i, ok := c.props[name]
	if !ok {
		return nil, false
	}
	return &c.Properties[i], true
}

// Method returns the method named name.
func (c *ClassDef) Method(name string) (*MethodDef, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

func (c *ClassDef) instanceDict(tok *foreign.Token, self any, _ []*foreign.Object) (*foreign.Object, error) {
	if self == nil {
		return nil, &convert.MismatchError{Expected: c.Name + " instance", Actual: "NoneType"}
	}
	if d, ok := c.dicts.Load(self); ok {
		return d.(*foreign.Object).Clone(tok), nil
	}
	d := tok.Own(tok.Runtime().NewDict(nil, nil))
	if prev, loaded := c.dicts.LoadOrStore(self, d); loaded {
		d.Drop(tok)
		d = prev.(*foreign.Object)
	}
	return d.Clone(tok), nil
}

// Release drops the per-instance state held for self, such as its __dict__.
// The registration collaborator calls it when the instance is deallocated.
func (c *ClassDef) Release(tok *foreign.Token, self any) {
	if d, ok := c.dicts.LoadAndDelete(self); ok {
		d.(*foreign.Object).Drop(tok)
	}
}

// EntryKind tells what a table entry refers to.
type EntryKind int

const (
	EntryMethod EntryKind = iota
	EntryProperty
)

// Entry is one row of the registration table.
type Entry struct {
	Kind     EntryKind
	Class    *ClassDef
	Method   *MethodDef
	Property *PropertyDef
}

// Registrar receives finished classes, typically the module registration
// of the embedding.
type Registrar interface {
	AddClass(def *ClassDef) error
}

// Unit is the result of one generation pass.
type Unit struct {
	Classes []*ClassDef
	// Table maps "Class.attr" to its entry.
	Table map[string]Entry
}

// NewUnit returns an empty unit.
func NewUnit() *Unit {
	return &Unit{Table: make(map[string]Entry)}
}

// Add appends c and indexes its attributes.
func (u *Unit) Add(c *ClassDef) {
	u.Classes = append(u.Classes, c)
	for i := range c.Methods {
		u.Table[c.Name+"."+c.Methods[i].Name] = Entry{Kind: EntryMethod, Class: c, Method: &c.Methods[i]}
	}
	for i := range c.Properties {
		u.Table[c.Name+"."+c.Properties[i].Name] = Entry{Kind: EntryProperty, Class: c, Property: &c.Properties[i]}
	}
}

// Names returns the table keys in sorted order.
func (u *Unit) Names() []string {
	names := make([]string, 0, len(u.Table))
	for k := range u.Table {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Register hands every class to r in declaration order.
func (u *Unit) Register(r Registrar) error {
	for _, c := range u.Classes {
		if err := r.AddClass(c); err != nil {
			return fmt.Errorf("bind: register %s: %w", c.QualName, err)
		}
	}
	return nil
}

// Call dispatches through the table the way the interpreter would: methods
// are called, properties are read with no arguments and written with one.
func (u *Unit) Call(ctx context.Context, name string, self any, args ...*foreign.Object) (*foreign.Object, error) {
	e, ok := u.Table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}
	if e.Kind == EntryMethod {
		return e.Method.Call(ctx, self, args)
	}
	if len(args) == 0 {
		if e.Property.Get == nil {
			return nil, fmt.Errorf("%w: %s is write-only", ErrNoEntry, name)
		}
		return e.Property.Get(ctx, self, args)
	}
	if e.Property.Set == nil {
		return nil, fmt.Errorf("%w: %s is read-only", ErrNoEntry, name)
	}
	return e.Property.Set(ctx, self, args)
}

// Generator builds units. The zero value is not usable; Interp and Bridge
// are required.
type Generator struct {
	Interp  *foreign.Interpreter
	Bridge  *bridge.Bridge
	Convert convert.Options
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	once sync.Once
}

func (g *Generator) init() {
	g.once.Do(func() {
		if g.Logger == nil {
			g.Logger = slog.Default()
		}
		if !g.Bridge.Supports(panicTypeName) {
			bridge.RegisterType[*PanicError](g.Bridge, "PanicException")
		}
	})
}
