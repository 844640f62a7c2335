// Package gen emits binding glue as Go source.
//
// The emitted file holds one Register<Type> function per declared type and a
// Register function collecting them into a bind.Unit. The glue is typed: it
// calls host fields and methods directly and converts through convert.TryTo,
// convert.From and convert.Store, so it reaches them without reflection.
package gen

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dave/jennifer/jen"

	"github.com/haivivi/bindkit/pkg/attr"
	"github.com/haivivi/bindkit/pkg/bridge"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/validate"
)

const (
	bindPath    = "github.com/haivivi/bindkit/pkg/bind"
	convertPath = "github.com/haivivi/bindkit/pkg/convert"
	declPath    = "github.com/haivivi/bindkit/pkg/decl"
	foreignPath = "github.com/haivivi/bindkit/pkg/foreign"
)

var (
	// ErrOptions is returned for missing emitter options.
	ErrOptions = errors.New("gen: invalid options")

	// ErrMissingType is returned when an exposed field or a value parameter
	// has no declared type.
	ErrMissingType = errors.New("gen: missing declared type")

	// ErrBadType is returned for type expressions the emitter cannot render.
	ErrBadType = errors.New("gen: unsupported type expression")

	// ErrUnmappedError is returned when a declared error type has no
	// exception mapping.
	ErrUnmappedError = errors.New("gen: error type has no exception mapping")
)

// Options configures Emit.
type Options struct {
	// Package is the name of the generated package.
	Package string
	// HostImport is the import path of the package declaring the host types.
	HostImport string
	// Bridge decides which error types are mapped. Nil means a bridge with
	// built-in mappings only.
	Bridge *bridge.Bridge
	// Tool names the generator in the header comment. Defaults to bindgen.
	Tool string
}

// Emit validates set and renders its glue.
func Emit(set *decl.Set, opts Options) ([]byte, error) {
	if opts.Package == "" || opts.HostImport == "" {
		return nil, fmt.Errorf("%w: package and host import are required", ErrOptions)
	}
	if opts.Bridge == nil {
		opts.Bridge = bridge.New(bridge.Options{})
	}
	if opts.Tool == "" {
		opts.Tool = "bindgen"
	}
	if errs := validate.Validate(set); len(errs) > 0 {
		return nil, errs
	}

	e := &emitter{opts: opts, f: jen.NewFile(opts.Package)}
	e.f.HeaderComment(fmt.Sprintf("Code generated by %s. DO NOT EDIT.", opts.Tool))
	if set.File != "" {
		e.f.HeaderComment("Source: " + set.File)
	}

	var registers []jen.Code
	for i := range set.Types {
		t := &set.Types[i]
		if err := e.typeDecl(t); err != nil {
			return nil, fmt.Errorf("gen: %s: %w", t.Name, err)
		}
		registers = append(registers, jen.Id("u").Dot("Add").Call(jen.Id("Register"+t.Name).Call(jen.Id("g"))))
	}

	e.f.Comment("Register builds every declared class into a unit.")
	e.f.Func().Id("Register").Params(jen.Id("g").Op("*").Qual(bindPath, "Generator")).Op("*").Qual(bindPath, "Unit").BlockFunc(func(b *jen.Group) {
		b.Id("u").Op(":=").Qual(bindPath, "NewUnit").Call()
		for _, r := range registers {
			b.Add(r)
		}
		b.Return(jen.Id("u"))
	})

	var buf bytes.Buffer
	if err := e.f.Render(&buf); err != nil {
		return nil, fmt.Errorf("gen: render: %w", err)
	}
	slog.Debug("emitted bindings", "package", opts.Package, "types", len(set.Types), "bytes", buf.Len())
	return buf.Bytes(), nil
}

type emitter struct {
	opts Options
	f    *jen.File
}

// trampoline renders a bind.Body literal.
func trampoline(stmts ...jen.Code) *jen.Statement {
	return jen.Func().
		Params(
			jen.Id("tok").Op("*").Qual(foreignPath, "Token"),
			jen.Id("self").Any(),
			jen.Id("args").Index().Op("*").Qual(foreignPath, "Object"),
		).
		Params(jen.Op("*").Qual(foreignPath, "Object"), jen.Error()).
		Block(stmts...)
}

func wrap(label string, arity int, body jen.Code) *jen.Statement {
	return jen.Id("g").Dot("Wrap").Call(jen.Lit(label), jen.Lit(arity), body)
}

func returnErr(err jen.Code) *jen.Statement {
	return jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), err))
}

func (e *emitter) selfStmts(t *decl.TypeDecl) []jen.Code {
	return []jen.Code{
		jen.List(jen.Id("s"), jen.Err()).Op(":=").Qual(bindPath, "Self").
			Types(jen.Op("*").Qual(e.opts.HostImport, t.Name)).Call(jen.Id("self")),
		returnErr(jen.Err()),
	}
}

func (e *emitter) typeDecl(t *decl.TypeDecl) error {
	td := jen.Dict{jen.Id("Name"): jen.Lit(t.Name)}
	if t.Module != "" {
		td[jen.Id("Module")] = jen.Lit(t.Module)
	}
	if t.Doc != "" {
		td[jen.Id("Doc")] = jen.Lit(t.Doc)
	}
	for name, on := range map[string]bool{"Tuple": t.Tuple, "Dict": t.Dict, "Weakref": t.Weakref, "Subclass": t.Subclass, "GC": t.GC} {
		if on {
			td[jen.Id(name)] = jen.True()
		}
	}

	body := []jen.Code{
		jen.Id("c").Op(":=").Id("g").Dot("NewClass").Call(jen.Op("&").Qual(declPath, "TypeDecl").Values(td)),
	}
	for i := range t.Fields {
		code, err := e.field(t, &t.Fields[i])
		if err != nil {
			return err
		}
		if code != nil {
			body = append(body, code)
		}
	}
	for i := range t.Methods {
		code, err := e.method(t, &t.Methods[i])
		if err != nil {
			return err
		}
		body = append(body, code)
	}
	body = append(body, jen.Return(jen.Id("c")))

	e.f.Commentf("Register%s builds the %s class.", t.Name, t.QualName())
	e.f.Func().Id("Register"+t.Name).
		Params(jen.Id("g").Op("*").Qual(bindPath, "Generator")).
		Op("*").Qual(bindPath, "ClassDef").
		Block(body...)
	e.f.Line()
	return nil
}

func (e *emitter) field(t *decl.TypeDecl, f *decl.FieldDecl) (jen.Code, error) {
	var get, set bool
	name := f.Name
	for _, o := range f.Options {
		switch attr.ParseKind(o.Key) {
		case attr.KindGet:
			get = true
		case attr.KindSet:
			set = true
		case attr.KindName:
			name = o.Value
		}
	}
	if !get && !set {
		return nil, nil
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: field %s", ErrMissingType, f.HostName())
	}
	typ, err := e.typeCode(f.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.HostName(), err)
	}

	// addr is a pointer to the field.
	addr := func() *jen.Statement {
		if f.Tuple {
			return jen.Qual(bindPath, "TupleField").Types(typ).Call(jen.Id("s"), jen.Lit(f.Index))
		}
		return jen.Op("&").Id("s").Dot(f.Name)
	}
	access := func() *jen.Statement {
		if f.Tuple {
			return jen.Op("*").Add(addr())
		}
		return jen.Id("s").Dot(f.Name)
	}
	label := t.Name + "." + name
	prop := jen.Dict{jen.Id("Name"): jen.Lit(name)}
	if get {
		stmts := append(e.selfStmts(t),
			jen.Return(jen.Qual(convertPath, "TryTo").Call(jen.Id("tok"), access())),
		)
		prop[jen.Id("Get")] = wrap(label, 0, trampoline(stmts...))
	}
	if set {
		stmts := append(e.selfStmts(t),
			jen.List(jen.Id("v"), jen.Err()).Op(":=").Qual(convertPath, "From").Types(typ).
				Call(jen.Id("tok"), jen.Id("args").Index(jen.Lit(0)), jen.Id("g").Dot("Convert")),
			returnErr(jen.Err()),
			jen.Qual(convertPath, "Store").Call(jen.Id("tok"), addr(), jen.Id("v")),
			jen.Return(jen.Nil(), jen.Nil()),
		)
		prop[jen.Id("Set")] = wrap(label, 1, trampoline(stmts...))
	}
	return jen.Id("c").Dot("AddProperty").Call(jen.Qual(bindPath, "PropertyDef").Values(prop)), nil
}

func methodKindName(k decl.MethodKind) string {
	switch k {
	case decl.MethodGetter:
		return "MethodGetter"
	case decl.MethodSetter:
		return "MethodSetter"
	case decl.MethodStatic:
		return "MethodStatic"
	case decl.MethodClass:
		return "MethodClass"
	}
	return "MethodPlain"
}

func (e *emitter) method(t *decl.TypeDecl, m *decl.MethodDecl) (jen.Code, error) {
	if !e.opts.Bridge.Supports(m.Error) {
		return nil, fmt.Errorf("%w: method %s returns %s", ErrUnmappedError, m.Name, m.Error)
	}

	var stmts []jen.Code
	var recv *jen.Statement
	switch m.Kind {
	case decl.MethodStatic, decl.MethodClass:
		recv = jen.New(jen.Qual(e.opts.HostImport, t.Name))
	default:
		stmts = append(stmts, e.selfStmts(t)...)
		recv = jen.Id("s")
	}

	var callArgs []jen.Code
	next := 0
	for _, p := range m.Params {
		if p.Kind == decl.ParamToken {
			callArgs = append(callArgs, jen.Id("tok"))
			continue
		}
		if p.Type == "" {
			return nil, fmt.Errorf("%w: method %s parameter %s", ErrMissingType, m.Name, p.Name)
		}
		typ, err := e.typeCode(p.Type)
		if err != nil {
			return nil, fmt.Errorf("method %s parameter %s: %w", m.Name, p.Name, err)
		}
		arg := fmt.Sprintf("a%d", next)
		stmts = append(stmts,
			jen.List(jen.Id(arg), jen.Err()).Op(":=").Qual(convertPath, "From").Types(typ).
				Call(jen.Id("tok"), jen.Id("args").Index(jen.Lit(next)), jen.Id("g").Dot("Convert")),
			returnErr(jen.Qual("fmt", "Errorf").Call(jen.Lit("argument "+p.Name+": %w"), jen.Err())),
		)
		callArgs = append(callArgs, jen.Id(arg))
		next++
	}
	call := recv.Dot(m.Name).Call(callArgs...)

	hasRes := m.Returns != "" && m.Kind != decl.MethodSetter
	hasErr := m.Error != ""
	switch {
	case hasRes && hasErr:
		stmts = append(stmts,
			jen.List(jen.Id("r"), jen.Err()).Op(":=").Add(call),
			returnErr(jen.Err()),
			jen.Return(jen.Qual(convertPath, "TryTo").Call(jen.Id("tok"), jen.Id("r"))),
		)
	case hasRes:
		stmts = append(stmts,
			jen.Id("r").Op(":=").Add(call),
			jen.Return(jen.Qual(convertPath, "TryTo").Call(jen.Id("tok"), jen.Id("r"))),
		)
	case hasErr:
		lhs := jen.Err()
		if m.Returns != "" {
			lhs = jen.List(jen.Id("_"), jen.Err())
		}
		stmts = append(stmts,
			jen.If(lhs.Op(":=").Add(call), jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
			jen.Return(jen.Nil(), jen.Nil()),
		)
	default:
		stmts = append(stmts, call, jen.Return(jen.Nil(), jen.Nil()))
	}

	arity := next
	label := t.Name + "." + m.ExposedName()
	fn := wrap(label, arity, trampoline(stmts...))
	switch m.Kind {
	case decl.MethodGetter, decl.MethodSetter:
		prop := jen.Dict{jen.Id("Name"): jen.Lit(m.ExposedName())}
		if m.Doc != "" {
			prop[jen.Id("Doc")] = jen.Lit(m.Doc)
		}
		role := "Get"
		if m.Kind == decl.MethodSetter {
			role = "Set"
		}
		prop[jen.Id(role)] = fn
		return jen.Id("c").Dot("AddProperty").Call(jen.Qual(bindPath, "PropertyDef").Values(prop)), nil
	}
	def := jen.Dict{
		jen.Id("Name"):  jen.Lit(m.Name),
		jen.Id("Kind"):  jen.Qual(declPath, methodKindName(m.Kind)),
		jen.Id("Arity"): jen.Lit(arity),
		jen.Id("Call"):  fn,
	}
	if m.Doc != "" {
		def[jen.Id("Doc")] = jen.Lit(m.Doc)
	}
	return jen.Id("c").Dot("AddMethod").Call(jen.Qual(bindPath, "MethodDef").Values(def)), nil
}
