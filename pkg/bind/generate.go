package bind

import (
	"fmt"
	"reflect"

	"github.com/haivivi/bindkit/pkg/attr"
	"github.com/haivivi/bindkit/pkg/convert"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/foreign"
	"github.com/haivivi/bindkit/pkg/validate"
)

var (
	tokenType = reflect.TypeFor[*foreign.Token]()
	errorType = reflect.TypeFor[error]()
)

// Generate validates set and builds a unit from it. hosts maps declared type
// names to host struct types (or pointers to them).
//
// Declaration errors abort generation and are returned as validate.Errors.
// Host problems stop at the first one: a missing host type, a field or
// method the host lacks, a signature that disagrees, a type with no
// conversion, or an error type the bridge cannot map.
func (g *Generator) Generate(set *decl.Set, hosts map[string]reflect.Type) (*Unit, error) {
	g.init()
	if errs := validate.Validate(set); len(errs) > 0 {
		return nil, errs
	}
	u := NewUnit()
	for i := range set.Types {
		t := &set.Types[i]
		host, ok := hosts[t.Name]
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoHost, t.QualName())
		}
		c, err := g.class(t, host)
		if err != nil {
			return nil, err
		}
		u.Add(c)
	}
	g.Logger.Info("generated bindings", "file", set.File, "classes", len(u.Classes), "entries", len(u.Table))
	return u, nil
}

func mismatch(t *decl.TypeDecl, member, format string, args ...any) error {
	return fmt.Errorf("%w: %s.%s: %s", ErrHostMismatch, t.Name, member, fmt.Sprintf(format, args...))
}

func (g *Generator) class(t *decl.TypeDecl, host reflect.Type) (*ClassDef, error) {
	st := host
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s: host type %s is not a struct", ErrHostMismatch, t.Name, host)
	}
	c := g.NewClass(t)
	for i := range t.Fields {
		if err := g.field(c, t, &t.Fields[i], st); err != nil {
			return nil, err
		}
	}
	for i := range t.Methods {
		if err := g.method(c, t, &t.Methods[i], st); err != nil {
			return nil, err
		}
	}
	g.Logger.Debug("built class", "class", c.QualName, "flags", c.Flags, "methods", len(c.Methods), "properties", len(c.Properties))
	return c, nil
}

// receiver checks self against the pointer-to-struct receiver type.
func receiver(recv reflect.Type, self any) (reflect.Value, error) {
	rv := reflect.ValueOf(self)
	if !rv.IsValid() || rv.Type() != recv || rv.IsNil() {
		return reflect.Value{}, &convert.MismatchError{Expected: recv.String(), Actual: describe(self)}
	}
	return rv, nil
}

// fieldOptions returns the field's accessors and exposed name. Options were
// validated, so the first of each kind is the only one.
func fieldOptions(f *decl.FieldDecl) (get, set bool, name string) {
	name = f.Name
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
	return get, set, name
}

func (g *Generator) field(c *ClassDef, t *decl.TypeDecl, f *decl.FieldDecl, st reflect.Type) error {
	get, set, name := fieldOptions(f)
	if !get && !set {
		return nil
	}

	var sf reflect.StructField
	if f.Tuple {
		if f.Index < 0 || f.Index >= st.NumField() {
			return mismatch(t, f.HostName(), "host has %d fields", st.NumField())
		}
		sf = st.Field(f.Index)
	} else {
		var ok bool
		if sf, ok = st.FieldByName(f.Name); !ok {
			return mismatch(t, f.HostName(), "no such field")
		}
	}
	if !sf.IsExported() {
		return mismatch(t, f.HostName(), "field %s is not exported", sf.Name)
	}
	if f.Type != "" && f.Type != sf.Type.String() {
		return mismatch(t, f.HostName(), "declared %s, host has %s", f.Type, sf.Type)
	}
	conv, err := convert.For(sf.Type, g.Convert)
	if err != nil {
		return fmt.Errorf("bind: %s.%s: %w", t.Name, f.HostName(), err)
	}

	recv := reflect.PointerTo(st)
	index := sf.Index
	label := t.Name + "." + name
	p := PropertyDef{Name: name}
	if get {
		p.Get = g.Wrap(label, 0, func(tok *foreign.Token, self any, _ []*foreign.Object) (*foreign.Object, error) {
			rv, err := receiver(recv, self)
			if err != nil {
				return nil, err
			}
			return convert.Encode(tok, conv, rv.Elem().FieldByIndex(index))
		})
	}
	if set {
		p.Set = g.Wrap(label, 1, func(tok *foreign.Token, self any, args []*foreign.Object) (*foreign.Object, error) {
			rv, err := receiver(recv, self)
			if err != nil {
				return nil, err
			}
			v, err := conv.FromForeign(tok, args[0])
			if err != nil {
				return nil, err
			}
			convert.StoreValue(tok, rv.Elem().FieldByIndex(index), v)
			return nil, nil
		})
	}
	c.AddProperty(p)
	return nil
}

// signature is a host method checked against its declaration.
type signature struct {
	fn      reflect.Value
	params  []convert.Converter // nil entries are token parameters
	names   []string
	result  convert.Converter
	hasErr  bool
	errName string
}

func (g *Generator) signature(t *decl.TypeDecl, m *decl.MethodDecl, recv reflect.Type) (*signature, error) {
	hm, ok := recv.MethodByName(m.Name)
	if !ok {
		return nil, mismatch(t, m.Name, "no such method on %s", recv)
	}
	ft := hm.Type
	if got := ft.NumIn() - 1; got != len(m.Params) {
		return nil, mismatch(t, m.Name, "declares %d parameters, host takes %d", len(m.Params), got)
	}
	sig := &signature{fn: hm.Func}
	for i, p := range m.Params {
		pt := ft.In(i + 1)
		sig.names = append(sig.names, p.Name)
		if p.Kind == decl.ParamToken {
			if pt != tokenType {
				return nil, mismatch(t, m.Name, "parameter %s is a token, host takes %s", p.Name, pt)
			}
			sig.params = append(sig.params, nil)
			continue
		}
		if p.Type != "" && p.Type != pt.String() {
			return nil, mismatch(t, m.Name, "parameter %s declared %s, host takes %s", p.Name, p.Type, pt)
		}
		conv, err := convert.For(pt, g.Convert)
		if err != nil {
			return nil, fmt.Errorf("bind: %s.%s: parameter %s: %w", t.Name, m.Name, p.Name, err)
		}
		sig.params = append(sig.params, conv)
	}

	outs := ft.NumOut()
	sig.hasErr = outs > 0 && ft.Out(outs-1).Implements(errorType)
	results := outs
	if sig.hasErr {
		results--
	}
	switch {
	case results > 1:
		return nil, mismatch(t, m.Name, "host returns %d values", results)
	case results == 1:
		rt := ft.Out(0)
		if m.Returns != "" && m.Returns != rt.String() {
			return nil, mismatch(t, m.Name, "declared to return %s, host returns %s", m.Returns, rt)
		}
		conv, err := convert.For(rt, g.Convert)
		if err != nil {
			return nil, fmt.Errorf("bind: %s.%s: result: %w", t.Name, m.Name, err)
		}
		sig.result = conv
	case m.Returns != "":
		return nil, mismatch(t, m.Name, "declared to return %s, host returns nothing", m.Returns)
	}

	sig.errName = m.Error
	switch {
	case sig.hasErr && sig.errName == "":
		sig.errName = ft.Out(outs - 1).String()
	case !sig.hasErr && sig.errName != "":
		return nil, mismatch(t, m.Name, "declared error %s, host returns none", m.Error)
	}
	if !g.Bridge.Supports(sig.errName) {
		return nil, fmt.Errorf("%w: %s.%s returns %s", ErrUnmappedError, t.Name, m.Name, sig.errName)
	}
	return sig, nil
}

// call converts args, invokes the host method on rv and converts the result.
func (sig *signature) call(tok *foreign.Token, rv reflect.Value, args []*foreign.Object) (*foreign.Object, error) {
	in := make([]reflect.Value, 0, len(sig.params)+1)
	in = append(in, rv)
	next := 0
	for i, conv := range sig.params {
		if conv == nil {
			in = append(in, reflect.ValueOf(tok))
			continue
		}
		v, err := conv.FromForeign(tok, args[next])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", sig.names[i], err)
		}
		in = append(in, v)
		next++
	}
	outs := sig.fn.Call(in)
	if sig.hasErr {
		if e := outs[len(outs)-1]; !isNil(e) {
			return nil, e.Interface().(error)
		}
	}
	if sig.result == nil {
		return nil, nil
	}
	return convert.Encode(tok, sig.result, outs[0])
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (g *Generator) method(c *ClassDef, t *decl.TypeDecl, m *decl.MethodDecl, st reflect.Type) error {
	recv := reflect.PointerTo(st)
	sig, err := g.signature(t, m, recv)
	if err != nil {
		return err
	}
	arity := len(m.ValueParams())
	label := t.Name + "." + m.ExposedName()

	var body Body
	switch m.Kind {
	case decl.MethodStatic, decl.MethodClass:
		body = func(tok *foreign.Token, _ any, args []*foreign.Object) (*foreign.Object, error) {
			return sig.call(tok, reflect.New(st), args)
		}
	default:
		body = func(tok *foreign.Token, self any, args []*foreign.Object) (*foreign.Object, error) {
			rv, err := receiver(recv, self)
			if err != nil {
				return nil, err
			}
			return sig.call(tok, rv, args)
		}
	}

	switch m.Kind {
	case decl.MethodGetter:
		c.AddProperty(PropertyDef{Name: m.ExposedName(), Doc: m.Doc, Get: g.Wrap(label, arity, body)})
	case decl.MethodSetter:
		setter := func(tok *foreign.Token, self any, args []*foreign.Object) (*foreign.Object, error) {
			out, err := body(tok, self, args)
			if out != nil {
				out.Drop(tok)
			}
			return nil, err
		}
		c.AddProperty(PropertyDef{Name: m.ExposedName(), Doc: m.Doc, Set: g.Wrap(label, arity, setter)})
	default:
		c.AddMethod(MethodDef{Name: m.Name, Doc: m.Doc, Kind: m.Kind, Arity: arity, Call: g.Wrap(label, arity, body)})
	}
	return nil
}
