package bind

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/foreign"
	"github.com/haivivi/bindkit/pkg/validate"
)

// Plan validates set and returns the classes Generate would build for it,
// without resolving host types. Property and method entries are bound to
// placeholders that fail with ErrNoHost; the result describes shape only.
func (g *Generator) Plan(set *decl.Set) ([]*ClassDef, error) {
	g.init()
	if errs := validate.Validate(set); len(errs) > 0 {
		return nil, errs
	}
	classes := make([]*ClassDef, 0, len(set.Types))
	for i := range set.Types {
		t := &set.Types[i]
		c := g.NewClass(t)
		for j := range t.Fields {
			f := &t.Fields[j]
			get, put, name := fieldOptions(f)
			p := PropertyDef{Name: name}
			if get {
				p.Get = unbound(t.Name + "." + name)
			}
			if put {
				p.Set = unbound(t.Name + "." + name)
			}
			if get || put {
				c.AddProperty(p)
			}
		}
		for j := range t.Methods {
			m := &t.Methods[j]
			if m.Error != "" && !g.Bridge.Supports(m.Error) {
				return nil, fmt.Errorf("%w: %s.%s returns %s", ErrUnmappedError, t.Name, m.Name, m.Error)
			}
			label := t.Name + "." + m.ExposedName()
			switch m.Kind {
			case decl.MethodGetter:
				c.AddProperty(PropertyDef{Name: m.ExposedName(), Doc: m.Doc, Get: unbound(label)})
			case decl.MethodSetter:
				c.AddProperty(PropertyDef{Name: m.ExposedName(), Doc: m.Doc, Set: unbound(label)})
			default:
				c.AddMethod(MethodDef{Name: m.Name, Doc: m.Doc, Kind: m.Kind, Arity: len(m.ValueParams()), Call: unbound(label)})
			}
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func unbound(name string) Trampoline {
	return func(context.Context, any, []*foreign.Object) (*foreign.Object, error) {
		return nil, fmt.Errorf("%w: %s is not bound to a host type", ErrNoHost, name)
	}
}

// MarshalJSON reports which accessors the property has.
func (p PropertyDef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name"`
		Doc  string `json:"doc,omitempty"`
		Get  bool   `json:"get"`
		Set  bool   `json:"set"`
	}{p.Name, p.Doc, p.Get != nil, p.Set != nil})
}
