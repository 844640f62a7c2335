// Package validate checks declarations before any glue is generated.
//
// Every rule is evaluated over the whole declaration set; nothing stops at
// the first failure. The result is a batch of errors, each with the span a
// front end should point at, sorted by position so repeated runs print the
// same diagnostics in the same order.
package validate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/haivivi/bindkit/pkg/attr"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/span"
)

// Diagnostic messages.
const (
	MsgGetterArgs        = "getter function can only have one argument (of the interpreter-token type)"
	MsgSetterNoArg       = "setter function expected to have one argument"
	MsgSetterArgs        = "setter function can have at most two arguments ([token,] and value)"
	MsgTupleNeedsName    = "`get` and `set` with tuple struct fields require `name`"
	MsgUselessName       = "`name` is useless without `get` or `set`"
	MsgTokenFirst        = "interpreter-token argument must come first"
	msgOnce              = "`%s` may only be specified once"
	msgUnsupported       = "`%s` is not supported on %s"
	msgNoValue           = "`%s` does not take a value"
	msgNeedsValue        = "`%s` requires a value"
	msgDefinedTwice      = "`%s` is defined more than once on %s"
	msgEmptyName         = "`name` must not be empty"
	msgDuplicateTypeName = "type `%s` is declared more than once"
)

// OnceMessage is the duplicate-option message for key.
func OnceMessage(key string) string {
	return fmt.Sprintf(msgOnce, key)
}

// Error is one violated rule.
type Error struct {
	Message string
	Span    span.Span
}

func (e Error) Error() string {
	return e.Span.String() + ": " + e.Message
}

// Errors is the batch of errors found in one run. It implements error so a
// non-empty batch can be returned directly.
type Errors []Error

// Error summarizes the first few errors.
func (es Errors) Error() string {
	if len(es) == 0 {
		return ""
	}
	const maxShown = 3
	var b strings.Builder
	n := min(len(es), maxShown)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(es[i].Error())
	}
	if len(es) > n {
		fmt.Fprintf(&b, "; ... (total %d)", len(es))
	}
	return b.String()
}

// Err returns es as an error, or nil when es is empty.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// Messages returns the messages in order.
func (es Errors) Messages() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Message
	}
	return out
}

// AsErrors extracts Errors from err.
func AsErrors(err error) (Errors, bool) {
	var es Errors
	if errors.As(err, &es) {
		return es, true
	}
	return nil, false
}

// Validate checks every type in set.
func Validate(set *decl.Set) Errors {
	var c collector
	seen := make(map[string]span.Span)
	for i := range set.Types {
		t := &set.Types[i]
		if _, dup := seen[t.QualName()]; dup {
			c.add(t.Span, fmt.Sprintf(msgDuplicateTypeName, t.QualName()))
		} else {
			seen[t.QualName()] = t.Span
		}
		c.typeDecl(t)
	}
	return c.sorted()
}

// ValidateType checks a single type.
func ValidateType(t *decl.TypeDecl) Errors {
	var c collector
	c.typeDecl(t)
	return c.sorted()
}

// ValidateField checks the options of a single field.
func ValidateField(f *decl.FieldDecl) Errors {
	var c collector
	c.field(f)
	return c.sorted()
}

// ValidateMethod checks the parameters and options of a single method.
func ValidateMethod(m *decl.MethodDecl) Errors {
	var c collector
	c.method(m)
	return c.sorted()
}

type collector struct {
	errs Errors
}

func (c *collector) add(sp span.Span, msg string) {
	c.errs = append(c.errs, Error{Message: msg, Span: sp})
}

func (c *collector) sorted() Errors {
	sort.SliceStable(c.errs, func(i, j int) bool {
		return c.errs[i].Span.Before(c.errs[j].Span)
	})
	return c.errs
}

func (c *collector) typeDecl(t *decl.TypeDecl) {
	before := len(c.errs)

	// Exposed names per role; a getter and a setter may share a name.
	getters := make(map[string]bool)
	setters := make(map[string]bool)
	methods := make(map[string]bool)
	claim := func(role map[string]bool, name string, sp span.Span) {
		if name == "" {
			return
		}
		if role[name] {
			c.add(sp, fmt.Sprintf(msgDefinedTwice, name, t.Name))
			return
		}
		role[name] = true
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		set := c.field(f)
		name := f.Name
		if opt, ok := set.Get(attr.KindName); ok {
			name = opt.Value
		} else if f.Tuple {
			name = ""
		}
		if set.Has(attr.KindGet) {
			claim(getters, name, f.Span)
		}
		if set.Has(attr.KindSet) {
			claim(setters, name, f.Span)
		}
	}
	for i := range t.Methods {
		m := &t.Methods[i]
		c.method(m)
		switch m.Kind {
		case decl.MethodGetter:
			claim(getters, m.ExposedName(), m.NameSpan)
		case decl.MethodSetter:
			claim(setters, m.ExposedName(), m.NameSpan)
		default:
			claim(methods, m.Name, m.NameSpan)
		}
	}
	for i := range t.Methods {
		m := &t.Methods[i]
		if m.Kind == decl.MethodGetter || m.Kind == decl.MethodSetter {
			continue
		}
		if getters[m.Name] || setters[m.Name] {
			c.add(m.NameSpan, fmt.Sprintf(msgDefinedTwice, m.Name, t.Name))
		}
	}

	slog.Debug("validated type", "type", t.QualName(), "fields", len(t.Fields), "methods", len(t.Methods), "errors", len(c.errs)-before)
}

// field registers every option of f and reports the outcomes that are not
// valid. It returns the set so callers can resolve the exposed name.
func (c *collector) field(f *decl.FieldDecl) *attr.Set {
	set := attr.NewSet(f.Context())
	c.options(set, f.Context(), f.Options)
	for _, m := range set.Finish() {
		switch m.Kind {
		case attr.KindName:
			c.add(m.Option.ReportSpan(), MsgUselessName)
		default:
			c.add(m.Option.Span, MsgTupleNeedsName)
		}
	}
	if opt, ok := set.Get(attr.KindName); ok && opt.Value == "" {
		c.add(opt.ReportSpan(), msgEmptyName)
	}
	return set
}

func (c *collector) options(set *attr.Set, ctx attr.Context, opts []attr.Option) {
	for _, opt := range opts {
		switch set.Register(opt) {
		case attr.Duplicate:
			c.add(opt.ReportSpan(), OnceMessage(opt.Key))
		case attr.Conflicting:
			c.add(opt.ReportSpan(), conflictMessage(ctx, opt))
		}
	}
}

func conflictMessage(ctx attr.Context, opt attr.Option) string {
	kind := opt.Kind
	if kind == attr.KindUnknown {
		kind = attr.ParseKind(opt.Key)
	}
	if ctx == attr.Method || kind == attr.KindUnknown {
		return fmt.Sprintf(msgUnsupported, opt.Key, ctx)
	}
	if opt.HasValue {
		return fmt.Sprintf(msgNoValue, opt.Key)
	}
	return fmt.Sprintf(msgNeedsValue, opt.Key)
}

func (c *collector) method(m *decl.MethodDecl) {
	set := attr.NewSet(attr.Method)
	c.options(set, attr.Method, m.Options)

	var values, tokens []int
	for i, p := range m.Params {
		if p.Kind == decl.ParamToken {
			tokens = append(tokens, i)
		} else {
			values = append(values, i)
		}
	}
	reported := make(map[int]bool)
	excess := func(msg string, idx int) {
		reported[idx] = true
		c.add(m.Params[idx].Span, msg)
	}

	switch m.Kind {
	case decl.MethodGetter:
		switch {
		case len(values) > 0:
			excess(MsgGetterArgs, values[0])
		case len(tokens) > 1:
			excess(MsgGetterArgs, tokens[1])
		}
	case decl.MethodSetter:
		if len(values) == 0 {
			c.add(m.NameSpan, MsgSetterNoArg)
		}
		idx := -1
		if len(values) > 1 {
			idx = values[1]
		}
		if len(tokens) > 1 && (idx < 0 || tokens[1] < idx) {
			idx = tokens[1]
		}
		if idx >= 0 {
			excess(MsgSetterArgs, idx)
		}
	}

	for _, i := range tokens {
		if i > 0 && !reported[i] {
			c.add(m.Params[i].Span, MsgTokenFirst)
		}
	}
}
