package decl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/token"

	"github.com/haivivi/bindkit/pkg/attr"
	"github.com/haivivi/bindkit/pkg/span"
)

// ErrInvalid is wrapped by every error Parse returns for a malformed
// declaration file. Option misuse is not a parse error; it is left for the
// validator.
var ErrInvalid = errors.New("decl: invalid declaration file")

// Load reads and parses the declaration file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decl: read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses a YAML declaration file. name is recorded in every span.
//
//	module: geometry
//	types:
//	  - name: Point
//	    fields:
//	      - {name: X, type: float64, options: [get, set, {name: x}]}
//	    methods:
//	      - name: get_norm
//	        kind: getter
//	        params: [{name: tok, kind: token}]
//	        returns: float64
func Parse(name string, data []byte) (*Set, error) {
	f, err := parser.ParseBytes(data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	p := &loader{file: name, lines: lineStarts(data), data: data}
	set := &Set{File: name}
	for _, doc := range f.Docs {
		if doc == nil || doc.Body == nil {
			continue
		}
		if err := p.set(doc.Body, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

type loader struct {
	file  string
	data  []byte
	lines []int
}

func lineStarts(data []byte) []int {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// pos converts a token position (1-based line and rune column) to a Pos with
// a byte offset.
func (l *loader) pos(tp *token.Position) span.Pos {
	if tp == nil || tp.Line <= 0 || tp.Line > len(l.lines) {
		return span.Pos{}
	}
	off := l.lines[tp.Line-1]
	for col := 1; col < tp.Column && off < len(l.data) && l.data[off] != '\n'; col++ {
		_, size := utf8.DecodeRune(l.data[off:])
		off += size
	}
	return span.Pos{Line: tp.Line, Column: tp.Column, Offset: off}
}

// tokenSpan covers the source text of a scalar token, quotes included.
func (l *loader) tokenSpan(tk *token.Token) span.Span {
	if tk == nil {
		return span.Span{File: l.file}
	}
	start := l.pos(tk.Position)
	n := len(tk.Value)
	switch tk.Type {
	case token.DoubleQuoteType, token.SingleQuoteType:
		n += 2
	}
	if n == 0 {
		n = 1
	}
	end := start
	end.Offset += n
	end.Column += utf8.RuneCountInString(tk.Value) + (n - len(tk.Value))
	return span.Span{File: l.file, Start: start, End: end}
}

func (l *loader) nodeSpan(n ast.Node) span.Span {
	if n == nil {
		return span.Span{File: l.file}
	}
	return l.tokenSpan(n.GetToken())
}

func (l *loader) errorf(n ast.Node, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, l.nodeSpan(n), fmt.Sprintf(format, args...))
}

// entry is one key/value of a mapping.
type entry struct {
	key   string
	keyN  ast.Node
	value ast.Node
}

func (l *loader) mapping(n ast.Node) ([]entry, error) {
	var values []*ast.MappingValueNode
	switch m := unwrap(n).(type) {
	case *ast.MappingNode:
		values = m.Values
	case *ast.MappingValueNode:
		values = []*ast.MappingValueNode{m}
	default:
		return nil, l.errorf(n, "expected a mapping")
	}
	out := make([]entry, 0, len(values))
	for _, mv := range values {
		key, ok := scalar(mv.Key)
		if !ok {
			return nil, l.errorf(mv.Key, "mapping key must be a scalar")
		}
		out = append(out, entry{key: key, keyN: mv.Key, value: mv.Value})
	}
	return out, nil
}

func (l *loader) sequence(n ast.Node) ([]ast.Node, error) {
	switch s := unwrap(n).(type) {
	case *ast.SequenceNode:
		return s.Values, nil
	case *ast.NullNode:
		return nil, nil
	}
	return nil, l.errorf(n, "expected a sequence")
}

func (l *loader) str(n ast.Node) (string, error) {
	s, ok := scalar(n)
	if !ok {
		return "", l.errorf(n, "expected a scalar")
	}
	return s, nil
}

func (l *loader) boolean(n ast.Node) (bool, error) {
	if b, ok := unwrap(n).(*ast.BoolNode); ok {
		return b.Value, nil
	}
	return false, l.errorf(n, "expected true or false")
}

func unwrap(n ast.Node) ast.Node {
	for {
		switch v := n.(type) {
		case *ast.TagNode:
			n = v.Value
		case *ast.AnchorNode:
			n = v.Value
		default:
			return n
		}
	}
}

func scalar(n ast.Node) (string, bool) {
	switch v := unwrap(n).(type) {
	case *ast.StringNode:
		return v.Value, true
	case *ast.LiteralNode:
		return v.Value.Value, true
	case *ast.BoolNode, *ast.IntegerNode, *ast.FloatNode, *ast.InfinityNode, *ast.NanNode:
		return v.GetToken().Value, true
	case *ast.NullNode:
		return "", true
	}
	return "", false
}

func (l *loader) set(n ast.Node, set *Set) error {
	entries, err := l.mapping(n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.key {
		case "module":
			if set.Module, err = l.str(e.value); err != nil {
				return err
			}
		case "types":
			items, err := l.sequence(e.value)
			if err != nil {
				return err
			}
			for _, item := range items {
				t, err := l.typeDecl(item, set.Module)
				if err != nil {
					return err
				}
				set.Types = append(set.Types, t)
			}
		default:
			return l.errorf(e.keyN, "unknown key %q", e.key)
		}
	}
	return nil
}

func (l *loader) typeDecl(n ast.Node, module string) (TypeDecl, error) {
	t := TypeDecl{Module: module, Span: l.nodeSpan(n)}
	entries, err := l.mapping(n)
	if err != nil {
		return t, err
	}
	var fields, methods ast.Node
	for _, e := range entries {
		switch e.key {
		case "name":
			t.Name, err = l.str(e.value)
			t.Span = l.nodeSpan(e.value)
		case "module":
			t.Module, err = l.str(e.value)
		case "doc":
			t.Doc, err = l.str(e.value)
		case "tuple":
			t.Tuple, err = l.boolean(e.value)
		case "dict":
			t.Dict, err = l.boolean(e.value)
		case "weakref":
			t.Weakref, err = l.boolean(e.value)
		case "subclass":
			t.Subclass, err = l.boolean(e.value)
		case "gc":
			t.GC, err = l.boolean(e.value)
		case "fields":
			fields = e.value
		case "methods":
			methods = e.value
		default:
			err = l.errorf(e.keyN, "unknown type key %q", e.key)
		}
		if err != nil {
			return t, err
		}
	}
	if t.Name == "" {
		return t, l.errorf(n, "type without a name")
	}
	// Fields are read after the whole mapping so `tuple` may come last.
	if fields != nil {
		items, err := l.sequence(fields)
		if err != nil {
			return t, err
		}
		for i, item := range items {
			f, err := l.field(item, i, t.Tuple)
			if err != nil {
				return t, err
			}
			t.Fields = append(t.Fields, f)
		}
	}
	if methods != nil {
		items, err := l.sequence(methods)
		if err != nil {
			return t, err
		}
		for _, item := range items {
			m, err := l.method(item)
			if err != nil {
				return t, err
			}
			t.Methods = append(t.Methods, m)
		}
	}
	return t, nil
}

func (l *loader) field(n ast.Node, index int, tuple bool) (FieldDecl, error) {
	f := FieldDecl{Index: index, Tuple: tuple, Span: l.nodeSpan(n)}
	entries, err := l.mapping(n)
	if err != nil {
		return f, err
	}
	for _, e := range entries {
		switch e.key {
		case "name":
			f.Name, err = l.str(e.value)
			f.Span = l.nodeSpan(e.value)
		case "index":
			var s string
			if s, err = l.str(e.value); err == nil {
				if f.Index, err = strconv.Atoi(s); err != nil {
					err = l.errorf(e.value, "index must be an integer")
				}
			}
			f.Tuple = true
		case "type":
			f.Type, err = l.str(e.value)
		case "options":
			f.Options, err = l.options(e.value)
		default:
			err = l.errorf(e.keyN, "unknown field key %q", e.key)
		}
		if err != nil {
			return f, err
		}
	}
	if !f.Tuple && f.Name == "" {
		return f, l.errorf(n, "named field without a name")
	}
	if f.Type == "" {
		return f, l.errorf(n, "field %s has no type", f.HostName())
	}
	return f, nil
}

// options reads a flow or block sequence whose items are either bare keys
// (`get`) or single-entry mappings (`{name: x}`).
func (l *loader) options(n ast.Node) ([]attr.Option, error) {
	items, err := l.sequence(n)
	if err != nil {
		return nil, err
	}
	var out []attr.Option
	for _, item := range items {
		if key, ok := scalar(item); ok {
			sp := l.nodeSpan(item)
			out = append(out, attr.Option{Kind: attr.ParseKind(key), Key: key, Span: sp})
			continue
		}
		entries, err := l.mapping(item)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			value, ok := scalar(e.value)
			if !ok {
				return nil, l.errorf(e.value, "option %q needs a scalar value", e.key)
			}
			keySpan := l.nodeSpan(e.keyN)
			valueSpan := l.nodeSpan(e.value)
			out = append(out, attr.Option{
				Kind:      attr.ParseKind(e.key),
				Key:       e.key,
				Value:     value,
				HasValue:  true,
				Span:      span.Span{File: l.file, Start: keySpan.Start, End: valueSpan.End},
				ValueSpan: valueSpan,
			})
		}
	}
	return out, nil
}

func (l *loader) method(n ast.Node) (MethodDecl, error) {
	m := MethodDecl{Span: l.nodeSpan(n)}
	entries, err := l.mapping(n)
	if err != nil {
		return m, err
	}
	for _, e := range entries {
		switch e.key {
		case "name":
			m.Name, err = l.str(e.value)
			m.NameSpan = l.nodeSpan(e.value)
			m.Span = m.NameSpan
		case "kind":
			var s string
			if s, err = l.str(e.value); err == nil {
				var ok bool
				if m.Kind, ok = ParseMethodKind(s); !ok {
					err = l.errorf(e.value, "unknown method kind %q", s)
				}
			}
		case "params":
			m.Params, err = l.params(e.value)
		case "returns":
			m.Returns, err = l.str(e.value)
		case "error":
			m.Error, err = l.str(e.value)
		case "doc":
			m.Doc, err = l.str(e.value)
		case "options":
			m.Options, err = l.options(e.value)
		default:
			err = l.errorf(e.keyN, "unknown method key %q", e.key)
		}
		if err != nil {
			return m, err
		}
	}
	if m.Name == "" {
		return m, l.errorf(n, "method without a name")
	}
	return m, nil
}

func (l *loader) params(n ast.Node) ([]Param, error) {
	items, err := l.sequence(n)
	if err != nil {
		return nil, err
	}
	out := make([]Param, 0, len(items))
	for _, item := range items {
		p := Param{Span: l.nodeSpan(item)}
		entries, err := l.mapping(item)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch e.key {
			case "name":
				p.Name, err = l.str(e.value)
				p.Span = l.nodeSpan(e.value)
			case "type":
				p.Type, err = l.str(e.value)
			case "kind":
				var s string
				if s, err = l.str(e.value); err == nil {
					switch s {
					case "token":
						p.Kind = ParamToken
					case "value", "":
						p.Kind = ParamValue
					default:
						err = l.errorf(e.value, "unknown parameter kind %q", s)
					}
				}
			default:
				err = l.errorf(e.keyN, "unknown parameter key %q", e.key)
			}
			if err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}
