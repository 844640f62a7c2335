package convert

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/haivivi/bindkit/pkg/abi"
	"github.com/haivivi/bindkit/pkg/foreign"
)

// =============================================================================
// Slices and arrays
// =============================================================================

// sequenceConverter converts slices to lists and arrays to tuples. Either
// accepts any list, tuple or buffer on the way back.
type sequenceConverter struct {
	t    reflect.Type
	elem Converter
	// bulk is set when the element type has a buffer format and the bulk
	// buffer path is enabled.
	bulk bool
}

func buildSequence(t reflect.Type, opts Options) (Converter, bool, error) {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil, false, nil
	}
	c, err := newSequence(t, opts)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func newSequence(t reflect.Type, opts Options) (*sequenceConverter, error) {
	elem, err := For(t.Elem(), opts)
	if err != nil {
		return nil, fmt.Errorf("element of %s: %w", t, err)
	}
	return &sequenceConverter{
		t:    t,
		elem: elem,
		bulk: opts.BulkBuffer && bufferFormat(t.Elem()) != "",
	}, nil
}

func (c *sequenceConverter) Type() reflect.Type { return c.t }

func (c *sequenceConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	if c.t.Kind() == reflect.Slice && v.IsNil() {
		return tok.None()
	}
	items := make([]abi.Ptr, v.Len())
	for i := range items {
		items[i] = c.elem.ToForeign(tok, v.Index(i)).IntoPtr(tok)
	}
	rt := tok.Runtime()
	if c.t.Kind() == reflect.Array {
		return tok.Own(rt.NewTuple(items))
	}
	return tok.Own(rt.NewList(items))
}

func (c *sequenceConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	b := o.Bind(tok)
	if c.t.Kind() == reflect.Slice && b.Kind() == abi.KindNone {
		return reflect.Zero(c.t), nil
	}
	if c.bulk {
		if v, ok, err := c.fromBuffer(b); ok {
			return v, err
		}
	}
	return c.fromElements(b)
}

func (c *sequenceConverter) expected() string {
	if c.t.Kind() == reflect.Array {
		return fmt.Sprintf("sequence of length %d", c.t.Len())
	}
	return "sequence"
}

func (c *sequenceConverter) alloc(b foreign.Bound, n int) (reflect.Value, error) {
	if c.t.Kind() == reflect.Array {
		if n != c.t.Len() {
			return reflect.Value{}, &MismatchError{
				Expected: c.expected(),
				Actual:   fmt.Sprintf("%s of length %d", b.TypeName(), n),
			}
		}
		return reflect.New(c.t).Elem(), nil
	}
	return reflect.MakeSlice(c.t, n, n), nil
}

// fromElements converts item by item.
func (c *sequenceConverter) fromElements(b foreign.Bound) (reflect.Value, error) {
	tok := b.Token()
	items, ok := b.Items()
	if !ok {
		return reflect.Value{}, mismatch(b, c.expected())
	}
	defer func() {
		for _, it := range items {
			it.Drop(tok)
		}
	}()
	out, err := c.alloc(b, len(items))
	if err != nil {
		return out, err
	}
	for i, it := range items {
		v, err := c.elem.FromForeign(tok, it)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

// fromBuffer copies straight out of the object's buffer. ok is false when
// the object has no buffer in the element's format.
func (c *sequenceConverter) fromBuffer(b foreign.Bound) (v reflect.Value, ok bool, err error) {
	buf, has := b.Buffer()
	if !has || buf.Format != bufferFormat(c.t.Elem()) || buf.ItemSize != int(c.t.Elem().Size()) {
		return reflect.Value{}, false, nil
	}
	out, err := c.alloc(b, buf.Len)
	if err != nil {
		return out, true, err
	}
	decodeBuffer(out, buf)
	return out, true, nil
}

// =============================================================================
// Pointers
// =============================================================================

type pointerConverter struct {
	t    reflect.Type
	elem Converter
}

func buildPointer(t reflect.Type, opts Options) (Converter, bool, error) {
	if t.Kind() != reflect.Pointer {
		return nil, false, nil
	}
	// A non-nil pointer to nil and a nil pointer would both become None.
	if t.Elem().Kind() == reflect.Pointer {
		return nil, false, fmt.Errorf("%w: %s (nested pointer)", ErrUnsupported, t)
	}
	elem, err := For(t.Elem(), opts)
	if err != nil {
		return nil, false, fmt.Errorf("element of %s: %w", t, err)
	}
	return pointerConverter{t: t, elem: elem}, true, nil
}

func (c pointerConverter) Type() reflect.Type { return c.t }

func (c pointerConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	if v.IsNil() {
		return tok.None()
	}
	return c.elem.ToForeign(tok, v.Elem())
}

func (c pointerConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	if o.Bind(tok).Kind() == abi.KindNone {
		return reflect.Zero(c.t), nil
	}
	v, err := c.elem.FromForeign(tok, o)
	if err != nil {
		return reflect.Value{}, err
	}
	p := reflect.New(c.t.Elem())
	p.Elem().Set(v)
	return p, nil
}

// =============================================================================
// Maps
// =============================================================================

type mapConverter struct {
	t          reflect.Type
	key, value Converter
}

func buildMap(t reflect.Type, opts Options) (Converter, bool, error) {
	if t.Kind() != reflect.Map {
		return nil, false, nil
	}
	key, err := For(t.Key(), opts)
	if err != nil {
		return nil, false, fmt.Errorf("key of %s: %w", t, err)
	}
	value, err := For(t.Elem(), opts)
	if err != nil {
		return nil, false, fmt.Errorf("value of %s: %w", t, err)
	}
	return mapConverter{t: t, key: key, value: value}, true, nil
}

func (c mapConverter) Type() reflect.Type { return c.t }

// ToForeign inserts keys in sorted order so equal maps produce equal dicts.
func (c mapConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	if v.IsNil() {
		return tok.None()
	}
	keys := v.MapKeys()
	slices.SortFunc(keys, compareKeys)
	ks := make([]abi.Ptr, len(keys))
	vs := make([]abi.Ptr, len(keys))
	for i, k := range keys {
		ks[i] = c.key.ToForeign(tok, k).IntoPtr(tok)
		vs[i] = c.value.ToForeign(tok, v.MapIndex(k)).IntoPtr(tok)
	}
	return tok.Own(tok.Runtime().NewDict(ks, vs))
}

func (c mapConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	b := o.Bind(tok)
	if b.Kind() == abi.KindNone {
		return reflect.Zero(c.t), nil
	}
	keys, values, ok := tok.Runtime().DictItems(o.Ptr())
	if !ok {
		return reflect.Value{}, mismatch(b, "dict")
	}
	out := reflect.MakeMapWithSize(c.t, len(keys))
	for i := range keys {
		k, err := c.convertBorrowed(tok, c.key, keys[i])
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %d: %w", i, err)
		}
		v, err := c.convertBorrowed(tok, c.value, values[i])
		if err != nil {
			return reflect.Value{}, fmt.Errorf("value for %v: %w", k, err)
		}
		out.SetMapIndex(k, v)
	}
	return out, nil
}

func (c mapConverter) convertBorrowed(tok *foreign.Token, conv Converter, p abi.Ptr) (reflect.Value, error) {
	h := tok.Borrow(p)
	defer h.Drop(tok)
	return conv.FromForeign(tok, h)
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.Bool:
		return cmp.Compare(boolInt(a.Bool()), boolInt(b.Bool()))
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
