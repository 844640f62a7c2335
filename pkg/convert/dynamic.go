package convert

import (
	"fmt"
	"math"
	"reflect"

	"github.com/haivivi/bindkit/pkg/abi"
	"github.com/haivivi/bindkit/pkg/foreign"
)

// dynamicConverter handles `any`: the dynamic type picks the conversion on
// the way out, the object's kind picks the host type on the way back.
//
//	None       nil
//	bool       bool
//	int        int64 (any signed or unsigned int on the way out)
//	float      float64
//	str        string
//	bytes      []byte
//	list, tuple, buffer  []any
//	dict       map[string]any, or map[any]any for non-str keys
//	other      *foreign.Object
type dynamicConverter struct {
	opts Options
}

func buildDynamic(t reflect.Type, opts Options) (Converter, bool, error) {
	if t != anyType {
		return nil, false, nil
	}
	return dynamicConverter{opts: opts}, true, nil
}

func (dynamicConverter) Type() reflect.Type { return anyType }

// ToForeign panics on values check rejects. Encode and TryTo check first.
func (c dynamicConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	v, ok := dynamicValue(v)
	if !ok {
		return tok.None()
	}
	if isUint(v.Kind()) {
		if v.Uint() > math.MaxInt64 {
			panic(c.check(v))
		}
		return tok.Own(tok.Runtime().NewInt(int64(v.Uint())))
	}
	conv, err := For(v.Type(), c.opts)
	if err != nil {
		panic(c.check(v))
	}
	return conv.ToForeign(tok, v)
}

func (c dynamicConverter) check(v reflect.Value) error {
	v, ok := dynamicValue(v)
	if !ok {
		return nil
	}
	if isUint(v.Kind()) {
		if v.Uint() > math.MaxInt64 {
			return fmt.Errorf("%w: %d does not fit a foreign int", ErrOverflow, v.Uint())
		}
		return nil
	}
	conv, err := For(v.Type(), c.opts)
	if err != nil {
		return &MismatchError{Expected: "value convertible to a foreign object", Actual: v.Type().String()}
	}
	return check(conv, v)
}

// dynamicValue unwraps an interface value. ok is false for nil.
func dynamicValue(v reflect.Value) (reflect.Value, bool) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// isUint reports the unsigned kinds For rejects statically.
func isUint(k reflect.Kind) bool {
	return k == reflect.Uint || k == reflect.Uint64 || k == reflect.Uintptr
}

// checker is implemented by converters whose output depends on dynamic
// values. check reports the values ToForeign cannot convert.
type checker interface {
	check(v reflect.Value) error
}

func check(c Converter, v reflect.Value) error {
	if ch, ok := c.(checker); ok {
		return ch.check(v)
	}
	return nil
}

func (c *sequenceConverter) check(v reflect.Value) error {
	if _, ok := c.elem.(checker); !ok || (c.t.Kind() == reflect.Slice && v.IsNil()) {
		return nil
	}
	for i := range v.Len() {
		if err := check(c.elem, v.Index(i)); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func (c mapConverter) check(v reflect.Value) error {
	_, kc := c.key.(checker)
	_, vc := c.value.(checker)
	if (!kc && !vc) || v.IsNil() {
		return nil
	}
	iter := v.MapRange()
	for iter.Next() {
		if err := check(c.key, iter.Key()); err != nil {
			return fmt.Errorf("key %v: %w", iter.Key(), err)
		}
		if err := check(c.value, iter.Value()); err != nil {
			return fmt.Errorf("value for %v: %w", iter.Key(), err)
		}
	}
	return nil
}

func (c pointerConverter) check(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return check(c.elem, v.Elem())
}

func (c *customConverter) check(v reflect.Value) error {
	if c.enc {
		return nil
	}
	return check(c.structural, v)
}

// Encode converts v with c like c.ToForeign, but returns an error instead of
// panicking when v holds dynamic values with no conversion.
func Encode(tok *foreign.Token, c Converter, v reflect.Value) (*foreign.Object, error) {
	if err := check(c, v); err != nil {
		return nil, err
	}
	return c.ToForeign(tok, v), nil
}

// TryTo is To for values that may hold dynamically typed parts: an `any`
// holding a struct fails with *MismatchError, an unsigned value beyond the
// foreign int range with ErrOverflow.
func TryTo[T any](tok *foreign.Token, v T) (*foreign.Object, error) {
	c, err := For(reflect.TypeFor[T](), Options{})
	if err != nil {
		return nil, err
	}
	return Encode(tok, c, reflect.ValueOf(&v).Elem())
}

func (c dynamicConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	v, err := c.value(tok, o)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(anyType).Elem()
	if v != nil {
		out.Set(reflect.ValueOf(v))
	}
	return out, nil
}

func (c dynamicConverter) value(tok *foreign.Token, o *foreign.Object) (any, error) {
	b := o.Bind(tok)
	rt := tok.Runtime()
	p := o.Ptr()
	switch b.Kind() {
	case abi.KindNone:
		return nil, nil
	case abi.KindBool:
		v, _ := rt.AsBool(p)
		return v, nil
	case abi.KindInt:
		v, _ := rt.AsInt(p)
		return v, nil
	case abi.KindFloat:
		v, _ := rt.AsFloat(p)
		return v, nil
	case abi.KindStr:
		v, _ := rt.AsStr(p)
		return v, nil
	case abi.KindBytes:
		v, _ := rt.AsBytes(p)
		return append([]byte{}, v...), nil
	case abi.KindList, abi.KindTuple, abi.KindBuffer:
		items, _ := b.Items()
		defer dropAll(tok, items)
		out := make([]any, len(items))
		for i, it := range items {
			v, err := c.value(tok, it)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case abi.KindDict:
		return c.dict(tok, p)
	}
	return o.Clone(tok), nil
}

func (c dynamicConverter) dict(tok *foreign.Token, p abi.Ptr) (any, error) {
	keys, values, _ := tok.Runtime().DictItems(p)
	ks := make([]any, len(keys))
	vs := make([]any, len(values))
	strKeys := true
	for i := range keys {
		k, err := c.borrowed(tok, keys[i])
		if err != nil {
			return nil, err
		}
		if _, ok := k.(string); !ok {
			strKeys = false
		}
		v, err := c.borrowed(tok, values[i])
		if err != nil {
			return nil, err
		}
		ks[i], vs[i] = k, v
	}
	if strKeys {
		m := make(map[string]any, len(ks))
		for i, k := range ks {
			m[k.(string)] = vs[i]
		}
		return m, nil
	}
	m := make(map[any]any, len(ks))
	for i, k := range ks {
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, &MismatchError{Expected: "hashable dict key", Actual: reflect.TypeOf(k).String()}
		}
		m[k] = vs[i]
	}
	return m, nil
}

func (c dynamicConverter) borrowed(tok *foreign.Token, p abi.Ptr) (any, error) {
	h := tok.Borrow(p)
	defer h.Drop(tok)
	return c.value(tok, h)
}

func dropAll(tok *foreign.Token, objs []*foreign.Object) {
	for _, o := range objs {
		o.Drop(tok)
	}
}
