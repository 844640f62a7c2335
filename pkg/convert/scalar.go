package convert

import (
	"fmt"
	"math"
	"reflect"

	"github.com/haivivi/bindkit/pkg/foreign"
)

type scalarConverter struct {
	t reflect.Type
}

func buildScalar(t reflect.Type, _ Options) (Converter, bool, error) {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Float32, reflect.Float64:
		return scalarConverter{t: t}, true, nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		// The runtime's integers are signed 64-bit.
		return nil, false, fmt.Errorf("%w: %s does not fit a foreign int", ErrUnsupported, t)
	}
	return nil, false, nil
}

func (c scalarConverter) Type() reflect.Type { return c.t }

func (c scalarConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	rt := tok.Runtime()
	switch c.t.Kind() {
	case reflect.Bool:
		return tok.Own(rt.NewBool(v.Bool()))
	case reflect.String:
		return tok.Own(rt.NewStr(v.String()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return tok.Own(rt.NewInt(v.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return tok.Own(rt.NewInt(int64(v.Uint())))
	default:
		return tok.Own(rt.NewFloat(v.Float()))
	}
}

func (c scalarConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	b := o.Bind(tok)
	rt := tok.Runtime()
	out := reflect.New(c.t).Elem()
	switch c.t.Kind() {
	case reflect.Bool:
		v, ok := rt.AsBool(o.Ptr())
		if !ok {
			return out, mismatch(b, "bool")
		}
		out.SetBool(v)
	case reflect.String:
		v, ok := rt.AsStr(o.Ptr())
		if !ok {
			return out, mismatch(b, "str")
		}
		out.SetString(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, ok := rt.AsInt(o.Ptr())
		if !ok {
			return out, mismatch(b, "int")
		}
		if out.OverflowInt(v) {
			return out, fmt.Errorf("%w: %d does not fit in %s", ErrOverflow, v, c.t)
		}
		out.SetInt(v)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		v, ok := rt.AsInt(o.Ptr())
		if !ok {
			return out, mismatch(b, "int")
		}
		if v < 0 || out.OverflowUint(uint64(v)) {
			return out, fmt.Errorf("%w: %d does not fit in %s", ErrOverflow, v, c.t)
		}
		out.SetUint(uint64(v))
	default:
		v, ok := rt.AsFloat(o.Ptr())
		if !ok {
			return out, mismatch(b, "float")
		}
		if c.t.Kind() == reflect.Float32 && !math.IsInf(v, 0) && !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
			return out, fmt.Errorf("%w: %g does not fit in %s", ErrOverflow, v, c.t)
		}
		out.SetFloat(v)
	}
	return out, nil
}

// bytesConverter copies []byte to and from bytes objects. Other sequences of
// small ints convert element by element, or in bulk from "B" buffers.
type bytesConverter struct {
	t   reflect.Type
	seq *sequenceConverter
}

func buildBytes(t reflect.Type, opts Options) (Converter, bool, error) {
	if t.Kind() != reflect.Slice || t.Elem().Kind() != reflect.Uint8 {
		return nil, false, nil
	}
	seq, err := newSequence(t, opts)
	if err != nil {
		return nil, false, err
	}
	return bytesConverter{t: t, seq: seq}, true, nil
}

func (c bytesConverter) Type() reflect.Type { return c.t }

func (c bytesConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	if v.IsNil() {
		return tok.None()
	}
	return tok.Own(tok.Runtime().NewBytes(v.Bytes()))
}

func (c bytesConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	o.Bind(tok)
	if data, ok := tok.Runtime().AsBytes(o.Ptr()); ok {
		return reflect.ValueOf(append([]byte{}, data...)).Convert(c.t), nil
	}
	return c.seq.FromForeign(tok, o)
}
