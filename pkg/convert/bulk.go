package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/haivivi/bindkit/pkg/abi"
	"github.com/haivivi/bindkit/pkg/foreign"
)

// Number is the set of element types with a buffer format.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 |
		~float32 | ~float64
}

// bufferFormat returns the buffer format code matching t, or "".
func bufferFormat(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int8:
		return "b"
	case reflect.Uint8:
		return "B"
	case reflect.Int16:
		return "h"
	case reflect.Uint16:
		return "H"
	case reflect.Int32:
		return "i"
	case reflect.Uint32:
		return "I"
	case reflect.Int64:
		return "q"
	case reflect.Int:
		if strconv.IntSize == 64 {
			return "q"
		}
		return "i"
	case reflect.Float32:
		return "f"
	case reflect.Float64:
		return "d"
	}
	return ""
}

// decodeBuffer fills out, a slice or array of buf.Len numbers, from the
// buffer's native-endian bytes.
func decodeBuffer(out reflect.Value, buf abi.Buffer) {
	ne := binary.NativeEndian
	size := buf.ItemSize
	for i := 0; i < buf.Len; i++ {
		b := buf.Data[i*size : (i+1)*size]
		dst := out.Index(i)
		switch buf.Format {
		case "b":
			dst.SetInt(int64(int8(b[0])))
		case "B":
			dst.SetUint(uint64(b[0]))
		case "h":
			dst.SetInt(int64(int16(ne.Uint16(b))))
		case "H":
			dst.SetUint(uint64(ne.Uint16(b)))
		case "i":
			dst.SetInt(int64(int32(ne.Uint32(b))))
		case "I":
			dst.SetUint(uint64(ne.Uint32(b)))
		case "q":
			dst.SetInt(int64(ne.Uint64(b)))
		case "f":
			dst.SetFloat(float64(math.Float32frombits(ne.Uint32(b))))
		case "d":
			dst.SetFloat(math.Float64frombits(ne.Uint64(b)))
		}
	}
}

func encodeBuffer(v reflect.Value) []byte {
	ne := binary.NativeEndian
	size := int(v.Type().Elem().Size())
	data := make([]byte, v.Len()*size)
	for i := 0; i < v.Len(); i++ {
		b := data[i*size : (i+1)*size]
		e := v.Index(i)
		switch e.Kind() {
		case reflect.Int8:
			b[0] = byte(e.Int())
		case reflect.Uint8:
			b[0] = byte(e.Uint())
		case reflect.Int16:
			ne.PutUint16(b, uint16(e.Int()))
		case reflect.Uint16:
			ne.PutUint16(b, uint16(e.Uint()))
		case reflect.Int32:
			ne.PutUint32(b, uint32(e.Int()))
		case reflect.Uint32:
			ne.PutUint32(b, uint32(e.Uint()))
		case reflect.Int, reflect.Int64:
			if size == 4 {
				ne.PutUint32(b, uint32(e.Int()))
			} else {
				ne.PutUint64(b, uint64(e.Int()))
			}
		case reflect.Float32:
			ne.PutUint32(b, math.Float32bits(float32(e.Float())))
		case reflect.Float64:
			ne.PutUint64(b, math.Float64bits(e.Float()))
		}
	}
	return data
}

func sequenceOf[T Number]() *sequenceConverter {
	t := reflect.TypeFor[[]T]()
	return &sequenceConverter{
		t:    t,
		elem: MustFor(t.Elem(), Options{}),
		bulk: true,
	}
}

// FromElements converts o to a []T item by item, whatever capabilities o
// advertises.
func FromElements[T Number](tok *foreign.Token, o *foreign.Object) ([]T, error) {
	v, err := sequenceOf[T]().fromElements(o.Bind(tok))
	if err != nil {
		return nil, err
	}
	return v.Interface().([]T), nil
}

// FromBuffer copies o's buffer into a []T. It fails with ErrNoBuffer unless
// o exposes a buffer in T's format.
func FromBuffer[T Number](tok *foreign.Token, o *foreign.Object) ([]T, error) {
	c := sequenceOf[T]()
	b := o.Bind(tok)
	v, ok, err := c.fromBuffer(b)
	if !ok {
		return nil, fmt.Errorf("%w: %s for %s", ErrNoBuffer, b.TypeName(), c.t)
	}
	if err != nil {
		return nil, err
	}
	return v.Interface().([]T), nil
}

// ToBuffer returns a buffer object holding a copy of s.
func ToBuffer[T Number](tok *foreign.Token, s []T) *foreign.Object {
	v := reflect.ValueOf(s)
	elem := v.Type().Elem()
	return tok.Own(tok.Runtime().NewBuffer(bufferFormat(elem), int(elem.Size()), encodeBuffer(v)))
}
