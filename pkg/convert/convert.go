// Package convert moves values between host types and foreign objects.
//
// ToForeign is total for statically typed values. Values held in `any` are
// typed only at run time; Encode and TryTo report the ones that cannot
// convert instead of panicking. FromForeign
// is partial and fails with *MismatchError when the object's runtime type
// does not fit the requested host type. Numbers, strings and containers are
// copied; only *foreign.Object keeps a reference to the original object.
//
// For picks a Converter for a host type once, at generation time. A type
// For rejects cannot be used in a binding.
package convert

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/haivivi/bindkit/pkg/foreign"
)

var (
	// ErrUnsupported is returned by For for host types with no conversion.
	ErrUnsupported = errors.New("convert: unsupported host type")

	// ErrOverflow is wrapped when a foreign number does not fit the host
	// numeric type.
	ErrOverflow = errors.New("convert: value out of range")

	// ErrNoBuffer is returned by FromBuffer when the object does not expose
	// a buffer matching the element type.
	ErrNoBuffer = errors.New("convert: object has no matching buffer")
)

// MismatchError reports a foreign object of the wrong runtime type.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func mismatch(b foreign.Bound, expected string) error {
	return &MismatchError{Expected: expected, Actual: b.TypeName()}
}

// Options selects conversion strategies.
type Options struct {
	// BulkBuffer lets numeric slices and arrays be copied straight out of
	// objects exposing a contiguous buffer.
	BulkBuffer bool
}

// Converter converts one host type in both directions.
type Converter interface {
	Type() reflect.Type
	// ToForeign returns a new reference. v must be of Type().
	ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object
	// FromForeign returns a value of Type(). o is borrowed.
	FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error)
}

// ForeignEncoder is implemented by host types with their own conversion to a
// foreign object.
type ForeignEncoder interface {
	ToForeign(tok *foreign.Token) *foreign.Object
}

// ForeignDecoder is implemented by pointers to host types with their own
// conversion from a foreign object.
type ForeignDecoder interface {
	FromForeign(tok *foreign.Token, o *foreign.Object) error
}

var (
	objectType  = reflect.TypeFor[*foreign.Object]()
	encoderType = reflect.TypeFor[ForeignEncoder]()
	decoderType = reflect.TypeFor[ForeignDecoder]()
	anyType     = reflect.TypeFor[any]()
)

type cacheKey struct {
	t    reflect.Type
	opts Options
}

var cache sync.Map // cacheKey -> Converter

// For returns the converter for t.
func For(t reflect.Type, opts Options) (Converter, error) {
	key := cacheKey{t, opts}
	if c, ok := cache.Load(key); ok {
		return c.(Converter), nil
	}
	c, err := build(t, opts)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(key, c)
	return actual.(Converter), nil
}

// MustFor is like For but panics on unsupported types.
func MustFor(t reflect.Type, opts Options) Converter {
	c, err := For(t, opts)
	if err != nil {
		panic(err)
	}
	return c
}

// builder tries to produce a converter for t. Builders are consulted in
// order; the first one returning ok wins.
type builder struct {
	name string
	try  func(t reflect.Type, opts Options) (Converter, bool, error)
}

var builders []builder

func init() {
	builders = []builder{
		{"object", buildObject},
		{"custom", buildCustom},
		{"dynamic", buildDynamic},
		{"bytes", buildBytes},
		{"scalar", buildScalar},
		{"pointer", buildPointer},
		{"sequence", buildSequence},
		{"map", buildMap},
	}
}

func build(t reflect.Type, opts Options) (Converter, error) {
	for _, b := range builders {
		c, ok, err := b.try(t, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

// To converts v to a new foreign object. It panics if T is unsupported,
// which For reports at generation time.
func To[T any](tok *foreign.Token, v T) *foreign.Object {
	t := reflect.TypeFor[T]()
	rv := reflect.ValueOf(&v).Elem()
	return MustFor(t, Options{}).ToForeign(tok, rv)
}

// From converts o to a T.
func From[T any](tok *foreign.Token, o *foreign.Object, opts Options) (T, error) {
	var zero T
	c, err := For(reflect.TypeFor[T](), opts)
	if err != nil {
		return zero, err
	}
	v, err := c.FromForeign(tok, o)
	if err != nil {
		return zero, err
	}
	// A nil interface value asserts to nothing; keep the zero T.
	out, _ := v.Interface().(T)
	return out, nil
}

// ToValue converts a dynamically typed host value.
func ToValue(tok *foreign.Token, v any) (*foreign.Object, error) {
	if v == nil {
		return tok.None(), nil
	}
	c, err := For(reflect.TypeOf(v), Options{})
	if err != nil {
		return nil, err
	}
	return Encode(tok, c, reflect.ValueOf(v))
}

// =============================================================================
// Reference and custom conversions
// =============================================================================

type objectConverter struct{}

func buildObject(t reflect.Type, _ Options) (Converter, bool, error) {
	if t != objectType {
		return nil, false, nil
	}
	return objectConverter{}, true, nil
}

func (objectConverter) Type() reflect.Type { return objectType }

func (objectConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	o := v.Interface().(*foreign.Object)
	if o == nil {
		return tok.None()
	}
	return o.Clone(tok)
}

func (objectConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	return reflect.ValueOf(o.Clone(tok)), nil
}

// StoreValue sets dst to v. A live *foreign.Object that dst held before is
// dropped, so a field owns at most one reference.
func StoreValue(tok *foreign.Token, dst, v reflect.Value) {
	if dst.Type() == objectType {
		old, _ := dst.Interface().(*foreign.Object)
		if cur, _ := v.Interface().(*foreign.Object); old != nil && old != cur && old.Alive() {
			old.Drop(tok)
		}
	}
	dst.Set(v)
}

// Store is StoreValue for typed glue.
func Store[T any](tok *foreign.Token, dst *T, v T) {
	if old, ok := any(*dst).(*foreign.Object); ok && old != nil && old.Alive() {
		if cur, _ := any(v).(*foreign.Object); cur != old {
			old.Drop(tok)
		}
	}
	*dst = v
}

type customConverter struct {
	t          reflect.Type
	enc, dec   bool
	structural Converter
}

func buildCustom(t reflect.Type, opts Options) (Converter, bool, error) {
	enc := t.Implements(encoderType)
	dec := reflect.PointerTo(t).Implements(decoderType)
	if !enc && !dec {
		return nil, false, nil
	}
	c := &customConverter{t: t, enc: enc, dec: dec}
	// A type implementing one direction uses the structural conversion for
	// the other, when there is one.
	if !enc || !dec {
		rest, err := buildStructural(t, opts)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s implements only one of ForeignEncoder and ForeignDecoder", ErrUnsupported, t)
		}
		c.structural = rest
	}
	return c, true, nil
}

func buildStructural(t reflect.Type, opts Options) (Converter, error) {
	for _, b := range builders {
		if b.name == "custom" || b.name == "object" {
			continue
		}
		c, ok, err := b.try(t, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

func (c *customConverter) Type() reflect.Type { return c.t }

func (c *customConverter) ToForeign(tok *foreign.Token, v reflect.Value) *foreign.Object {
	if !c.enc {
		return c.structural.ToForeign(tok, v)
	}
	return v.Interface().(ForeignEncoder).ToForeign(tok)
}

func (c *customConverter) FromForeign(tok *foreign.Token, o *foreign.Object) (reflect.Value, error) {
	if !c.dec {
		return c.structural.FromForeign(tok, o)
	}
	p := reflect.New(c.t)
	if err := p.Interface().(ForeignDecoder).FromForeign(tok, o); err != nil {
		return reflect.Value{}, err
	}
	return p.Elem(), nil
}
