package convert

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/haivivi/bindkit/pkg/abi"
	"github.com/haivivi/bindkit/pkg/abi/abitest"
	"github.com/haivivi/bindkit/pkg/foreign"
)

func newToken(t *testing.T) (*abitest.Runtime, *foreign.Token) {
	t.Helper()
	rt := abitest.NewInitialized()
	in := foreign.New(rt, foreign.Options{})
	tok := in.MustAcquire()
	t.Cleanup(tok.Release)
	return rt, tok
}

var bothModes = []struct {
	name string
	opts Options
}{
	{"element", Options{}},
	{"bulk", Options{BulkBuffer: true}},
}

func roundTrip[T any](t *testing.T, tok *foreign.Token, v T, opts Options) {
	t.Helper()
	o := To(tok, v)
	defer o.Drop(tok)
	got, err := From[T](tok, o, opts)
	if err != nil {
		t.Fatalf("From[%T](To(%v)) failed: %v", v, v, err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("round trip of %T: got %#v, want %#v", v, got, v)
	}
}

type celsius float64

type point struct{ X, Y int }

func (p point) ToForeign(tok *foreign.Token) *foreign.Object {
	return To(tok, []int{p.X, p.Y})
}

func (p *point) FromForeign(tok *foreign.Token, o *foreign.Object) error {
	xy, err := From[[2]int](tok, o, Options{})
	if err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

func TestRoundTrip(t *testing.T) {
	for _, mode := range bothModes {
		t.Run(mode.name, func(t *testing.T) {
			_, tok := newToken(t)
			o := mode.opts
			roundTrip(t, tok, true, o)
			roundTrip(t, tok, false, o)
			roundTrip(t, tok, 0, o)
			roundTrip(t, tok, math.MaxInt64, o)
			roundTrip(t, tok, int64(math.MinInt64), o)
			roundTrip(t, tok, int8(-128), o)
			roundTrip(t, tok, int16(-300), o)
			roundTrip(t, tok, int32(1<<30), o)
			roundTrip(t, tok, uint8(255), o)
			roundTrip(t, tok, uint16(65535), o)
			roundTrip(t, tok, uint32(math.MaxUint32), o)
			roundTrip(t, tok, 3.25, o)
			roundTrip(t, tok, float32(1.5), o)
			roundTrip(t, tok, celsius(-40), o)
			roundTrip(t, tok, "", o)
			roundTrip(t, tok, "héllo", o)
			roundTrip(t, tok, []byte("raw"), o)
			roundTrip(t, tok, []byte{}, o)
			roundTrip(t, tok, []byte(nil), o)
			roundTrip(t, tok, []int{1, 2, 3}, o)
			roundTrip(t, tok, []int{}, o)
			roundTrip(t, tok, []int(nil), o)
			roundTrip(t, tok, [3]float64{1, 2.5, -3}, o)
			roundTrip(t, tok, [][]string{{"a"}, {}, {"b", "c"}}, o)
			roundTrip(t, tok, map[string]int{"a": 1, "b": 2}, o)
			roundTrip(t, tok, map[int][]bool{1: {true}, 2: {}}, o)
			roundTrip(t, tok, map[string]int(nil), o)
			roundTrip(t, tok, new(int), o)
			roundTrip(t, tok, (*string)(nil), o)
			roundTrip(t, tok, point{3, 4}, o)
			roundTrip(t, tok, []point{{1, 2}}, o)
			roundTrip[any](t, tok, nil, o)
			roundTrip[any](t, tok, int64(7), o)
			roundTrip[any](t, tok, []any{"x", 1.5, nil, true}, o)
			roundTrip[any](t, tok, map[string]any{"k": []any{int64(1)}}, o)
		})
	}
}

func TestValueSemantics(t *testing.T) {
	_, tok := newToken(t)
	src := []int{1, 2, 3}
	o := To(tok, src)
	defer o.Drop(tok)
	src[0] = 100
	got, err := From[[]int](tok, o, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Errorf("foreign list aliased the host slice: got %v", got)
	}
}

func TestObjectReference(t *testing.T) {
	_, tok := newToken(t)
	o := To(tok, "shared")
	defer o.Drop(tok)
	before := o.Bind(tok).RefCount()

	ref, err := From[*foreign.Object](tok, o, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if ref.Ptr() != o.Ptr() {
		t.Error("From[*foreign.Object] did not return the same object")
	}
	if got := o.Bind(tok).RefCount(); got != before+1 {
		t.Errorf("RefCount = %d, want %d", got, before+1)
	}
	ref.Drop(tok)

	back := To(tok, o)
	if back.Ptr() != o.Ptr() {
		t.Error("To(*foreign.Object) did not return the same object")
	}
	back.Drop(tok)
}

func TestMismatch(t *testing.T) {
	_, tok := newToken(t)
	s := To(tok, "x")
	defer s.Drop(tok)
	l := To(tok, []int{1, 2})
	defer l.Drop(tok)
	mixed := To(tok, []any{1, "two"})
	defer mixed.Drop(tok)

	tests := []struct {
		name     string
		convert  func() error
		expected string
		actual   string
	}{
		{"int from str", func() error { _, err := From[int](tok, s, Options{}); return err }, "int", "str"},
		{"bool from str", func() error { _, err := From[bool](tok, s, Options{}); return err }, "bool", "str"},
		{"float from str", func() error { _, err := From[float64](tok, s, Options{}); return err }, "float", "str"},
		{"str from list", func() error { _, err := From[string](tok, l, Options{}); return err }, "str", "list"},
		{"slice from str", func() error { _, err := From[[]int](tok, s, Options{}); return err }, "sequence", "str"},
		{"map from list", func() error { _, err := From[map[string]int](tok, l, Options{}); return err }, "dict", "list"},
		{"array length", func() error { _, err := From[[3]int](tok, l, Options{}); return err }, "sequence of length 3", "list of length 2"},
		{"bad item", func() error { _, err := From[[]int](tok, mixed, Options{}); return err }, "int", "str"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.convert()
			var me *MismatchError
			if !errors.As(err, &me) {
				t.Fatalf("error = %v, want *MismatchError", err)
			}
			if me.Expected != tt.expected || me.Actual != tt.actual {
				t.Errorf("MismatchError = %+v, want expected %q actual %q", me, tt.expected, tt.actual)
			}
		})
	}
}

func TestIntAcceptedAsFloat(t *testing.T) {
	_, tok := newToken(t)
	o := To(tok, 2)
	defer o.Drop(tok)
	got, err := From[float64](tok, o, Options{})
	if err != nil || got != 2 {
		t.Errorf("From[float64](int 2) = %v, %v", got, err)
	}
}

func TestOverflow(t *testing.T) {
	_, tok := newToken(t)
	big := To(tok, 300)
	defer big.Drop(tok)
	neg := To(tok, -1)
	defer neg.Drop(tok)
	huge := To(tok, 1e300)
	defer huge.Drop(tok)

	if _, err := From[int8](tok, big, Options{}); !errors.Is(err, ErrOverflow) {
		t.Errorf("From[int8](300) error = %v, want ErrOverflow", err)
	}
	if _, err := From[uint16](tok, neg, Options{}); !errors.Is(err, ErrOverflow) {
		t.Errorf("From[uint16](-1) error = %v, want ErrOverflow", err)
	}
	if _, err := From[float32](tok, huge, Options{}); !errors.Is(err, ErrOverflow) {
		t.Errorf("From[float32](1e300) error = %v, want ErrOverflow", err)
	}
}

func TestUnsupported(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[uint64](),
		reflect.TypeFor[uint](),
		reflect.TypeFor[struct{ A int }](),
		reflect.TypeFor[[]chan int](),
		reflect.TypeFor[map[string]func()](),
		reflect.TypeFor[error](),
		reflect.TypeFor[**int](),
		reflect.TypeFor[[]**string](),
	} {
		if _, err := For(typ, Options{}); !errors.Is(err, ErrUnsupported) {
			t.Errorf("For(%s) error = %v, want ErrUnsupported", typ, err)
		}
	}
}

func TestForCaches(t *testing.T) {
	a, err := For(reflect.TypeFor[[]int](), Options{BulkBuffer: true})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := For(reflect.TypeFor[[]int](), Options{BulkBuffer: true})
	c, _ := For(reflect.TypeFor[[]int](), Options{})
	if a != b {
		t.Error("For returned different converters for the same type and options")
	}
	if a == c {
		t.Error("For shared a converter across different options")
	}
}

func TestDynamicFromForeign(t *testing.T) {
	rt, tok := newToken(t)
	r := tok.Runtime()
	dict := tok.Own(r.NewDict(
		[]abi.Ptr{r.NewInt(1), r.NewInt(2)},
		[]abi.Ptr{r.NewStr("one"), r.NewStr("two")},
	))
	defer dict.Drop(tok)
	got, err := From[any](tok, dict, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[any]any{int64(1): "one", int64(2): "two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("From[any](dict) = %#v, want %#v", got, want)
	}

	fn := tok.Own(rt.NewCallable("f", func([]abi.Ptr) (abi.Ptr, error) { return 0, nil }))
	defer fn.Drop(tok)
	v, err := From[any](tok, fn, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := v.(*foreign.Object)
	if !ok || ref.Ptr() != fn.Ptr() {
		t.Fatalf("From[any](callable) = %#v, want the object itself", v)
	}
	ref.Drop(tok)
}

func TestDynamicToForeign(t *testing.T) {
	rt, tok := newToken(t)

	o, err := TryTo[any](tok, uint64(7))
	if err != nil {
		t.Fatalf("TryTo(uint64(7)) failed: %v", err)
	}
	if v, ok := rt.AsInt(o.Ptr()); !ok || v != 7 {
		t.Errorf("TryTo(uint64(7)) = %v, want int 7", v)
	}
	o.Drop(tok)

	o, err = TryTo[[]any](tok, []any{uint(1), "x", nil})
	if err != nil {
		t.Fatalf("TryTo([]any) failed: %v", err)
	}
	o.Drop(tok)

	base := rt.Live()
	tests := []struct {
		name     string
		v        any
		overflow bool
	}{
		{"struct", struct{ A int }{1}, false},
		{"chan", make(chan int), false},
		{"nested struct", []any{1, map[string]any{"k": point{}, "s": struct{}{}}}, false},
		{"uint64 overflow", uint64(math.MaxUint64), true},
		{"nested overflow", map[string]any{"n": uintptr(math.MaxUint64)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TryTo(tok, tt.v)
			if tt.overflow {
				if !errors.Is(err, ErrOverflow) {
					t.Errorf("TryTo() error = %v, want ErrOverflow", err)
				}
				return
			}
			var me *MismatchError
			if !errors.As(err, &me) {
				t.Errorf("TryTo() error = %v, want *MismatchError", err)
			}
		})
	}
	if rt.Live() != base {
		t.Errorf("failed conversions leaked %d objects", rt.Live()-base)
	}

	if _, err := ToValue(tok, []any{struct{}{}}); err == nil {
		t.Error("ToValue([]any{struct{}{}}) succeeded")
	}
}

func TestNoLeaks(t *testing.T) {
	for _, mode := range bothModes {
		t.Run(mode.name, func(t *testing.T) {
			rt, tok := newToken(t)
			base := rt.Live()
			o := To(tok, map[string][][2]float32{"a": {{1, 2}}, "b": nil})
			if _, err := From[map[string][][2]float32](tok, o, mode.opts); err != nil {
				t.Fatal(err)
			}
			if _, err := From[any](tok, o, mode.opts); err != nil {
				t.Fatal(err)
			}
			o.Drop(tok)

			buf := ToBuffer(tok, []int16{1, -2, 3})
			if _, err := From[[]int16](tok, buf, mode.opts); err != nil {
				t.Fatal(err)
			}
			buf.Drop(tok)

			if got := rt.Live(); got != base {
				t.Errorf("Live() = %d after dropping everything, want %d", got, base)
			}
		})
	}
}

func TestConvertWithoutToken(t *testing.T) {
	rt := abitest.NewInitialized()
	in := foreign.New(rt, foreign.Options{})
	tok := in.MustAcquire()
	o := To(tok, 1)
	tok.Release()

	defer func() {
		var de *foreign.DisciplineError
		if r := recover(); r == nil {
			t.Fatal("From without a live token did not panic")
		} else if err, ok := r.(error); !ok || !errors.As(err, &de) {
			t.Fatalf("panic = %v, want *foreign.DisciplineError", r)
		}
	}()
	_, _ = From[int](tok, o, Options{})
}
