package bind

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/haivivi/bindkit/pkg/convert"
	"github.com/haivivi/bindkit/pkg/foreign"
)

// PanicError is a host panic caught at the foreign boundary. It is raised
// as PanicException.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

var panicTypeName = reflect.TypeFor[*PanicError]().String()

// Wrap turns body into a trampoline. The trampoline acquires a token
// (nested when ctx already carries one), checks the argument count unless
// arity is negative, runs body and converts its result. Host errors and
// panics become pending exceptions through the bridge. Discipline
// violations are not caught.
//
// When the token cannot be acquired no exception can be set; the
// acquisition error is returned as is.
func (g *Generator) Wrap(name string, arity int, body Body) Trampoline {
	g.init()
	return func(ctx context.Context, self any, args []*foreign.Object) (out *foreign.Object, err error) {
		tok, err := g.Interp.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer tok.Release()

		if arity >= 0 && len(args) != arity {
			return nil, g.Bridge.Raise(tok, &convert.MismatchError{
				Expected: fmt.Sprintf("%s() with %d arguments", name, arity),
				Actual:   fmt.Sprintf("%d arguments", len(args)),
			})
		}

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			var de *foreign.DisciplineError
			if e, ok := r.(error); ok && errors.As(e, &de) {
				panic(r)
			}
			g.Logger.Error("panic in bound call", "name", name, "panic", r)
			out, err = nil, g.Bridge.Raise(tok, &PanicError{Value: r, Stack: debug.Stack()})
		}()

		out, err = body(tok, self, args)
		if err != nil {
			if out != nil {
				out.Drop(tok)
			}
			g.Logger.Debug("bound call failed", "name", name, "error", err)
			return nil, g.Bridge.Raise(tok, err)
		}
		if out == nil {
			out = tok.None()
		}
		return out, nil
	}
}

// Self asserts the receiver passed to a trampoline.
func Self[T any](self any) (T, error) {
	v, ok := self.(T)
	if !ok || isNilPointer(self) {
		var zero T
		return zero, &convert.MismatchError{Expected: reflect.TypeFor[T]().String(), Actual: describe(self)}
	}
	return v, nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func describe(v any) string {
	if v == nil {
		return "NoneType"
	}
	if isNilPointer(v) {
		return fmt.Sprintf("nil %T", v)
	}
	return fmt.Sprintf("%T", v)
}

// TupleField returns a pointer to the positional field i of the struct self
// points to. Generated glue uses it for tuple fields, which have no name.
func TupleField[T any](self any, i int) *T {
	return reflect.ValueOf(self).Elem().Field(i).Addr().Interface().(*T)
}
