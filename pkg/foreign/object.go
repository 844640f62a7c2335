package foreign

import (
	"fmt"
	"sync/atomic"

	"github.com/haivivi/bindkit/pkg/abi"
)

// Object is a handle owning one reference to a foreign object.
type Object struct {
	in   *Interpreter
	p    abi.Ptr
	gone atomic.Bool
}

// Ptr returns the raw pointer. It stays valid while the handle is alive.
func (o *Object) Ptr() abi.Ptr {
	return o.p
}

// Interpreter returns the session the object belongs to.
func (o *Object) Interpreter() *Interpreter {
	return o.in
}

// Alive reports whether the handle still owns its reference.
func (o *Object) Alive() bool {
	return o != nil && !o.gone.Load()
}

// Clone returns a new handle to the same object.
func (o *Object) Clone(tok *Token) *Object {
	o.use(tok, "clone")
	o.in.rt.IncRef(o.p)
	return &Object{in: o.in, p: o.p}
}

// Drop gives the reference back immediately. Dropping twice is a no-op.
func (o *Object) Drop(tok *Token) {
	o.in.check(tok, "drop")
	if !o.gone.CompareAndSwap(false, true) {
		return
	}
	o.in.rt.DecRef(o.p)
}

// Release gives the reference back without a token. The decrement is queued
// and performed at the next acquisition on the session.
func (o *Object) Release() {
	if o == nil || !o.gone.CompareAndSwap(false, true) {
		return
	}
	o.in.deferDrop(o.p)
}

// IntoPtr transfers the reference to the caller, typically to hand it to a
// runtime entry point that steals references.
func (o *Object) IntoPtr(tok *Token) abi.Ptr {
	o.use(tok, "into")
	o.gone.Store(true)
	return o.p
}

// Bind pairs the object with the token proving access to it.
func (o *Object) Bind(tok *Token) Bound {
	o.use(tok, "bind")
	return Bound{obj: o, tok: tok}
}

func (o *Object) use(tok *Token, op string) {
	if o == nil {
		violate(op, "nil object handle")
	}
	o.in.check(tok, op)
	if o.gone.Load() {
		violate(op, "object handle already dropped")
	}
}

// Bound is an object whose token has already been checked.
type Bound struct {
	obj *Object
	tok *Token
}

// Object returns the underlying handle.
func (b Bound) Object() *Object { return b.obj }

// Token returns the token the object is bound to.
func (b Bound) Token() *Token { return b.tok }

func (b Bound) rt() abi.Runtime { return b.obj.in.rt }

// Kind returns the coarse runtime type.
func (b Bound) Kind() abi.Kind { return b.rt().KindOf(b.obj.p) }

// TypeName returns the runtime type name.
func (b Bound) TypeName() string { return b.rt().TypeName(b.obj.p) }

// RefCount returns the current reference count.
func (b Bound) RefCount() int { return b.rt().RefCount(b.obj.p) }

// Buffer returns the contiguous-buffer view when the object exposes one.
func (b Bound) Buffer() (abi.Buffer, bool) { return b.rt().GetBuffer(b.obj.p) }

// Items returns new handles to the elements of a sequence.
func (b Bound) Items() ([]*Object, bool) {
	ptrs, ok := b.rt().Items(b.obj.p)
	if !ok {
		return nil, false
	}
	out := make([]*Object, len(ptrs))
	for i, p := range ptrs {
		out[i] = b.tok.Borrow(p)
	}
	return out, true
}

// GetAttr reads an attribute.
func (b Bound) GetAttr(name string) (*Object, error) {
	p, err := b.rt().GetAttr(b.obj.p, name)
	if err != nil {
		if exc := b.tok.FetchException(); exc != nil {
			return nil, exc
		}
		return nil, fmt.Errorf("foreign: getattr %s: %w", name, err)
	}
	return b.tok.Own(p), nil
}

// SetAttr writes an attribute. The runtime takes its own reference to v.
func (b Bound) SetAttr(name string, v *Object) error {
	v.use(b.tok, "setattr")
	if err := b.rt().SetAttr(b.obj.p, name, v.p); err != nil {
		if exc := b.tok.FetchException(); exc != nil {
			return exc
		}
		return fmt.Errorf("foreign: setattr %s: %w", name, err)
	}
	return nil
}

// Call invokes the object. Arguments are borrowed for the duration of the
// call. A raised foreign exception is returned as *Exception.
func (b Bound) Call(args ...*Object) (*Object, error) {
	ptrs := make([]abi.Ptr, len(args))
	for i, a := range args {
		a.use(b.tok, "call")
		ptrs[i] = a.p
	}
	p, err := b.rt().Call(b.obj.p, ptrs)
	if exc := b.tok.FetchException(); exc != nil {
		if p != 0 {
			b.rt().DecRef(p)
		}
		return nil, exc
	}
	if err != nil {
		return nil, fmt.Errorf("foreign: call %s: %w", b.TypeName(), err)
	}
	return b.tok.Own(p), nil
}
