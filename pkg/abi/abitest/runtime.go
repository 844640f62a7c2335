// Package abitest provides an in-memory abi.Runtime for tests.
//
// It keeps real reference counts and a real global lock so tests can observe
// leaks, double frees and calls made without the lock. It is safe for
// concurrent use; every method except LockAcquire panics when the lock is not
// held.
package abitest

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/haivivi/bindkit/pkg/abi"
)

type object struct {
	kind  abi.Kind
	refs  int
	class string // instance and exception class name

	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	items []abi.Ptr
	keys  []abi.Ptr
	attrs map[string]abi.Ptr
	fn    abi.Func

	format   string
	itemSize int
}

// Runtime is an in-memory interpreter. The zero value is not usable; call New.
type Runtime struct {
	lock chan struct{}

	mu          sync.Mutex
	initialized bool
	held        bool
	next        abi.Ptr
	objs        map[abi.Ptr]*object
	pending     abi.Ptr
	none        abi.Ptr

	lockCount   int
	unlockCount int
}

// New creates an uninitialized runtime.
func New() *Runtime {
	return &Runtime{
		lock: make(chan struct{}, 1),
		objs: make(map[abi.Ptr]*object),
	}
}

// NewInitialized creates a runtime that has already been bootstrapped.
func NewInitialized() *Runtime {
	r := New()
	_ = r.Initialize()
	return r
}

func (r *Runtime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	r.initialized = true
	r.none = r.allocLocked(&object{kind: abi.KindNone})
	// None is immortal.
	r.objs[r.none].refs = 1 << 30
	return nil
}

func (r *Runtime) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

func (r *Runtime) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	return nil
}

func (r *Runtime) LockAcquire() {
	r.lock <- struct{}{}
	r.mu.Lock()
	r.held = true
	r.lockCount++
	r.mu.Unlock()
}

func (r *Runtime) LockRelease() {
	r.mu.Lock()
	if !r.held {
		r.mu.Unlock()
		panic("abitest: LockRelease without LockAcquire")
	}
	r.held = false
	r.unlockCount++
	r.mu.Unlock()
	<-r.lock
}

// LockHeld reports whether some thread currently holds the global lock.
func (r *Runtime) LockHeld() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held
}

// LockCalls returns how many times the lock was acquired and released.
func (r *Runtime) LockCalls() (acquired, released int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockCount, r.unlockCount
}

// Live returns the number of live objects, excluding None.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.objs)
	if r.none != 0 {
		n--
	}
	return n
}

// Alive reports whether p still refers to a live object.
func (r *Runtime) Alive(p abi.Ptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objs[p]
	return ok
}

func (r *Runtime) IncRef(p abi.Ptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(p).refs++
}

func (r *Runtime) DecRef(p abi.Ptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decRefLocked(p)
}

func (r *Runtime) RefCount(p abi.Ptr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(p).refs
}

func (r *Runtime) KindOf(p abi.Ptr) abi.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(p).kind
}

func (r *Runtime) TypeName(p abi.Ptr) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.class != "" {
		return o.class
	}
	return o.kind.String()
}

func (r *Runtime) None() abi.Ptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkLocked()
	r.objs[r.none].refs++
	return r.none
}

func (r *Runtime) NewBool(v bool) abi.Ptr {
	return r.alloc(&object{kind: abi.KindBool, b: v})
}

func (r *Runtime) NewInt(v int64) abi.Ptr {
	return r.alloc(&object{kind: abi.KindInt, i: v})
}

func (r *Runtime) NewFloat(v float64) abi.Ptr {
	return r.alloc(&object{kind: abi.KindFloat, f: v})
}

func (r *Runtime) NewStr(v string) abi.Ptr {
	return r.alloc(&object{kind: abi.KindStr, s: v})
}

func (r *Runtime) NewBytes(v []byte) abi.Ptr {
	return r.alloc(&object{kind: abi.KindBytes, bytes: append([]byte(nil), v...)})
}

func (r *Runtime) NewList(items []abi.Ptr) abi.Ptr {
	return r.alloc(&object{kind: abi.KindList, items: append([]abi.Ptr(nil), items...)})
}

func (r *Runtime) NewTuple(items []abi.Ptr) abi.Ptr {
	return r.alloc(&object{kind: abi.KindTuple, items: append([]abi.Ptr(nil), items...)})
}

func (r *Runtime) NewDict(keys, values []abi.Ptr) abi.Ptr {
	if len(keys) != len(values) {
		panic("abitest: NewDict keys and values differ in length")
	}
	return r.alloc(&object{
		kind:  abi.KindDict,
		keys:  append([]abi.Ptr(nil), keys...),
		items: append([]abi.Ptr(nil), values...),
	})
}

// NewBuffer creates an array-like object exposing the buffer capability.
// Its elements are also reachable through Items.
func (r *Runtime) NewBuffer(format string, itemSize int, data []byte) abi.Ptr {
	if itemSize <= 0 || len(data)%itemSize != 0 {
		panic(fmt.Sprintf("abitest: bad buffer shape %q/%d/%d", format, itemSize, len(data)))
	}
	return r.alloc(&object{
		kind:     abi.KindBuffer,
		format:   format,
		itemSize: itemSize,
		bytes:    append([]byte(nil), data...),
	})
}

func (r *Runtime) NewCallable(name string, fn abi.Func) abi.Ptr {
	return r.alloc(&object{kind: abi.KindCallable, s: name, fn: fn})
}

func (r *Runtime) NewException(class, message string) abi.Ptr {
	return r.alloc(&object{kind: abi.KindException, class: class, s: message})
}

// NewInstance creates a plain object of the given class with attributes.
// The attribute references are stolen.
func (r *Runtime) NewInstance(class string, attrs map[string]abi.Ptr) abi.Ptr {
	m := make(map[string]abi.Ptr, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	return r.alloc(&object{kind: abi.KindInstance, class: class, attrs: m})
}

func (r *Runtime) AsBool(p abi.Ptr) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	return o.b, o.kind == abi.KindBool
}

func (r *Runtime) AsInt(p abi.Ptr) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	return o.i, o.kind == abi.KindInt
}

func (r *Runtime) AsFloat(p abi.Ptr) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	switch o.kind {
	case abi.KindFloat:
		return o.f, true
	case abi.KindInt:
		return float64(o.i), true
	}
	return 0, false
}

func (r *Runtime) AsStr(p abi.Ptr) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	return o.s, o.kind == abi.KindStr
}

func (r *Runtime) AsBytes(p abi.Ptr) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.kind != abi.KindBytes {
		return nil, false
	}
	return append([]byte(nil), o.bytes...), true
}

func (r *Runtime) Items(p abi.Ptr) ([]abi.Ptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	switch o.kind {
	case abi.KindList, abi.KindTuple:
		return append([]abi.Ptr(nil), o.items...), true
	case abi.KindBuffer:
		if o.items == nil {
			o.items = r.materializeLocked(o)
		}
		return append([]abi.Ptr(nil), o.items...), true
	}
	return nil, false
}

func (r *Runtime) DictItems(p abi.Ptr) ([]abi.Ptr, []abi.Ptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.kind != abi.KindDict {
		return nil, nil, false
	}
	return append([]abi.Ptr(nil), o.keys...), append([]abi.Ptr(nil), o.items...), true
}

func (r *Runtime) GetBuffer(p abi.Ptr) (abi.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.kind != abi.KindBuffer {
		return abi.Buffer{}, false
	}
	return abi.Buffer{
		Format:   o.format,
		ItemSize: o.itemSize,
		Len:      len(o.bytes) / o.itemSize,
		Data:     o.bytes,
	}, true
}

func (r *Runtime) GetAttr(p abi.Ptr, name string) (abi.Ptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	v, ok := o.attrs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", abi.ErrNoAttribute, r.typeNameLocked(o), name)
	}
	r.getLocked(v).refs++
	return v, nil
}

func (r *Runtime) SetAttr(p abi.Ptr, name string, v abi.Ptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.kind != abi.KindInstance {
		return fmt.Errorf("%w: %s.%s is read-only", abi.ErrNoAttribute, r.typeNameLocked(o), name)
	}
	r.getLocked(v).refs++
	if old, ok := o.attrs[name]; ok {
		r.decRefLocked(old)
	}
	o.attrs[name] = v
	return nil
}

func (r *Runtime) Call(p abi.Ptr, args []abi.Ptr) (abi.Ptr, error) {
	r.mu.Lock()
	o := r.getLocked(p)
	fn := o.fn
	r.mu.Unlock()
	if o.kind != abi.KindCallable || fn == nil {
		return 0, abi.ErrNotCallable
	}
	return fn(args)
}

func (r *Runtime) Raise(exc abi.Ptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkLocked()
	if r.pending != 0 {
		r.decRefLocked(r.pending)
	}
	r.pending = exc
}

func (r *Runtime) Fetch() abi.Ptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkLocked()
	p := r.pending
	r.pending = 0
	return p
}

func (r *Runtime) ExceptionInfo(p abi.Ptr) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.getLocked(p)
	if o.kind != abi.KindException {
		return "", "", false
	}
	return o.class, o.s, true
}

func (r *Runtime) alloc(o *object) abi.Ptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkLocked()
	return r.allocLocked(o)
}

func (r *Runtime) allocLocked(o *object) abi.Ptr {
	r.next++
	o.refs = 1
	r.objs[r.next] = o
	return r.next
}

func (r *Runtime) checkLocked() {
	if !r.initialized {
		panic(abi.ErrNotInitialized)
	}
	if !r.held {
		panic("abitest: interpreter called without the global lock")
	}
}

func (r *Runtime) getLocked(p abi.Ptr) *object {
	r.checkLocked()
	o, ok := r.objs[p]
	if !ok {
		panic(fmt.Sprintf("abitest: use of freed or invalid object %#x", uintptr(p)))
	}
	return o
}

func (r *Runtime) decRefLocked(p abi.Ptr) {
	o := r.getLocked(p)
	o.refs--
	if o.refs > 0 {
		return
	}
	delete(r.objs, p)
	for _, c := range o.items {
		r.decRefLocked(c)
	}
	for _, c := range o.keys {
		r.decRefLocked(c)
	}
	for _, c := range o.attrs {
		r.decRefLocked(c)
	}
}

func (r *Runtime) typeNameLocked(o *object) string {
	if o.class != "" {
		return o.class
	}
	return o.kind.String()
}

func (r *Runtime) materializeLocked(o *object) []abi.Ptr {
	n := len(o.bytes) / o.itemSize
	items := make([]abi.Ptr, n)
	for i := range n {
		chunk := o.bytes[i*o.itemSize : (i+1)*o.itemSize]
		items[i] = r.allocLocked(decodeItem(o.format, chunk))
	}
	return items
}

func decodeItem(format string, b []byte) *object {
	ne := binary.NativeEndian
	switch format {
	case "b":
		return &object{kind: abi.KindInt, i: int64(int8(b[0]))}
	case "B":
		return &object{kind: abi.KindInt, i: int64(b[0])}
	case "h":
		return &object{kind: abi.KindInt, i: int64(int16(ne.Uint16(b)))}
	case "H":
		return &object{kind: abi.KindInt, i: int64(ne.Uint16(b))}
	case "i":
		return &object{kind: abi.KindInt, i: int64(int32(ne.Uint32(b)))}
	case "I":
		return &object{kind: abi.KindInt, i: int64(ne.Uint32(b))}
	case "q":
		return &object{kind: abi.KindInt, i: int64(ne.Uint64(b))}
	case "Q":
		return &object{kind: abi.KindInt, i: int64(ne.Uint64(b))}
	case "f":
		return &object{kind: abi.KindFloat, f: float64(math.Float32frombits(ne.Uint32(b)))}
	case "d":
		return &object{kind: abi.KindFloat, f: math.Float64frombits(ne.Uint64(b))}
	}
	panic(fmt.Sprintf("abitest: unsupported buffer format %q", format))
}
