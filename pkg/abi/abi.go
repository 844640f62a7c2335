// Package abi describes the fixed set of entry points bindkit needs from an
// embedded interpreter.
//
// The interpreter itself (allocator, bytecode executor, global lock) lives
// behind this boundary. A production build wires Runtime to the C API of the
// embedded interpreter through cgo, the way pkg/luau wraps its C state; tests
// use the in-memory implementation in package abitest.
//
// All Runtime methods except Initialize, Initialized and LockAcquire assume
// the caller holds the interpreter lock. bindkit never calls them otherwise;
// package foreign enforces that.
package abi

import "errors"

// Errors returned by Runtime implementations.
var (
	ErrNotInitialized = errors.New("abi: interpreter not initialized")
	ErrNoAttribute    = errors.New("abi: no such attribute")
	ErrNotCallable    = errors.New("abi: object is not callable")
)

// Ptr is an opaque reference to a foreign object. The zero Ptr is never a
// valid object.
type Ptr uintptr

// Kind is the coarse runtime type of a foreign object.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindList
	KindTuple
	KindDict
	KindBuffer
	KindCallable
	KindException
	KindInstance
)

// String returns the type name the interpreter reports for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NoneType"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindBuffer:
		return "array"
	case KindCallable:
		return "builtin_function_or_method"
	case KindException:
		return "BaseException"
	case KindInstance:
		return "object"
	default:
		return "unknown"
	}
}

// Buffer is a contiguous view of a buffer-capable object. Format uses the
// struct-module codes: b B h H i I q Q f d. Data is borrowed and valid only
// while the lock is held and the owning object is alive.
type Buffer struct {
	Format   string
	ItemSize int
	Len      int
	Data     []byte
}

// Func is the host side of a foreign callable created with NewCallable.
// Args are borrowed; the returned Ptr carries a new reference.
type Func func(args []Ptr) (Ptr, error)

// Runtime is the C-level surface of the embedded interpreter.
type Runtime interface {
	// Initialize bootstraps the interpreter. Calling it twice is a no-op.
	Initialize() error
	Initialized() bool
	Finalize() error

	// LockAcquire blocks until the calling thread owns the global lock.
	LockAcquire()
	LockRelease()

	IncRef(p Ptr)
	DecRef(p Ptr)
	RefCount(p Ptr) int

	KindOf(p Ptr) Kind
	TypeName(p Ptr) string

	// Constructors return a new reference.
	None() Ptr
	NewBool(v bool) Ptr
	NewInt(v int64) Ptr
	NewFloat(v float64) Ptr
	NewStr(v string) Ptr
	NewBytes(v []byte) Ptr
	// NewList and NewTuple steal the references in items.
	NewList(items []Ptr) Ptr
	NewTuple(items []Ptr) Ptr
	// NewDict steals the references in keys and values.
	NewDict(keys, values []Ptr) Ptr
	NewBuffer(format string, itemSize int, data []byte) Ptr
	NewCallable(name string, fn Func) Ptr
	NewException(class, message string) Ptr

	// Accessors report ok=false on a kind mismatch.
	AsBool(p Ptr) (bool, bool)
	AsInt(p Ptr) (int64, bool)
	AsFloat(p Ptr) (float64, bool)
	AsStr(p Ptr) (string, bool)
	AsBytes(p Ptr) ([]byte, bool)
	// Items returns borrowed references to the elements of a list, tuple or
	// buffer (buffer elements are materialised as new int/float objects
	// owned by the buffer).
	Items(p Ptr) ([]Ptr, bool)
	// DictItems returns borrowed keys and values in insertion order.
	DictItems(p Ptr) (keys, values []Ptr, ok bool)
	// GetBuffer exposes the contiguous-buffer capability.
	GetBuffer(p Ptr) (Buffer, bool)

	GetAttr(p Ptr, name string) (Ptr, error)
	SetAttr(p Ptr, name string, v Ptr) error
	Call(p Ptr, args []Ptr) (Ptr, error)

	// Raise sets the pending exception, stealing the reference.
	Raise(exc Ptr)
	// Fetch clears and returns the pending exception, or 0.
	Fetch() Ptr
	ExceptionInfo(p Ptr) (class, message string, ok bool)
}
