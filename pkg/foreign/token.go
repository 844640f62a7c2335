package foreign

import (
	"context"

	"github.com/haivivi/bindkit/pkg/abi"
)

// Token proves the interpreter lock of one session is held. Tokens are
// created by Interpreter.Acquire, Interpreter.Enter and Token.Reacquire and
// must not be shared between goroutines.
type Token struct {
	in       *Interpreter
	h        *holder
	released bool
}

// Interpreter returns the session the token belongs to.
func (t *Token) Interpreter() *Interpreter {
	return t.in
}

// Live reports whether the token may still be used.
func (t *Token) Live() bool {
	if t == nil || t.released {
		return false
	}
	t.in.mu.Lock()
	defer t.in.mu.Unlock()
	return t.h.depth > 0
}

// Depth returns the nesting depth of the lock this token is part of.
func (t *Token) Depth() int {
	t.in.mu.Lock()
	defer t.in.mu.Unlock()
	return t.h.depth
}

// Reacquire returns a nested token. Releasing it does not release the lock.
func (t *Token) Reacquire() *Token {
	t.in.check(t, "reacquire")
	t.in.mu.Lock()
	t.h.depth++
	t.in.mu.Unlock()
	return &Token{in: t.in, h: t.h}
}

// Release ends the token's scope. Releasing the outermost token releases the
// interpreter lock. Release is idempotent.
func (t *Token) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	t.in.release(t.h)
}

// Runtime gives direct access to the ABI. Pointers obtained through it are
// only valid while the token is live.
func (t *Token) Runtime() abi.Runtime {
	t.in.check(t, "runtime")
	return t.in.rt
}

// Own wraps a new reference returned by the runtime.
func (t *Token) Own(p abi.Ptr) *Object {
	t.in.check(t, "own")
	if p == 0 {
		violate("own", "null object pointer")
	}
	return &Object{in: t.in, p: p}
}

// Borrow wraps a borrowed reference, adding one reference for the handle.
func (t *Token) Borrow(p abi.Ptr) *Object {
	t.in.check(t, "borrow")
	if p == 0 {
		violate("borrow", "null object pointer")
	}
	t.in.rt.IncRef(p)
	return &Object{in: t.in, p: p}
}

// None returns a handle to the interpreter's None.
func (t *Token) None() *Object {
	return t.Own(t.Runtime().None())
}

// FetchException clears and returns the pending foreign exception, or nil.
func (t *Token) FetchException() *Exception {
	p := t.Runtime().Fetch()
	if p == 0 {
		return nil
	}
	return newException(t, t.Own(p))
}

func (in *Interpreter) check(t *Token, op string) {
	switch {
	case t == nil:
		violate(op, "no interpreter token")
	case t.in != in:
		violate(op, "token belongs to another interpreter session")
	case !t.Live():
		violate(op, "interpreter token already released")
	}
}

type tokenKey struct{}

// WithToken returns a context carrying tok. Acquire on that context nests
// inside tok instead of blocking.
func WithToken(ctx context.Context, tok *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFrom returns the token carried by ctx, or nil.
func TokenFrom(ctx context.Context) *Token {
	if ctx == nil {
		return nil
	}
	tok, _ := ctx.Value(tokenKey{}).(*Token)
	return tok
}
