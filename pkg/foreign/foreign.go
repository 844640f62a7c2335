package foreign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haivivi/bindkit/pkg/abi"
)

// ErrNotInitialized is the panic value when a token is requested from a
// session that was never initialized and auto-initialization is off.
var ErrNotInitialized = errors.New("foreign: interpreter not initialized and auto-initialize disabled")

// DefaultDropQueueCapacity is the number of deferred decrements after which a
// background drain is scheduled.
const DefaultDropQueueCapacity = 1024

// Options configures an Interpreter.
type Options struct {
	// AutoInitialize bootstraps the interpreter on first acquisition.
	// When false, Initialize must be called first.
	AutoInitialize bool

	// DropQueueCapacity bounds the deferred drop queue. Zero means
	// DefaultDropQueueCapacity.
	DropQueueCapacity int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DisciplineError describes a foreign-object operation attempted without
// the required token. It is only ever used as a panic value.
type DisciplineError struct {
	Op     string
	Reason string
}

func (e *DisciplineError) Error() string {
	return fmt.Sprintf("foreign: %s: %s", e.Op, e.Reason)
}

func violate(op, reason string) {
	panic(&DisciplineError{Op: op, Reason: reason})
}

// holder is the lock state of the token currently owning the session.
type holder struct {
	depth int
}

// Interpreter is one session of an embedded interpreter.
type Interpreter struct {
	id   uuid.UUID
	rt   abi.Runtime
	opts Options
	log  *slog.Logger

	// sem is the session lock: one slot, taken by the outermost token.
	sem chan struct{}

	initMu sync.Mutex

	mu     sync.Mutex
	holder *holder

	drops    *dropQueue
	draining atomic.Bool
}

// New creates a session over rt. It does not initialize the interpreter.
func New(rt abi.Runtime, opts Options) *Interpreter {
	if opts.DropQueueCapacity <= 0 {
		opts.DropQueueCapacity = DefaultDropQueueCapacity
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	return &Interpreter{
		id:    id,
		rt:    rt,
		opts:  opts,
		log:   log.With("session", id.String()),
		sem:   make(chan struct{}, 1),
		drops: newDropQueue(opts.DropQueueCapacity),
	}
}

// ID returns the session identity.
func (in *Interpreter) ID() uuid.UUID {
	return in.id
}

// Initialize bootstraps the interpreter explicitly.
func (in *Interpreter) Initialize() error {
	in.initMu.Lock()
	defer in.initMu.Unlock()
	if in.rt.Initialized() {
		return nil
	}
	if err := in.rt.Initialize(); err != nil {
		return fmt.Errorf("foreign: initialize: %w", err)
	}
	in.log.Debug("interpreter initialized")
	return nil
}

func (in *Interpreter) ensureInitialized() error {
	if in.rt.Initialized() {
		return nil
	}
	if !in.opts.AutoInitialize {
		panic(ErrNotInitialized)
	}
	in.log.Debug("auto-initializing interpreter")
	return in.Initialize()
}

// Acquire returns a token for this session. If ctx carries a live token of
// this session the returned token is nested inside it and Acquire does not
// block. Otherwise Acquire blocks until the lock is free or ctx is done.
// Re-entrancy follows the token carried by ctx, not the calling goroutine: a
// goroutine holding a token that calls Acquire without it in ctx deadlocks.
//
// Acquiring the outermost token drains the deferred drop queue.
func (in *Interpreter) Acquire(ctx context.Context) (*Token, error) {
	if t := TokenFrom(ctx); t != nil && t.in == in && t.Live() {
		return t.Reacquire(), nil
	}
	if err := in.ensureInitialized(); err != nil {
		return nil, err
	}
	select {
	case in.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("foreign: acquire: %w", ctx.Err())
	}
	in.rt.LockAcquire()

	h := &holder{depth: 1}
	in.mu.Lock()
	in.holder = h
	in.mu.Unlock()

	tok := &Token{in: in, h: h}
	in.drain(tok)
	return tok, nil
}

// MustAcquire is Acquire with a background context; it panics on error.
func (in *Interpreter) MustAcquire() *Token {
	tok, err := in.Acquire(context.Background())
	if err != nil {
		panic(err)
	}
	return tok
}

// With runs fn while holding a token. The context passed to fn carries the
// token, so nested With or Acquire calls on it are re-entrant.
func (in *Interpreter) With(ctx context.Context, fn func(ctx context.Context, tok *Token) error) error {
	tok, err := in.Acquire(ctx)
	if err != nil {
		return err
	}
	defer tok.Release()
	return fn(WithToken(ctx, tok), tok)
}

// Enter returns a token nested in the session's current holder. It is used
// by callbacks invoked by the interpreter, which always run on the thread
// that holds the lock.
func (in *Interpreter) Enter() *Token {
	in.mu.Lock()
	h := in.holder
	if h == nil {
		in.mu.Unlock()
		violate("enter", "callback invoked without the interpreter lock held")
	}
	h.depth++
	in.mu.Unlock()
	return &Token{in: in, h: h}
}

// Held reports whether some token of this session is live.
func (in *Interpreter) Held() bool {
	return in.Depth() > 0
}

// Depth returns the nesting depth of the current holder, 0 if none.
func (in *Interpreter) Depth() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.holder == nil {
		return 0
	}
	return in.holder.depth
}

// Pending returns the number of queued deferred decrements.
func (in *Interpreter) Pending() int {
	return in.drops.len()
}

// Close drains the drop queue and finalizes the interpreter.
func (in *Interpreter) Close() error {
	if !in.rt.Initialized() {
		return nil
	}
	tok, err := in.Acquire(context.Background())
	if err != nil {
		return err
	}
	tok.Release()
	if err := in.rt.Finalize(); err != nil {
		return fmt.Errorf("foreign: finalize: %w", err)
	}
	return nil
}

func (in *Interpreter) release(h *holder) {
	in.mu.Lock()
	h.depth--
	last := h.depth == 0
	if last && in.holder == h {
		in.holder = nil
	}
	in.mu.Unlock()
	if !last {
		return
	}
	in.rt.LockRelease()
	<-in.sem
}

func (in *Interpreter) drain(tok *Token) {
	ptrs := in.drops.take()
	if len(ptrs) == 0 {
		return
	}
	for _, p := range ptrs {
		tok.in.rt.DecRef(p)
	}
	in.log.Debug("drained deferred drops", "count", len(ptrs))
}

// deferDrop queues a decrement. A full queue schedules a background drain so the
// releasing goroutine never blocks on the lock it may already hold.
func (in *Interpreter) deferDrop(p abi.Ptr) {
	if !in.drops.push(p) {
		return
	}
	if !in.draining.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer in.draining.Store(false)
		tok, err := in.Acquire(context.Background())
		if err != nil {
			in.log.Warn("deferred drain failed", "error", err)
			return
		}
		tok.Release()
	}()
}
