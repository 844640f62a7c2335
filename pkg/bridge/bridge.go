// Package bridge maps host errors to foreign exceptions and back.
//
// A Bridge holds an ordered list of mappings. Host errors are matched against
// them in order: foreign exceptions first (they round-trip to the original
// object), then aggregates, then explicitly registered adapters, then the
// third-party adapters when enabled, then the built-in categories. Anything
// left becomes a RuntimeError.
//
// Mappings also name the host error types they cover. Generation asks
// Supports for the declared error type of every method and refuses to bind a
// method whose error type has no mapping.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/haivivi/bindkit/pkg/foreign"
)

// RuntimeError is the class of host errors no mapping matched.
const RuntimeError = "RuntimeError"

// Mapping converts one category of host errors.
type Mapping struct {
	// Names are the host error type names this mapping covers, as they
	// appear in declarations.
	Names []string
	// Class is the foreign exception class.
	Class string
	// Match reports whether err belongs to the category.
	Match func(err error) bool
	// Message builds the exception message. Nil means err.Error().
	Message func(err error) string
	// Classify picks a class per error, overriding Class when it returns a
	// non-empty string.
	Classify func(err error) string
}

func (m *Mapping) class(err error) string {
	if m.Classify != nil {
		if c := m.Classify(err); c != "" {
			return c
		}
	}
	return m.Class
}

func (m *Mapping) message(err error) string {
	if m.Message != nil {
		return m.Message(err)
	}
	return err.Error()
}

// Options configures a Bridge.
type Options struct {
	// ThirdParty enables the adapters for third-party error types.
	ThirdParty bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Bridge converts errors in both directions. It is safe for concurrent use.
type Bridge struct {
	opts Options
	log  *slog.Logger

	mu         sync.RWMutex
	registered []Mapping
}

// New returns a bridge with the built-in mappings.
func New(opts Options) *Bridge {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{opts: opts, log: log}
}

// ThirdParty reports whether third-party adapters are enabled.
func (b *Bridge) ThirdParty() bool {
	return b.opts.ThirdParty
}

// Register adds an explicit adapter. Registered adapters take precedence over
// third-party and built-in mappings, in registration order.
func (b *Bridge) Register(typeName, class string, match func(error) bool) {
	b.RegisterMapping(Mapping{Names: []string{typeName}, Class: class, Match: match})
}

// RegisterMapping adds a fully specified adapter.
func (b *Bridge) RegisterMapping(m Mapping) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = append(b.registered, m)
}

// RegisterType registers an adapter for every error in whose chain an E is
// found.
func RegisterType[E error](b *Bridge, class string) {
	b.RegisterMapping(Mapping{
		Names: []string{reflect.TypeFor[E]().String()},
		Class: class,
		Match: func(err error) bool {
			var target E
			return errors.As(err, &target)
		},
	})
}

func (b *Bridge) mappings() []Mapping {
	b.mu.RLock()
	out := append([]Mapping(nil), b.registered...)
	b.mu.RUnlock()
	if b.opts.ThirdParty {
		out = append(out, thirdParty...)
	}
	return append(out, builtins...)
}

// Supports reports whether errors declared with the host type name can be
// converted. The empty name means the method cannot fail.
func (b *Bridge) Supports(typeName string) bool {
	if typeName == "" || typeName == "error" {
		return true
	}
	for _, m := range b.mappings() {
		for _, n := range m.Names {
			if n == typeName {
				return true
			}
		}
	}
	return false
}

// Lookup returns the class and message err converts to.
func (b *Bridge) Lookup(err error) (class, message string) {
	var exc *foreign.Exception
	if errors.As(err, &exc) {
		return exc.Class, exc.Message
	}
	if errs, ok := aggregate(err); ok {
		return groupClass, groupMessage(err, errs)
	}
	for _, m := range b.mappings() {
		if m.Match(err) {
			return m.class(err), m.message(err)
		}
	}
	return RuntimeError, err.Error()
}

// ToForeignException returns a new reference to the exception object err
// converts to. A foreign exception surfaced earlier converts back to its
// original object.
func (b *Bridge) ToForeignException(tok *foreign.Token, err error) *foreign.Object {
	var exc *foreign.Exception
	if errors.As(err, &exc) && exc.Object().Alive() {
		return exc.Object().Clone(tok)
	}
	class, msg := b.Lookup(err)
	return tok.Own(tok.Runtime().NewException(class, msg))
}

// FromForeignException converts a foreign exception object to a host error.
// The result is a *foreign.Exception, wrapped so that errors.Is matches the
// host sentinel of built-in classes (TimeoutError is
// context.DeadlineExceeded, and so on). obj is borrowed.
func (b *Bridge) FromForeignException(tok *foreign.Token, obj *foreign.Object) error {
	exc := foreign.ExceptionFromObject(tok, obj.Clone(tok))
	if s, ok := sentinels[exc.Class]; ok {
		return &classError{exc: exc, sentinel: s}
	}
	return exc
}

// Raised reports that an exception was set on the interpreter. Glue returns
// it instead of a result; the caller sees the pending exception.
type Raised struct {
	Class   string
	Message string
	// Err is the host error that was converted.
	Err error
}

func (r *Raised) Error() string {
	return fmt.Sprintf("raised %s: %s", r.Class, r.Message)
}

func (r *Raised) Unwrap() error { return r.Err }

// Raise converts err and sets it as the interpreter's pending exception.
func (b *Bridge) Raise(tok *foreign.Token, err error) *Raised {
	obj := b.ToForeignException(tok, err)
	class, msg, ok := tok.Runtime().ExceptionInfo(obj.Ptr())
	if !ok {
		class, msg = b.Lookup(err)
	}
	tok.Runtime().Raise(obj.IntoPtr(tok))
	b.log.Debug("raised foreign exception", "class", class, "error", err)
	return &Raised{Class: class, Message: msg, Err: err}
}

// Fetch clears the pending exception and returns it as a host error, or nil
// when none is pending.
func (b *Bridge) Fetch(tok *foreign.Token) error {
	exc := tok.FetchException()
	if exc == nil {
		return nil
	}
	if s, ok := sentinels[exc.Class]; ok {
		return &classError{exc: exc, sentinel: s}
	}
	return exc
}

// classError is a foreign exception whose class has a host sentinel.
type classError struct {
	exc      *foreign.Exception
	sentinel error
}

func (e *classError) Error() string   { return e.exc.Error() }
func (e *classError) Unwrap() []error { return []error{e.exc, e.sentinel} }

const groupClass = "ExceptionGroup"

// aggregate returns the members of an error built by errors.Join or by
// fmt.Errorf with several %w verbs.
func aggregate(err error) ([]error, bool) {
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return nil, false
	}
	errs := j.Unwrap()
	return errs, len(errs) > 1
}

func groupMessage(err error, errs []error) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d sub-exceptions: %s", len(errs), strings.Join(parts, "; "))
}
