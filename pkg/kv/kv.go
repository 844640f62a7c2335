// Package kv is the index store behind the bindgen build cache. Keys are
// segment paths such as {"glue", "<digest>", "<package>"} joined with a
// separator byte (':' by default).
//
// Badger is the on-disk store used by the CLI; Memory serves tests and
// one-shot runs that disable the cache directory.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned when a key is empty or a segment contains
	// the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Key is a segment path.
type Key []string

// String joins the segments with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is one key and its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store over segment-path keys. Implementations are
// safe for concurrent use and return copies of stored values.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in encoded-key order. A prefix
	// matches whole segments only; nil lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	BatchSet(ctx context.Context, entries []Entry) error
	BatchDelete(ctx context.Context, keys []Key) error
	Close() error
}

// DefaultSeparator joins key segments.
const DefaultSeparator byte = ':'

// Options configures key encoding. A nil *Options uses the defaults.
type Options struct {
	Separator byte
}

func (o *Options) sep() byte {
	if o == nil || o.Separator == 0 {
		return DefaultSeparator
	}
	return o.Separator
}

// encode joins k, rejecting keys that would not decode to themselves.
func (o *Options) encode(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return o.join(k)
}

// prefix encodes a List prefix: the empty prefix is allowed and a
// non-empty one ends with the separator so "a" does not match "ab".
func (o *Options) prefix(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, nil
	}
	b, err := o.join(k)
	if err != nil {
		return nil, err
	}
	return append(b, o.sep()), nil
}

func (o *Options) join(k Key) ([]byte, error) {
	s := o.sep()
	var b strings.Builder
	for i, seg := range k {
		if strings.IndexByte(seg, s) >= 0 {
			return nil, fmt.Errorf("%w: segment %q contains %q", ErrInvalidKey, seg, s)
		}
		if i > 0 {
			b.WriteByte(s)
		}
		b.WriteString(seg)
	}
	return []byte(b.String()), nil
}

func (o *Options) decode(b []byte) Key {
	return Key(strings.Split(string(b), string(o.sep())))
}

// encodeAll encodes every key of a batch before anything is written, so a
// bad key leaves the store untouched.
func (o *Options) encodeAll(keys []Key) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := o.encode(k)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
