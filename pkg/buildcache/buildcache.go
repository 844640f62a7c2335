// Package buildcache memoizes generated glue. Artifacts live in a
// storage.Store and a kv.Store index maps a declaration digest plus the
// emission options to the artifact and its checksum.
package buildcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/gen"
	"github.com/haivivi/bindkit/pkg/kv"
	"github.com/haivivi/bindkit/pkg/storage"
)

// Layout is the index layout version; bumping it orphans older entries.
const Layout = "v1"

var (
	// ErrMiss is returned by Lookup when no entry exists.
	ErrMiss = errors.New("buildcache: miss")

	// ErrCorrupt is returned by Lookup when the artifact does not match
	// the checksum recorded in the index.
	ErrCorrupt = errors.New("buildcache: artifact checksum mismatch")
)

// Key identifies one emission: the declaration digest and a variant hash
// over everything else that shapes the output.
type Key struct {
	Digest  string
	Variant string
}

func (k Key) index() kv.Key {
	return kv.Key{Layout, "glue", k.Digest, k.Variant}
}

// Path is the artifact path of k.
func (k Key) Path() string {
	return fmt.Sprintf("glue/%s/%s-%s.go", k.Digest[:2], k.Digest, k.Variant)
}

func (k Key) String() string {
	return k.Digest[:12] + "/" + k.Variant
}

// KeyFor computes the key of emitting set with opts.
func KeyFor(set *decl.Set, opts gen.Options) (Key, error) {
	digest, err := decl.Digest(set)
	if err != nil {
		return Key{}, err
	}
	h := sha256.New()
	thirdParty := opts.Bridge != nil && opts.Bridge.ThirdParty()
	for _, s := range []string{set.File, opts.Package, opts.HostImport, opts.Tool, strconv.FormatBool(thirdParty)} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return Key{Digest: digest, Variant: hex.EncodeToString(h.Sum(nil))[:16]}, nil
}

// Entry is the index record of one artifact.
type Entry struct {
	Digest     string    `msgpack:"digest" json:"digest"`
	Variant    string    `msgpack:"variant" json:"variant"`
	Package    string    `msgpack:"package" json:"package"`
	HostImport string    `msgpack:"host_import" json:"host_import"`
	Source     string    `msgpack:"source,omitempty" json:"source,omitempty"`
	Path       string    `msgpack:"path" json:"path"`
	Size       int       `msgpack:"size" json:"size"`
	Sum        string    `msgpack:"sum" json:"sum"`
	Created    time.Time `msgpack:"created" json:"created"`
}

// Key returns the entry's key.
func (e *Entry) Key() Key {
	return Key{Digest: e.Digest, Variant: e.Variant}
}

// Options configures New.
type Options struct {
	Index  kv.Store
	Files  storage.Store
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Cache is a glue build cache. It is safe for concurrent use when its
// stores are.
type Cache struct {
	index  kv.Store
	files  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New returns a cache over the given stores.
func New(opts Options) (*Cache, error) {
	if opts.Index == nil || opts.Files == nil {
		return nil, errors.New("buildcache: Index and Files are required")
	}
	c := &Cache{index: opts.Index, files: opts.Files, logger: opts.Logger, now: opts.Now}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Lookup returns the cached artifact for key. A corrupt artifact is
// evicted before ErrCorrupt is returned.
func (c *Cache) Lookup(ctx context.Context, key Key) (*Entry, []byte, error) {
	e, err := c.entry(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	src, err := c.files.Get(ctx, e.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("buildcache: read %s: %w", e.Path, err)
	}
	if checksum(src) != e.Sum {
		c.logger.Warn("evicting corrupt glue artifact", "key", key.String(), "path", e.Path)
		if err := c.evict(ctx, []*Entry{e}); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrCorrupt, e.Path)
	}
	return e, src, nil
}

func (c *Cache) entry(ctx context.Context, key Key) (*Entry, error) {
	data, err := c.index.Get(ctx, key.index())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("buildcache: index: %w", err)
	}
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("buildcache: decode entry %s: %w", key, err)
	}
	return &e, nil
}

// Store records src under key. The artifact is written before the index
// so a crash never leaves an entry without its artifact.
func (c *Cache) Store(ctx context.Context, key Key, meta Entry, src []byte) (*Entry, error) {
	e := meta
	e.Digest, e.Variant = key.Digest, key.Variant
	e.Path = key.Path()
	e.Size = len(src)
	e.Sum = checksum(src)
	e.Created = c.now().UTC()

	if err := c.files.Put(ctx, e.Path, src); err != nil {
		return nil, fmt.Errorf("buildcache: write %s: %w", e.Path, err)
	}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("buildcache: encode entry: %w", err)
	}
	if err := c.index.Set(ctx, key.index(), data); err != nil {
		return nil, fmt.Errorf("buildcache: index: %w", err)
	}
	c.logger.Debug("stored glue artifact", "key", key.String(), "size", e.Size)
	return &e, nil
}

// Emit returns the glue for set, rendering it with gen.Emit on a miss.
// hit reports whether the result came from the cache.
func (c *Cache) Emit(ctx context.Context, set *decl.Set, opts gen.Options) (src []byte, hit bool, err error) {
	key, err := KeyFor(set, opts)
	if err != nil {
		return nil, false, err
	}
	_, src, err = c.Lookup(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug("glue cache hit", "key", key.String())
		return src, true, nil
	case errors.Is(err, ErrMiss), errors.Is(err, ErrCorrupt):
	default:
		return nil, false, err
	}

	src, err = gen.Emit(set, opts)
	if err != nil {
		return nil, false, err
	}
	meta := Entry{Package: opts.Package, HostImport: opts.HostImport, Source: set.File}
	if _, err := c.Store(ctx, key, meta, src); err != nil {
		return nil, false, err
	}
	return src, false, nil
}

// Entries returns every index entry in key order.
func (c *Cache) Entries(ctx context.Context) ([]*Entry, error) {
	var out []*Entry
	for kve, err := range c.index.List(ctx, kv.Key{Layout, "glue"}) {
		if err != nil {
			return nil, fmt.Errorf("buildcache: index: %w", err)
		}
		var e Entry
		if err := msgpack.Unmarshal(kve.Value, &e); err != nil {
			return nil, fmt.Errorf("buildcache: decode entry %s: %w", kve.Key, err)
		}
		out = append(out, &e)
	}
	return out, nil
}

// Prune removes entries created before cutoff and returns how many were
// removed.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return 0, err
	}
	var stale []*Entry
	for _, e := range entries {
		if e.Created.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	if err := c.evict(ctx, stale); err != nil {
		return 0, err
	}
	c.logger.Info("pruned glue cache", "removed", len(stale), "kept", len(entries)-len(stale))
	return len(stale), nil
}

// evict drops index entries first, then their artifacts.
func (c *Cache) evict(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]kv.Key, len(entries))
	for i, e := range entries {
		keys[i] = e.Key().index()
	}
	if err := c.index.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("buildcache: index: %w", err)
	}
	for _, e := range entries {
		if err := c.files.Delete(ctx, e.Path); err != nil {
			return fmt.Errorf("buildcache: delete %s: %w", e.Path, err)
		}
	}
	return nil
}

// Close closes the index.
func (c *Cache) Close() error {
	return c.index.Close()
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// OpenDir opens a cache under dir: a badger index in dir/index and
// artifacts in dir/artifacts.
func OpenDir(dir string, logger *slog.Logger) (*Cache, error) {
	files, err := storage.NewLocal(filepath.Join(dir, "artifacts"))
	if err != nil {
		return nil, err
	}
	index, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "index"), Logger: logger})
	if err != nil {
		return nil, err
	}
	return New(Options{Index: index, Files: files, Logger: logger})
}
