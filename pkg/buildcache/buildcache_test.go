package buildcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haivivi/bindkit/pkg/bridge"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/gen"
	"github.com/haivivi/bindkit/pkg/kv"
	"github.com/haivivi/bindkit/pkg/storage"
)

const pointYAML = `module: geo
types:
  - name: Point
    fields:
      - {name: X, type: float64, options: [get, set]}
      - {name: Y, type: float64, options: [get, set]}
    methods:
      - {name: Norm, returns: float64}
`

var pointOpts = gen.Options{Package: "geobind", HostImport: "example.com/geo"}

type fixture struct {
	cache *Cache
	index *kv.Memory
	files *storage.Local
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() failed: %v", err)
	}
	f := &fixture{index: kv.NewMemory(nil), files: files, clock: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	f.cache, err = New(Options{
		Index:  f.index,
		Files:  files,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return f.clock },
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return f
}

func parse(t *testing.T, src string) *decl.Set {
	t.Helper()
	set, err := decl.Parse("geo.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return set
}

// =============================================================================
// Keys
// =============================================================================

func TestKeyFor(t *testing.T) {
	set := parse(t, pointYAML)
	base, err := KeyFor(set, pointOpts)
	if err != nil {
		t.Fatalf("KeyFor() failed: %v", err)
	}
	if len(base.Digest) != 64 || len(base.Variant) != 16 {
		t.Fatalf("KeyFor() = %+v", base)
	}

	again, _ := KeyFor(parse(t, pointYAML), pointOpts)
	if again != base {
		t.Errorf("KeyFor() not stable: %v vs %v", again, base)
	}

	tp := pointOpts
	tp.Bridge = bridge.New(bridge.Options{ThirdParty: true})
	other := pointOpts
	other.Package = "other"
	renamed := parse(t, pointYAML)
	renamed.File = "elsewhere.yaml"
	changed := parse(t, pointYAML+"  - name: Extra\n")

	tests := []struct {
		name string
		set  *decl.Set
		opts gen.Options
	}{
		{"third-party toggle", set, tp},
		{"package", set, other},
		{"source file", renamed, pointOpts},
		{"declarations", changed, pointOpts},
	}
	for _, tt := range tests {
		k, err := KeyFor(tt.set, tt.opts)
		if err != nil {
			t.Fatalf("%s: KeyFor() failed: %v", tt.name, err)
		}
		if k == base {
			t.Errorf("%s: key did not change", tt.name)
		}
	}
	if k, _ := KeyFor(changed, pointOpts); k.Variant != base.Variant {
		t.Error("declaration change altered the variant")
	}
}

// =============================================================================
// Emit
// =============================================================================

func TestEmitCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := parse(t, pointYAML)

	first, hit, err := f.cache.Emit(ctx, set, pointOpts)
	if err != nil {
		t.Fatalf("Emit() failed: %v", err)
	}
	if hit {
		t.Error("first Emit() reported a hit")
	}
	want, err := gen.Emit(set, pointOpts)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, want) {
		t.Error("cached Emit() differs from gen.Emit()")
	}

	second, hit, err := f.cache.Emit(ctx, set, pointOpts)
	if err != nil {
		t.Fatalf("second Emit() failed: %v", err)
	}
	if !hit || !bytes.Equal(first, second) {
		t.Errorf("second Emit() hit = %v, equal = %v", hit, bytes.Equal(first, second))
	}

	entries, err := f.cache.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Entries() = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Package != "geobind" || e.HostImport != "example.com/geo" || e.Source != "geo.yaml" || e.Size != len(first) || !e.Created.Equal(f.clock) {
		t.Errorf("entry = %+v", e)
	}
}

func TestEmitDoesNotCacheFailures(t *testing.T) {
	f := newFixture(t)
	set := parse(t, "types: [{name: A, tuple: true, fields: [{type: int, options: [get]}]}]")
	if _, _, err := f.cache.Emit(context.Background(), set, pointOpts); err == nil {
		t.Fatal("Emit() of invalid declarations succeeded")
	}
	if f.index.Len() != 0 {
		t.Errorf("index holds %d entries after a failed emit", f.index.Len())
	}
}

// =============================================================================
// Lookup and eviction
// =============================================================================

func TestLookupMiss(t *testing.T) {
	f := newFixture(t)
	key, _ := KeyFor(parse(t, pointYAML), pointOpts)
	if _, _, err := f.cache.Lookup(context.Background(), key); !errors.Is(err, ErrMiss) {
		t.Errorf("Lookup() error = %v, want ErrMiss", err)
	}
}

func TestLookupCorrupt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := parse(t, pointYAML)
	if _, _, err := f.cache.Emit(ctx, set, pointOpts); err != nil {
		t.Fatal(err)
	}
	key, _ := KeyFor(set, pointOpts)
	if err := f.files.Put(ctx, key.Path(), []byte("package tampered\n")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.cache.Lookup(ctx, key); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Lookup() error = %v, want ErrCorrupt", err)
	}
	if ok, _ := f.files.Exists(ctx, key.Path()); ok {
		t.Error("corrupt artifact was not deleted")
	}
	if _, _, err := f.cache.Lookup(ctx, key); !errors.Is(err, ErrMiss) {
		t.Errorf("Lookup() after eviction error = %v, want ErrMiss", err)
	}

	src, hit, err := f.cache.Emit(ctx, set, pointOpts)
	if err != nil || hit || bytes.Contains(src, []byte("tampered")) {
		t.Errorf("Emit() after eviction = hit %v, err %v", hit, err)
	}
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := parse(t, pointYAML)
	if _, _, err := f.cache.Emit(ctx, old, pointOpts); err != nil {
		t.Fatal(err)
	}
	f.clock = f.clock.Add(48 * time.Hour)
	fresh := parse(t, pointYAML+"  - name: Extra\n")
	if _, _, err := f.cache.Emit(ctx, fresh, pointOpts); err != nil {
		t.Fatal(err)
	}

	n, err := f.cache.Prune(ctx, f.clock.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	oldKey, _ := KeyFor(old, pointOpts)
	if ok, _ := f.files.Exists(ctx, oldKey.Path()); ok {
		t.Error("pruned artifact still exists")
	}
	freshKey, _ := KeyFor(fresh, pointOpts)
	if _, _, err := f.cache.Lookup(ctx, freshKey); err != nil {
		t.Errorf("Lookup() of kept entry failed: %v", err)
	}
}

func TestNewRequiresStores(t *testing.T) {
	if _, err := New(Options{Index: kv.NewMemory(nil)}); err == nil {
		t.Error("New() without Files succeeded")
	}
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	set := parse(t, pointYAML)

	c, err := OpenDir(dir, quiet)
	if err != nil {
		t.Fatalf("OpenDir() failed: %v", err)
	}
	if _, _, err := c.Emit(ctx, set, pointOpts); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	c, err = OpenDir(dir, quiet)
	if err != nil {
		t.Fatalf("OpenDir() reopen failed: %v", err)
	}
	defer c.Close()
	if _, hit, err := c.Emit(ctx, set, pointOpts); err != nil || !hit {
		t.Errorf("Emit() after reopen = hit %v, err %v", hit, err)
	}
}
