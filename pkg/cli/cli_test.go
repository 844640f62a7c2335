package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// =============================================================================
// Config
// =============================================================================

func TestLoadConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindgen", "config.yaml")
	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	if cfg.Path() != path || cfg.Dir() != filepath.Dir(path) {
		t.Errorf("Path() = %q, Dir() = %q", cfg.Path(), cfg.Dir())
	}
	if len(cfg.Contexts) != 0 {
		t.Errorf("new config has contexts: %v", cfg.ListContexts())
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}
	dev := &Context{ThirdPartyErrors: true, DropQueueCapacity: 64, Package: "devbind"}
	if err := cfg.AddContext("dev", dev); err != nil {
		t.Fatalf("AddContext() failed: %v", err)
	}
	if err := cfg.AddContext("ci", &Context{CacheDir: CacheOff}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatalf("UseContext() failed: %v", err)
	}

	loaded, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := loaded.ListContexts(); !slices.Equal(got, []string{"ci", "dev"}) {
		t.Errorf("ListContexts() = %v", got)
	}
	cur, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatalf("ResolveContext() failed: %v", err)
	}
	if cur.Name != "dev" || !cur.ThirdPartyErrors || cur.DropQueueCapacity != 64 || cur.Package != "devbind" {
		t.Errorf("current context = %+v", cur)
	}

	data, _ := os.ReadFile(path)
	for _, key := range []string{"current_context: dev", "third_party_errors: true", "drop_queue_capacity: 64", "cache_dir: \"off\""} {
		if !strings.Contains(string(data), key) && !strings.Contains(string(data), strings.ReplaceAll(key, `"`, "")) {
			t.Errorf("config file missing %q:\n%s", key, data)
		}
	}
}

func TestContextLookupErrors(t *testing.T) {
	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.GetContext("nope"); !errors.Is(err, ErrNoContext) {
		t.Errorf("GetContext() error = %v, want ErrNoContext", err)
	}
	if err := cfg.UseContext("nope"); !errors.Is(err, ErrNoContext) {
		t.Errorf("UseContext() error = %v, want ErrNoContext", err)
	}
	if err := cfg.DeleteContext("nope"); !errors.Is(err, ErrNoContext) {
		t.Errorf("DeleteContext() error = %v, want ErrNoContext", err)
	}
	if err := cfg.AddContext("a/b", &Context{}); err == nil {
		t.Error("AddContext() accepted a name with a slash")
	}
	ctx, err := cfg.ResolveContext("")
	if err != nil || ctx == nil {
		t.Errorf("ResolveContext() with nothing set = %v, %v", ctx, err)
	}
}

func TestDeleteCurrentContext(t *testing.T) {
	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	_ = cfg.AddContext("dev", &Context{})
	_ = cfg.UseContext("dev")
	if err := cfg.DeleteContext("dev"); err != nil {
		t.Fatalf("DeleteContext() failed: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after deleting it", cfg.CurrentContext)
	}
}

func TestContextSetGet(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"auto_initialize", "true"},
		{"third_party_errors", "true"},
		{"bulk_buffer", "false"},
		{"drop_queue_capacity", "128"},
		{"cache_dir", "/tmp/cache"},
		{"package", "geobind"},
		{"s3.bucket", "glue"},
		{"s3.prefix", "team"},
		{"s3.region", "eu-west-1"},
		{"s3.endpoint", "http://localhost:9000"},
	}
	ctx := &Context{}
	for _, tt := range tests {
		if err := ctx.Set(tt.key, tt.value); err != nil {
			t.Errorf("Set(%s) failed: %v", tt.key, err)
			continue
		}
		if got, err := ctx.Get(tt.key); err != nil || got != tt.value {
			t.Errorf("Get(%s) = %q, %v; want %q", tt.key, got, err, tt.value)
		}
	}
	if len(tests) != len(Keys) {
		t.Errorf("test covers %d keys, Keys has %d", len(tests), len(Keys))
	}
}

func TestContextSetErrors(t *testing.T) {
	ctx := &Context{}
	for _, tt := range []struct{ key, value string }{
		{"auto_initialize", "maybe"},
		{"drop_queue_capacity", "-1"},
		{"drop_queue_capacity", "x"},
	} {
		if err := ctx.Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%s, %s) succeeded", tt.key, tt.value)
		}
	}
	for _, key := range []string{"colour", "s3.acl"} {
		if err := ctx.Set(key, "x"); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("Set(%s) error = %v, want ErrUnknownKey", key, err)
		}
		if _, err := ctx.Get(key); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("Get(%s) error = %v, want ErrUnknownKey", key, err)
		}
	}
}

// =============================================================================
// Toggles
// =============================================================================

func TestContextToggles(t *testing.T) {
	for _, on := range []bool{false, true} {
		ctx := &Context{ThirdPartyErrors: on, BulkBuffer: on, Package: "ctxbind"}
		g := ctx.Generator(nil, quiet)
		if g.Bridge.ThirdParty() != on || g.Convert.BulkBuffer != on {
			t.Errorf("Generator() with toggles %v: third-party %v, bulk %v", on, g.Bridge.ThirdParty(), g.Convert.BulkBuffer)
		}
		if g.Interp != nil {
			t.Error("Generator(nil) created an interpreter")
		}
		opts := ctx.GenOptions("example.com/geo", "", quiet)
		if opts.Package != "ctxbind" || opts.Bridge.ThirdParty() != on {
			t.Errorf("GenOptions() = %+v", opts)
		}
		if got := ctx.GenOptions("example.com/geo", "flag", quiet).Package; got != "flag" {
			t.Errorf("GenOptions() package override = %q", got)
		}
	}
}

func TestOpenCache(t *testing.T) {
	off := &Context{CacheDir: CacheOff}
	c, err := off.OpenCache(t.TempDir(), quiet)
	if err != nil || c != nil {
		t.Errorf("OpenCache() with cache off = %v, %v", c, err)
	}

	c, err = (&Context{}).OpenCache(t.TempDir(), quiet)
	if err != nil {
		t.Fatalf("OpenCache() failed: %v", err)
	}
	c.Close()

	t.Setenv("AWS_ACCESS_KEY_ID", "")
	s3ctx := &Context{S3: &S3Config{Bucket: "b"}}
	if _, err := s3ctx.OpenCache(t.TempDir(), quiet); err == nil {
		t.Error("OpenCache() with s3 and no credentials succeeded")
	}
}

// =============================================================================
// Declarations and output
// =============================================================================

func TestLoadDeclarations(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, src string
	}{
		{"yaml", "geo.yaml", "types:\n  - name: Point\n"},
		{"json", "geo.json", `{"types": [{"name": "Point"}]}`},
		{"broken json", "geo.json", `{"types": [{"name": "Point",}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.src), 0o644); err != nil {
				t.Fatal(err)
			}
			set, _, err := LoadDeclarations(path, nil)
			if err != nil {
				t.Fatalf("LoadDeclarations() failed: %v", err)
			}
			if len(set.Types) != 1 || set.Types[0].Name != "Point" {
				t.Errorf("types = %+v", set.Types)
			}
		})
	}

	set, _, err := LoadDeclarations("-", strings.NewReader("types: [{name: A}]"))
	if err != nil || set.File != "<stdin>" {
		t.Errorf("LoadDeclarations(-) = %v, %v", set, err)
	}
	if _, _, err := LoadDeclarations(filepath.Join(dir, "missing.yaml"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestOutput(t *testing.T) {
	data := map[string]any{"name": "Point", "size": 24}

	var buf bytes.Buffer
	if err := Output(data, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output(json) failed: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil || back["name"] != "Point" {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	if err := Output(data, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output(yaml) failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name: Point") {
		t.Errorf("yaml output = %s", buf.String())
	}

	buf.Reset()
	if err := Output("package geobind\n", OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil || buf.String() != "package geobind\n" {
		t.Errorf("raw output = %q, %v", buf.String(), err)
	}

	file := filepath.Join(t.TempDir(), "out.json")
	if err := Output(data, OutputOptions{Format: FormatJSON, File: file}); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(file); !bytes.Contains(b, []byte(`"Point"`)) {
		t.Errorf("file output = %s", b)
	}

	if err := Output(data, OutputOptions{Format: "xml", Writer: &buf}); err == nil {
		t.Error("Output(xml) succeeded")
	}
}

func TestFormat(t *testing.T) {
	for _, tt := range []struct {
		n    int64
		want string
	}{
		{0, "0 B"}, {1023, "1023 B"}, {1536, "1.50 KB"}, {3 << 20, "3.00 MB"},
	} {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"}, {5 * time.Minute, "5m"}, {3 * time.Hour, "3h"}, {72 * time.Hour, "3d"},
	} {
		if got := FormatAge(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("FormatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestPaths(t *testing.T) {
	p := &Paths{AppName: "bindgen", HomeDir: "/home/u"}
	if got := p.ConfigFile(); got != filepath.Join("/home/u", ".bindkit", "bindgen", "config.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}
	if got := p.CacheDir(); got != filepath.Join("/home/u", ".bindkit", "bindgen", "cache") {
		t.Errorf("CacheDir() = %q", got)
	}
}
