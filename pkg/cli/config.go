package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the directory under the user's home holding every
	// app's configuration.
	DefaultBaseDir = ".bindkit"
	// DefaultConfigFile is the configuration file name inside an app dir.
	DefaultConfigFile = "config.yaml"
)

var (
	// ErrNoContext is returned when a named context does not exist.
	ErrNoContext = errors.New("cli: context not found")

	// ErrUnknownKey is returned by Context.Set and Context.Get for keys
	// that are not context settings.
	ErrUnknownKey = errors.New("cli: unknown context key")
)

// Config is the configuration file of one app.
type Config struct {
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one named set of generation and runtime settings.
type Context struct {
	Name string `yaml:"name"`

	// AutoInitialize lets the first token acquisition bootstrap the
	// foreign runtime.
	AutoInitialize bool `yaml:"auto_initialize,omitempty"`
	// ThirdPartyErrors enables the bridge's adapters for cloud SDK errors.
	ThirdPartyErrors bool `yaml:"third_party_errors,omitempty"`
	// BulkBuffer enables the buffer fast path for numeric sequences.
	BulkBuffer bool `yaml:"bulk_buffer,omitempty"`
	// DropQueueCapacity bounds the deferred drop queue; 0 uses the
	// runtime default.
	DropQueueCapacity int `yaml:"drop_queue_capacity,omitempty"`

	// CacheDir overrides the build cache location. "off" disables it.
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Package is the default name of generated packages.
	Package string `yaml:"package,omitempty"`

	// S3 stores cached glue artifacts in a bucket instead of CacheDir.
	S3 *S3Config `yaml:"s3,omitempty"`
}

// S3Config locates a shared artifact bucket. Credentials come from the
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LoadConfig loads ~/.bindkit/<app>/config.yaml, creating it if missing.
func LoadConfig(app string) (*Config, error) {
	paths, err := NewPaths(app)
	if err != nil {
		return nil, err
	}
	return LoadConfigWithPath(paths.ConfigFile())
}

// LoadConfigWithPath loads the configuration at path, creating it if
// missing.
func LoadConfigWithPath(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cli: config dir: %w", err)
	}
	cfg := &Config{Contexts: make(map[string]*Context), path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Save()
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory holding the configuration file.
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

// AddContext stores ctx under name, replacing any context of that name.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("cli: invalid context name %q", name)
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context, clearing the current context if it was
// the one removed.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNoContext, name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext makes name the current context.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNoContext, name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the context called name.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoContext, name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, the current one when name is
// empty, or the zero context when neither is set.
func (c *Config) ResolveContext(name string) (*Context, error) {
	switch {
	case name != "":
		return c.GetContext(name)
	case c.CurrentContext != "":
		return c.GetContext(c.CurrentContext)
	}
	return &Context{}, nil
}

// ListContexts returns the context names in order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Keys lists the settings Set and Get accept.
var Keys = []string{
	"auto_initialize", "third_party_errors", "bulk_buffer", "drop_queue_capacity",
	"cache_dir", "package", "s3.bucket", "s3.prefix", "s3.region", "s3.endpoint",
}

// Set parses value into the setting key.
func (ctx *Context) Set(key, value string) error {
	var err error
	switch key {
	case "auto_initialize":
		ctx.AutoInitialize, err = strconv.ParseBool(value)
	case "third_party_errors":
		ctx.ThirdPartyErrors, err = strconv.ParseBool(value)
	case "bulk_buffer":
		ctx.BulkBuffer, err = strconv.ParseBool(value)
	case "drop_queue_capacity":
		ctx.DropQueueCapacity, err = strconv.Atoi(value)
		if err == nil && ctx.DropQueueCapacity < 0 {
			err = errors.New("must not be negative")
		}
	case "cache_dir":
		ctx.CacheDir = value
	case "package":
		ctx.Package = value
	default:
		s3key, ok := strings.CutPrefix(key, "s3.")
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		if ctx.S3 == nil {
			ctx.S3 = &S3Config{}
		}
		switch s3key {
		case "bucket":
			ctx.S3.Bucket = value
		case "prefix":
			ctx.S3.Prefix = value
		case "region":
			ctx.S3.Region = value
		case "endpoint":
			ctx.S3.Endpoint = value
		default:
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}
	if err != nil {
		return fmt.Errorf("cli: %s: %w", key, err)
	}
	return nil
}

// Get formats the setting key.
func (ctx *Context) Get(key string) (string, error) {
	s3 := ctx.S3
	if s3 == nil {
		s3 = &S3Config{}
	}
	switch key {
	case "auto_initialize":
		return strconv.FormatBool(ctx.AutoInitialize), nil
	case "third_party_errors":
		return strconv.FormatBool(ctx.ThirdPartyErrors), nil
	case "bulk_buffer":
		return strconv.FormatBool(ctx.BulkBuffer), nil
	case "drop_queue_capacity":
		return strconv.Itoa(ctx.DropQueueCapacity), nil
	case "cache_dir":
		return ctx.CacheDir, nil
	case "package":
		return ctx.Package, nil
	case "s3.bucket":
		return s3.Bucket, nil
	case "s3.prefix":
		return s3.Prefix, nil
	case "s3.region":
		return s3.Region, nil
	case "s3.endpoint":
		return s3.Endpoint, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}
