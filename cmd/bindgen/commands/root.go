package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/cli"
	"github.com/haivivi/bindkit/pkg/validate"
)

// AppName names the config directory under ~/.bindkit.
const AppName = "bindgen"

var (
	verbose     bool
	color       bool
	configPath  string
	contextName string
	format      string

	globalConfig *cli.Config
	logger       = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "bindgen",
	Short: "Binding declarations checker and glue generator",
	Long: `bindgen validates binding declaration files and generates the Go glue
that registers host types as foreign classes.

Settings come from the current context in ~/.bindkit/bindgen/config.yaml:

  auto_initialize      bootstrap the runtime on first token acquisition
  third_party_errors   map cloud SDK errors to specific exception classes
  bulk_buffer          copy numeric sequences through the buffer protocol
  drop_queue_capacity  bound of the deferred drop queue
  cache_dir            build cache directory ("off" disables it)
  package              default generated package name

Examples:
  bindgen check geo.yaml
  bindgen generate geo.yaml --host-import example.com/geo -o geobind/geo_bind.go
  bindgen inspect geo.yaml -q '.classes[].qualname'
  bindgen config add-context dev && bindgen config set dev third_party_errors true`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&color, "color", false, "colour diagnostics")
	pf.StringVar(&configPath, "config", os.Getenv("BINDKIT_CONFIG"), "config file (default ~/.bindkit/bindgen/config.yaml)")
	pf.StringVarP(&contextName, "context", "c", "", "context to use instead of the current one")
	pf.StringVarP(&format, "format", "f", "yaml", "output format: yaml, json or raw")
}

// GetConfig loads the configuration on first use.
func GetConfig() (*cli.Config, error) {
	if globalConfig != nil && (configPath == "" || globalConfig.Path() == configPath) {
		return globalConfig, nil
	}
	var (
		cfg *cli.Config
		err error
	)
	if configPath != "" {
		cfg, err = cli.LoadConfigWithPath(configPath)
	} else {
		cfg, err = cli.LoadConfig(AppName)
	}
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	globalConfig = cfg
	return cfg, nil
}

// currentContext resolves --context or the current context.
func currentContext() (*cli.Context, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// defaultCacheDir is the cache directory next to the config file.
func defaultCacheDir() (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Dir(), "cache"), nil
}

func styles() validate.Styles {
	if color {
		return validate.ColorStyles()
	}
	return validate.Styles{}
}

func output(cmd *cobra.Command, v any) error {
	return cli.Output(v, cli.OutputOptions{Format: cli.OutputFormat(format), Writer: cmd.OutOrStdout()})
}
