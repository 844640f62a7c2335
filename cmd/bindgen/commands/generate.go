package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/cli"
	"github.com/haivivi/bindkit/pkg/gen"
	"github.com/haivivi/bindkit/pkg/validate"
)

var (
	genHostImport string
	genPackage    string
	genOut        string
	genNoCache    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Generate registration glue for a declaration file",
	Long: `Generate a Go file with typed getter, setter and method glue plus
Register functions for every declared type. Output is cached by declaration
digest; an unchanged file with the same options is served from the cache.

Examples:
  bindgen generate geo.yaml --host-import example.com/geo --package geobind
  bindgen generate geo.yaml --host-import example.com/geo -o geobind/geo_bind.go`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := currentContext()
		if err != nil {
			return err
		}
		set, src, err := cli.LoadDeclarations(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		pkg := genPackage
		if pkg == "" && genOut != "" && ctx.Package == "" {
			pkg = filepath.Base(filepath.Dir(absPath(genOut)))
		}
		opts := ctx.GenOptions(genHostImport, pkg, logger)

		var out []byte
		hit := false
		if genNoCache {
			out, err = gen.Emit(set, opts)
		} else {
			dir, derr := defaultCacheDir()
			if derr != nil {
				return derr
			}
			cache, cerr := ctx.OpenCache(dir, logger)
			if cerr != nil {
				cli.PrintWarning(cmd.ErrOrStderr(), "build cache unavailable, generating without it: %v", cerr)
			}
			if cache == nil {
				out, err = gen.Emit(set, opts)
			} else {
				defer cache.Close()
				out, hit, err = cache.Emit(cmd.Context(), set, opts)
			}
		}
		if errs, ok := validate.AsErrors(err); ok {
			_ = validate.Render(cmd.ErrOrStderr(), errs, map[string][]byte{set.File: src}, styles())
			fmt.Fprintln(cmd.ErrOrStderr())
			return fmt.Errorf("%d declaration errors", len(errs))
		}
		if errors.Is(err, gen.ErrOptions) {
			return fmt.Errorf("%w (set --host-import and --package, or the context's package)", err)
		}
		if err != nil {
			return err
		}

		if genOut == "" {
			_, err := cmd.OutOrStdout().Write(out)
			return err
		}
		if err := os.MkdirAll(filepath.Dir(genOut), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(genOut, out, 0o644); err != nil {
			return err
		}
		source := "generated"
		if hit {
			source = "cached"
		}
		cli.PrintSuccess(cmd.ErrOrStderr(), "%s %s (%s)", source, genOut, cli.FormatBytes(int64(len(out))))
		return nil
	},
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genHostImport, "host-import", "", "import path of the package declaring the host types")
	f.StringVar(&genPackage, "package", "", "generated package name (default: context package, or the output directory name)")
	f.StringVarP(&genOut, "out", "o", "", "output file (default stdout)")
	f.BoolVar(&genNoCache, "no-cache", false, "bypass the build cache")
	rootCmd.AddCommand(generateCmd)
}
