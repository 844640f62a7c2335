package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/cli"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/validate"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Validate declaration files",
	Long: `Validate declaration files and check that every declared error type
has an exception mapping. All problems in a file are reported together.
Use "-" to read from stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := currentContext()
		if err != nil {
			return err
		}
		failed := 0
		for _, path := range args {
			set, src, err := cli.LoadDeclarations(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			n, err := checkSet(cmd, ctx, set, src)
			if err != nil {
				return err
			}
			failed += n
		}
		if failed > 0 {
			return fmt.Errorf("%d declaration errors", failed)
		}
		return nil
	},
}

// checkSet renders the declaration errors of set and returns how many
// there were. Errors other than declaration errors are returned.
func checkSet(cmd *cobra.Command, ctx *cli.Context, set *decl.Set, src []byte) (int, error) {
	classes, err := ctx.Generator(nil, logger).Plan(set)
	if errs, ok := validate.AsErrors(err); ok {
		if err := validate.Render(cmd.ErrOrStderr(), errs, map[string][]byte{set.File: src}, styles()); err != nil {
			return 0, err
		}
		fmt.Fprintln(cmd.ErrOrStderr())
		return len(errs), nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", set.File, err)
	}
	cli.PrintSuccess(cmd.OutOrStdout(), "%s: %d classes", set.File, len(classes))
	return 0, nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
