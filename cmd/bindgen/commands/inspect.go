package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/bind"
	"github.com/haivivi/bindkit/pkg/cli"
	"github.com/haivivi/bindkit/pkg/decl"
)

var inspectQuery string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the classes a declaration file describes",
	Long: `Show the classes registration would build from a declaration file:
qualified names, flags, instance layout, properties with their accessors,
methods with their kinds and arities, and the attribute table.

The result can be filtered with a jq expression.

Examples:
  bindgen inspect geo.yaml
  bindgen inspect geo.yaml -q '.classes[] | select(.flags != "default") | .qualname'
  bindgen inspect geo.yaml -q '.table' -f json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := currentContext()
		if err != nil {
			return err
		}
		set, _, err := cli.LoadDeclarations(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		view, err := inspectView(ctx, set)
		if err != nil {
			return err
		}
		if inspectQuery == "" {
			return output(cmd, view)
		}
		results, err := runQuery(inspectQuery, view)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := output(cmd, r); err != nil {
				return err
			}
		}
		return nil
	},
}

// inspectView plans set and returns it as plain JSON values.
func inspectView(ctx *cli.Context, set *decl.Set) (any, error) {
	classes, err := ctx.Generator(nil, logger).Plan(set)
	if err != nil {
		return nil, err
	}
	u := bind.NewUnit()
	for _, c := range classes {
		u.Add(c)
	}
	data, err := json.Marshal(map[string]any{
		"file":    set.File,
		"classes": u.Classes,
		"table":   u.Names(),
	})
	if err != nil {
		return nil, err
	}
	var view any
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return view, nil
}

func runQuery(expr string, input any) ([]any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	var out []any
	iter := q.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return out, nil
			}
			return nil, fmt.Errorf("jq %q: %w", expr, err)
		}
		out = append(out, v)
	}
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectQuery, "query", "q", "", "jq expression applied to the result")
	rootCmd.AddCommand(inspectCmd)
}
