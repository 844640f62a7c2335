package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage contexts",
	Long: `Manage named contexts. A context holds generation and runtime settings;
the current context applies when --context is not given.

Examples:
  bindgen config add-context dev
  bindgen config use-context dev
  bindgen config set dev third_party_errors true
  bindgen config get dev cache_dir
  bindgen config list-contexts`,
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Create one with: bindgen config add-context <name>")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSETTINGS")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, summary(cfg.Contexts[name]))
		}
		return w.Flush()
	},
}

// summary lists the settings that differ from their defaults.
func summary(ctx *cli.Context) string {
	var parts []string
	for _, key := range cli.Keys {
		v, _ := ctx.Get(key)
		if v == "" || v == "false" || v == "0" {
			continue
		}
		parts = append(parts, key+"="+v)
	}
	return strings.Join(parts, ", ")
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if _, err := cfg.GetContext(args[0]); err == nil {
			return fmt.Errorf("context %q already exists", args[0])
		}
		if err := cfg.AddContext(args[0], &cli.Context{}); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q created.", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q deleted.", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Switched to context %q.", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <key> <value>",
	Short: "Set a context setting",
	Long:  "Set a context setting. Keys: " + strings.Join(cli.Keys, ", ") + ".",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, err := cfg.GetContext(args[0])
		if err != nil {
			return err
		}
		if err := ctx.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Set %s = %s (context: %s)", args[1], args[2], args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <key>",
	Short: "Print a context setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, err := cfg.GetContext(args[0])
		if err != nil {
			return err
		}
		v, err := ctx.Get(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view [context]",
	Short: "Print a context, or the current one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		ctx, err := cfg.ResolveContext(name)
		if err != nil {
			return err
		}
		return output(cmd, ctx)
	},
}

func init() {
	configCmd.AddCommand(
		configListContextsCmd,
		configAddContextCmd,
		configDeleteContextCmd,
		configUseContextCmd,
		configCurrentContextCmd,
		configSetCmd,
		configGetCmd,
		configViewCmd,
	)
	rootCmd.AddCommand(configCmd)
}
