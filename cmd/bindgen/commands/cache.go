package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/buildcache"
	"github.com/haivivi/bindkit/pkg/cli"
)

var pruneOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the glue build cache",
}

func openCache() (*buildcache.Cache, error) {
	ctx, err := currentContext()
	if err != nil {
		return nil, err
	}
	dir, err := defaultCacheDir()
	if err != nil {
		return nil, err
	}
	c, err := ctx.OpenCache(dir, logger)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("the build cache is disabled in this context")
	}
	return c, nil
}

var cacheListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cached glue artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		entries, err := c.Entries(cmd.Context())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("format") {
			return output(cmd, entries)
		}
		if len(entries) == 0 {
			cli.PrintInfo(cmd.OutOrStdout(), "The cache is empty.")
			return nil
		}
		now := time.Now()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tPACKAGE\tSIZE\tAGE\tSOURCE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Key(), e.Package, cli.FormatBytes(int64(e.Size)), cli.FormatAge(now, e.Created), e.Source)
		}
		return w.Flush()
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached glue older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		n, err := c.Prune(cmd.Context(), time.Now().Add(-pruneOlderThan))
		if err != nil {
			return err
		}
		if n == 0 {
			cli.PrintInfo(cmd.OutOrStdout(), "nothing older than %s", pruneOlderThan)
			return nil
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "removed %d cached artifacts", n)
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "remove artifacts created before this long ago")
	cacheCmd.AddCommand(cacheListCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
