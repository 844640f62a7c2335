package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/bindkit/pkg/decl"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of declaration files",
	Long: `Print the JSON Schema of declaration files, for editor completion.
The output is JSON unless --format says otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := decl.Schema()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("format") {
			format = "json"
		}
		return output(cmd, s)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
