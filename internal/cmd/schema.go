package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claudebridge/channel"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of client commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(channel.CommandSchema())
		},
	}
}
