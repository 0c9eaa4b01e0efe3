package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInsertCommand(o *options) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "insert [value]",
		Short: "Insert one row into the bar column, defaults to the current time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			value := argOr(args, time.Now().Format(time.RFC3339))
			if err := c.Insert(cmd.Context(), table, map[string]any{"bar": value}); err != nil {
				return o.report(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted: %s\n", value)
			return nil
		},
	}
	addTableFlag(cmd.Flags(), &table, "table to insert into")
	return cmd
}
