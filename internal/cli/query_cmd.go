package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultQuery = "SELECT `database`, `name`, `engine` FROM system.tables WHERE `database` != 'system'"

func newQueryCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a query and print the whole result",
		Example: `  chhttp query
  chhttp query "SELECT * FROM system.numbers LIMIT 3" -o table`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			result, err := c.Query(cmd.Context(), argOr(args, defaultQuery), nil)
			if err != nil {
				return o.report(cmd, err)
			}
			return o.report(cmd, printResult(cmd.OutOrStdout(), o.output, "data", result))
		},
	}
}

func newSearchCommand(o *options) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Find rows whose bar column contains term",
		Example: `  chhttp search
  chhttp search baz --table foos`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			sql := fmt.Sprintf("SELECT * FROM %s WHERE bar LIKE {search:String}", c.Table(table).Identifier())
			result, err := c.Query(cmd.Context(), sql, map[string]any{
				"search": "%" + argOr(args, "foo") + "%",
			})
			if err != nil {
				return o.report(cmd, err)
			}
			return o.report(cmd, printResult(cmd.OutOrStdout(), o.output, "rows", result))
		},
	}
	addTableFlag(cmd.Flags(), &table, "table to search")
	return cmd
}
