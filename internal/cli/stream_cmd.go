package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryStreamCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query-stream [sql]",
		Short: "Run a query and print rows as they arrive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			stream, err := c.QueryStream(cmd.Context(), argOr(args, defaultQuery))
			if err != nil {
				o.printError(cmd, err)
				fmt.Fprintln(out, "CLOSED")
				return o.exit(err)
			}
			defer stream.Close()

			rw := newRowWriter(out, o.output)
			first := true
			for stream.Next() {
				if first {
					if err := rw.Header(stream.Columns()); err != nil {
						return o.report(cmd, err)
					}
					first = false
				}
				if err := rw.Row(stream.Columns(), stream.Row()); err != nil {
					return o.report(cmd, err)
				}
			}
			if err := rw.Flush(); err != nil {
				return o.report(cmd, err)
			}

			err = stream.Err()
			if err != nil {
				o.printError(cmd, err)
			}
			fmt.Fprintln(out, "CLOSED")
			return o.exit(err)
		},
	}
}
