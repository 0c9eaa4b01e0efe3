// Package cli implements the chhttp command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

// errReported is returned by commands that already printed their error.
var errReported = errors.New("command failed")

type options struct {
	endpoint   string
	configPath string
	profile    string
	output     string
	verbose    bool
	strict     bool

	logger *slog.Logger
}

// client builds a client from the resolved config.
func (o *options) client(cmd *cobra.Command) (*chhttp.Client, error) {
	config, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("using endpoint", "endpoint", config.Endpoint)
	return chhttp.NewClient(config, chhttp.WithLogger(o.logger)), nil
}

// printError prints err the way the example scripts do, on stdout.
func (o *options) printError(cmd *cobra.Command, err error) {
	fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", err)
}

// exit turns an already printed error into the command result. Failures
// exit with status 0 unless --strict is set.
func (o *options) exit(err error) error {
	if err != nil && o.strict {
		return errReported
	}
	return nil
}

// report prints err, if any, and returns the command result.
func (o *options) report(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	o.printError(cmd, err)
	return o.exit(err)
}

// NewRootCommand creates the chhttp command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:           "chhttp",
		Short:         "Query and load ClickHouse over its HTTP interface",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(o.output); err != nil {
				return err
			}
			level := slog.LevelWarn
			if o.verbose {
				level = slog.LevelDebug
			}
			o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.endpoint, "endpoint", "e", defaultEndpoint, "ClickHouse HTTP endpoint, overrides $"+envEndpoint)
	flags.StringVar(&o.configPath, "config", DefaultConfigPath(), "profile file")
	flags.StringVar(&o.profile, "profile", "", "profile to use instead of current_profile")
	flags.StringVarP(&o.output, "output", "o", outputTSV, "output format: tsv, table, csv or json")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log requests to stderr")
	flags.BoolVar(&o.strict, "strict", false, "exit with status 1 when the command fails")

	cmd.AddCommand(
		newQueryCommand(o),
		newSearchCommand(o),
		newInsertCommand(o),
		newQueryStreamCommand(o),
		newBenchReadCommand(o),
		newBenchInsertCommand(o),
	)
	return cmd
}

// Execute runs the root command with os.Args and returns the exit status.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}

// addTableFlag registers the --table flag shared by the commands that read
// or write the example table.
func addTableFlag(fs *pflag.FlagSet, p *string, usage string) {
	fs.StringVar(p, "table", "foos", usage)
}

func argOr(args []string, fallback string) string {
	if len(args) > 0 {
		return args[0]
	}
	return fallback
}
