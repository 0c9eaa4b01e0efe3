package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	chhttp "github.com/chhttp/chhttp-sdk/go"
	"github.com/chhttp/chhttp-sdk/go/internal/progress"
)

const (
	defaultBenchReadQuery = "SELECT toUInt8(number) FROM system.numbers LIMIT 1000000"
	defaultBenchInsertN   = 1000000
)

const raceNotice = "NOTICE: The race detector is enabled, this has a major impact on performance."

func printRaceNotice(w io.Writer, enabled bool) {
	if enabled {
		fmt.Fprintln(w, raceNotice)
	}
}

func newBenchReadCommand(o *options) *cobra.Command {
	var interval = progress.DefaultInterval

	cmd := &cobra.Command{
		Use:   "bench-read [sql]",
		Short: "Stream a query and report rows per second",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printRaceNotice(cmd.OutOrStdout(), raceEnabled)

			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			// The timer starts with the request.
			var current atomic.Pointer[chhttp.RowStream]
			reporter := progress.New(func() uint64 {
				if s := current.Load(); s != nil {
					return s.Count()
				}
				return 0
			}, cmd.OutOrStdout(), progress.WithInterval(interval))
			reporter.Start()

			stream, err := c.QueryStream(cmd.Context(), argOr(args, defaultBenchReadQuery))
			if err != nil {
				o.printError(cmd, err)
				reporter.Stop()
				return o.exit(err)
			}
			defer stream.Close()
			current.Store(stream)

			for stream.Next() {
			}
			err = stream.Err()
			if err != nil {
				o.printError(cmd, err)
			}
			reporter.Stop()
			return o.exit(err)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", interval, "time between progress lines")
	return cmd
}

func newBenchInsertCommand(o *options) *cobra.Command {
	var (
		table       string
		concurrency int
		seed        uint64
		interval    = progress.DefaultInterval
	)

	cmd := &cobra.Command{
		Use:   "bench-insert [n]",
		Short: "Stream n generated rows into a table and report rows per second",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printRaceNotice(cmd.OutOrStdout(), raceEnabled)

			n := uint64(defaultBenchInsertN)
			if len(args) > 0 {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return o.report(cmd, fmt.Errorf("invalid row count %q: %w", args[0], err))
				}
				n = v
			}
			if concurrency < 1 {
				return o.report(cmd, fmt.Errorf("concurrency must be at least 1, got %d", concurrency))
			}

			c, err := o.client(cmd)
			if err != nil {
				return o.report(cmd, err)
			}
			defer c.Close()

			ctx := cmd.Context()
			streams := make([]*chhttp.InsertStream, 0, concurrency)
			for range concurrency {
				s, err := c.InsertStream(ctx, table)
				if err != nil {
					for _, s := range streams {
						_ = s.End()
					}
					return o.report(cmd, err)
				}
				streams = append(streams, s)
			}

			reporter := progress.New(func() uint64 {
				var total uint64
				for _, s := range streams {
					total += s.Count()
				}
				return total
			}, cmd.OutOrStdout(), progress.WithInterval(interval))
			reporter.Start()

			g, gctx := errgroup.WithContext(ctx)
			for i, s := range streams {
				share := n / uint64(concurrency)
				if uint64(i) < n%uint64(concurrency) {
					share++
				}
				faker := gofakeit.New(0)
				if seed != 0 {
					faker = gofakeit.New(seed + uint64(i))
				}
				g.Go(func() error {
					return fillStream(gctx, s, share, faker)
				})
			}
			err = g.Wait()
			if err != nil {
				o.printError(cmd, err)
			}
			reporter.Stop()
			return o.exit(err)
		},
	}
	addTableFlag(cmd.Flags(), &table, "table to insert into")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of parallel insert streams")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed of the generated payloads, 0 picks a random one")
	cmd.Flags().DurationVar(&interval, "interval", interval, "time between progress lines")
	return cmd
}

// fillStream writes n generated rows into s, pausing whenever s is
// congested, then ends it.
func fillStream(ctx context.Context, s *chhttp.InsertStream, n uint64, faker *gofakeit.Faker) error {
	for written := uint64(0); written < n; {
		ok, err := s.TryWrite(map[string]any{
			"bar": "now " + strconv.Itoa(faker.Number(0, math.MaxInt32)),
		})
		if err != nil {
			return err
		}
		written++
		if ok || written == n {
			continue
		}

		select {
		case <-s.Drain():
		case <-ctx.Done():
			return errors.Join(ctx.Err(), s.End())
		}
	}
	return s.End()
}
