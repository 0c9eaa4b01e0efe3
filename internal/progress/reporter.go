// Package progress prints periodic throughput reports for long-running
// streams.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultInterval is the time between two progress lines.
const DefaultInterval = 50 * time.Millisecond

// Stats is the final report of a Reporter.
type Stats struct {
	Count   uint64
	Elapsed time.Duration
	// Rate is in records per second.
	Rate float64
}

// Reporter prints "N records in Xs..." on a fixed interval, overwriting the
// current line, until it is stopped.
type Reporter struct {
	source   func() uint64
	out      io.Writer
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	start   time.Time
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
	stats   Stats
}

type Option func(*Reporter)

// WithInterval sets the time between two progress lines.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// New creates a reporter that reads the current count from source.
func New(source func() uint64, out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		source:   source,
		out:      out,
		interval: DefaultInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start records the start time and begins printing.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.start = r.now()

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				fmt.Fprintf(r.out, "\r%d records in %0.3fs...", r.source(), r.now().Sub(r.start).Seconds())
			}
		}
	}()
}

// Stop cancels the timer, prints the final line and returns the final
// stats. Further calls return the same stats without printing.
func (r *Reporter) Stop() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return r.stats
	}
	r.stopped = true

	if r.started {
		close(r.stop)
		<-r.done
	} else {
		r.start = r.now()
	}

	elapsed := r.now().Sub(r.start)
	r.stats = Stats{Count: r.source(), Elapsed: elapsed}
	if elapsed > 0 {
		r.stats.Rate = float64(r.stats.Count) / elapsed.Seconds()
	}

	fmt.Fprintf(r.out, "\r%d records in %0.3fs => %d records/s\n", r.stats.Count, elapsed.Seconds(), int64(r.stats.Rate))
	return r.stats
}
