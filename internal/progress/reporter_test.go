package progress

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock returns the given instants in order, repeating the last one.
func fakeClock(instants ...time.Time) func() time.Time {
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := instants[0]
		if len(instants) > 1 {
			instants = instants[1:]
		}
		return t
	}
}

// syncBuffer is a bytes.Buffer safe for the ticker goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStopPrintsThroughput(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out syncBuffer

	r := New(func() uint64 { return 10 }, &out,
		WithInterval(time.Hour),
		WithClock(fakeClock(start, start.Add(2*time.Second))),
	)
	r.Start()
	stats := r.Stop()

	require.Equal(t, "\r10 records in 2.000s => 5 records/s\n", out.String())
	require.Equal(t, uint64(10), stats.Count)
	require.Equal(t, 2*time.Second, stats.Elapsed)
	require.InDelta(t, 5.0, stats.Rate, 1e-9)
}

func TestStopIsIdempotent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out syncBuffer

	r := New(func() uint64 { return 3 }, &out,
		WithInterval(time.Hour),
		WithClock(fakeClock(start, start.Add(time.Second))),
	)
	r.Start()
	first := r.Stop()
	second := r.Stop()

	require.Equal(t, first, second)
	require.Equal(t, 1, strings.Count(out.String(), "records/s"))
}

func TestStopWithoutStartHasZeroRate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out syncBuffer

	stats := New(func() uint64 { return 7 }, &out, WithClock(fakeClock(now))).Stop()

	require.Equal(t, "\r7 records in 0.000s => 0 records/s\n", out.String())
	require.Zero(t, stats.Rate)
}

func TestPeriodicReports(t *testing.T) {
	var (
		out   syncBuffer
		count atomic.Uint64
	)
	r := New(count.Load, &out, WithInterval(time.Millisecond))
	r.Start()

	require.Eventually(t, func() bool {
		count.Add(1)
		return strings.Count(out.String(), "...") >= 3
	}, 5*time.Second, time.Millisecond)

	r.Stop()
	lines := out.String()
	require.True(t, strings.HasPrefix(lines, "\r"))
	require.Contains(t, lines, " records in ")
	require.True(t, strings.HasSuffix(lines, " records/s\n"))
}
