package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

func TestBenchReadOpenError(t *testing.T) {
	f := newFakeServer(t)

	code, out, _ := execute(t, "bench-read", "SELECT * FROM missing", "-e", f.URL)
	require.Equal(t, 0, code)

	errAt := strings.Index(out, "Error: Code: 60. DB::Exception: Table default.missing does not exist.")
	require.GreaterOrEqual(t, errAt, 0, out)
	finalAt := strings.LastIndex(out, "\r0 records in ")
	require.Greater(t, finalAt, errAt, out)
	require.True(t, strings.HasSuffix(out, " => 0 records/s\n"), out)

	code, _, _ = execute(t, "bench-read", "SELECT * FROM missing", "-e", f.URL, "--strict")
	require.Equal(t, 1, code)
}

func TestPrintRaceNotice(t *testing.T) {
	var buf bytes.Buffer
	printRaceNotice(&buf, false)
	require.Empty(t, buf.String())

	printRaceNotice(&buf, true)
	require.Equal(t, raceNotice+"\n", buf.String())
	require.True(t, strings.HasPrefix(raceNotice, "NOTICE: "))
}

func TestFillStreamWaitsForDrain(t *testing.T) {
	f := newFakeServer(t)
	c := chhttp.NewClient(&chhttp.Config{Endpoint: f.URL})
	t.Cleanup(c.Close)

	// Every row reaches the high-water mark, so each write waits on Drain.
	s, err := c.InsertStream(context.Background(), "foos", chhttp.WithHighWaterMark(1))
	require.NoError(t, err)

	require.NoError(t, fillStream(context.Background(), s, 500, gofakeit.New(1)))
	require.Equal(t, uint64(500), s.Count())

	rows := f.insertedRows()
	require.Len(t, rows, 500)
	for _, row := range rows {
		require.Contains(t, row, `{"bar":"now `)
	}
}

// stalledHTTPClient accepts a request but never reads its body, so an
// insert stream stays congested until the request context ends.
type stalledHTTPClient struct {
	once    sync.Once
	started chan struct{}
}

func (h *stalledHTTPClient) Do(ctx context.Context, _ string, _ *url.URL, _ http.Header, _ io.Reader) (*http.Response, error) {
	h.once.Do(func() { close(h.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *stalledHTTPClient) Close() {}

func TestFillStreamCancelWhilePaused(t *testing.T) {
	h := &stalledHTTPClient{started: make(chan struct{})}
	c := chhttp.NewClient(&chhttp.Config{Endpoint: "http://clickhouse.invalid:8123/"}, chhttp.WithHTTPClient(h))
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := c.InsertStream(ctx, "foos", chhttp.WithHighWaterMark(1))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		errc <- fillStream(ctx, s, 10, gofakeit.New(1))
	}()

	<-h.started
	require.Eventually(t, func() bool { return s.Count() == 1 }, time.Second, time.Millisecond)
	select {
	case <-s.Drain():
		t.Fatal("stream drained without a reader")
	default:
	}
	cancel()

	select {
	case err := <-errc:
		require.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("fillStream did not return after cancel")
	}
	require.Equal(t, uint64(1), s.Count())
	<-s.Done()
}
