package chhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

// Cable batches rows sent from any goroutine and flushes them as one insert.
type Cable struct {
	t *Table

	currentSize uint64
	sendRows    []*cableRow
	sendRowCh   chan *cableRow
	stopped     chan struct{}
	flushes     sync.WaitGroup

	// BatchSize is the number of buffered bytes that triggers a flush.
	BatchSize uint64
	// BatchInterval is the longest time a row waits before it is flushed.
	BatchInterval time.Duration
}

type cableRow struct {
	data []byte
	err  chan error
}

// Cable creates a batching cable into the named table.
func (c *Client) Cable(table string) *Cable {
	return c.Table(table).Cable()
}

func (t *Table) Cable() *Cable {
	return &Cable{
		t:             t,
		sendRows:      make([]*cableRow, 0),
		sendRowCh:     make(chan *cableRow),
		stopped:       make(chan struct{}),
		BatchSize:     1024 * 1024, // default to 1MiB
		BatchInterval: time.Second, // default to 1 second
	}
}

// Start runs the batching loop until Close is called.
func (c *Cable) Start(ctx context.Context) {
	go func() {
		defer close(c.stopped)

		ticker := time.NewTicker(c.BatchInterval)
		defer ticker.Stop()

		stop, tick := false, false
		for {
			if len(c.sendRows) > 0 && (tick || stop || c.currentSize > c.BatchSize) {
				c.flush(ctx, c.sendRows)

				c.currentSize = 0
				c.sendRows = make([]*cableRow, 0)
			}
			tick = false

			if stop {
				break
			}

			select {
			case <-ticker.C:
				if len(c.sendRows) > 0 {
					tick = true
				}
			case row, more := <-c.sendRowCh:
				if !more {
					stop = true
					continue
				}

				size := uint64(len(row.data))
				if size > math.MaxUint64-c.currentSize {
					c.currentSize = math.MaxUint64
				} else {
					c.currentSize += size
				}
				c.sendRows = append(c.sendRows, row)
			}
		}

		c.flushes.Wait()
	}()
}

func (c *Cable) flush(ctx context.Context, rows []*cableRow) {
	c.flushes.Add(1)
	go func() {
		defer c.flushes.Done()

		var buf bytes.Buffer
		for _, row := range rows {
			buf.Write(row.data)
		}

		c.t.c.logger.DebugContext(ctx, "flushing cable", "table", c.t.Identifier(), "rows", len(rows), "bytes", buf.Len())
		err := c.t.c.insert(ctx, c.t.insertQuery(FormatJSONEachRow), buf.Bytes())
		for _, row := range rows {
			if err != nil {
				row.err <- err
			}
			close(row.err)
		}
	}()
}

// Send queues row for the next flush. The returned channel yields the error
// of that flush, or is closed without a value once the row is inserted.
//
// Send must not be called after Close.
func (c *Cable) Send(row any) <-chan error {
	errCh := make(chan error, 1)
	data, err := json.Marshal(row)
	if err != nil {
		errCh <- fmt.Errorf("encode row: %w", err)
		close(errCh)
		return errCh
	}

	c.sendRowCh <- &cableRow{
		data: append(data, '\n'),
		err:  errCh,
	}
	return errCh
}

// Close flushes the remaining rows and waits for all flushes to finish.
func (c *Cable) Close() {
	close(c.sendRowCh)
	<-c.stopped
}
