package chhttp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/google/uuid"
)

// QueryArrow runs sql and returns the result as Arrow record batches.
//
// The caller must Release the returned records.
func (c *Client) QueryArrow(ctx context.Context, sql string, params map[string]any) ([]arrow.Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, &queryRequest{
		query:   sql,
		queryID: uuid.NewString(),
		format:  FormatArrowStream,
		params:  params,
	})
	if err != nil {
		return nil, err
	}
	defer sneakyBodyClose(resp.Body)
	return decodeArrowStream(resp.Body)
}

// InsertArrow inserts the record batches into the named table.
func (c *Client) InsertArrow(ctx context.Context, table string, records []arrow.Record) error {
	return c.Table(table).InsertArrow(ctx, records)
}

// InsertArrow inserts the record batches into the table. All batches must
// share one schema.
func (t *Table) InsertArrow(ctx context.Context, records []arrow.Record) error {
	payload, err := encodeArrowStream(records)
	if err != nil {
		return err
	}
	return t.c.insert(ctx, t.insertQuery(FormatArrowStream), payload)
}

// encodeArrowStream encodes the given record batches as an Arrow IPC stream.
func encodeArrowStream(batches []arrow.Record) (payload []byte, err error) {
	if len(batches) == 0 {
		return nil, errors.New("cannot encode empty batches")
	}

	schema := batches[0].Schema()
	for _, batch := range batches[1:] {
		if !batch.Schema().Equal(schema) {
			return nil, errors.New("schema mismatch")
		}
	}

	var buf bytes.Buffer
	defer func() {
		if err == nil {
			payload = buf.Bytes()
		}
	}()

	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	defer func() {
		err = errors.Join(err, writer.Close())
	}()

	for _, batch := range batches {
		if err := writer.Write(batch); err != nil {
			return nil, err
		}
	}
	return
}

// decodeArrowStream decodes an Arrow IPC stream into record batches. An
// empty stream has no batches.
func decodeArrowStream(r io.Reader) ([]arrow.Record, error) {
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		return nil, nil
	}

	reader, err := ipc.NewReader(br, ipc.WithDelayReadSchema(true))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	batches := make([]arrow.Record, 0)
	for reader.Next() {
		batch := reader.Record()
		batch.Retain()
		batches = append(batches, batch)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		for _, batch := range batches {
			batch.Release()
		}
		return nil, err
	}
	return batches, nil
}
