/*
 * Copyright 2024 The chhttp Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package chhttp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

const streamBufferSize = 64 * 1024

// RowStream iterates over the rows of a streaming query.
//
//	stream, err := c.QueryStream(ctx, "SELECT number FROM system.numbers LIMIT 10")
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//		fmt.Println(stream.Row())
//	}
//	return stream.Err()
type RowStream struct {
	ctx     context.Context
	body    io.ReadCloser
	reader  *bufio.Reader
	logger  *slog.Logger
	queryID string
	summary *Summary

	columns Schema
	row     Row
	count   atomic.Uint64
	err     error
	done    bool

	closeOnce sync.Once
	stop      func() bool
}

func openRowStream(ctx context.Context, resp *http.Response, queryID string, logger *slog.Logger) (*RowStream, error) {
	s := &RowStream{
		ctx:     ctx,
		body:    resp.Body,
		reader:  bufio.NewReaderSize(resp.Body, streamBufferSize),
		logger:  logger,
		queryID: queryID,
		summary: parseSummary(resp.Header),
	}
	s.stop = context.AfterFunc(ctx, s.closeBody)

	if err := s.readHeader(); err != nil {
		s.stop()
		s.closeBody()
		return nil, err
	}
	logger.DebugContext(ctx, "stream opened", "query_id", queryID, "columns", len(s.columns))
	return s, nil
}

func (s *RowStream) readHeader() error {
	var names, types []string
	ok, err := s.readLine(&names)
	if err != nil {
		return err
	}
	if !ok {
		// An empty body is a statement without result rows.
		s.finish(nil)
		return nil
	}
	ok, err = s.readLine(&types)
	if err != nil {
		return err
	}
	if !ok || len(types) != len(names) {
		return errors.New("malformed stream header: names and types do not match")
	}

	s.columns = make(Schema, len(names))
	for i := range names {
		s.columns[i] = &Column{Name: names[i], Type: types[i]}
	}
	return nil
}

// readLine decodes the next non-empty line into v. It reports false at the end of the body.
func (s *RowStream) readLine(v any) (bool, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if decodeErr := decodeJSON(line, v); decodeErr != nil {
				return false, s.decodeError(line, decodeErr)
			}
			return true, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, err
		}
	}
}

// decodeError turns an undecodable line into the server exception that
// follows it, if there is one.
func (s *RowStream) decodeError(line []byte, err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	rest, _ := io.ReadAll(io.LimitReader(s.reader, maxExceptionSize))
	text := append(append([]byte(nil), line...), rest...)
	if looksLikeException(text) {
		return parseServerError(http.StatusOK, nil, text)
	}
	return fmt.Errorf("decode row: %w", err)
}

// Next advances to the next row. It returns false when the stream is
// exhausted, failed, or closed; check Err to tell them apart.
func (s *RowStream) Next() bool {
	if s.done {
		return false
	}

	var raw []any
	ok, err := s.readLine(&raw)
	if err != nil || !ok {
		s.finish(err)
		return false
	}
	row, err := convertRow(s.columns, raw)
	if err != nil {
		s.finish(err)
		return false
	}

	s.row = row
	s.count.Add(1)
	return true
}

// Row returns the current row.
func (s *RowStream) Row() Row {
	return s.row
}

// Map returns the current row as a mapping from column name to value.
func (s *RowStream) Map() map[string]Value {
	return rowMap(s.columns, s.row)
}

// Columns returns the columns of the stream.
func (s *RowStream) Columns() Schema {
	return s.columns
}

// Count returns the number of rows delivered so far. It is safe to call
// from any goroutine.
func (s *RowStream) Count() uint64 {
	return s.count.Load()
}

// QueryID returns the ID the server runs the query under.
func (s *RowStream) QueryID() string {
	return s.queryID
}

// Summary returns the summary sent by the server, if any.
func (s *RowStream) Summary() *Summary {
	return s.summary
}

// Err returns the error that ended the stream, if any.
func (s *RowStream) Err() error {
	return s.err
}

// Each calls fn for every remaining row and closes the stream. An error
// returned by fn stops the iteration and is returned.
func (s *RowStream) Each(fn func(Row) error) error {
	defer s.Close()
	for s.Next() {
		if err := fn(s.row); err != nil {
			return err
		}
	}
	return s.Err()
}

// Close releases the connection. Next returns false afterwards.
func (s *RowStream) Close() error {
	s.done = true
	s.stop()
	s.closeBody()
	return nil
}

func (s *RowStream) finish(err error) {
	s.err = err
	s.done = true
	s.row = nil
	s.stop()
	s.closeBody()
	s.logger.DebugContext(s.ctx, "stream closed", "query_id", s.queryID, "rows", s.Count(), "error", err)
}

func (s *RowStream) closeBody() {
	s.closeOnce.Do(func() {
		sneakyBodyClose(s.body)
	})
}
