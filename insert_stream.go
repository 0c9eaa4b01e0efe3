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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultHighWaterMark is the number of buffered bytes at which an insert
// stream asks writers to pause.
const DefaultHighWaterMark = 64 * 1024

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// InsertStream writes rows into a table over a single long-running request.
//
// Rows are buffered in memory and moved into the request body as the server
// reads it. TryWrite reports false once the buffer reaches the high-water
// mark; writers should then wait on Drain before writing more:
//
//	for n < total {
//		ok, err := stream.TryWrite(row)
//		if err != nil {
//			return err
//		}
//		n++
//		if !ok {
//			<-stream.Drain()
//		}
//	}
//	return stream.End()
type InsertStream struct {
	table  *Table
	logger *slog.Logger

	mu            sync.Mutex
	cond          *sync.Cond
	buf           []byte
	spare         []byte
	inflight      int
	highWaterMark int
	congested     bool
	drain         chan struct{}
	ended         bool
	failed        error

	count atomic.Uint64
	done  chan struct{}
	err   error
}

// InsertStreamOption configures an InsertStream.
type InsertStreamOption func(*InsertStream)

// WithHighWaterMark sets the number of buffered bytes at which TryWrite
// starts to report false.
func WithHighWaterMark(n int) InsertStreamOption {
	return func(s *InsertStream) {
		if n > 0 {
			s.highWaterMark = n
		}
	}
}

// InsertStream starts a streaming insert into the named table.
func (c *Client) InsertStream(ctx context.Context, table string, opts ...InsertStreamOption) (*InsertStream, error) {
	return c.Table(table).InsertStream(ctx, opts...)
}

// InsertStream starts a streaming insert into the table.
//
// The request stays open until End is called or ctx is cancelled.
func (t *Table) InsertStream(ctx context.Context, opts ...InsertStreamOption) (*InsertStream, error) {
	s := &InsertStream{
		table:         t,
		logger:        t.c.logger,
		highWaterMark: DefaultHighWaterMark,
		drain:         closedChan,
		done:          make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}

	pr, pw := io.Pipe()
	var (
		w        io.WriteCloser = nopWriteCloser{pw}
		encoding string
	)
	if c := t.c.config.Compression; c != CompressionNone {
		cw, err := newCompressWriter(pw, c)
		if err != nil {
			return nil, err
		}
		w, encoding = cw, string(c)
	}

	go s.pump(w, pw)
	go s.run(ctx, pr, encoding)
	return s, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func (s *InsertStream) run(ctx context.Context, pr *io.PipeReader, encoding string) {
	query := s.table.insertQuery(FormatJSONEachRow)
	s.logger.DebugContext(ctx, "insert stream started", "table", s.table.Identifier())

	resp, err := s.table.c.send(ctx, &queryRequest{
		query:           query,
		data:            pr,
		contentEncoding: encoding,
		settings:        insertSettings,
	})
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		sneakyBodyClose(resp.Body)
	}
	if err != nil {
		err = fmt.Errorf("insert into %s: %w", s.table.Identifier(), err)
	}

	// Unblock the pump if the server stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	s.finish(err)
	s.logger.DebugContext(ctx, "insert stream closed", "table", s.table.Identifier(), "rows", s.Count(), "error", err)
}

// pump moves buffered rows into the request body.
func (s *InsertStream) pump(w io.WriteCloser, pw *io.PipeWriter) {
	for {
		s.mu.Lock()
		for len(s.buf) == 0 && !s.ended && s.failed == nil {
			s.cond.Wait()
		}
		if s.failed != nil {
			s.mu.Unlock()
			_ = pw.CloseWithError(s.failed)
			return
		}
		chunk := s.buf
		s.buf = s.spare[:0]
		s.inflight = len(chunk)
		s.mu.Unlock()

		if len(chunk) == 0 {
			// Ended and fully flushed.
			_ = pw.CloseWithError(w.Close())
			return
		}

		if _, err := w.Write(chunk); err != nil {
			_ = pw.CloseWithError(err)
			return
		}

		s.mu.Lock()
		s.spare = chunk[:0]
		s.inflight = 0
		if s.congested && len(s.buf) < s.highWaterMark {
			s.congested = false
			close(s.drain)
		}
		s.mu.Unlock()
	}
}

// TryWrite buffers row for sending. It reports false when the buffer is at
// or above the high-water mark; the row is accepted either way, and the
// caller should wait on Drain before writing more.
func (s *InsertStream) TryWrite(row map[string]any) (bool, error) {
	line, err := json.Marshal(row)
	if err != nil {
		return false, fmt.Errorf("encode row: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return false, s.failed
	}
	if s.ended {
		return false, ErrStreamEnded
	}

	s.buf = append(s.buf, line...)
	s.buf = append(s.buf, '\n')
	s.count.Add(1)
	s.cond.Signal()

	if len(s.buf)+s.inflight >= s.highWaterMark {
		if !s.congested {
			s.congested = true
			s.drain = make(chan struct{})
		}
		return false, nil
	}
	return !s.congested, nil
}

// Write buffers row and, if the stream is congested, waits until it drains.
func (s *InsertStream) Write(ctx context.Context, row map[string]any) error {
	ok, err := s.TryWrite(row)
	if err != nil || ok {
		return err
	}
	select {
	case <-s.Drain():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain returns a channel that is closed once the stream can take more rows.
// It is already closed when the stream is not congested.
func (s *InsertStream) Drain() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drain
}

// End flushes the buffered rows, finishes the request and waits for the
// server to acknowledge the insert. It returns the error of the stream.
func (s *InsertStream) End() error {
	s.mu.Lock()
	s.ended = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	return s.err
}

// Done returns a channel that is closed when the request has finished.
func (s *InsertStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error of a finished stream, or nil while it is running.
func (s *InsertStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Count returns the number of rows accepted so far. It is safe to call from
// any goroutine.
func (s *InsertStream) Count() uint64 {
	return s.count.Load()
}

func (s *InsertStream) finish(err error) {
	s.mu.Lock()
	if err != nil && s.failed == nil {
		s.failed = err
	}
	s.ended = true
	s.err = err
	if s.congested {
		s.congested = false
		close(s.drain)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	close(s.done)
}
