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

	"github.com/google/uuid"
)

// ResultFormat is a ClickHouse output format name.
type ResultFormat string

const (
	// FormatJSONCompact is a single JSON document with meta, data rows as arrays, and statistics.
	FormatJSONCompact ResultFormat = "JSONCompact"
	// FormatJSONCompactEachRowWithNamesAndTypes is one JSON array per line,
	// preceded by a line of column names and a line of column types.
	FormatJSONCompactEachRowWithNamesAndTypes ResultFormat = "JSONCompactEachRowWithNamesAndTypes"
	// FormatJSONEachRow is one JSON object per line.
	FormatJSONEachRow ResultFormat = "JSONEachRow"
	// FormatArrowStream is the Arrow IPC streaming format.
	FormatArrowStream ResultFormat = "ArrowStream"
)

// Statement is a struct that represents a statement to be executed on ClickHouse.
type Statement struct {
	c *Client

	sql string

	// ID of the statement.
	//
	// If provided, ClickHouse runs the statement under this query ID;
	// otherwise a random UUID is generated on first use.
	ID *uuid.UUID
	// Params are the values of the {name:Type} placeholders in the statement.
	Params map[string]any
	// Settings are server settings for this statement only.
	Settings map[string]string
}

// Statement creates a new statement with the given SQL.
func (c *Client) Statement(sql string) *Statement {
	return &Statement{
		c:   c,
		sql: sql,
	}
}

// QueryID returns the ID the statement runs under.
func (s *Statement) QueryID() uuid.UUID {
	if s.ID == nil {
		id := uuid.New()
		s.ID = &id
	}
	return *s.ID
}

// Execute runs the statement and waits for the whole result.
//
// Statements that return nothing, like DDL, yield an empty result.
func (s *Statement) Execute(ctx context.Context) (*Result, error) {
	ctx, cancel := s.c.withTimeout(ctx)
	defer cancel()

	id := s.QueryID().String()
	resp, err := s.c.send(ctx, &queryRequest{
		query:    s.sql,
		queryID:  id,
		format:   FormatJSONCompact,
		params:   s.Params,
		settings: s.Settings,
	})
	if err != nil {
		return nil, err
	}
	defer sneakyBodyClose(resp.Body)

	var result *Result
	if format := resp.Header.Get("X-ClickHouse-Format"); format != "" && format != string(FormatJSONCompact) {
		result, err = decodeText(resp.Body)
	} else {
		result, err = decodeResult(resp.Body)
	}
	if err != nil {
		return nil, err
	}
	result.QueryID = id
	if v := resp.Header.Get("X-ClickHouse-Query-Id"); v != "" {
		result.QueryID = v
	}
	result.Summary = parseSummary(resp.Header)
	return result, nil
}

// Stream runs the statement and returns a stream over its rows as they arrive.
//
// The stream holds the connection until it is drained or closed.
// Cancelling ctx aborts the stream.
func (s *Statement) Stream(ctx context.Context) (*RowStream, error) {
	id := s.QueryID().String()
	resp, err := s.c.send(ctx, &queryRequest{
		query:    s.sql,
		queryID:  id,
		format:   FormatJSONCompactEachRowWithNamesAndTypes,
		params:   s.Params,
		settings: s.Settings,
	})
	if err != nil {
		return nil, err
	}
	return openRowStream(ctx, resp, id, s.c.logger)
}

// Cancel asks the server to kill the statement if it is still running.
//
// Statements that were never run are left alone.
func (s *Statement) Cancel(ctx context.Context) error {
	if s.ID == nil {
		return nil
	}
	kill := s.c.Statement(`KILL QUERY WHERE query_id = {id:String} ASYNC`)
	kill.Params = map[string]any{"id": s.ID.String()}
	_, err := kill.Execute(ctx)
	return err
}
