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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// queryRequest is a single POST to the HTTP interface.
type queryRequest struct {
	// query is the SQL text. It travels in the body, or in the "query" URL
	// parameter when data is set.
	query string
	// data is the payload of an INSERT.
	data io.Reader
	// contentEncoding is the encoding data is already compressed with.
	contentEncoding string

	queryID  string
	format   ResultFormat
	params   map[string]any
	settings map[string]string
}

// send posts req and returns the response once its status is checked. The
// caller owns the response body.
func (c *Client) send(ctx context.Context, req *queryRequest) (*http.Response, error) {
	ep, err := c.config.resolve()
	if err != nil {
		return nil, err
	}

	q := make(url.Values, len(ep.query)+len(req.params)+4)
	for k, vs := range ep.query {
		q[k] = append([]string(nil), vs...)
	}
	if ep.database != "" {
		q.Set("database", ep.database)
	}
	for k, v := range c.config.Settings {
		q.Set(k, v)
	}
	for k, v := range req.settings {
		q.Set(k, v)
	}
	if req.format != "" {
		q.Set("default_format", string(req.format))
	}
	if req.queryID != "" {
		q.Set("query_id", req.queryID)
	}
	if err := bindParams(q, req.query, req.params); err != nil {
		return nil, err
	}

	header := make(http.Header)
	if ep.username != "" {
		header.Set("X-ClickHouse-User", ep.username)
	}
	if ep.password != "" {
		header.Set("X-ClickHouse-Key", ep.password)
	}
	if c.config.Compression != CompressionNone {
		q.Set("enable_http_compression", "1")
		header.Set("Accept-Encoding", string(c.config.Compression))
	}

	var body io.Reader
	if req.data != nil {
		q.Set("query", req.query)
		body = req.data
		if req.contentEncoding != "" {
			header.Set("Content-Encoding", req.contentEncoding)
		}
	} else {
		body = strings.NewReader(req.query)
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	u := *ep.url
	u.RawQuery = q.Encode()

	c.logger.DebugContext(ctx, "sending query", "query_id", req.queryID, "endpoint", ep.url.String())
	resp, err := c.http.Do(ctx, http.MethodPost, &u, header, body)
	if err != nil {
		return nil, err
	}

	decoded, err := decompressBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		sneakyBodyClose(resp.Body)
		return nil, err
	}
	resp.Body = decoded

	if err := checkStatusCodeOK(resp); err != nil {
		sneakyBodyClose(resp.Body)
		c.logger.DebugContext(ctx, "query failed", "query_id", req.queryID, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	return resp, nil
}

// insert posts payload for an INSERT ... FORMAT query and waits for the server to accept it.
func (c *Client) insert(ctx context.Context, query string, payload []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var encoding string
	if c.config.Compression != CompressionNone {
		compressed, err := compressBytes(payload, c.config.Compression)
		if err != nil {
			return err
		}
		payload = compressed
		encoding = string(c.config.Compression)
	}

	resp, err := c.send(ctx, &queryRequest{
		query:           query,
		data:            bytes.NewReader(payload),
		contentEncoding: encoding,
		settings:        insertSettings,
	})
	if err != nil {
		return err
	}
	defer sneakyBodyClose(resp.Body)
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// insertSettings lets JSON rows carry RFC 3339 timestamps.
var insertSettings = map[string]string{
	"date_time_input_format": "best_effort",
}
