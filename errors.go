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
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ErrStreamEnded is returned when writing to an insert stream after End.
var ErrStreamEnded = errors.New("insert stream already ended")

// ServerError represents an exception reported by the ClickHouse server.
type ServerError struct {
	// StatusCode is the HTTP status of the response, or 200 when the
	// exception arrived in the body of a successful response.
	StatusCode int
	// Code is the ClickHouse error code, e.g. 60 for UNKNOWN_TABLE.
	Code int
	// Name is the symbolic error name, e.g. "UNKNOWN_TABLE".
	Name string
	// Message is the exception text as sent by the server.
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// ParamError reports a query parameter that could not be sent.
type ParamError struct {
	Name   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s for query parameter %q", e.Reason, e.Name)
}

var (
	exceptionCodeRe = regexp.MustCompile(`Code: (\d+)\. `)
	exceptionNameRe = regexp.MustCompile(`\(([A-Z][A-Z0-9_]+)\)(?: \(version [^)]*\))?\s*$`)
)

// maxExceptionSize bounds how much of a failed body is read for the message.
const maxExceptionSize = 64 * 1024

func looksLikeException(text []byte) bool {
	return exceptionCodeRe.Match(text)
}

func parseServerError(status int, header http.Header, body []byte) *ServerError {
	msg := strings.TrimSpace(string(body))
	if i := exceptionCodeRe.FindStringIndex(msg); i != nil {
		msg = msg[i[0]:]
	}

	e := &ServerError{StatusCode: status, Message: msg}
	if m := exceptionCodeRe.FindStringSubmatch(msg); m != nil {
		e.Code, _ = strconv.Atoi(m[1])
	}
	if header != nil {
		if code, err := strconv.Atoi(header.Get("X-ClickHouse-Exception-Code")); err == nil {
			e.Code = code
		}
	}
	if m := exceptionNameRe.FindStringSubmatch(msg); m != nil {
		e.Name = m[1]
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("%d: %s", status, http.StatusText(status))
	}
	return e
}

func checkStatusCodeOK(resp *http.Response) error {
	return checkStatusCode(resp, http.StatusOK)
}

func checkStatusCode(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExceptionSize))
	if err != nil && len(data) == 0 {
		return fmt.Errorf("%d: %w", resp.StatusCode, err)
	}
	return parseServerError(resp.StatusCode, resp.Header, data)
}

// sneakyBodyClose closes the body and ignores the error.
// This is useful to close the HTTP response body when we don't care about the error.
func sneakyBodyClose(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
