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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Value stores the contents of a single cell from a query result.
type Value any

// Row is a single result row, aligned with the columns of its result.
type Row []Value

// Schema describes the columns of a table or query result.
type Schema []*Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Column describes a single column.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`
	// Type is the ClickHouse type, e.g. "Nullable(String)".
	Type string `json:"type"`
}

// Format renders v, a value of this column, as text.
func (c *Column) Format(v Value) string {
	if t, ok := v.(time.Time); ok {
		switch base, args := splitType(unwrapType(c.Type)); base {
		case "Date", "Date32":
			return t.Format(dateLayout)
		case "DateTime64":
			return t.Format(dateTime64Layout(args))
		}
	}
	return FormatValue(v)
}

// Statistics are the execution statistics reported with a JSON result.
type Statistics struct {
	Elapsed   float64 `json:"elapsed"`
	RowsRead  uint64  `json:"rows_read"`
	BytesRead uint64  `json:"bytes_read"`
}

// Summary is the query summary sent in the X-ClickHouse-Summary header.
type Summary struct {
	ReadRows        uint64 `json:"read_rows,string"`
	ReadBytes       uint64 `json:"read_bytes,string"`
	WrittenRows     uint64 `json:"written_rows,string"`
	WrittenBytes    uint64 `json:"written_bytes,string"`
	TotalRowsToRead uint64 `json:"total_rows_to_read,string"`
	ResultRows      uint64 `json:"result_rows,string"`
	ResultBytes     uint64 `json:"result_bytes,string"`
	ElapsedNs       uint64 `json:"elapsed_ns,string"`
}

func parseSummary(header http.Header) *Summary {
	raw := header.Get("X-ClickHouse-Summary")
	if raw == "" {
		return nil
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	return &s
}

// Result stores the whole result of a query.
type Result struct {
	// QueryID is the ID the server ran the query under.
	QueryID string
	// Meta describes the result columns.
	Meta Schema
	// Data holds the rows, each aligned with Meta.
	Data []Row
	// Rows is the number of rows as reported by the server.
	Rows uint64
	// RowsBeforeLimitAtLeast is the lower bound of rows without LIMIT, if reported.
	RowsBeforeLimitAtLeast uint64
	// Statistics are the execution statistics reported by the server.
	Statistics Statistics
	// Summary is the summary header of the response, if any.
	Summary *Summary
}

// Columns returns the names of the result columns in order.
func (r *Result) Columns() []string {
	return r.Meta.Names()
}

// Map returns row i as a mapping from column name to value.
func (r *Result) Map(i int) map[string]Value {
	return rowMap(r.Meta, r.Data[i])
}

// Maps returns all rows as mappings from column name to value.
func (r *Result) Maps() []map[string]Value {
	maps := make([]map[string]Value, len(r.Data))
	for i := range r.Data {
		maps[i] = r.Map(i)
	}
	return maps
}

func rowMap(schema Schema, row Row) map[string]Value {
	m := make(map[string]Value, len(schema))
	for i, c := range schema {
		if i < len(row) {
			m[c.Name] = row[i]
		}
	}
	return m
}

type compactResult struct {
	Meta                   Schema     `json:"meta"`
	Data                   [][]any    `json:"data"`
	Rows                   uint64     `json:"rows"`
	RowsBeforeLimitAtLeast uint64     `json:"rows_before_limit_at_least"`
	Statistics             Statistics `json:"statistics"`
	Exception              string     `json:"exception"`
}

// decodeResult reads a JSONCompact document. An empty body is an empty result.
func decodeResult(body io.Reader) (*Result, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Result{}, nil
	}

	var wire compactResult
	if err := decodeJSON(data, &wire); err != nil {
		if looksLikeException(data) {
			return nil, parseServerError(http.StatusOK, nil, data)
		}
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if wire.Exception != "" {
		return nil, parseServerError(http.StatusOK, nil, []byte(wire.Exception))
	}

	rows, err := convertRows(wire.Meta, wire.Data)
	if err != nil {
		return nil, err
	}
	return &Result{
		Meta:                   wire.Meta,
		Data:                   rows,
		Rows:                   wire.Rows,
		RowsBeforeLimitAtLeast: wire.RowsBeforeLimitAtLeast,
		Statistics:             wire.Statistics,
	}, nil
}

// decodeText keeps the output of a query that chose its own format with a
// FORMAT clause. Each line becomes a row of a single String column.
func decodeText(body io.Reader) (*Result, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if looksLikeException(data) {
		return nil, parseServerError(http.StatusOK, nil, data)
	}

	result := &Result{Meta: Schema{{Name: "result", Type: "String"}}}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return result, nil
	}
	for _, line := range strings.Split(text, "\n") {
		result.Data = append(result.Data, Row{line})
	}
	result.Rows = uint64(len(result.Data))
	return result, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func convertRows(schema Schema, raw [][]any) ([]Row, error) {
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		row, err := convertRow(schema, r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func convertRow(schema Schema, raw []any) (Row, error) {
	if len(raw) != len(schema) {
		return nil, errors.New("schema length does not match record length")
	}
	row := make(Row, len(raw))
	for i, v := range raw {
		val, err := convertValue(v, schema[i].Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", schema[i].Name, err)
		}
		row[i] = val
	}
	return row, nil
}

// convertValue turns a decoded JSON cell into a Go value according to the
// ClickHouse column type.
func convertValue(v any, typ string) (Value, error) {
	if v == nil {
		return nil, nil
	}

	base, args := splitType(typ)
	switch base {
	case "Nullable", "LowCardinality":
		return convertValue(v, args)
	case "Int8", "Int16", "Int32", "Int64":
		return toInt(v)
	case "UInt8", "UInt16", "UInt32", "UInt64":
		return toUint(v)
	case "Float32", "Float64":
		return toFloat(v)
	case "Bool", "Boolean":
		return toBool(v)
	case "Date", "Date32":
		return toTime(v, time.UTC)
	case "DateTime":
		return toTime(v, location(args))
	case "DateTime64":
		parts := splitArgs(args)
		loc := time.UTC
		if len(parts) > 1 {
			loc = location(parts[1])
		}
		return toTime(v, loc)
	case "Array":
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		values := make([]Value, len(list))
		for i, e := range list {
			val, err := convertValue(e, args)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return values, nil
	case "Map":
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		parts := splitArgs(args)
		values := make(map[string]Value, len(obj))
		for k, e := range obj {
			val := Value(e)
			if len(parts) == 2 {
				var err error
				if val, err = convertValue(e, parts[1]); err != nil {
					return nil, err
				}
			}
			values[k] = val
		}
		return values, nil
	case "Tuple":
		parts := splitArgs(args)
		if obj, ok := v.(map[string]any); ok {
			return convertNamedTuple(obj, parts)
		}
		list, ok := v.([]any)
		if !ok {
			return plainValue(v), nil
		}
		values := make([]Value, len(list))
		for i, e := range list {
			if len(parts) != len(list) {
				values[i] = plainValue(e)
				continue
			}
			val, err := convertValue(e, tupleElementType(parts[i]))
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return values, nil
	case "String", "FixedString", "UUID", "IPv4", "IPv6", "Enum8", "Enum16",
		"Decimal", "Decimal32", "Decimal64", "Decimal128", "Decimal256",
		"Int128", "Int256", "UInt128", "UInt256":
		return toString(v), nil
	default:
		return plainValue(v), nil
	}
}

func toInt(v any) (Value, error) {
	switch v := v.(type) {
	case json.Number:
		return strconv.ParseInt(v.String(), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func toUint(v any) (Value, error) {
	switch v := v.(type) {
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return nil, fmt.Errorf("expected unsigned integer, got %T", v)
	}
}

func toFloat(v any) (Value, error) {
	switch v := v.(type) {
	case json.Number:
		return strconv.ParseFloat(v.String(), 64)
	case string:
		switch strings.ToLower(v) {
		case "inf", "+inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		case "nan", "-nan", "+nan":
			return math.NaN(), nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return nil, fmt.Errorf("expected float, got %T", v)
	}
}

func toBool(v any) (Value, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case json.Number:
		return v.String() != "0", nil
	case string:
		return strconv.ParseBool(v)
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
}

func toTime(v any, loc *time.Location) (Value, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", v)
	}
	layout := dateTimeLayout
	if len(s) == len(dateLayout) {
		layout = dateLayout
	}
	// Fractional seconds are accepted after the seconds field.
	return time.ParseInLocation(layout, s, loc)
}

func toString(v any) Value {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// plainValue turns JSON numbers of unknown columns into int64, uint64 or float64.
func plainValue(v any) Value {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		return f
	}
	return n.String()
}

func location(arg string) *time.Location {
	name := strings.Trim(strings.TrimSpace(arg), "'")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// splitType splits "Name(args)" into "Name" and "args".
func splitType(typ string) (string, string) {
	typ = strings.TrimSpace(typ)
	i := strings.IndexByte(typ, '(')
	if i < 0 || !strings.HasSuffix(typ, ")") {
		return typ, ""
	}
	return typ[:i], typ[i+1 : len(typ)-1]
}

func unwrapType(typ string) string {
	for {
		base, args := splitType(typ)
		if base != "Nullable" && base != "LowCardinality" {
			return typ
		}
		typ = args
	}
}

// splitArgs splits type arguments at top-level commas.
func splitArgs(args string) []string {
	var (
		parts []string
		depth int
		quote bool
		start int
	)
	for i := 0; i < len(args); i++ {
		switch c := args[i]; {
		case c == '\\' && quote:
			i++
		case c == '\'':
			quote = !quote
		case quote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(args[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(args[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// convertNamedTuple converts a named tuple the server sent as an object,
// which it does while output_format_json_named_tuples_as_objects is on.
func convertNamedTuple(obj map[string]any, parts []string) (Value, error) {
	types := make(map[string]string, len(parts))
	for _, p := range parts {
		if name, typ := tupleElement(p); name != "" {
			types[name] = typ
		}
	}

	values := make(map[string]Value, len(obj))
	for k, e := range obj {
		typ, ok := types[k]
		if !ok {
			values[k] = plainValue(e)
			continue
		}
		val, err := convertValue(e, typ)
		if err != nil {
			return nil, fmt.Errorf("tuple element %q: %w", k, err)
		}
		values[k] = val
	}
	return values, nil
}

// tupleElementType strips the name from a named tuple element like "a UInt8".
func tupleElementType(elem string) string {
	_, typ := tupleElement(elem)
	return typ
}

// tupleElement splits a tuple element into its name, empty when the element
// is unnamed, and its type.
func tupleElement(elem string) (string, string) {
	sp := strings.IndexByte(elem, ' ')
	paren := strings.IndexByte(elem, '(')
	if sp > 0 && (paren < 0 || sp < paren) {
		return strings.Trim(elem[:sp], "`"), strings.TrimSpace(elem[sp+1:])
	}
	return "", elem
}

func dateTime64Layout(args string) string {
	parts := splitArgs(args)
	if len(parts) == 0 {
		return dateTimeLayout
	}
	precision, err := strconv.Atoi(parts[0])
	if err != nil || precision <= 0 {
		return dateTimeLayout
	}
	return dateTimeLayout + "." + strings.Repeat("0", min(precision, 9))
}

// FormatValue renders a value as text, the way the server prints it in
// tab-separated output.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return formatFloat(v)
	case time.Time:
		if v.Nanosecond() != 0 {
			return v.Format(dateTimeLayout + ".999999999")
		}
		return v.Format(dateTimeLayout)
	case []Value, map[string]Value, []any, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat prints floats in plain decimal notation, falling back to the
// exponent form for very large and very small magnitudes.
func formatFloat(v float64) string {
	if a := math.Abs(v); a == 0 || (a >= 1e-6 && a < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
