package chhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type Table struct {
	c *Client

	// Database is the name of the database.
	//
	// This is optional and may be empty, in which case the database of the
	// connection is used.
	Database string
	// Table is the name of the table.
	Table string
}

// Table returns a handle to the named table. A name of the form "db.table"
// selects the database too.
func (c *Client) Table(name string) *Table {
	t := &Table{c: c, Table: name}
	if db, tbl, ok := strings.Cut(name, "."); ok && db != "" && tbl != "" {
		t.Database, t.Table = db, tbl
	}
	return t
}

func (t *Table) Drop(ctx context.Context) error {
	return t.c.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t.Identifier()))
}

// Columns returns the columns of the table as listed in system.columns.
func (t *Table) Columns(ctx context.Context) (Schema, error) {
	database := "currentDatabase()"
	params := map[string]any{"table": t.Table}
	if t.Database != "" {
		database = "{database:String}"
		params["database"] = t.Database
	}

	r, err := t.c.Query(ctx, fmt.Sprintf(`
		SELECT name, type
		FROM system.columns
		WHERE table = {table:String}
		  AND database = %s
		ORDER BY position
	`, database), params)
	if err != nil {
		return nil, err
	}

	var schema Schema
	for _, record := range r.Data {
		if len(record) != 2 {
			return nil, fmt.Errorf("expected 2 columns, got %d", len(record))
		}
		name, ok := record[0].(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", record[0])
		}
		dataType, ok := record[1].(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", record[1])
		}
		schema = append(schema, &Column{
			Name: name,
			Type: dataType,
		})
	}
	return schema, nil
}

// Count returns the number of rows in the table.
func (t *Table) Count(ctx context.Context) (uint64, error) {
	r, err := t.c.Query(ctx, fmt.Sprintf(`SELECT count() FROM %s`, t.Identifier()), nil)
	if err != nil {
		return 0, err
	}
	if len(r.Data) != 1 || len(r.Data[0]) != 1 {
		return 0, fmt.Errorf("expected a single count, got %d rows", len(r.Data))
	}
	n, ok := r.Data[0][0].(uint64)
	if !ok {
		return 0, fmt.Errorf("expected uint64, got %T", r.Data[0][0])
	}
	return n, nil
}

// Insert inserts a single row, given as a mapping from column name to value.
func (t *Table) Insert(ctx context.Context, row map[string]any) error {
	return t.InsertRows(ctx, []map[string]any{row})
}

// InsertRows inserts rows in one request.
func (t *Table) InsertRows(ctx context.Context, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	return t.c.insert(ctx, t.insertQuery(FormatJSONEachRow), buf.Bytes())
}

func (t *Table) insertQuery(format ResultFormat) string {
	return fmt.Sprintf("INSERT INTO %s FORMAT %s", t.Identifier(), format)
}

func (t *Table) Identifier() string {
	var b bytes.Buffer
	if t.Database != "" {
		b.WriteString(quoteIdent(t.Database, '`'))
		b.WriteByte('.')
	}
	b.WriteString(quoteIdent(t.Table, '`'))
	return b.String()
}

// Insert inserts a single row into the named table.
func (c *Client) Insert(ctx context.Context, table string, row map[string]any) error {
	return c.Table(table).Insert(ctx, row)
}

// InsertRows inserts rows into the named table in one request.
func (c *Client) InsertRows(ctx context.Context, table string, rows []map[string]any) error {
	return c.Table(table).InsertRows(ctx, rows)
}

func quoteIdent(s string, r rune) string {
	var b bytes.Buffer
	b.WriteRune(r)
	for _, c := range s {
		switch c {
		case '\t':
			b.WriteString("\\t")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\\':
			b.WriteString("\\\\")
		default:
			if c == r {
				b.WriteRune('\\')
				b.WriteRune(c)
				break
			}

			if c < 0x20 {
				b.WriteString(fmt.Sprintf("\\x%02x", c))
				break
			}

			b.WriteRune(c)
		}
	}
	b.WriteRune(r)
	return b.String()
}
