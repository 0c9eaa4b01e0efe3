package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

const (
	outputTSV   = "tsv"
	outputTable = "table"
	outputCSV   = "csv"
	outputJSON  = "json"
)

func validateOutputFormat(output string) error {
	switch output {
	case outputTSV, outputTable, outputCSV, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q: use 'tsv', 'table', 'csv' or 'json'", output)
	}
}

// rowWriter prints rows one at a time in one of the output formats.
type rowWriter interface {
	Header(cols chhttp.Schema) error
	Row(cols chhttp.Schema, row chhttp.Row) error
	Flush() error
}

func newRowWriter(w io.Writer, format string) rowWriter {
	switch format {
	case outputTable:
		return &tableWriter{w: w}
	case outputCSV:
		return &csvWriter{w: csv.NewWriter(w)}
	case outputJSON:
		return &jsonWriter{enc: json.NewEncoder(w)}
	default:
		return &tsvWriter{w: w}
	}
}

func formatRow(cols chhttp.Schema, row chhttp.Row) []string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = cols[i].Format(v)
	}
	return cells
}

type tsvWriter struct {
	w io.Writer
}

func (t *tsvWriter) Header(cols chhttp.Schema) error {
	_, err := fmt.Fprintln(t.w, strings.Join(cols.Names(), "\t"))
	return err
}

func (t *tsvWriter) Row(cols chhttp.Schema, row chhttp.Row) error {
	_, err := fmt.Fprintln(t.w, strings.Join(formatRow(cols, row), "\t"))
	return err
}

func (t *tsvWriter) Flush() error { return nil }

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) Header(cols chhttp.Schema) error {
	return c.w.Write(cols.Names())
}

func (c *csvWriter) Row(cols chhttp.Schema, row chhttp.Row) error {
	if err := c.w.Write(formatRow(cols, row)); err != nil {
		return err
	}
	// Keep streamed output visible as it arrives.
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// jsonWriter prints one JSON object per row.
type jsonWriter struct {
	enc *json.Encoder
}

func (j *jsonWriter) Header(chhttp.Schema) error { return nil }

func (j *jsonWriter) Row(cols chhttp.Schema, row chhttp.Row) error {
	obj := make(map[string]string, len(cols))
	for i, cell := range formatRow(cols, row) {
		obj[cols[i].Name] = cell
	}
	return j.enc.Encode(obj)
}

func (j *jsonWriter) Flush() error { return nil }

// tableWriter buffers rows and renders them as a box table on Flush.
type tableWriter struct {
	w io.Writer
	t table.Writer
}

func (t *tableWriter) Header(cols chhttp.Schema) error {
	t.t = table.NewWriter()
	t.t.SetOutputMirror(t.w)
	t.t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, name := range cols.Names() {
		header[i] = name
	}
	t.t.AppendHeader(header)
	return nil
}

func (t *tableWriter) Row(cols chhttp.Schema, row chhttp.Row) error {
	cells := formatRow(cols, row)
	r := make(table.Row, len(cells))
	for i, c := range cells {
		r[i] = c
	}
	t.t.AppendRow(r)
	return nil
}

func (t *tableWriter) Flush() error {
	if t.t != nil {
		t.t.Render()
	}
	return nil
}

// printResult prints a whole result the way the query examples do:
// a count line, the column names and one line per row.
func printResult(w io.Writer, format, noun string, result *chhttp.Result) error {
	if format == outputTSV || format == outputTable {
		if _, err := fmt.Fprintf(w, "Found %d %s: \n", len(result.Data), noun); err != nil {
			return err
		}
	}

	rw := newRowWriter(w, format)
	if err := rw.Header(result.Meta); err != nil {
		return err
	}
	for _, row := range result.Data {
		if err := rw.Row(result.Meta, row); err != nil {
			return err
		}
	}
	return rw.Flush()
}
