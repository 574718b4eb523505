package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Format represents output format options
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

// Tabular is implemented by results that have a natural row layout, such as
// benchmark reports. CSV and TSV output use it instead of flattening the value.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Formatter interface for outputting data in various formats
type Formatter interface {
	// FormatValue formats a single value
	FormatValue(v any) ([]byte, error)

	// FormatTable formats a header followed by rows
	FormatTable(header []string, rows [][]string) ([]byte, error)

	// FormatRow formats one row of a streamed table
	FormatRow(header, row []string) ([]byte, error)

	// WriteHeader writes any format header (e.g., opening bracket for JSON array)
	WriteHeader(w io.Writer, header []string) error

	// WriteFooter writes any format footer (e.g., closing bracket for JSON array)
	WriteFooter(w io.Writer) error

	// WriteSeparator writes separator between items (e.g., comma for JSON)
	WriteSeparator(w io.Writer) error
}

// NewFormatter creates a formatter for the specified format
func NewFormatter(format string) (Formatter, error) {
	switch Format(strings.ToLower(format)) {
	case FormatJSON, "":
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &DelimitedFormatter{Comma: ','}, nil
	case FormatTSV:
		return &DelimitedFormatter{Comma: '\t'}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (valid: json, csv, tsv)", format)
	}
}

// JSONFormatter outputs JSON format
type JSONFormatter struct {
	itemCount int
}

func (f *JSONFormatter) FormatValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON value: %w", err)
	}
	return append(data, '\n'), nil
}

// FormatTable emits one JSON object per row keyed by the header.
func (f *JSONFormatter) FormatTable(header []string, rows [][]string) ([]byte, error) {
	objs := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		objs = append(objs, rowObject(header, row))
	}
	return f.FormatValue(objs)
}

func rowObject(header, row []string) map[string]string {
	obj := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			obj[h] = row[i]
		}
	}
	return obj
}

// FormatRow emits the row as one JSON object keyed by the header.
func (f *JSONFormatter) FormatRow(header, row []string) ([]byte, error) {
	data, err := json.Marshal(rowObject(header, row))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON row: %w", err)
	}
	return data, nil
}

func (f *JSONFormatter) WriteHeader(w io.Writer, header []string) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return fmt.Errorf("failed to write JSON header: %w", err)
	}
	return nil
}

func (f *JSONFormatter) WriteFooter(w io.Writer) error {
	if _, err := w.Write([]byte("]\n")); err != nil {
		return fmt.Errorf("failed to write JSON footer: %w", err)
	}
	return nil
}

func (f *JSONFormatter) WriteSeparator(w io.Writer) error {
	f.itemCount++
	if f.itemCount > 1 {
		if _, err := w.Write([]byte(",")); err != nil {
			return fmt.Errorf("failed to write JSON separator: %w", err)
		}
	}
	return nil
}

// DelimitedFormatter outputs CSV, or TSV when Comma is a tab.
type DelimitedFormatter struct {
	Comma rune
}

func (f *DelimitedFormatter) FormatValue(v any) ([]byte, error) {
	if t, ok := v.(Tabular); ok {
		return f.FormatTable(t.Header(), t.Rows())
	}
	header, row := toRecord(v)
	if header == nil {
		return f.FormatTable(nil, [][]string{row})
	}
	return f.FormatTable(header, [][]string{row})
}

func (f *DelimitedFormatter) FormatTable(header []string, rows [][]string) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	w.Comma = f.Comma

	if header != nil {
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("delimited writer error: %w", err)
	}
	return []byte(buf.String()), nil
}

func (f *DelimitedFormatter) FormatRow(header, row []string) ([]byte, error) {
	return f.FormatTable(nil, [][]string{row})
}

// WriteHeader writes the header record; there is no other wrapper.
func (f *DelimitedFormatter) WriteHeader(w io.Writer, header []string) error {
	if header == nil {
		return nil
	}
	data, err := f.FormatTable(header, nil)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func (f *DelimitedFormatter) WriteFooter(w io.Writer) error {
	return nil // no wrapper
}

func (f *DelimitedFormatter) WriteSeparator(w io.Writer) error {
	return nil // rows already include newlines
}

// toRecord flattens a value into a single record. Structs and maps go
// through their JSON form so field names match the JSON output; keys are
// sorted for a stable column order. A nil header means the value had no
// field names.
func toRecord(v any) ([]string, []string) {
	switch val := v.(type) {
	case []string:
		return nil, val
	case []any:
		row := make([]string, len(val))
		for i, item := range val {
			row[i] = fmt.Sprintf("%v", item)
		}
		return nil, row
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, []string{fmt.Sprintf("%v", v)}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, []string{fmt.Sprintf("%v", v)}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make([]string, len(keys))
	for i, k := range keys {
		switch x := obj[k].(type) {
		case string:
			row[i] = x
		case nil:
			row[i] = ""
		case map[string]any, []any:
			b, _ := json.Marshal(x)
			row[i] = string(b)
		default:
			row[i] = fmt.Sprintf("%v", x)
		}
	}
	return keys, row
}

// FormatRows is a convenience function for formatting a table
func FormatRows(format string, header []string, rows [][]string) ([]byte, error) {
	f, err := NewFormatter(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	data, err := f.FormatTable(header, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to format rows: %w", err)
	}
	return data, nil
}

// StreamRows writes header, then every row received from rows as it
// arrives, then the format footer. It returns once rows is closed or a write
// fails; callers feeding rows from a goroutine must stop it on error.
func StreamRows(w io.Writer, format string, header []string, rows <-chan []string) error {
	f, err := NewFormatter(format)
	if err != nil {
		return fmt.Errorf("failed to create formatter: %w", err)
	}

	if err := f.WriteHeader(w, header); err != nil {
		return err
	}
	for row := range rows {
		if err := f.WriteSeparator(w); err != nil {
			return err
		}
		data, err := f.FormatRow(header, row)
		if err != nil {
			return fmt.Errorf("failed to format row: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return f.WriteFooter(w)
}

// FormatSingle is a convenience function for formatting a single object
func FormatSingle(format string, v any) ([]byte, error) {
	f, err := NewFormatter(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	data, err := f.FormatValue(v)
	if err != nil {
		return nil, fmt.Errorf("failed to format value: %w", err)
	}
	return data, nil
}
