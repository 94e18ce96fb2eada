// Package importcsv parses CSV staging files into header-mapped rows.
//
// Files are decoded to UTF-8 (GBK is accepted as a fallback for legacy
// exports), a leading BOM is stripped, and rows whose width differs from
// the header are handled according to the configured ColumnCountMode.
package importcsv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ColumnCountMode controls what happens to rows whose field count does
// not match the header row.
type ColumnCountMode string

const (
	// ColumnCountError reports mismatched rows as row errors. This is
	// the default: silently losing data is worse than a noisy report.
	ColumnCountError ColumnCountMode = "error"
	// ColumnCountDrop silently skips mismatched rows.
	ColumnCountDrop ColumnCountMode = "drop"
)

// ParseColumnCountMode returns the mode for s, defaulting to error mode.
func ParseColumnCountMode(s string) ColumnCountMode {
	if ColumnCountMode(strings.ToLower(s)) == ColumnCountDrop {
		return ColumnCountDrop
	}
	return ColumnCountError
}

// Parser reads a CSV file row by row, mapping fields to header names.
type Parser struct {
	delimiter   rune
	columnMode  ColumnCountMode
	headers     []string
	headerIndex map[string]int
	reader      *csv.Reader
	currentLine int
	dataRows    int
	dropped     int
}

// Option configures a Parser.
type Option func(*Parser)

// WithDelimiter sets the field delimiter (default comma).
func WithDelimiter(d rune) Option {
	return func(p *Parser) { p.delimiter = d }
}

// WithColumnCountMode sets the mismatched-row policy.
func WithColumnCountMode(mode ColumnCountMode) Option {
	return func(p *Parser) { p.columnMode = mode }
}

// NewParser creates a parser over r. The input must be UTF-8 or GBK;
// a UTF-8 BOM is stripped if present.
func NewParser(r io.Reader, opts ...Option) (*Parser, error) {
	p := &Parser{
		delimiter:   ',',
		columnMode:  ColumnCountError,
		headerIndex: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	decoded, err := decodeToUTF8(r)
	if err != nil {
		return nil, err
	}

	p.reader = csv.NewReader(decoded)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	// Width checking is done per row so mismatches can be reported
	// with their row number instead of aborting the whole file.
	p.reader.FieldsPerRecord = -1

	return p, nil
}

// decodeToUTF8 buffers the input, strips a UTF-8 BOM, and transcodes
// from GBK when the content is not valid UTF-8.
func decodeToUTF8(r io.Reader) (io.Reader, error) {
	buf := bufio.NewReader(r)

	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(head) == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	const sniffSize = 4096
	sample, err := buf.Peek(sniffSize)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(sample) == 0 {
		return nil, ErrEmptyFile
	}
	if utf8.Valid(sample) {
		return buf, nil
	}

	// Not UTF-8: try GBK, the one legacy encoding we still see in
	// vendor-provided exports.
	decoded := transform.NewReader(buf, simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	return bytes.NewReader(data), nil
}

// ParseHeader reads the header row. It must be called before ReadRow.
func (p *Parser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		name := strings.TrimSpace(h)
		p.headers[i] = name
		p.headerIndex[name] = i
	}
	p.currentLine = 1
	return nil
}

// Headers returns the parsed header names in file order.
func (p *Parser) Headers() []string { return p.headers }

// HasHeader reports whether a column with the given name exists.
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.headerIndex[name]
	return ok
}

// MissingHeaders returns the subset of required that is absent.
func (p *Parser) MissingHeaders(required []string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Row is a parsed data row keyed by header name.
type Row struct {
	LineNumber int
	Data       map[string]string
}

// Get returns the value for the named column.
func (r *Row) Get(header string) string { return r.Data[header] }

// GetOrDefault returns the value for the named column, or def when
// the column is absent or empty.
func (r *Row) GetOrDefault(header, def string) string {
	if v, ok := r.Data[header]; ok && v != "" {
		return v
	}
	return def
}

// IsEmpty reports whether every field in the row is empty.
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow returns the next data row. A row whose width differs from the
// header yields a *RowError in error mode and is skipped in drop mode;
// in both cases reading can continue.
func (p *Parser) ReadRow() (*Row, error) {
	for {
		record, err := p.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		p.currentLine++
		if err != nil {
			return nil, &RowError{
				Row:     p.currentLine,
				Code:    ErrCodeMalformedRow,
				Message: err.Error(),
			}
		}

		if len(record) != len(p.headers) {
			if p.columnMode == ColumnCountDrop {
				p.dropped++
				continue
			}
			return nil, &RowError{
				Row:     p.currentLine,
				Code:    ErrCodeColumnCount,
				Message: fmt.Sprintf("expected %d columns, got %d", len(p.headers), len(record)),
			}
		}

		p.dataRows++
		row := &Row{
			LineNumber: p.currentLine,
			Data:       make(map[string]string, len(p.headers)),
		}
		for i, header := range p.headers {
			row.Data[header] = strings.TrimSpace(record[i])
		}
		return row, nil
	}
}

// DroppedRows returns how many rows drop mode has discarded so far.
func (p *Parser) DroppedRows() int { return p.dropped }

// RowsRead returns how many data rows have been returned so far.
func (p *Parser) RowsRead() int { return p.dataRows }

// ParseBytes creates a parser over an in-memory file.
func ParseBytes(data []byte, opts ...Option) (*Parser, error) {
	return NewParser(bytes.NewReader(data), opts...)
}
