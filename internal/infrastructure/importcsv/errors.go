package importcsv

import (
	"errors"
	"fmt"
)

// Row error codes surfaced in import reports.
const (
	ErrCodeMalformedRow  = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeColumnCount   = "ERR_IMPORT_COLUMN_COUNT"
	ErrCodeRequiredField = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeInvalidValue  = "ERR_IMPORT_INVALID_VALUE"
	ErrCodeDuplicateKey  = "ERR_IMPORT_DUPLICATE_KEY"
)

var (
	// ErrEmptyFile is returned when the file has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidEncoding is returned when the file is neither UTF-8 nor GBK.
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when the file has no header row.
	ErrMissingHeader = errors.New("missing header row")
)

// RowError describes a problem with a single row. It carries the row
// number so a failed row can be located in the source file.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// NewRowError creates a RowError for the given row and column.
func NewRowError(row int, column, code, message string) *RowError {
	return &RowError{Row: row, Column: column, Code: code, Message: message}
}

// RequiredFieldError reports an empty required column.
func RequiredFieldError(row int, column string) *RowError {
	return &RowError{
		Row:     row,
		Column:  column,
		Code:    ErrCodeRequiredField,
		Message: fmt.Sprintf("field %q is required", column),
	}
}

// InvalidValueError reports a value that failed parsing or validation.
func InvalidValueError(row int, column, value, reason string) *RowError {
	return &RowError{
		Row:     row,
		Column:  column,
		Code:    ErrCodeInvalidValue,
		Message: reason,
		Value:   value,
	}
}

// AsRowError returns err as a *RowError if it is one.
func AsRowError(err error) (*RowError, bool) {
	var re *RowError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
