package table

import (
	"fmt"
)

// ErrorKind classifies a rejected upload.
type ErrorKind string

// Upload failure kinds.
const (
	KindEmpty             ErrorKind = "empty"
	KindEncoding          ErrorKind = "encoding"
	KindMalformed         ErrorKind = "malformed"
	KindNoDataColumns     ErrorKind = "no_data_columns"
	KindNoRows            ErrorKind = "no_rows"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
)

// UploadError reports why an upload cannot be rendered.
type UploadError struct {
	Kind   ErrorKind
	Name   string
	Detail string
	Err    error
}

func (e *UploadError) Error() string {
	msg := fmt.Sprintf("table: %s: %s", e.Name, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying parse error, if any.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the person who uploaded the file.
func (e *UploadError) Message() string {
	switch e.Kind {
	case KindEmpty:
		return "The uploaded file is empty."
	case KindEncoding:
		return "The file could not be read as text. Save it as UTF-8 CSV and upload it again."
	case KindMalformed:
		return "The file is not a valid CSV or Excel workbook."
	case KindNoDataColumns:
		return "The file needs a region code column followed by at least one data column."
	case KindNoRows:
		return "The file has a header row but no data rows."
	case KindUnsupportedFormat:
		return "Unsupported file type. Upload a .csv or .xlsx file."
	}
	return "The file could not be read."
}

func uploadError(kind ErrorKind, name, detail string, err error) *UploadError {
	return &UploadError{Kind: kind, Name: name, Detail: detail, Err: err}
}
