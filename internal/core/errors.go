package core

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors returned by intake, staging and corrections.
var (
	// ErrUnsupportedUpload rejects file extensions or content types outside the allow-list.
	ErrUnsupportedUpload = errors.New("unsupported file type")

	// ErrFileTooLarge rejects payloads above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrTooManyUploads is returned when every import slot stays busy for the
	// whole wait period. Clients should retry after a short delay.
	ErrTooManyUploads = errors.New("too many concurrent imports, please try again later")

	// ErrBatchNotFound means the session has no staged batch, or the handle
	// refers to a batch that a newer upload replaced.
	ErrBatchNotFound = errors.New("no staged batch for this session")

	// ErrUnknownRow is returned for corrections addressed to a row the batch does not have.
	ErrUnknownRow = errors.New("correction refers to an unknown row")

	// ErrUnknownField is returned for corrections naming a field that is not a question field.
	ErrUnknownField = errors.New("correction refers to an unknown field")
)

// FormatError means the payload has no parseable header or delimiter.
// The whole file is rejected and nothing is staged.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "unrecognized file format: " + e.Reason
}

// EncodingError means the payload bytes are not decodable as text.
type EncodingError struct {
	Charset string
	Offset  int
	Err     error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot decode file as %s at byte %d: %v", e.Charset, e.Offset, e.Err)
	}
	return fmt.Sprintf("cannot decode file as %s at byte %d", e.Charset, e.Offset)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// StorageError is a per-row persistence failure.
type StorageError struct {
	Row int
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("row %d: storage: %v", e.Row, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError carries the failing fields of one row.
type ValidationError struct {
	Row    int
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: invalid %v", e.Row, e.Fields.Names())
}

// FieldErrors maps a field name to its message.
type FieldErrors map[string]string

// Names returns the failing fields, known fields first in validation order.
func (fe FieldErrors) Names() []string {
	names := make([]string, 0, len(fe))
	seen := make(map[string]bool, len(fe))
	for _, f := range validationOrder {
		if _, ok := fe[f]; ok {
			names = append(names, f)
			seen[f] = true
		}
	}
	for _, f := range KnownFields {
		if _, ok := fe[f]; ok && !seen[f] {
			names = append(names, f)
			seen[f] = true
		}
	}
	var rest []string
	for f := range fe {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
