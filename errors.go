package linestream

import (
	"errors"
	"fmt"
	"os"
)

// Common errors returned by linestream readers, writers and backends.
var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("linestream: not found")

	// ErrPermissionDenied is returned when access to a path is denied.
	ErrPermissionDenied = errors.New("linestream: permission denied")

	// ErrBackendClosed is returned when operating on a closed backend.
	ErrBackendClosed = errors.New("linestream: backend closed")

	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("linestream: writer closed")

	// ErrReaderClosed is returned when reading from a closed reader.
	ErrReaderClosed = errors.New("linestream: reader closed")

	// ErrEmptyDelimiter is returned when constructing a reader or writer
	// with an empty record delimiter.
	ErrEmptyDelimiter = errors.New("linestream: empty delimiter")

	// ErrInvalidChunkSize is returned when constructing a reader with a
	// non-positive chunk size.
	ErrInvalidChunkSize = errors.New("linestream: chunk size must be positive")

	// ErrInvalidPath is returned when a path is invalid (e.g., contains forbidden characters).
	ErrInvalidPath = errors.New("linestream: invalid path")

	// ErrNotSupported is returned when an operation is not supported by the
	// stream or backend, such as Rewind on a non-seekable stream with no
	// reopen hook.
	ErrNotSupported = errors.New("linestream: operation not supported")

	// ErrUnknownBackend is returned by Open when the backend name is not registered.
	ErrUnknownBackend = errors.New("linestream: unknown backend")
)

// IsNotFound returns true if the error indicates a path was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionDenied returns true if the error indicates permission was denied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotSupported returns true if the error indicates an unsupported operation.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// DecodeError is returned by Reader.Next when the bytes of a record cannot
// be decoded with the configured encoding. The record's bytes are consumed,
// so the caller may continue with the next record.
type DecodeError struct {
	// Encoding is the name of the configured encoding.
	Encoding string

	// Record is the 1-based index of the record that failed to decode.
	Record int64

	// Err is the underlying transform error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("linestream: decode record %d (%s): %v", e.Record, e.Encoding, e.Err)
	}
	return fmt.Sprintf("linestream: decode record %d: invalid %s", e.Record, e.Encoding)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError is returned by Writer.Write when a record cannot be encoded
// with the configured encoding. Nothing is written and the record count is
// unchanged, so the caller may skip the record and continue.
type EncodeError struct {
	// Encoding is the name of the configured encoding.
	Encoding string

	// Record is the 1-based index the record would have had.
	Record int64

	// Err is the underlying transform error, if any.
	Err error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("linestream: encode record %d (%s): %v", e.Record, e.Encoding, e.Err)
	}
	return fmt.Sprintf("linestream: encode record %d: invalid %s", e.Record, e.Encoding)
}

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error { return e.Err }

// wrapPathError maps an os-level error for path to the sentinel taxonomy,
// wrapping anything unrecognized with the failed operation.
func wrapPathError(op, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	return fmt.Errorf("linestream: %s %s: %w", op, path, err)
}
