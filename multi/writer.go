// Package multi provides fan-out writing of one record stream to several
// sinks simultaneously.
//
// A multi-writer replicates every record to all of its sinks, useful for:
//   - Replicating a stream to local disk and S3 at once
//   - Keeping a hot copy while archiving
//   - Testing against multiple backends
//
// Example usage:
//
//	local, _ := linestream.OpenBackendWriter(ctx, localBackend, "events.log")
//	remote, _ := linestream.OpenBackendWriter(ctx, s3Backend, "events.log")
//
//	mw, _ := multi.NewWriter([]linestream.RecordWriter{local, remote})
//	mw.Write("first record")
//	mw.Close()
package multi

import (
	"context"
	"errors"
	"sync"

	"github.com/grokify/linestream"
)

// WriteMode determines how the multi-writer handles sink failures.
type WriteMode int

const (
	// WriteAll requires every sink to accept each record.
	// If any sink fails, the write fails.
	WriteAll WriteMode = iota

	// WriteBestEffort keeps writing as long as at least one sink accepts
	// the record. Errors are collected and returned alongside success.
	WriteBestEffort

	// WriteQuorum requires a majority of sinks to accept each record.
	WriteQuorum
)

var errQuorum = errors.New("multi: write quorum not achieved")

// Writer fans records out to several sinks.
//
// Every Write is attempted on all sinks; the mode decides whether the
// record counts as written. Under WriteAll a failed write may still have
// reached some sinks, so diverged files should be re-verified after a
// failure (pipeline.Verify does this record by record).
type Writer struct {
	sinks   []linestream.RecordWriter
	mode    WriteMode
	written int64
	closed  bool
	mu      sync.Mutex
}

// Option configures a multi-writer.
type Option func(*Writer)

// WithMode sets the write mode. Default is WriteAll.
func WithMode(mode WriteMode) Option {
	return func(w *Writer) {
		w.mode = mode
	}
}

// NewWriter creates a multi-writer fanning out to the given sinks.
// Nil sinks are dropped; at least one real sink must remain.
func NewWriter(sinks []linestream.RecordWriter, opts ...Option) (*Writer, error) {
	valid := make([]linestream.RecordWriter, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("multi: at least one sink is required")
	}

	w := &Writer{
		sinks: valid,
		mode:  WriteAll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OpenBackendWriters opens a record writer on every backend at the same
// path and fans records out to all of them. The mode also governs open
// failures: WriteAll fails when any backend cannot be opened,
// WriteBestEffort needs one open to succeed, WriteQuorum a majority.
// Framing options apply to every sink.
func OpenBackendWriters(ctx context.Context, backends []linestream.Backend, path string, mode WriteMode, opts ...linestream.Option) (*Writer, error) {
	var sinks []linestream.RecordWriter
	var errs []error

	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	for _, b := range backends {
		sink, err := linestream.OpenBackendWriter(ctx, b, path, opts...)
		if err != nil {
			errs = append(errs, err)
			if mode == WriteAll {
				closeAll()
				return nil, &MultiError{Errors: errs}
			}
			continue
		}
		sinks = append(sinks, sink)
	}

	if mode == WriteQuorum && len(sinks) <= len(backends)/2 {
		closeAll()
		return nil, &MultiError{Errors: append(errs, errQuorum)}
	}
	if len(sinks) == 0 {
		return nil, &MultiError{Errors: errs}
	}

	return NewWriter(sinks, WithMode(mode))
}

// Write fans one record out to every sink.
func (w *Writer) Write(record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return linestream.ErrWriterClosed
	}

	var errs []error
	success := 0
	for _, s := range w.sinks {
		if err := s.Write(record); err != nil {
			errs = append(errs, err)
			continue
		}
		success++
	}

	if err := w.outcome(success, errs); err != nil {
		return err
	}
	w.written++
	return nil
}

// outcome applies the write mode to one fan-out round.
func (w *Writer) outcome(success int, errs []error) error {
	switch w.mode {
	case WriteQuorum:
		if success <= len(w.sinks)/2 {
			return &MultiError{Errors: append(errs, errQuorum)}
		}
	case WriteBestEffort:
		if success == 0 {
			return &MultiError{Errors: errs}
		}
	default: // WriteAll
		if len(errs) > 0 {
			return &MultiError{Errors: errs}
		}
	}
	return nil
}

// Written returns the number of records accepted under the write mode.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Sinks returns the number of sinks.
func (w *Writer) Sinks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sinks)
}

// Close closes all sinks. It is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, s := range w.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// MultiError represents multiple errors from fan-out operations.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return e.Errors[0].Error() + " (and more errors)"
}

// Unwrap returns the first error for errors.Is/As compatibility.
func (e *MultiError) Unwrap() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// All returns all errors.
func (e *MultiError) All() []error {
	return e.Errors
}

// Ensure Writer implements linestream.RecordWriter
var _ linestream.RecordWriter = (*Writer)(nil)
