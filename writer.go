package linestream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer appends delimiter-terminated records to an underlying byte stream.
//
// Writes are unbuffered: every successful Write hands the encoded record
// and its delimiter straight to the destination, so readers tailing the
// stream observe records as they are written. A Writer owns its destination
// exclusively: if the destination implements io.Closer it is closed by
// Close. The zero value is not usable; construct with NewWriter or
// OpenWriter.
type Writer struct {
	mu      sync.Mutex
	dst     io.Writer
	closer  io.Closer
	cod     *codec
	delim   []byte
	written int64
	closed  bool
}

// NewWriter wraps an existing byte stream. If dst implements io.Closer,
// Close closes it. Construction fails on an empty delimiter, an unknown
// encoding, or a delimiter the encoding cannot represent.
func NewWriter(dst io.Writer, opts ...Option) (*Writer, error) {
	if dst == nil {
		return nil, errors.New("linestream: nil destination writer")
	}
	cfg, err := applyOptions(opts...)
	if err != nil {
		return nil, err
	}
	cod, err := newCodec(cfg.encoding, cfg.encodingName)
	if err != nil {
		return nil, err
	}
	delim, err := cod.encodeLiteral(cfg.delimiter)
	if err != nil {
		return nil, fmt.Errorf("linestream: delimiter not encodable as %s: %w", cod.name, err)
	}
	if len(delim) == 0 {
		return nil, ErrEmptyDelimiter
	}
	w := &Writer{
		dst:   dst,
		cod:   cod,
		delim: delim,
	}
	if c, ok := dst.(io.Closer); ok {
		w.closer = c
	}
	return w, nil
}

// OpenWriter opens a local file for writing records. The file is created if
// missing and truncated unless WithAppend is given. Parent directories are
// not created.
func OpenWriter(path string, opts ...Option) (*Writer, error) {
	cfg, err := applyOptions(opts...)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if cfg.appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, wrapPathError("open", path, err)
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Write encodes one record and appends it followed by the delimiter. The
// record must not contain the delimiter; it is written as-is, so a record
// containing delimiter bytes changes how the stream reads back. A
// *EncodeError rejects the record whole: nothing reaches the destination
// and Written is unchanged.
func (w *Writer) Write(record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	b, err := w.cod.encode(record, w.written+1)
	if err != nil {
		return err
	}
	if _, err := w.dst.Write(b); err != nil {
		return err
	}
	if _, err := w.dst.Write(w.delim); err != nil {
		return err
	}
	w.written++
	return nil
}

// WriteAll writes records in order, stopping at the first failure.
func (w *Writer) WriteAll(records []string) error {
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Written reports how many records have been written successfully since the
// writer was constructed.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close closes the underlying stream if it is an io.Closer. Close is
// idempotent; after the first call Write returns ErrWriterClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.dst = nil
	if w.closer != nil {
		c := w.closer
		w.closer = nil
		return c.Close()
	}
	return nil
}
