package linestream

import (
	"context"
	"io"
)

// Backend represents a byte-stream store (local directory, S3 bucket, SFTP
// host, memory). Implementations handle raw byte transport; record framing
// and encoding stay in Reader and Writer, which are composed on top with
// OpenBackendReader and OpenBackendWriter.
//
// Backends are safe for concurrent use by multiple goroutines.
// All methods accept a context.Context for cancellation and timeouts.
type Backend interface {
	// NewWriter creates a byte stream writing to the given path/key.
	// The returned writer must be closed to flush and release resources.
	//
	// The path format depends on the backend:
	//   - file backend: relative path from root
	//   - S3 backend: object key
	//   - etc.
	NewWriter(ctx context.Context, path string, opts ...StreamWriterOption) (io.WriteCloser, error)

	// NewReader creates a byte stream reading from the given path/key.
	// Returns ErrNotFound if the path does not exist.
	// The returned reader must be closed after use.
	NewReader(ctx context.Context, path string, opts ...StreamReaderOption) (io.ReadCloser, error)

	// Exists checks if a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns metadata for a path.
	// Returns ErrNotFound if the path does not exist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List lists paths with the given prefix.
	// Returns an empty slice if no paths match.
	// The returned paths are relative to the backend root.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a path.
	// Returns nil if the path does not exist (idempotent).
	Delete(ctx context.Context, path string) error

	// Features describes what this backend supports.
	Features() Features

	// Close releases any resources held by the backend.
	// After Close, all other methods return ErrBackendClosed.
	Close() error
}

// RecordWriter is the record-level write contract. *Writer implements it,
// as does multi.Writer for fan-out across several sinks.
type RecordWriter interface {
	// Write appends a single record. The record should not contain the
	// delimiter.
	Write(record string) error

	// Close releases the underlying stream. After Close, Write fails.
	Close() error
}

var _ RecordWriter = (*Writer)(nil)

// OpenBackendReader opens path on b and wraps the stream in a record
// Reader. A reopen hook is installed so Rewind works even when the backend
// stream is not seekable; the hook reuses ctx, so it must stay valid for
// the life of the reader.
func OpenBackendReader(ctx context.Context, b Backend, path string, opts ...Option) (*Reader, error) {
	rc, err := b.NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	reopen := func() (io.ReadCloser, error) {
		return b.NewReader(ctx, path)
	}
	r, err := NewReader(rc, append(opts, WithReopen(reopen))...)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return r, nil
}

// OpenBackendWriter opens path on b and wraps the stream in a record
// Writer. WithAppend is translated to the backend's append mode; backends
// without append support reject it with ErrNotSupported.
func OpenBackendWriter(ctx context.Context, b Backend, path string, opts ...Option) (*Writer, error) {
	cfg, err := applyOptions(opts...)
	if err != nil {
		return nil, err
	}
	var streamOpts []StreamWriterOption
	if cfg.appendMode {
		streamOpts = append(streamOpts, WithStreamAppend())
	}
	wc, err := b.NewWriter(ctx, path, streamOpts...)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(wc, opts...)
	if err != nil {
		_ = wc.Close()
		return nil, err
	}
	return w, nil
}
