// Package memory provides an in-memory backend for linestream.
//
// The memory backend is useful for:
//   - Unit testing without filesystem access
//   - Temporary storage and caching
//   - Development and prototyping
//
// Data is stored in RAM and lost when the backend is closed or the process exits.
package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grokify/linestream"
)

func init() {
	linestream.Register("memory", NewFromConfig)
}

// object represents a stored object in memory.
type object struct {
	data    []byte
	modTime time.Time
}

// Backend implements linestream.Backend for in-memory storage.
type Backend struct {
	objects map[string]*object
	closed  bool
	mu      sync.RWMutex
}

// New creates a new memory backend.
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// NewFromConfig creates a new memory backend from a config map.
// The memory backend ignores all configuration options.
func NewFromConfig(_ map[string]string) (linestream.Backend, error) {
	return New(), nil
}

// NewWriter creates a writer for the given path. Data is committed to the
// backend when the writer is closed. In append mode the writer starts from
// the existing content.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...linestream.StreamWriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validatePath(p); err != nil {
		return nil, err
	}

	config := linestream.ApplyStreamWriterOptions(opts...)

	normalPath := normalizePath(p)
	buffer := &bytes.Buffer{}

	if config.Append {
		b.mu.RLock()
		if obj, exists := b.objects[normalPath]; exists {
			buffer.Write(obj.data)
		}
		b.mu.RUnlock()
	}

	return &memoryWriter{
		backend: b,
		path:    normalPath,
		buffer:  buffer,
	}, nil
}

// NewReader creates a reader for the given path. The returned reader is
// backed by a bytes.Reader over a snapshot of the content and supports
// io.Seeker.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...linestream.StreamReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validatePath(p); err != nil {
		return nil, err
	}

	normalPath := normalizePath(p)

	b.mu.RLock()
	obj, exists := b.objects[normalPath]
	b.mu.RUnlock()

	if !exists {
		return nil, linestream.ErrNotFound
	}

	config := linestream.ApplyStreamReaderOptions(opts...)

	// Snapshot the data so later writes do not race with this reader
	data := make([]byte, len(obj.data))
	copy(data, obj.data)

	if config.Offset > 0 {
		if config.Offset >= int64(len(data)) {
			data = []byte{}
		} else {
			data = data[config.Offset:]
		}
	}

	if config.Limit > 0 && int64(len(data)) > config.Limit {
		data = data[:config.Limit]
	}

	return &memoryReader{
		reader: bytes.NewReader(data),
	}, nil
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := validatePath(p); err != nil {
		return false, err
	}

	normalPath := normalizePath(p)

	b.mu.RLock()
	_, exists := b.objects[normalPath]
	b.mu.RUnlock()

	return exists, nil
}

// Stat returns metadata for a path.
func (b *Backend) Stat(ctx context.Context, p string) (linestream.FileInfo, error) {
	if err := b.checkClosed(); err != nil {
		return linestream.FileInfo{}, err
	}

	if err := ctx.Err(); err != nil {
		return linestream.FileInfo{}, err
	}

	if err := validatePath(p); err != nil {
		return linestream.FileInfo{}, err
	}

	normalPath := normalizePath(p)

	b.mu.RLock()
	obj, exists := b.objects[normalPath]
	b.mu.RUnlock()

	if !exists {
		return linestream.FileInfo{}, linestream.ErrNotFound
	}

	return linestream.FileInfo{
		Path:    normalPath,
		Size:    int64(len(obj.data)),
		ModTime: obj.modTime,
	}, nil
}

// Delete removes a path.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validatePath(p); err != nil {
		return err
	}

	normalPath := normalizePath(p)

	b.mu.Lock()
	delete(b.objects, normalPath)
	b.mu.Unlock()

	return nil
}

// List lists paths with the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalPrefix := normalizePath(prefix)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var paths []string
	for p := range b.objects {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if normalPrefix == "" || strings.HasPrefix(p, normalPrefix) || strings.HasPrefix(p, normalPrefix+"/") {
			paths = append(paths, p)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Features describes what the memory backend supports.
func (b *Backend) Features() linestream.Features {
	return linestream.Features{
		Append:     true,
		RangeRead:  true,
		Seek:       true,
		ListPrefix: true,
	}
}

// Close releases any resources held by the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.objects = nil
	return nil
}

// Size returns the total size of all objects in the backend.
// This is useful for monitoring memory usage.
func (b *Backend) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	for _, obj := range b.objects {
		total += int64(len(obj.data))
	}
	return total
}

// Count returns the number of objects in the backend.
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.objects)
}

// Clear removes all objects from the backend.
func (b *Backend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects = make(map[string]*object)
}

// checkClosed returns an error if the backend is closed.
func (b *Backend) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return linestream.ErrBackendClosed
	}
	return nil
}

// validatePath checks if a path is valid.
func validatePath(p string) error {
	if p == "" {
		return linestream.ErrInvalidPath
	}

	// Check for path traversal
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, "/../") {
		return linestream.ErrInvalidPath
	}

	return nil
}

// normalizePath normalizes a path for consistent storage.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	// Clean the path
	p = path.Clean(p)
	// Remove leading slash
	p = strings.TrimPrefix(p, "/")
	// path.Clean("") returns ".", convert back to ""
	if p == "." {
		return ""
	}
	return p
}

// memoryWriter implements io.WriteCloser for the memory backend.
type memoryWriter struct {
	backend *Backend
	path    string
	buffer  *bytes.Buffer
	closed  bool
	mu      sync.Mutex
}

func (w *memoryWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, linestream.ErrWriterClosed
	}

	return w.buffer.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	// Commit the data to the backend
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()

	if w.backend.closed {
		return linestream.ErrBackendClosed
	}

	w.backend.objects[w.path] = &object{
		data:    w.buffer.Bytes(),
		modTime: time.Now(),
	}

	return nil
}

// memoryReader implements io.ReadCloser and io.Seeker for the memory backend.
type memoryReader struct {
	reader *bytes.Reader
	closed bool
	mu     sync.Mutex
}

func (r *memoryReader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, linestream.ErrReaderClosed
	}

	return r.reader.Read(p)
}

func (r *memoryReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, linestream.ErrReaderClosed
	}

	return r.reader.Seek(offset, whence)
}

func (r *memoryReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

// Ensure Backend implements linestream.Backend
var _ linestream.Backend = (*Backend)(nil)

// Ensure memory readers are seekable for cheap Rewind
var _ io.Seeker = (*memoryReader)(nil)
