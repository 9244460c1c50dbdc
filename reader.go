// Package linestream provides line-oriented streaming access to flat files.
//
// A Reader lazily yields successive delimiter-separated records from a byte
// stream without loading the whole stream into memory; a Writer appends
// delimiter-terminated records incrementally. Delimiters are matched
// byte-exactly on the encoded stream, and record text is converted with a
// configurable character encoding (UTF-8 by default).
//
// Basic usage:
//
//	r, _ := linestream.OpenReader("access.log")
//	defer r.Close()
//	for rec, err := range r.All() {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(rec)
//	}
//
// Streams stored in S3, over SFTP or in memory are reached through the
// Backend interface and the backend registry; see OpenBackendReader.
package linestream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/valyala/bytebufferpool"
)

const (
	// DefaultChunkSize is the number of bytes a Reader requests from the
	// underlying stream per refill.
	DefaultChunkSize = 4096

	// DefaultDelimiter is the record delimiter used unless WithDelimiter
	// overrides it.
	DefaultDelimiter = "\n"
)

// maxConsecutiveEmptyReads bounds tolerance for sources that return
// (0, nil), mirroring bufio.
const maxConsecutiveEmptyReads = 100

// Reader streams delimiter-separated records from an underlying byte stream.
//
// A Reader owns its source exclusively: if the source implements io.Closer
// it is closed by Close. The zero value is not usable; construct with
// NewReader or OpenReader.
type Reader struct {
	mu     sync.Mutex
	src    io.Reader
	closer io.Closer
	reopen func() (io.ReadCloser, error)

	cod       *codec
	delim     []byte
	chunkSize int

	buf     *bytebufferpool.ByteBuffer
	start   int // front of the unconsumed window within buf.B
	scanned int // window prefix already searched for the delimiter
	eof     bool
	n       int64 // records consumed since open or Rewind
	closed  bool
}

// NewReader wraps an existing byte stream. If src implements io.Closer,
// Close closes it. Construction fails on an empty delimiter, a non-positive
// chunk size, an unknown encoding, or a delimiter the encoding cannot
// represent; no resource is retained on failure.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	if src == nil {
		return nil, errors.New("linestream: nil source reader")
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
	r := &Reader{
		src:       src,
		reopen:    cfg.reopen,
		cod:       cod,
		delim:     delim,
		chunkSize: cfg.chunkSize,
		buf:       bytebufferpool.Get(),
	}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// OpenReader opens a local file for reading records. Rewind uses a seek on
// the open file, so it never reopens the path.
func OpenReader(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapPathError("open", path, err)
	}
	r, err := NewReader(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next record, decoded to text. It returns io.EOF once the
// stream is exhausted; a stream whose final record lacks a trailing
// delimiter still yields that record before io.EOF. Decode failures return
// a *DecodeError; the failed record's bytes are consumed, so the caller may
// continue with the following record.
func (r *Reader) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next()
}

func (r *Reader) next() (string, error) {
	if r.closed {
		return "", ErrReaderClosed
	}
	for {
		w := r.window()
		if i := bytes.Index(w[r.scanned:], r.delim); i >= 0 {
			end := r.scanned + i
			r.n++
			s, err := r.cod.decode(w[:end], r.n)
			r.discard(end + len(r.delim))
			if err != nil {
				return "", err
			}
			return s, nil
		}
		if r.eof {
			if len(w) == 0 {
				return "", io.EOF
			}
			r.n++
			s, err := r.cod.decode(w, r.n)
			r.discard(len(w))
			if err != nil {
				return "", err
			}
			return s, nil
		}
		// All but the last len(delim)-1 bytes cannot start a match;
		// skip them when the search resumes after the refill.
		if keep := len(r.delim) - 1; len(w) > keep {
			r.scanned = len(w) - keep
		}
		if err := r.fill(); err != nil {
			return "", err
		}
	}
}

// window returns the buffered bytes not yet classified into a record.
func (r *Reader) window() []byte {
	return r.buf.B[r.start:]
}

// discard drops n bytes from the front of the window.
func (r *Reader) discard(n int) {
	r.start += n
	r.scanned = 0
	if r.start == len(r.buf.B) {
		r.buf.Reset()
		r.start = 0
	}
}

// fill reads up to one chunk from the source into the buffer, compacting or
// growing it as needed. On end of stream it sets r.eof and returns nil; the
// caller decides whether buffered bytes form a final record.
func (r *Reader) fill() error {
	b := r.buf.B
	if cap(b)-len(b) < r.chunkSize {
		if r.start > 0 {
			n := copy(b, b[r.start:])
			b = b[:n]
			r.start = 0
		}
		if cap(b)-len(b) < r.chunkSize {
			grown := make([]byte, len(b), 2*cap(b)+r.chunkSize)
			copy(grown, b)
			b = grown
		}
		r.buf.B = b
	}
	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		n, err := r.src.Read(b[len(b) : len(b)+r.chunkSize])
		r.buf.B = b[:len(b)+n]
		if err == io.EOF {
			r.eof = true
			return nil
		}
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	return io.ErrNoProgress
}

// Rewind resets the reader to the start of the stream so the record
// sequence replays from the beginning. Sources that implement io.Seeker are
// seeked in place; otherwise the reopen hook installed with WithReopen is
// used. Returns ErrNotSupported when neither is available.
func (r *Reader) Rewind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReaderClosed
	}
	if s, ok := r.src.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("linestream: rewind: %w", err)
		}
	} else if r.reopen != nil {
		rc, err := r.reopen()
		if err != nil {
			return fmt.Errorf("linestream: rewind: %w", err)
		}
		if r.closer != nil {
			_ = r.closer.Close()
		}
		r.src = rc
		r.closer = rc
	} else {
		return ErrNotSupported
	}
	r.buf.Reset()
	r.start = 0
	r.scanned = 0
	r.eof = false
	r.n = 0
	return nil
}

// Close releases the buffer and closes the underlying stream if it is an
// io.Closer. Close is idempotent; after the first call all other methods
// return ErrReaderClosed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.buf != nil {
		bytebufferpool.Put(r.buf)
		r.buf = nil
	}
	r.src = nil
	if r.closer != nil {
		c := r.closer
		r.closer = nil
		return c.Close()
	}
	return nil
}

// All returns a lazy sequence of records for use with range. Iteration
// stops after the first error; io.EOF is absorbed as normal termination.
// The sequence does not close the reader and may be ranged again after
// Rewind.
func (r *Reader) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ReadAll reads every remaining record into memory. It returns the records
// read so far alongside the first error encountered; exhausting the stream
// is not an error.
func (r *Reader) ReadAll() ([]string, error) {
	var records []string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
