package linestream

import (
	"io"

	"golang.org/x/text/encoding"
)

// Option configures a Reader or Writer at construction time. Options that
// do not apply to the target are ignored: WithChunkSize only affects
// readers, WithAppend only affects OpenWriter.
type Option func(*config)

// config holds resolved construction settings for readers and writers.
type config struct {
	delimiter    string
	encoding     encoding.Encoding
	encodingName string
	chunkSize    int
	appendMode   bool
	reopen       func() (io.ReadCloser, error)
}

// WithDelimiter sets the record delimiter. The delimiter is encoded once
// with the configured encoding and matched byte-exactly on the encoded
// stream. It must not be empty.
func WithDelimiter(delim string) Option {
	return func(c *config) {
		c.delimiter = delim
	}
}

// WithEncoding sets the character encoding by value, e.g. charmap.Windows1252
// or unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).
func WithEncoding(enc encoding.Encoding) Option {
	return func(c *config) {
		c.encoding = enc
		c.encodingName = ""
	}
}

// WithEncodingName sets the character encoding by IANA name, e.g. "UTF-8",
// "ISO-8859-1" or "windows-1252". Unknown names fail construction.
func WithEncodingName(name string) Option {
	return func(c *config) {
		c.encoding = nil
		c.encodingName = name
	}
}

// WithChunkSize sets how many bytes a Reader requests from the underlying
// stream per refill. It must be positive. The default is DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(c *config) {
		c.chunkSize = size
	}
}

// WithAppend makes OpenWriter append to an existing file instead of
// truncating it.
func WithAppend() Option {
	return func(c *config) {
		c.appendMode = true
	}
}

// WithReopen supplies a hook that reopens the underlying stream from the
// start. Readers use it to Rewind sources that are not io.Seekers, such as
// backend object streams.
func WithReopen(reopen func() (io.ReadCloser, error)) Option {
	return func(c *config) {
		c.reopen = reopen
	}
}

// applyOptions resolves options against the defaults. It validates the
// delimiter and chunk size but leaves encoding resolution to newCodec.
func applyOptions(opts ...Option) (*config, error) {
	c := &config{
		delimiter: DefaultDelimiter,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.delimiter == "" {
		return nil, ErrEmptyDelimiter
	}
	if c.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	return c, nil
}

// StreamWriterOption configures a byte stream created by Backend.NewWriter.
type StreamWriterOption func(*StreamWriterConfig)

// StreamWriterConfig holds configuration for creating a backend writer stream.
type StreamWriterConfig struct {
	// Append opens the target for appending instead of truncating.
	// Backends whose Features report Append false reject it with
	// ErrNotSupported.
	Append bool

	// ContentType is a MIME type hint for the content.
	// Some backends (S3) use this for Content-Type headers.
	ContentType string

	// Metadata is backend-specific metadata.
	// For S3, these become object metadata.
	// For file backend, this is ignored.
	Metadata map[string]string
}

// WithStreamAppend opens the backend stream in append mode.
func WithStreamAppend() StreamWriterOption {
	return func(c *StreamWriterConfig) {
		c.Append = true
	}
}

// WithContentType sets the content type hint.
func WithContentType(contentType string) StreamWriterOption {
	return func(c *StreamWriterConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets backend-specific metadata.
func WithMetadata(metadata map[string]string) StreamWriterOption {
	return func(c *StreamWriterConfig) {
		c.Metadata = metadata
	}
}

// ApplyStreamWriterOptions applies options to a StreamWriterConfig.
func ApplyStreamWriterOptions(opts ...StreamWriterOption) *StreamWriterConfig {
	config := &StreamWriterConfig{}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// StreamReaderOption configures a byte stream created by Backend.NewReader.
type StreamReaderOption func(*StreamReaderConfig)

// StreamReaderConfig holds configuration for creating a backend reader stream.
type StreamReaderConfig struct {
	// Offset is the byte offset to start reading from.
	// Backends whose Features report RangeRead false reject a non-zero
	// offset with ErrNotSupported.
	Offset int64

	// Limit is the maximum number of bytes to read.
	// 0 means no limit.
	Limit int64
}

// WithStreamOffset sets the byte offset to start reading from.
func WithStreamOffset(offset int64) StreamReaderOption {
	return func(c *StreamReaderConfig) {
		c.Offset = offset
	}
}

// WithStreamLimit sets the maximum number of bytes to read.
func WithStreamLimit(limit int64) StreamReaderOption {
	return func(c *StreamReaderConfig) {
		c.Limit = limit
	}
}

// ApplyStreamReaderOptions applies options to a StreamReaderConfig.
func ApplyStreamReaderOptions(opts ...StreamReaderOption) *StreamReaderConfig {
	config := &StreamReaderConfig{}
	for _, opt := range opts {
		opt(config)
	}
	return config
}
