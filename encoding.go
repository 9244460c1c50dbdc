package linestream

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// encodingUTF8 is the name reported for the default validating UTF-8 path.
const encodingUTF8 = "UTF-8"

// codec converts record text to and from the configured character encoding.
// A nil enc means the validating UTF-8 fast path, which never allocates a
// transformer. Codecs are not safe for concurrent use; each Reader and
// Writer owns its own.
type codec struct {
	name    string
	enc     encoding.Encoding
	decoder *encoding.Decoder
	encoder *encoding.Encoder
}

// newCodec resolves an encoding selected by value or by IANA name. Both nil
// and UTF-8 select the fast path. Returns an error for names that are
// unknown or that x/text has no implementation for.
func newCodec(enc encoding.Encoding, name string) (*codec, error) {
	if enc == nil && name != "" {
		if isUTF8Name(name) {
			return &codec{name: encodingUTF8}, nil
		}
		e, err := ianaindex.IANA.Encoding(name)
		if err != nil {
			return nil, fmt.Errorf("linestream: unknown encoding %q: %w", name, err)
		}
		if e == nil {
			return nil, fmt.Errorf("linestream: unsupported encoding %q", name)
		}
		enc = e
	}
	if enc == nil || enc == unicode.UTF8 {
		return &codec{name: encodingUTF8}, nil
	}
	if name == "" {
		name = encodingName(enc)
	}
	return &codec{
		name:    name,
		enc:     enc,
		decoder: enc.NewDecoder(),
		encoder: enc.NewEncoder(),
	}, nil
}

// encodingName finds a printable name for an encoding selected by value.
func encodingName(enc encoding.Encoding) string {
	if n, err := ianaindex.IANA.Name(enc); err == nil && n != "" {
		return n
	}
	if s, ok := enc.(fmt.Stringer); ok {
		return s.String()
	}
	return "custom"
}

func isUTF8Name(name string) bool {
	return strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8")
}

// decode converts the raw bytes of one record to text. rec is the 1-based
// record index used in error reporting.
func (c *codec) decode(b []byte, rec int64) (string, error) {
	if c.enc == nil {
		if !utf8.Valid(b) {
			return "", &DecodeError{Encoding: c.name, Record: rec}
		}
		return string(b), nil
	}
	out, err := c.decoder.Bytes(b)
	if err != nil {
		return "", &DecodeError{Encoding: c.name, Record: rec, Err: err}
	}
	return string(out), nil
}

// encode converts one record of text to raw bytes. rec is the 1-based
// record index used in error reporting.
func (c *codec) encode(s string, rec int64) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, &EncodeError{Encoding: c.name, Record: rec, Err: encoding.ErrInvalidUTF8}
	}
	if c.enc == nil {
		return []byte(s), nil
	}
	b, err := c.encoder.Bytes([]byte(s))
	if err != nil {
		return nil, &EncodeError{Encoding: c.name, Record: rec, Err: err}
	}
	return b, nil
}

// encodeLiteral converts fixed text such as the record delimiter. Unlike
// encode it reports a plain error, suitable for wrapping as a construction
// failure.
func (c *codec) encodeLiteral(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, encoding.ErrInvalidUTF8
	}
	if c.enc == nil {
		return []byte(s), nil
	}
	return c.encoder.Bytes([]byte(s))
}
