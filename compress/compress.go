// Package compress selects a compression codec from a file name so record
// streams can move through compressed flat files without the caller naming
// the codec.
//
// Reading records out of a gzipped log:
//
//	f, _ := os.Open("access.log.gz")
//	cr, _ := compress.WrapReader("access.log.gz", f)
//	reader, _ := linestream.NewReader(cr)
//	for record, err := range reader.All() {
//	    // ...
//	}
package compress

import (
	"io"
	"path"
	"strings"

	"github.com/grokify/linestream/compress/gzip"
	"github.com/grokify/linestream/compress/zstd"
)

// Codec pairs reader and writer constructors for one compression format.
type Codec struct {
	// Name identifies the codec ("gzip", "zstd").
	Name string

	// NewReader wraps r with a decompressing reader.
	NewReader func(r io.ReadCloser) (io.ReadCloser, error)

	// NewWriter wraps w with a compressing writer.
	NewWriter func(w io.WriteCloser) (io.WriteCloser, error)
}

var codecs = map[string]Codec{
	".gz": {
		Name: "gzip",
		NewReader: func(r io.ReadCloser) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
		NewWriter: func(w io.WriteCloser) (io.WriteCloser, error) {
			return gzip.NewWriter(w)
		},
	},
	".zst": {
		Name: "zstd",
		NewReader: func(r io.ReadCloser) (io.ReadCloser, error) {
			return zstd.NewReader(r)
		},
		NewWriter: func(w io.WriteCloser) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
	},
}

func init() {
	// .zstd is a common alternate spelling.
	codecs[".zstd"] = codecs[".zst"]
}

// ByExt returns the codec matching the file name's extension.
// The second return is false when the extension names no known codec.
func ByExt(name string) (Codec, bool) {
	c, ok := codecs[strings.ToLower(path.Ext(name))]
	return c, ok
}

// Extensions returns the file extensions with a registered codec.
func Extensions() []string {
	exts := make([]string, 0, len(codecs))
	for ext := range codecs {
		exts = append(exts, ext)
	}
	return exts
}

// WrapReader wraps r with the codec matching name's extension. When the
// extension names no codec, r is returned unchanged.
func WrapReader(name string, r io.ReadCloser) (io.ReadCloser, error) {
	c, ok := ByExt(name)
	if !ok {
		return r, nil
	}
	return c.NewReader(r)
}

// WrapWriter wraps w with the codec matching name's extension. When the
// extension names no codec, w is returned unchanged.
func WrapWriter(name string, w io.WriteCloser) (io.WriteCloser, error) {
	c, ok := ByExt(name)
	if !ok {
		return w, nil
	}
	return c.NewWriter(w)
}
