package zstd

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/grokify/linestream"
)

func TestWriterBasic(t *testing.T) {
	buf := newMemWriteCloser()

	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	data := []byte("hello zstd world")
	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if buf.Len() == 0 {
		t.Error("No compressed data written")
	}
	if !buf.closed {
		t.Error("Underlying writer not closed")
	}
}

func TestWriterLevels(t *testing.T) {
	levels := []CompressionLevel{
		SpeedFastest,
		SpeedDefault,
		SpeedBetterCompression,
		SpeedBestCompression,
	}

	data := []byte(strings.Repeat("test data for compression level testing ", 100))

	for _, level := range levels {
		t.Run(level.toZstdLevel().String(), func(t *testing.T) {
			buf := newMemWriteCloser()

			w, err := NewWriterLevel(buf, level)
			if err != nil {
				t.Fatalf("NewWriterLevel failed: %v", err)
			}
			if _, err := w.Write(data); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			got := decompress(t, buf.Bytes())
			if !bytes.Equal(got, data) {
				t.Error("Decompressed data doesn't match original")
			}
		})
	}
}

func TestLevelConversion(t *testing.T) {
	tests := []struct {
		level    CompressionLevel
		expected zstd.EncoderLevel
	}{
		{SpeedFastest, zstd.SpeedFastest},
		{SpeedDefault, zstd.SpeedDefault},
		{SpeedBetterCompression, zstd.SpeedBetterCompression},
		{SpeedBestCompression, zstd.SpeedBestCompression},
		{CompressionLevel(999), zstd.SpeedDefault},
	}

	for _, tt := range tests {
		result := tt.level.toZstdLevel()
		if result != tt.expected {
			t.Errorf("Level %d: got %v, want %v", tt.level, result, tt.expected)
		}
	}
}

func TestWriterFlush(t *testing.T) {
	buf := newMemWriteCloser()

	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if _, err := w.Write([]byte("visible after flush")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if buf.Len() == 0 {
		t.Error("Flush wrote nothing to the destination")
	}

	_ = w.Close()
}

func TestWriterClosed(t *testing.T) {
	buf := newMemWriteCloser()

	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = w.Write([]byte("test"))
	if err != io.ErrClosedPipe {
		t.Errorf("Write after Close error = %v, want io.ErrClosedPipe", err)
	}

	err = w.Flush()
	if err != io.ErrClosedPipe {
		t.Errorf("Flush after Close error = %v, want io.ErrClosedPipe", err)
	}

	// Double close should be idempotent
	if err := w.Close(); err != nil {
		t.Errorf("Double Close error = %v, want nil", err)
	}
}

func TestWriterWithOptions(t *testing.T) {
	buf := newMemWriteCloser()

	w, err := NewWriterWithOptions(buf,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		t.Fatalf("NewWriterWithOptions failed: %v", err)
	}

	data := []byte("test with custom options")
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := decompress(t, buf.Bytes())
	if !bytes.Equal(got, data) {
		t.Error("Decompressed data doesn't match original")
	}
}

func TestReaderBasic(t *testing.T) {
	data := []byte("hello zstd reader world")
	compressed := compress(t, data)

	src := newMemReadCloser(compressed)
	r, err := NewReader(src)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !bytes.Equal(decompressed, data) {
		t.Errorf("Decompressed = %q, want %q", decompressed, data)
	}
	if !src.closed {
		t.Error("Underlying reader not closed")
	}
}

func TestReaderWithOptions(t *testing.T) {
	data := []byte("test with reader options")
	compressed := compress(t, data)

	r, err := NewReaderWithOptions(newMemReadCloser(compressed),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(1024*1024),
	)
	if err != nil {
		t.Fatalf("NewReaderWithOptions failed: %v", err)
	}

	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	_ = r.Close()

	if !bytes.Equal(decompressed, data) {
		t.Error("Decompressed data doesn't match original")
	}
}

func TestReaderClosed(t *testing.T) {
	compressed := compress(t, []byte("test"))

	r, err := NewReader(newMemReadCloser(compressed))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	_ = r.Close()

	_, err = r.Read(make([]byte, 10))
	if err != io.ErrClosedPipe {
		t.Errorf("Read after Close error = %v, want io.ErrClosedPipe", err)
	}

	// Double close should be idempotent
	if err := r.Close(); err != nil {
		t.Errorf("Double Close error = %v, want nil", err)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"small", []byte("hello")},
		{"medium", []byte(strings.Repeat("test data ", 1000))},
		{"large", bytes.Repeat([]byte("x"), 1024*1024)},
		{"binary", func() []byte {
			b := make([]byte, 256)
			for i := range b {
				b[i] = byte(i)
			}
			return b
		}()},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			compressed := compress(t, tt.data)
			got := decompress(t, compressed)
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip got %d bytes, want %d", len(got), len(tt.data))
			}
		})
	}
}

func TestCompressionShrinksRepeatedData(t *testing.T) {
	data := []byte(strings.Repeat("abcdefghij", 10000))

	buf := newMemWriteCloser()
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ratio := float64(buf.Len()) / float64(len(data))
	if ratio > 0.1 {
		t.Errorf("Compression ratio %.2f%% is worse than expected for repeated data", ratio*100)
	}
}

func TestRecordsThroughZstd(t *testing.T) {
	buf := newMemWriteCloser()

	zw, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w, err := linestream.NewWriter(zw)
	if err != nil {
		t.Fatalf("linestream.NewWriter failed: %v", err)
	}

	records := []string{"first record", "second record", "", "fourth after an empty one"}
	if err := w.WriteAll(records); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !buf.closed {
		t.Error("Underlying writer not closed")
	}

	zr, err := NewReader(newMemReadCloser(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	r, err := linestream.NewReader(zr)
	if err != nil {
		t.Fatalf("linestream.NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("ReadAll returned %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], records[i])
		}
	}
}

// compress zstd-compresses data with the default level.
func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := newMemWriteCloser()
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("compress: NewWriter failed: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress: Close failed: %v", err)
	}
	return buf.Bytes()
}

// decompress zstd-decompresses data.
func decompress(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := NewReader(newMemReadCloser(data))
	if err != nil {
		t.Fatalf("decompress: NewReader failed: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompress: ReadAll failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("decompress: Close failed: %v", err)
	}
	return out
}

func BenchmarkCompress(b *testing.B) {
	data := []byte(strings.Repeat("benchmark test data ", 10000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := newMemWriteCloser()
		w, _ := NewWriter(buf)
		_, _ = w.Write(data)
		_ = w.Close()
	}
}

func BenchmarkDecompress(b *testing.B) {
	data := []byte(strings.Repeat("benchmark test data ", 10000))
	compressed := func() []byte {
		buf := newMemWriteCloser()
		w, _ := NewWriter(buf)
		_, _ = w.Write(data)
		_ = w.Close()
		return buf.Bytes()
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, _ := NewReader(newMemReadCloser(compressed))
		_, _ = io.ReadAll(r)
		_ = r.Close()
	}
}

// memWriteCloser is an in-memory io.WriteCloser recording whether it was closed.
type memWriteCloser struct {
	bytes.Buffer
	closed bool
}

func newMemWriteCloser() *memWriteCloser {
	return &memWriteCloser{}
}

func (w *memWriteCloser) Close() error {
	w.closed = true
	return nil
}

// memReadCloser is an in-memory io.ReadCloser recording whether it was closed.
type memReadCloser struct {
	*bytes.Reader
	closed bool
}

func newMemReadCloser(data []byte) *memReadCloser {
	return &memReadCloser{Reader: bytes.NewReader(data)}
}

func (r *memReadCloser) Close() error {
	r.closed = true
	return nil
}
