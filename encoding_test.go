package linestream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestEncodingLatin1(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithEncodingName("ISO-8859-1"))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write("café"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// é is a single 0xE9 byte in Latin-1.
	want := []byte{'c', 'a', 'f', 0xe9, '\n'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("encoded bytes = % x, want % x", buf.Bytes(), want)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), WithEncodingName("ISO-8859-1"))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rec != "café" {
		t.Errorf("record = %q, want %q", rec, "café")
	}
}

func TestEncodingUTF16LE(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithEncoding(enc))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write("ab"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Two code units plus a two-byte delimiter, no BOM.
	want := []byte{'a', 0x00, 'b', 0x00, '\n', 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("encoded bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestEncodingUTF16RoundTrip(t *testing.T) {
	records := []string{"héllo", "日本語", "", "mixed ascii päth"}

	for _, endian := range []unicode.Endianness{unicode.LittleEndian, unicode.BigEndian} {
		enc := unicode.UTF16(endian, unicode.IgnoreBOM)

		var buf bytes.Buffer
		w, err := NewWriter(&buf, WithEncoding(enc))
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		if err := w.WriteAll(records); err != nil {
			t.Fatalf("WriteAll failed: %v", err)
		}

		// A chunk size that misaligns refills with the two-byte code
		// units must not affect framing.
		r, err := NewReader(bytes.NewReader(buf.Bytes()), WithEncoding(enc), WithChunkSize(3))
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}

		got, err := r.ReadAll()
		_ = r.Close()
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
}

func TestEncodingUTF16MultiByteDelimiter(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithEncoding(enc), WithDelimiter("\r\n"))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	_ = w.Write("a")
	_ = w.Write("b")

	r, err := NewReader(bytes.NewReader(buf.Bytes()), WithEncoding(enc), WithDelimiter("\r\n"))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 2 || records[0] != "a" || records[1] != "b" {
		t.Errorf("ReadAll = %q, want [a b]", records)
	}
}

func TestEncodingNameFastPath(t *testing.T) {
	// Both spellings of UTF-8 select the validating fast path, which
	// reports itself as UTF-8 in decode errors.
	for _, name := range []string{"UTF-8", "utf-8", "utf8"} {
		r, err := NewReader(strings.NewReader(string([]byte{0xff})+"\n"), WithEncodingName(name))
		if err != nil {
			t.Fatalf("NewReader(%q) failed: %v", name, err)
		}

		_, err = r.Next()
		_ = r.Close()

		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("Next error = %v, want *DecodeError", err)
		}
		if decErr.Encoding != "UTF-8" {
			t.Errorf("DecodeError.Encoding = %q, want UTF-8", decErr.Encoding)
		}
	}
}

func TestEncodingNamedInError(t *testing.T) {
	// Decode errors carry the configured encoding name.
	r, err := NewReader(strings.NewReader("x\n"), WithEncodingName("windows-1252"))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if rec != "x" {
		t.Errorf("record = %q, want %q", rec, "x")
	}
}

func TestEncodingUnknownName(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), WithEncodingName("klingon-9"))
	if err == nil {
		t.Fatal("unknown encoding name should fail construction")
	}
	if !strings.Contains(err.Error(), "klingon-9") {
		t.Errorf("error %q should name the unknown encoding", err)
	}
}

func TestEncodeRejectsInvalidUTF8Input(t *testing.T) {
	// Record text must be valid UTF-8 regardless of the target encoding.
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithEncoding(enc))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	err = w.Write(string([]byte{0x80, 0x81}))
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("Write error = %v, want *EncodeError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("destination received %d bytes, want 0", buf.Len())
	}
}
