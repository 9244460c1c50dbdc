package channel

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grokify/linestream"
)

func TestNew(t *testing.T) {
	backend := New()

	if backend == nil {
		t.Fatal("New() returned nil")
	}

	if backend.bufferSize != 100 {
		t.Errorf("Default buffer size = %d, want 100", backend.bufferSize)
	}

	if backend.persistent {
		t.Error("Default persistent should be false")
	}
}

func TestNewWithOptions(t *testing.T) {
	backend := New(
		WithBufferSize(50),
		WithPersistence(true),
	)

	if backend.bufferSize != 50 {
		t.Errorf("Buffer size = %d, want 50", backend.bufferSize)
	}

	if !backend.persistent {
		t.Error("Persistent should be true")
	}
}

func TestNewFromConfig(t *testing.T) {
	config := map[string]string{
		"buffer_size": "200",
		"persistent":  "true",
	}

	b, err := NewFromConfig(config)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	backend := b.(*Backend)

	if backend.bufferSize != 200 {
		t.Errorf("Buffer size = %d, want 200", backend.bufferSize)
	}

	if !backend.persistent {
		t.Error("Persistent should be true")
	}
}

func TestNewFromConfigIgnoresInvalid(t *testing.T) {
	b, err := NewFromConfig(map[string]string{
		"buffer_size": "not-a-number",
		"persistent":  "maybe",
	})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	backend := b.(*Backend)

	if backend.bufferSize != 100 {
		t.Errorf("Buffer size = %d, want default 100", backend.bufferSize)
	}
	if backend.persistent {
		t.Error("Persistent should stay false for unrecognized value")
	}
}

func TestWriteAndRead(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Start reader in goroutine
	done := make(chan struct{})
	var readData []byte
	var readErr error

	go func() {
		defer close(done)
		r, err := backend.NewReader(ctx, "test/path")
		if err != nil {
			readErr = err
			return
		}
		defer func() { _ = r.Close() }()

		buf := make([]byte, 1024)
		n, err := r.Read(buf)
		if err != nil && err != io.EOF {
			readErr = err
			return
		}
		readData = buf[:n]
	}()

	// Give reader time to start
	time.Sleep(10 * time.Millisecond)

	// Write data
	w, err := backend.NewWriter(ctx, "test/path")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	testData := []byte("hello world")
	n, err := w.Write(testData)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if n != len(testData) {
		t.Errorf("Write returned %d, want %d", n, len(testData))
	}

	// Close writer to signal EOF
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Wait for reader to finish
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reader timed out")
	}

	if readErr != nil {
		t.Fatalf("Read failed: %v", readErr)
	}

	if !bytes.Equal(readData, testData) {
		t.Errorf("Read data = %q, want %q", readData, testData)
	}
}

func TestRecordStream(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// With a buffered channel the whole stream fits before any read.
	w, err := linestream.OpenBackendWriter(ctx, backend, "events")
	if err != nil {
		t.Fatalf("OpenBackendWriter failed: %v", err)
	}

	records := []string{"event one", "event two", "event three"}
	if err := w.WriteAll(records); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := linestream.OpenBackendReader(ctx, backend, "events")
	if err != nil {
		t.Fatalf("OpenBackendReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	for i, want := range records {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if rec != want {
			t.Errorf("record %d = %q, want %q", i, rec, want)
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next after last record = %v, want io.EOF", err)
	}
}

func TestProducerConsumer(t *testing.T) {
	backend := New()
	ctx := context.Background()

	done := make(chan struct{})
	var got []string
	var readErr error

	go func() {
		defer close(done)
		r, err := linestream.OpenBackendReader(ctx, backend, "pipeline")
		if err != nil {
			readErr = err
			return
		}
		defer func() { _ = r.Close() }()

		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				readErr = err
				return
			}
			got = append(got, rec)
		}
	}()

	// Give consumer time to start
	time.Sleep(10 * time.Millisecond)

	w, err := linestream.OpenBackendWriter(ctx, backend, "pipeline")
	if err != nil {
		t.Fatalf("OpenBackendWriter failed: %v", err)
	}
	records := []string{"alpha", "beta", "gamma"}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consumer timed out")
	}

	if readErr != nil {
		t.Fatalf("consumer failed: %v", readErr)
	}
	if len(got) != len(records) {
		t.Fatalf("consumer received %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], records[i])
		}
	}
}

func TestPersistentMode(t *testing.T) {
	backend := New(WithPersistence(true))
	ctx := context.Background()

	// Write data first
	w, err := backend.NewWriter(ctx, "test/path")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	testData := []byte("persistent data")
	if _, err := w.Write(testData); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Don't close writer yet - create a reader
	r, err := backend.NewReader(ctx, "test/path")
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	// Read the buffered data
	buf := make([]byte, 1024)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !bytes.Equal(buf[:n], testData) {
		t.Errorf("Read data = %q, want %q", buf[:n], testData)
	}

	_ = w.Close()
	_ = r.Close()
}

func TestStat(t *testing.T) {
	backend := New(WithPersistence(true))
	ctx := context.Background()

	w, _ := backend.NewWriter(ctx, "test/path")
	_, _ = w.Write([]byte("hello world"))
	_ = w.Close()

	info, err := backend.Stat(ctx, "test/path")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if info.Path != "test/path" {
		t.Errorf("Path = %q, want %q", info.Path, "test/path")
	}
	if info.Size != 11 {
		t.Errorf("Size = %d, want 11", info.Size)
	}
}

func TestStatNotPersistent(t *testing.T) {
	backend := New()
	ctx := context.Background()

	w, _ := backend.NewWriter(ctx, "test/path")
	_ = w.Close()

	_, err := backend.Stat(ctx, "test/path")
	if err != linestream.ErrNotSupported {
		t.Errorf("Stat error = %v, want ErrNotSupported", err)
	}
}

func TestStatNotFound(t *testing.T) {
	backend := New(WithPersistence(true))
	ctx := context.Background()

	_, err := backend.Stat(ctx, "nonexistent")
	if err != linestream.ErrNotFound {
		t.Errorf("Stat error = %v, want ErrNotFound", err)
	}
}

func TestFeatures(t *testing.T) {
	backend := New()

	features := backend.Features()

	if features.Append {
		t.Error("Features.Append = true, want false")
	}
	if features.RangeRead {
		t.Error("Features.RangeRead = true, want false")
	}
	if features.Seek {
		t.Error("Features.Seek = true, want false")
	}
	if !features.ListPrefix {
		t.Error("Features.ListPrefix = false, want true")
	}
}

func TestExists(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Check non-existent path
	exists, err := backend.Exists(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Exists returned true for non-existent path")
	}

	// Create a channel
	w, _ := backend.NewWriter(ctx, "test/path")
	_ = w.Close()

	// Check existing path
	exists, err = backend.Exists(ctx, "test/path")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Exists returned false for existing path")
	}
}

func TestDelete(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Create a channel
	w, _ := backend.NewWriter(ctx, "test/path")
	_ = w.Close()

	// Delete it
	if err := backend.Delete(ctx, "test/path"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Verify deleted
	exists, _ := backend.Exists(ctx, "test/path")
	if exists {
		t.Error("Path still exists after delete")
	}
}

func TestWriteAfterDelete(t *testing.T) {
	backend := New()
	ctx := context.Background()

	w, err := backend.NewWriter(ctx, "test/path")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	// Delete closes the channel out from under the writer.
	if err := backend.Delete(ctx, "test/path"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err = w.Write([]byte("data"))
	if err != io.ErrClosedPipe {
		t.Errorf("Write after Delete error = %v, want io.ErrClosedPipe", err)
	}
}

func TestList(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Create several channels
	paths := []string{"a/1", "a/2", "b/1", "b/2"}
	for _, p := range paths {
		w, _ := backend.NewWriter(ctx, p)
		_ = w.Close()
	}

	// List all
	result, err := backend.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(result) != 4 {
		t.Errorf("List returned %d paths, want 4", len(result))
	}

	// List with prefix
	result, err = backend.List(ctx, "a/")
	if err != nil {
		t.Fatalf("List with prefix failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("List with prefix returned %d paths, want 2", len(result))
	}
}

func TestClose(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Create a channel
	w, _ := backend.NewWriter(ctx, "test/path")
	_ = w.Close()

	// Close backend
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Verify operations fail after close
	_, err := backend.NewWriter(ctx, "test")
	if err != linestream.ErrBackendClosed {
		t.Errorf("NewWriter after Close error = %v, want ErrBackendClosed", err)
	}

	_, err = backend.NewReader(ctx, "test")
	if err != linestream.ErrBackendClosed {
		t.Errorf("NewReader after Close error = %v, want ErrBackendClosed", err)
	}

	_, err = backend.Exists(ctx, "test")
	if err != linestream.ErrBackendClosed {
		t.Errorf("Exists after Close error = %v, want ErrBackendClosed", err)
	}

	err = backend.Delete(ctx, "test")
	if err != linestream.ErrBackendClosed {
		t.Errorf("Delete after Close error = %v, want ErrBackendClosed", err)
	}

	_, err = backend.List(ctx, "")
	if err != linestream.ErrBackendClosed {
		t.Errorf("List after Close error = %v, want ErrBackendClosed", err)
	}
}

func TestBroadcast(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Create multiple channels
	var wg sync.WaitGroup
	received := make([][]byte, 3)

	for i := 0; i < 3; i++ {
		path := "events/" + string(rune('a'+i))
		wg.Add(1)

		go func(idx int, p string) {
			defer wg.Done()
			r, _ := backend.NewReader(ctx, p)
			defer func() { _ = r.Close() }()

			buf := make([]byte, 1024)
			n, _ := r.Read(buf)
			received[idx] = buf[:n]
		}(i, path)
	}

	// Give readers time to start
	time.Sleep(20 * time.Millisecond)

	// Broadcast to all
	data := []byte("broadcast message")
	if err := backend.Broadcast(ctx, "events/", data); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	// Close all channels to unblock readers
	for i := 0; i < 3; i++ {
		path := "events/" + string(rune('a'+i))
		_ = backend.Delete(ctx, path)
	}

	wg.Wait()

	// Verify all received
	for i, data := range received {
		if len(data) == 0 {
			t.Errorf("Reader %d received no data", i)
		}
	}
}

func TestChannelCount(t *testing.T) {
	backend := New()
	ctx := context.Background()

	if backend.ChannelCount() != 0 {
		t.Error("Initial channel count should be 0")
	}

	w1, _ := backend.NewWriter(ctx, "path1")
	w2, _ := backend.NewWriter(ctx, "path2")

	if backend.ChannelCount() != 2 {
		t.Errorf("Channel count = %d, want 2", backend.ChannelCount())
	}

	_ = w1.Close()
	_ = w2.Close()
}

func TestContextCancellation(t *testing.T) {
	backend := New()
	ctx, cancel := context.WithCancel(context.Background())

	// Create writer with cancelled context
	cancel()

	_, err := backend.NewWriter(ctx, "test")
	if err != context.Canceled {
		t.Errorf("NewWriter with cancelled context error = %v, want context.Canceled", err)
	}

	_, err = backend.NewReader(ctx, "test")
	if err != context.Canceled {
		t.Errorf("NewReader with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestCancelUnblocksRead(t *testing.T) {
	backend := New()
	ctx, cancel := context.WithCancel(context.Background())

	r, err := backend.NewReader(ctx, "test")
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 10)
		_, err := r.Read(buf)
		errCh <- err
	}()

	// Give the read time to block on the empty channel
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("blocked Read error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock on cancel")
	}
}

func TestEmptyPath(t *testing.T) {
	backend := New()
	ctx := context.Background()

	_, err := backend.NewWriter(ctx, "")
	if err != linestream.ErrInvalidPath {
		t.Errorf("NewWriter empty path error = %v, want ErrInvalidPath", err)
	}

	_, err = backend.NewReader(ctx, "")
	if err != linestream.ErrInvalidPath {
		t.Errorf("NewReader empty path error = %v, want ErrInvalidPath", err)
	}
}

func TestMultipleWrites(t *testing.T) {
	backend := New()
	ctx := context.Background()

	// Start reader
	done := make(chan struct{})
	var messages [][]byte

	go func() {
		defer close(done)
		r, _ := backend.NewReader(ctx, "test")
		defer func() { _ = r.Close() }()

		for i := 0; i < 3; i++ {
			buf := make([]byte, 1024)
			n, err := r.Read(buf)
			if err == io.EOF {
				break
			}
			if err != nil {
				return
			}
			messages = append(messages, buf[:n])
		}
	}()

	// Give reader time to start
	time.Sleep(10 * time.Millisecond)

	// Write multiple messages
	w, _ := backend.NewWriter(ctx, "test")
	for i := 0; i < 3; i++ {
		_, _ = w.Write([]byte("message"))
	}
	_ = w.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for reader")
	}

	if len(messages) != 3 {
		t.Errorf("Received %d messages, want 3", len(messages))
	}
}

func TestWriterClosed(t *testing.T) {
	backend := New()
	ctx := context.Background()

	w, _ := backend.NewWriter(ctx, "test")
	_ = w.Close()

	_, err := w.Write([]byte("data"))
	if err != linestream.ErrWriterClosed {
		t.Errorf("Write after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestReaderClosed(t *testing.T) {
	backend := New()
	ctx := context.Background()

	r, _ := backend.NewReader(ctx, "test")
	_ = r.Close()

	buf := make([]byte, 10)
	_, err := r.Read(buf)
	if err != linestream.ErrReaderClosed {
		t.Errorf("Read after Close error = %v, want ErrReaderClosed", err)
	}
}

func TestDoubleClose(t *testing.T) {
	backend := New()
	ctx := context.Background()

	w, _ := backend.NewWriter(ctx, "test")
	_ = w.Close()
	_ = w.Close() // Should not panic

	r, _ := backend.NewReader(ctx, "test")
	_ = r.Close()
	_ = r.Close() // Should not panic

	_ = backend.Close()
	_ = backend.Close() // Should not panic
}
