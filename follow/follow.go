// Package follow tails a growing flat file and yields records as they are
// appended, in the manner of tail -f.
//
// The follower reads existing records first, then blocks until new ones
// arrive. File changes are observed with fsnotify where available, with a
// polling fallback for filesystems without native events. Truncation
// restarts the stream from the top.
//
// Basic usage:
//
//	f, err := follow.New("app.log", follow.Options{})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	for record, err := range f.Records(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    ship(record)
//	}
package follow

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/linestream"
)

// DefaultPollInterval is the fallback wake-up interval used when no file
// events arrive.
const DefaultPollInterval = 250 * time.Millisecond

// errTruncated signals that the file shrank below the read offset.
var errTruncated = errors.New("follow: file truncated")

// Options configures a Follower.
type Options struct {
	// ReadOptions configure record framing (delimiter, encoding, chunk size).
	ReadOptions []linestream.Option

	// PollInterval is how often the follower re-checks the file when no
	// events arrive. It is the only change detector on filesystems
	// without fsnotify support. Default is DefaultPollInterval.
	PollInterval time.Duration

	// Logger is used for structured logging. If nil, a null logger is used.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slogutil.Null()
}

// Follower yields the records of a file as it grows.
//
// A Follower is a single-consumer object: Next and Records must not be
// called from multiple goroutines concurrently. Close may be called from
// another goroutine to stop a blocked Next.
type Follower struct {
	path    string
	reader  *linestream.Reader
	tail    *tailReader
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
	closed  bool
	mu      sync.Mutex
}

// New opens path and returns a Follower positioned at the start of the
// file. Existing records are yielded before the follower begins waiting
// for appended ones.
func New(path string, opts Options) (*Follower, error) {
	logger := opts.logger()

	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: directory watches survive
	// the file being replaced, and some platforms only report reliably at
	// the directory level.
	var watcher *fsnotify.Watcher
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err = fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watching unavailable, using polling only", slog.Any("error", err))
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("file watching unavailable, using polling only",
			slog.String("path", path), slog.Any("error", err))
		_ = watcher.Close()
		watcher = nil
	} else {
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	done := make(chan struct{})
	tail := &tailReader{
		f:      f,
		base:   filepath.Base(path),
		events: events,
		errs:   watchErrs,
		poll:   poll,
		done:   done,
		logger: logger,
	}

	reader, err := linestream.NewReader(tail, opts.ReadOptions...)
	if err != nil {
		if watcher != nil {
			_ = watcher.Close()
		}
		_ = f.Close()
		return nil, err
	}

	return &Follower{
		path:    path,
		reader:  reader,
		tail:    tail,
		watcher: watcher,
		done:    done,
		logger:  logger,
	}, nil
}

// Next returns the next record, blocking until one is appended, ctx is
// cancelled, or the follower is closed. When the file is truncated the
// follower restarts from the top and Next keeps blocking until a record
// is available.
func (f *Follower) Next(ctx context.Context) (string, error) {
	for {
		f.tail.setContext(ctx)
		record, err := f.reader.Next()
		if err == nil {
			return record, nil
		}
		if errors.Is(err, errTruncated) {
			f.logger.Info("file truncated, restarting from the top", slog.String("path", f.path))
			if rerr := f.reader.Rewind(); rerr != nil {
				return "", rerr
			}
			continue
		}
		return "", err
	}
}

// Records returns the records of the file as a lazy sequence that keeps
// yielding as the file grows. Iteration ends silently when ctx is
// cancelled or the follower is closed; any other error is yielded once
// and ends the sequence.
func (f *Follower) Records(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			record, err := f.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) ||
					errors.Is(err, context.DeadlineExceeded) ||
					errors.Is(err, linestream.ErrReaderClosed) {
					return
				}
				yield("", err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// Close stops the follower and releases the file and the watcher.
// It unblocks a Next call in flight. Close is idempotent.
func (f *Follower) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)

	var errs []error
	if f.watcher != nil {
		if err := f.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// Closing the reader also closes the tail reader and the file.
	if err := f.reader.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// tailReader reads from a file and blocks at EOF until the file grows,
// the context is cancelled, or the follower is closed. The wrapped
// linestream.Reader therefore never observes EOF on a live follower.
type tailReader struct {
	f      *os.File
	base   string
	events <-chan fsnotify.Event
	errs   <-chan error
	poll   time.Duration
	done   <-chan struct{}
	logger *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// setContext installs the context governing the next blocking Read.
func (t *tailReader) setContext(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

func (t *tailReader) currentContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx != nil {
		return t.ctx
	}
	return context.Background()
}

func (t *tailReader) Read(p []byte) (int, error) {
	for {
		n, err := t.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		// At EOF: a shrunken file means truncation, anything else means
		// we wait for growth.
		if t.truncated() {
			return 0, errTruncated
		}
		if err := t.wait(); err != nil {
			return 0, err
		}
	}
}

// Seek delegates to the file so the reader's Rewind works.
func (t *tailReader) Seek(offset int64, whence int) (int64, error) {
	return t.f.Seek(offset, whence)
}

func (t *tailReader) Close() error {
	return t.f.Close()
}

// truncated reports whether the file is now smaller than the read offset.
func (t *tailReader) truncated() bool {
	info, err := t.f.Stat()
	if err != nil {
		return false
	}
	offset, err := t.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	return info.Size() < offset
}

// wait blocks until the file may have changed. Wake-ups are advisory;
// spurious ones just cause another read attempt.
func (t *tailReader) wait() error {
	ctx := t.currentContext()
	timer := time.NewTimer(t.poll)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return linestream.ErrReaderClosed
		case <-timer.C:
			return nil
		case ev, ok := <-t.events:
			if !ok {
				t.events = nil
				continue
			}
			if filepath.Base(ev.Name) == t.base {
				return nil
			}
		case err, ok := <-t.errs:
			if !ok {
				t.errs = nil
				continue
			}
			t.logger.Debug("watch error", slog.Any("error", err))
		}
	}
}
