// Package pipeline moves line-oriented records between backends.
//
// Copy re-frames records in flight: read with one delimiter and encoding,
// write with another. CopyPrefix does the same for every file under a
// prefix using a worker pool. Move copies and then deletes the source.
// Verify compares two files record by record.
//
// Basic usage:
//
//	result, err := pipeline.Copy(ctx, src, "in/events.txt", dst, "out/events.txt", pipeline.Options{
//	    ReadOptions:  []linestream.Option{linestream.WithDelimiter("\r\n"), linestream.WithEncodingName("UTF-16LE")},
//	    WriteOptions: []linestream.Option{linestream.WithDelimiter("\n")},
//	})
//	fmt.Printf("records: %d\n", result.Records)
//
// With logging:
//
//	result, err := pipeline.CopyPrefix(ctx, src, "logs/", dst, "archive/", pipeline.Options{
//	    Logger: slog.Default(),
//	})
package pipeline

import (
	"log/slog"
	"time"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/linestream"
	"github.com/grokify/linestream/pipeline/filter"
)

// Options configures copy behavior.
type Options struct {
	// ReadOptions configure how source records are framed and decoded
	// (delimiter, encoding, chunk size).
	ReadOptions []linestream.Option

	// WriteOptions configure how records are framed and encoded at the
	// destination. Leaving both option sets empty copies UTF-8 lines
	// unchanged.
	WriteOptions []linestream.Option

	// Transform is applied to every record between read and write.
	// Returning false drops the record. Nil passes records through.
	Transform func(record string) (string, bool)

	// DryRun reports what would be done without writing.
	DryRun bool

	// IgnoreExisting skips destination files that already exist.
	// Useful for resuming interrupted copies.
	IgnoreExisting bool

	// Concurrency is the number of concurrent file copies in CopyPrefix.
	// Default is 4.
	Concurrency int

	// MaxErrors aborts the run once this many file errors accumulate.
	// 0 collects every error without aborting.
	MaxErrors int

	// Filter selects which files CopyPrefix copies.
	// If nil, all files are included.
	Filter *filter.Filter

	// BandwidthLimit is the maximum read throughput in bytes per second,
	// shared across all concurrent copies. 0 means unlimited.
	BandwidthLimit int64

	// Retry configures retry behavior for opening backend streams.
	// If nil or MaxRetries is 0, opens are not retried.
	Retry *RetryConfig

	// Progress is called with progress updates during the copy.
	// Can be nil if progress updates aren't needed.
	Progress func(Progress)

	// Logger is used for structured logging during copy operations.
	// If nil, a null logger is used (no logging).
	Logger *slog.Logger
}

// logger returns the configured logger or a null logger if none is set.
func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slogutil.Null()
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: 4,
	}
}

// Progress represents the current state of a copy operation.
type Progress struct {
	// Phase indicates the current phase.
	Phase Phase

	// CurrentFile is the file currently being processed.
	CurrentFile string

	// Files is the number of files completed so far.
	Files int

	// TotalFiles is the total number of files to copy.
	TotalFiles int

	// Records is the number of records written so far.
	Records int64

	// Bytes is the number of encoded bytes written so far.
	Bytes int64

	// Errors is the number of errors encountered so far.
	Errors int
}

// Phase represents a phase of a copy operation.
type Phase string

const (
	// PhaseScanning indicates the source is being listed.
	PhaseScanning Phase = "scanning"

	// PhaseTransferring indicates records are being copied.
	PhaseTransferring Phase = "transferring"

	// PhaseComplete indicates the operation is complete.
	PhaseComplete Phase = "complete"
)

// Result contains the results of a copy operation.
type Result struct {
	// Files is the number of files copied.
	Files int

	// Records is the number of records written.
	Records int64

	// Bytes is the number of encoded bytes written to the destination.
	Bytes int64

	// Dropped is the number of records dropped by Transform.
	Dropped int64

	// Skipped is the number of files skipped (already present).
	Skipped int

	// Errors contains any per-file errors.
	Errors []FileError

	// Duration is how long the operation took.
	Duration time.Duration

	// DryRun indicates if this was a dry run.
	DryRun bool
}

// Success returns true if the operation completed without errors.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// FileError represents an error that occurred for a specific file.
type FileError struct {
	Path string
	Op   string // "copy", "verify", etc.
	Err  error
}

func (e FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}
