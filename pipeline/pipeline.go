package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grokify/linestream"
	"github.com/grokify/linestream/pipeline/filter"
)

// copyContext holds shared state for a copy operation.
type copyContext struct {
	opts    Options
	limiter *tokenBucket
	logger  *slog.Logger
}

// Copy streams records from one backend file to another.
//
// Records are read with the source framing (Options.ReadOptions) and
// written with the destination framing (Options.WriteOptions), so a copy
// can convert delimiters and encodings in flight. The optional Transform
// rewrites or drops individual records.
func Copy(ctx context.Context, src linestream.Backend, srcPath string, dst linestream.Backend, dstPath string, opts Options) (*Result, error) {
	startTime := time.Now()
	result := &Result{DryRun: opts.DryRun}

	logger := opts.logger()
	cctx := &copyContext{
		opts:    opts,
		limiter: newTokenBucket(opts.BandwidthLimit),
		logger:  logger,
	}

	logger.Info("starting copy",
		slog.String("src_path", srcPath),
		slog.String("dst_path", dstPath),
		slog.Bool("dry_run", opts.DryRun),
	)

	if opts.IgnoreExisting {
		exists, err := dst.Exists(ctx, dstPath)
		if err != nil {
			return nil, err
		}
		if exists {
			result.Skipped = 1
			result.Duration = time.Since(startTime)
			return result, nil
		}
	}

	if opts.Progress != nil {
		opts.Progress(Progress{Phase: PhaseTransferring, CurrentFile: srcPath, TotalFiles: 1})
	}

	if !opts.DryRun {
		records, bytes, dropped, err := copyFile(ctx, cctx, src, srcPath, dst, dstPath)
		result.Records = records
		result.Bytes = bytes
		result.Dropped = dropped
		if err != nil {
			logger.Error("copy failed", slog.String("src_path", srcPath), slog.Any("error", err))
			result.Errors = append(result.Errors, FileError{Path: srcPath, Op: "copy", Err: err})
			result.Duration = time.Since(startTime)
			return result, nil
		}
	}
	result.Files = 1

	if opts.Progress != nil {
		opts.Progress(Progress{
			Phase:   PhaseComplete,
			Files:   1,
			Records: result.Records,
			Bytes:   result.Bytes,
		})
	}

	result.Duration = time.Since(startTime)

	logger.Info("copy complete",
		slog.Int64("records", result.Records),
		slog.Int64("bytes", result.Bytes),
		slog.Int64("dropped", result.Dropped),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// CopyPrefix copies every file under srcPrefix to the same relative path
// under dstPrefix, re-framing records the same way Copy does. Files are
// copied by a pool of Options.Concurrency workers.
func CopyPrefix(ctx context.Context, src linestream.Backend, srcPrefix string, dst linestream.Backend, dstPrefix string, opts Options) (*Result, error) {
	startTime := time.Now()
	result := &Result{DryRun: opts.DryRun}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	logger := opts.logger()
	cctx := &copyContext{
		opts:    opts,
		limiter: newTokenBucket(opts.BandwidthLimit),
		logger:  logger,
	}

	logger.Info("starting prefix copy",
		slog.String("src_prefix", srcPrefix),
		slog.String("dst_prefix", dstPrefix),
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("concurrency", opts.Concurrency),
	)

	if opts.Progress != nil {
		opts.Progress(Progress{Phase: PhaseScanning, CurrentFile: srcPrefix})
	}

	logger.Debug("scanning source files", slog.String("prefix", srcPrefix))
	files, err := listFiles(ctx, src, srcPrefix, opts.Filter)
	if err != nil {
		logger.Error("failed to list source files", slog.String("prefix", srcPrefix), slog.Any("error", err))
		return nil, err
	}
	logger.Debug("source scan complete", slog.Int("files", len(files)))

	if opts.Progress != nil {
		opts.Progress(Progress{Phase: PhaseTransferring, TotalFiles: len(files)})
	}

	var filesDone atomic.Int32
	var records atomic.Int64
	var bytes atomic.Int64
	var dropped atomic.Int64
	var skipped atomic.Int32
	var errorsMu sync.Mutex

	// Worker pool for parallel file copies
	workCh := make(chan string, len(files))
	var wg sync.WaitGroup

	copyCtx, cancelCopy := context.WithCancel(ctx)
	defer cancelCopy()

	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range workCh {
				select {
				case <-copyCtx.Done():
					return
				default:
				}

				srcFullPath := path.Join(srcPrefix, rel)
				dstFullPath := path.Join(dstPrefix, rel)

				if opts.IgnoreExisting {
					exists, err := dst.Exists(copyCtx, dstFullPath)
					if err == nil && exists {
						skipped.Add(1)
						continue
					}
				}

				if opts.Progress != nil {
					opts.Progress(Progress{
						Phase:       PhaseTransferring,
						CurrentFile: rel,
						Files:       int(filesDone.Load()),
						TotalFiles:  len(files),
						Records:     records.Load(),
						Bytes:       bytes.Load(),
					})
				}

				if opts.DryRun {
					filesDone.Add(1)
					continue
				}

				recs, n, drops, err := copyFile(copyCtx, cctx, src, srcFullPath, dst, dstFullPath)
				records.Add(recs)
				bytes.Add(n)
				dropped.Add(drops)
				if err != nil {
					logger.Error("file copy failed", slog.String("path", rel), slog.Any("error", err))
					errorsMu.Lock()
					result.Errors = append(result.Errors, FileError{
						Path: rel,
						Op:   "copy",
						Err:  err,
					})
					shouldStop := opts.MaxErrors > 0 && len(result.Errors) >= opts.MaxErrors
					errorsMu.Unlock()
					if shouldStop {
						cancelCopy()
						return
					}
					continue
				}
				filesDone.Add(1)
			}
		}()
	}

sendLoop:
	for _, f := range files {
		select {
		case <-copyCtx.Done():
			break sendLoop
		case workCh <- f.Path:
		}
	}
	close(workCh)

	wg.Wait()

	result.Files = int(filesDone.Load())
	result.Records = records.Load()
	result.Bytes = bytes.Load()
	result.Dropped = dropped.Load()
	result.Skipped = int(skipped.Load())
	result.Duration = time.Since(startTime)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if opts.Progress != nil {
		opts.Progress(Progress{
			Phase:   PhaseComplete,
			Files:   result.Files,
			Records: result.Records,
			Bytes:   result.Bytes,
			Errors:  len(result.Errors),
		})
	}

	logger.Info("prefix copy complete",
		slog.Int("files", result.Files),
		slog.Int64("records", result.Records),
		slog.Int64("bytes", result.Bytes),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// copyFile streams the records of a single file between backends.
// It returns the number of records written, encoded bytes written, and
// records dropped by the transform.
func copyFile(ctx context.Context, cctx *copyContext, src linestream.Backend, srcPath string, dst linestream.Backend, dstPath string) (records, bytes, dropped int64, err error) {
	var stream io.ReadCloser
	err = withRetry(ctx, cctx.opts.Retry, func() error {
		var openErr error
		stream, openErr = src.NewReader(ctx, srcPath)
		return openErr
	})
	if err != nil {
		return 0, 0, 0, err
	}

	var rc io.ReadCloser = stream
	if cctx.limiter != nil {
		rc = newRateLimitedReader(ctx, stream, cctx.limiter)
	}

	reader, err := linestream.NewReader(rc, cctx.opts.ReadOptions...)
	if err != nil {
		_ = rc.Close()
		return 0, 0, 0, err
	}
	defer func() { _ = reader.Close() }()

	var wstream io.WriteCloser
	err = withRetry(ctx, cctx.opts.Retry, func() error {
		var openErr error
		wstream, openErr = dst.NewWriter(ctx, dstPath)
		return openErr
	})
	if err != nil {
		return 0, 0, 0, err
	}

	counted := &countingWriter{w: wstream}
	writer, err := linestream.NewWriter(counted, cctx.opts.WriteOptions...)
	if err != nil {
		_ = wstream.Close()
		return 0, 0, 0, err
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = writer.Close()
			return records, counted.n, dropped, err
		}

		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = writer.Close()
			return records, counted.n, dropped, err
		}

		if cctx.opts.Transform != nil {
			out, keep := cctx.opts.Transform(record)
			if !keep {
				dropped++
				continue
			}
			record = out
		}

		if err := writer.Write(record); err != nil {
			_ = writer.Close()
			return records, counted.n, dropped, err
		}
		records++
	}

	// Close flushes compress wrappers and completes backend uploads,
	// so its error is part of the copy.
	return records, counted.n, dropped, writer.Close()
}

// listFiles lists the files under a prefix, applying the filter.
// Returned paths are relative to the prefix; directories are dropped.
func listFiles(ctx context.Context, b linestream.Backend, prefix string, f *filter.Filter) ([]linestream.FileInfo, error) {
	paths, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var files []linestream.FileInfo
	for _, p := range paths {
		fi := linestream.FileInfo{Path: relativePath(prefix, p)}

		if info, err := b.Stat(ctx, p); err == nil {
			fi.Size = info.Size
			fi.ModTime = info.ModTime
			fi.IsDir = info.IsDir
		}
		if fi.IsDir {
			continue
		}

		if f != nil && !f.Match(filter.FileInfo{
			Path:    fi.Path,
			Size:    fi.Size,
			ModTime: fi.ModTime,
		}) {
			continue
		}

		files = append(files, fi)
	}

	return files, nil
}

// relativePath strips the listing prefix from a returned path.
func relativePath(prefix, p string) string {
	rel := strings.TrimPrefix(p, prefix)
	return strings.TrimPrefix(rel, "/")
}

// countingWriter tallies the bytes written through it.
type countingWriter struct {
	w io.WriteCloser
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Close() error {
	return cw.w.Close()
}
