package pipeline

import (
	"context"
	"log/slog"

	"github.com/grokify/linestream"
)

// Move streams records from one backend file to another and deletes the
// source once the copy has fully succeeded. This works across different
// backends.
//
// The copy half behaves exactly like Copy, including re-framing and
// transforms. The source is left untouched when the copy reports any
// error, when DryRun is set, or when the destination was skipped via
// IgnoreExisting. A failed delete is recorded in Result.Errors with
// Op "delete".
func Move(ctx context.Context, src linestream.Backend, srcPath string, dst linestream.Backend, dstPath string, opts Options) (*Result, error) {
	logger := opts.logger()

	result, err := Copy(ctx, src, srcPath, dst, dstPath, opts)
	if err != nil {
		return result, err
	}
	if len(result.Errors) > 0 || result.DryRun || result.Skipped > 0 {
		return result, nil
	}

	// Delete source only after a fully successful copy.
	err = withRetry(ctx, opts.Retry, func() error {
		return src.Delete(ctx, srcPath)
	})
	if err != nil {
		logger.Error("source delete failed", slog.String("src_path", srcPath), slog.Any("error", err))
		result.Errors = append(result.Errors, FileError{Path: srcPath, Op: "delete", Err: err})
		return result, nil
	}

	logger.Info("move complete",
		slog.String("src_path", srcPath),
		slog.String("dst_path", dstPath),
		slog.Int64("records", result.Records),
	)

	return result, nil
}
