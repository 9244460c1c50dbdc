// Package s3 provides an S3-compatible backend for linestream.
//
// This backend works with:
//   - AWS S3
//   - Cloudflare R2
//   - MinIO
//   - Wasabi
//   - DigitalOcean Spaces
//   - Any S3-compatible object storage
//
// Basic usage:
//
//	backend, err := s3.New(s3.Config{
//	    Bucket: "my-bucket",
//	    Region: "us-east-1",
//	})
//
// For S3-compatible services:
//
//	backend, err := s3.New(s3.Config{
//	    Bucket:       "my-bucket",
//	    Endpoint:     "https://play.min.io",
//	    UsePathStyle: true,
//	})
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/grokify/linestream"
)

func init() {
	linestream.Register("s3", NewFromConfig)
}

// Errors specific to the S3 backend.
var (
	ErrBucketRequired = errors.New("s3: bucket is required")
)

// Backend implements linestream.Backend for S3-compatible storage.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	closed   bool
	mu       sync.RWMutex
}

// New creates a new S3 backend with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * 1024 * 1024 // 5MB
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	// Build AWS config options
	var optFns []func(*config.LoadOptions) error

	// Region
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	// Credentials
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	// Load AWS config
	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	// Build S3 client options
	var s3OptFns []func(*s3.Options)

	// Custom endpoint
	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	// Path-style addressing
	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	// Create S3 client
	client := s3.NewFromConfig(awsCfg, s3OptFns...)

	// Create upload manager. The uploader reads the streaming pipe fed by
	// s3Writer and takes care of multipart uploads for large files.
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})

	return &Backend{
		client:   client,
		uploader: uploader,
		config:   cfg,
	}, nil
}

// NewFromConfig creates a new S3 backend from a config map.
// This is used by the linestream registry.
func NewFromConfig(configMap map[string]string) (linestream.Backend, error) {
	cfg := ConfigFromMap(configMap)
	return New(cfg)
}

// NewWriter creates a writer for the given path. Bytes are streamed to the
// upload manager through a pipe, so large files never buffer fully in
// memory; the object becomes visible when the writer is closed. S3 cannot
// append, so WithStreamAppend is rejected with ErrNotSupported.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...linestream.StreamWriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := linestream.ApplyStreamWriterOptions(opts...)
	if cfg.Append {
		return nil, linestream.ErrNotSupported
	}

	key := b.fullKey(p)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	}
	if cfg.ContentType != "" {
		input.ContentType = aws.String(cfg.ContentType)
	}
	if len(cfg.Metadata) > 0 {
		input.Metadata = cfg.Metadata
	}

	pr, pw := io.Pipe()
	input.Body = pr

	w := &s3Writer{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := b.uploader.Upload(ctx, input)
		if err != nil {
			// Unblock any Write stuck on the pipe
			pr.CloseWithError(err)
			w.done <- fmt.Errorf("s3: uploading object: %w", err)
			return
		}
		w.done <- nil
	}()

	return w, nil
}

// NewReader creates a reader for the given path.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...linestream.StreamReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := b.fullKey(p)
	cfg := linestream.ApplyStreamReaderOptions(opts...)

	// Build GetObject input
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	}

	// Handle range requests
	if cfg.Offset > 0 || cfg.Limit > 0 {
		var rangeHeader string
		if cfg.Limit > 0 {
			rangeHeader = fmt.Sprintf("bytes=%d-%d", cfg.Offset, cfg.Offset+cfg.Limit-1)
		} else {
			rangeHeader = fmt.Sprintf("bytes=%d-", cfg.Offset)
		}
		input.Range = aws.String(rangeHeader)
	}

	// Get object
	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, b.translateError(err, p)
	}

	return result.Body, nil
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := b.fullKey(p)

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		var nsk *types.NotFound
		if errors.As(err, &nsk) {
			return false, nil
		}
		// Also check for NoSuchKey error
		var apiErr interface{ ErrorCode() string }
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey" {
				return false, nil
			}
		}
		return false, b.translateError(err, p)
	}

	return true, nil
}

// Stat returns metadata for an object.
func (b *Backend) Stat(ctx context.Context, p string) (linestream.FileInfo, error) {
	if err := b.checkClosed(); err != nil {
		return linestream.FileInfo{}, err
	}

	if err := ctx.Err(); err != nil {
		return linestream.FileInfo{}, err
	}

	key := b.fullKey(p)

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return linestream.FileInfo{}, b.translateError(err, p)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	var modTime time.Time
	if result.LastModified != nil {
		modTime = *result.LastModified
	}

	return linestream.FileInfo{
		Path:    p,
		Size:    size,
		ModTime: modTime,
	}, nil
}

// Delete removes a path.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	key := b.fullKey(p)

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		// S3 delete is idempotent, but check for other errors
		var nsk *types.NotFound
		if errors.As(err, &nsk) {
			return nil
		}
		return b.translateError(err, p)
	}

	return nil
}

// List lists paths with the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPrefix := b.fullKey(prefix)

	var paths []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: listing objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			// Remove prefix to get relative path
			relPath := strings.TrimPrefix(*obj.Key, b.config.Prefix)
			relPath = strings.TrimPrefix(relPath, "/")
			if relPath != "" {
				paths = append(paths, relPath)
			}
		}
	}

	return paths, nil
}

// Features describes what the S3 backend supports.
func (b *Backend) Features() linestream.Features {
	return linestream.Features{
		RangeRead:  true,
		ListPrefix: true,
	}
}

// Close releases any resources held by the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}

// fullKey returns the full S3 key for a path.
func (b *Backend) fullKey(p string) string {
	if b.config.Prefix == "" {
		return p
	}
	return path.Join(b.config.Prefix, p)
}

// checkClosed returns an error if the backend is closed.
func (b *Backend) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return linestream.ErrBackendClosed
	}
	return nil
}

// translateError converts S3 errors to linestream errors.
func (b *Backend) translateError(err error, path string) error {
	if err == nil {
		return nil
	}

	// Check for NotFound
	var nsk *types.NotFound
	if errors.As(err, &nsk) {
		return linestream.ErrNotFound
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %s", b.config.Bucket)
	}

	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return fmt.Errorf("s3: upload not found: %s", path)
	}

	// Check error code
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return linestream.ErrNotFound
		case "AccessDenied":
			return linestream.ErrPermissionDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return linestream.ErrPermissionDenied
		}
	}

	return fmt.Errorf("s3: %w", err)
}

// s3Writer implements io.WriteCloser by feeding the upload manager through
// an in-process pipe.
type s3Writer struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
	mu     sync.Mutex
}

func (w *s3Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, linestream.ErrWriterClosed
	}

	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.pw.Close(); err != nil {
		return err
	}

	// Wait for the upload goroutine to finish
	return <-w.done
}

// Ensure Backend implements linestream.Backend
var _ linestream.Backend = (*Backend)(nil)
