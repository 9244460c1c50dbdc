package pipeline

import (
	"context"
	"io"
	"sync"
	"time"
)

// rateLimitedReader wraps an io.ReadCloser with bandwidth limiting.
// It uses a token bucket to throttle reads.
type rateLimitedReader struct {
	ctx       context.Context
	r         io.ReadCloser
	bucket    *tokenBucket
	chunkSize int
}

// newRateLimitedReader creates a reader that limits bandwidth.
// The bucket is shared across all readers to enforce a global limit;
// waits are interrupted when ctx is cancelled.
func newRateLimitedReader(ctx context.Context, r io.ReadCloser, bucket *tokenBucket) *rateLimitedReader {
	return &rateLimitedReader{
		ctx:       ctx,
		r:         r,
		bucket:    bucket,
		chunkSize: 64 * 1024, // 64KB chunks for smooth limiting
	}
}

// Read implements io.Reader with rate limiting.
func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if r.bucket == nil || r.bucket.rate == 0 {
		return r.r.Read(p)
	}

	// Limit read size to chunk size for smoother rate limiting
	toRead := len(p)
	if toRead > r.chunkSize {
		toRead = r.chunkSize
	}

	if err := r.bucket.wait(r.ctx, toRead); err != nil {
		return 0, err
	}

	n, err := r.r.Read(p[:toRead])

	// If we read less than requested, return unused tokens
	if n < toRead {
		r.bucket.returnTokens(toRead - n)
	}

	return n, err
}

// Close closes the wrapped reader.
func (r *rateLimitedReader) Close() error {
	return r.r.Close()
}

// tokenBucket implements a token bucket rate limiter.
// It's safe for concurrent use.
type tokenBucket struct {
	rate       int64 // bytes per second
	tokens     int64 // current available tokens
	maxTokens  int64 // maximum tokens (burst size)
	lastRefill time.Time
	mu         sync.Mutex
}

// newTokenBucket creates a new token bucket with the given rate.
// rate is in bytes per second. Burst size is set to 1 second worth of tokens.
func newTokenBucket(bytesPerSecond int64) *tokenBucket {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &tokenBucket{
		rate:       bytesPerSecond,
		tokens:     bytesPerSecond, // Start with full bucket
		maxTokens:  bytesPerSecond, // 1 second burst
		lastRefill: time.Now(),
	}
}

// wait blocks until n tokens are available and consumes them,
// or until ctx is cancelled.
func (tb *tokenBucket) wait(ctx context.Context, n int) error {
	if tb == nil || tb.rate == 0 {
		return nil
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Refill tokens based on elapsed time
	tb.refill()

	needed := int64(n)

	for tb.tokens < needed {
		deficit := needed - tb.tokens
		waitDuration := time.Duration(deficit) * time.Second / time.Duration(tb.rate)

		// Release lock while waiting
		tb.mu.Unlock()
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(waitDuration):
		}
		tb.mu.Lock()
		if err != nil {
			return err
		}

		// Refill after waiting
		tb.refill()
	}

	tb.tokens -= needed
	return nil
}

// returnTokens returns unused tokens to the bucket.
func (tb *tokenBucket) returnTokens(n int) {
	if tb == nil || n <= 0 {
		return
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens += int64(n)
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
}

// refill adds tokens based on elapsed time since last refill.
// Must be called with mu held.
func (tb *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	newTokens := int64(elapsed.Seconds() * float64(tb.rate))
	tb.tokens += newTokens
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
}
