// Package download implements the download engine: a presigned
// direct-fetch fast path for small objects, a streamed progress-tracked
// slow path for large ones, and share link generation.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/pool"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

const (
	// DefaultProgressByteDelta is the minimum accumulated byte delta
	// between streamed progress events (512KB).
	DefaultProgressByteDelta = 512 * 1024

	// DefaultShareExpiry is the share link lifetime when none is given.
	DefaultShareExpiry = time.Hour

	// MaxShareExpiry is the SigV4 presigning cap (7 days).
	MaxShareExpiry = 7 * 24 * time.Hour

	// MinShareExpiry guards against already-expired links.
	MinShareExpiry = time.Minute
)

// Config holds the download engine's thresholds and expiry bounds.
type Config struct {
	// PresignThreshold is the size at or below which downloads use the
	// presigned fast path regardless of progress interest.
	PresignThreshold int64

	// ProgressByteDelta bounds streamed progress event frequency.
	ProgressByteDelta int64

	// DefaultExpiry and MaxExpiry bound share link lifetimes.
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
}

// Downloader handles downloads and share links against one bucket.
type Downloader struct {
	client     s3api.S3API
	presigner  s3api.PresignAPI
	httpClient *http.Client
	bucket     string
	limiter    *ratelimit.Limiter
	policy     *retry.Policy
	logger     *slog.Logger
	cfg        Config
}

// New creates a Downloader. httpClient serves presigned direct fetches;
// nil uses http.DefaultClient.
func New(
	client s3api.S3API,
	presigner s3api.PresignAPI,
	httpClient *http.Client,
	bucket string,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	logger *slog.Logger,
	cfg Config,
) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.ProgressByteDelta <= 0 {
		cfg.ProgressByteDelta = DefaultProgressByteDelta
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = DefaultShareExpiry
	}
	if cfg.MaxExpiry <= 0 || cfg.MaxExpiry > MaxShareExpiry {
		cfg.MaxExpiry = MaxShareExpiry
	}
	return &Downloader{
		client:     client,
		presigner:  presigner,
		httpClient: httpClient,
		bucket:     bucket,
		limiter:    limiter,
		policy:     policy,
		logger:     logger,
		cfg:        cfg,
	}
}

// Download writes the object to writer. Objects at or below the presign
// threshold, or downloads with no progress channel, take the presigned
// direct-fetch path and report one 0->100 jump. Larger objects stream
// through GetObject, emitting progress only when the accumulated delta
// exceeds the configured minimum or on completion.
func (d *Downloader) Download(
	ctx context.Context,
	key string,
	size int64,
	writer io.Writer,
	progress chan<- s3types.TransferProgress,
) (*s3types.DownloadResult, error) {
	if progress == nil || size <= d.cfg.PresignThreshold {
		return d.downloadPresigned(ctx, key, size, writer, progress)
	}
	return d.downloadStreaming(ctx, key, size, writer, progress)
}

// ShareLink produces a time-bounded presigned URL without transferring
// anything. Zero expiry uses the configured default; expiries outside
// (0, MaxExpiry] are rejected.
func (d *Downloader) ShareLink(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = d.cfg.DefaultExpiry
	}
	if expiry < MinShareExpiry || expiry > d.cfg.MaxExpiry {
		return "", errors.NewObjectError("shareLink", d.bucket, key, errors.ErrShareExpiryOutOfRange).
			WithMessage(fmt.Sprintf("expiry %s outside [%s, %s]", expiry, MinShareExpiry, d.cfg.MaxExpiry))
	}
	return d.presign(ctx, key, expiry)
}

// downloadPresigned is the fast path: a short-lived presigned URL
// fetched directly. Only acquiring the response is retried; once the
// body starts streaming into the caller's writer the transfer is
// committed, and a mid-body failure surfaces as an error rather than a
// retry that would append a second copy after the partial bytes.
func (d *Downloader) downloadPresigned(
	ctx context.Context,
	key string,
	size int64,
	writer io.Writer,
	progress chan<- s3types.TransferProgress,
) (*s3types.DownloadResult, error) {
	start := time.Now()

	url, err := d.presign(ctx, key, d.cfg.DefaultExpiry)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	err = retry.Do(ctx, d.logger, "downloadPresigned", d.policy, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return reqErr
		}
		r, respErr := d.httpClient.Do(req)
		if respErr != nil {
			return respErr
		}
		if r.StatusCode != http.StatusOK {
			_ = r.Body.Close()
			return httpStatusError(r.StatusCode, key)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, errors.NewObjectError("download", d.bucket, key, err)
	}
	defer resp.Body.Close()

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return nil, errors.NewObjectError("download", d.bucket, key, err)
	}

	if size < 0 {
		size = written
	}
	s3types.Emit(progress, s3types.TransferProgress{Key: key, Transferred: written, Total: written})

	return &s3types.DownloadResult{
		Key:      key,
		Size:     written,
		Duration: time.Since(start),
	}, nil
}

// downloadStreaming is the slow path: GetObject streamed through a
// pooled buffer with bounded-frequency progress.
func (d *Downloader) downloadStreaming(
	ctx context.Context,
	key string,
	size int64,
	writer io.Writer,
	progress chan<- s3types.TransferProgress,
) (*s3types.DownloadResult, error) {
	start := time.Now()

	permit, err := d.limiter.Acquire(ctx, s3types.OpDownload)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	input := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}

	var output *s3.GetObjectOutput
	err = retry.Do(ctx, d.logger, "getObject", d.policy, func(ctx context.Context) error {
		var callErr error
		output, callErr = d.client.GetObject(ctx, input)
		return callErr
	})
	if err != nil {
		return nil, errors.NewObjectError("download", d.bucket, key, errors.FromStore(err))
	}
	defer output.Body.Close()

	if output.ContentLength != nil && *output.ContentLength > 0 {
		size = *output.ContentLength
	}

	pw := &progressWriter{
		dst:      writer,
		key:      key,
		total:    size,
		minDelta: d.cfg.ProgressByteDelta,
		progress: progress,
	}

	buf := pool.GetCopyBuffer()
	written, err := io.CopyBuffer(pw, output.Body, *buf)
	pool.PutCopyBuffer(buf)
	if err != nil {
		return nil, errors.NewObjectError("download", d.bucket, key, err)
	}

	// Final event regardless of delta.
	s3types.Emit(progress, s3types.TransferProgress{Key: key, Transferred: written, Total: written})

	return &s3types.DownloadResult{
		Key:      key,
		Size:     written,
		ETag:     aws.ToString(output.ETag),
		Duration: time.Since(start),
	}, nil
}

// presign generates a presigned GET URL under a download permit.
func (d *Downloader) presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	permit, err := d.limiter.Acquire(ctx, s3types.OpDownload)
	if err != nil {
		return "", err
	}
	defer permit.Release()

	req, err := d.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", errors.NewObjectError("presign", d.bucket, key, errors.FromStore(err))
	}
	return req.URL, nil
}

// progressWriter counts written bytes and emits progress events no more
// often than every minDelta bytes, independent of chunk size.
type progressWriter struct {
	dst        io.Writer
	key        string
	total      int64
	minDelta   int64
	progress   chan<- s3types.TransferProgress
	written    int64
	lastReport int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.written += int64(n)
		if w.written-w.lastReport >= w.minDelta {
			w.lastReport = w.written
			s3types.Emit(w.progress, s3types.TransferProgress{
				Key:         w.key,
				Transferred: w.written,
				Total:       w.total,
			})
		}
	}
	//nolint:wrapcheck // io.Writer contract - error comes from the destination
	return n, err
}

// httpStatusError converts a presigned-fetch status into an engine
// error, keeping the retry classifier's transient statuses retryable.
func httpStatusError(status int, key string) error {
	base := fmt.Errorf("unexpected status %d fetching %s", status, key)
	switch status {
	case http.StatusNotFound:
		return errors.NewError("download", errors.ErrNotFound)
	case http.StatusForbidden:
		return errors.NewError("download", errors.ErrAccessDenied)
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &transientHTTPError{status: status, err: base}
	default:
		return base
	}
}

// transientHTTPError marks a presigned-fetch failure as retryable.
type transientHTTPError struct {
	status int
	err    error
}

func (e *transientHTTPError) Error() string   { return e.err.Error() }
func (e *transientHTTPError) Timeout() bool   { return true }
func (e *transientHTTPError) Temporary() bool { return true }
