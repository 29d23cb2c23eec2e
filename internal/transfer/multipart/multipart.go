// Package multipart handles chunked uploads of large sources: fixed-size
// parts, a bounded number of concurrently in-flight parts, and a final
// assemble step that runs only after every part is acknowledged.
package multipart

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

const (
	// DefaultPartSize is the fixed part size when none is configured (8MB).
	DefaultPartSize = 8 * 1024 * 1024

	// DefaultConcurrency bounds in-flight parts when none is configured.
	DefaultConcurrency = 4

	// MinPartSize is the store's minimum non-final part size (5MB).
	MinPartSize = 5 * 1024 * 1024
)

// Config controls one multipart upload.
type Config struct {
	// PartSize is the fixed part size. Values below MinPartSize are
	// raised to it.
	PartSize int64

	// Concurrency bounds simultaneously in-flight parts.
	Concurrency int

	// ContentType is the object content type.
	ContentType string
}

// Uploader performs multipart uploads against one bucket.
type Uploader struct {
	client  s3api.S3API
	bucket  string
	limiter *ratelimit.Limiter
	policy  *retry.Policy
	logger  *slog.Logger
}

// New creates a multipart Uploader.
func New(client s3api.S3API, bucket string, limiter *ratelimit.Limiter, policy *retry.Policy, logger *slog.Logger) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  bucket,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

// Upload streams reader to key in fixed-size parts. Parts complete in
// any order; assembly happens only after all parts succeed. Progress is
// the sum of acknowledged part bytes, emitted once per part. cancelled
// is checked before each new part is scheduled; already-issued part
// uploads are not aborted mid-flight.
func (u *Uploader) Upload(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	cfg Config,
	progress chan<- s3types.TransferProgress,
	cancelled func() bool,
) (*s3types.UploadResult, error) {
	start := time.Now()

	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	uploadID, err := u.create(ctx, key, cfg.ContentType)
	if err != nil {
		return nil, err
	}

	numParts := int((size + partSize - 1) / partSize)
	if numParts == 0 {
		numParts = 1
	}
	completed := make([]awstypes.CompletedPart, numParts)

	var acked atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var scheduleErr error
	for partNum := int32(1); partNum <= int32(numParts); partNum++ {
		if cancelled() {
			scheduleErr = errors.NewObjectError("uploadPart", u.bucket, key, errors.ErrCancelled)
			break
		}
		if gctx.Err() != nil {
			break
		}

		remaining := size - int64(partNum-1)*partSize
		chunkLen := partSize
		if remaining < chunkLen {
			chunkLen = remaining
		}

		// Parts are read sequentially from the source and uploaded
		// concurrently; each part owns its buffer.
		buf := make([]byte, chunkLen)
		if _, err := io.ReadFull(reader, buf); err != nil {
			scheduleErr = errors.NewObjectError("uploadPart", u.bucket, key, err)
			break
		}

		pn := partNum
		g.Go(func() error {
			etag, err := u.uploadPart(gctx, key, uploadID, pn, buf)
			if err != nil {
				return err
			}
			completed[pn-1] = awstypes.CompletedPart{
				ETag:       aws.String(etag),
				PartNumber: aws.Int32(pn),
			}
			s3types.Emit(progress, s3types.TransferProgress{
				Key:         key,
				Transferred: acked.Add(int64(len(buf))),
				Total:       size,
			})
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil && scheduleErr == nil {
		scheduleErr = waitErr
	}
	if scheduleErr != nil {
		u.abort(ctx, key, uploadID)
		return nil, scheduleErr
	}

	etag, err := u.complete(ctx, key, uploadID, completed)
	if err != nil {
		u.abort(ctx, key, uploadID)
		return nil, err
	}

	return &s3types.UploadResult{
		Key:      key,
		Size:     acked.Load(),
		ETag:     etag,
		Duration: time.Since(start),
	}, nil
}

// create initiates the multipart upload.
func (u *Uploader) create(ctx context.Context, key, contentType string) (string, error) {
	permit, err := u.limiter.Acquire(ctx, s3types.OpUpload)
	if err != nil {
		return "", err
	}
	defer permit.Release()

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	var output *s3.CreateMultipartUploadOutput
	err = retry.Do(ctx, u.logger, "createMultipartUpload", u.policy, func(ctx context.Context) error {
		var callErr error
		output, callErr = u.client.CreateMultipartUpload(ctx, input)
		return callErr
	})
	if err != nil {
		return "", errors.NewObjectError("createMultipartUpload", u.bucket, key, err)
	}
	return aws.ToString(output.UploadId), nil
}

// uploadPart uploads one part under its own permit and retry cycle.
// Single-part PUTs are idempotent at the part level, so retrying here is
// safe.
func (u *Uploader) uploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (string, error) {
	permit, err := u.limiter.Acquire(ctx, s3types.OpUpload)
	if err != nil {
		return "", err
	}
	defer permit.Release()

	var output *s3.UploadPartOutput
	err = retry.Do(ctx, u.logger, "uploadPart", u.policy, func(ctx context.Context) error {
		input := &s3.UploadPartInput{
			Bucket:     aws.String(u.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data),
		}
		var callErr error
		output, callErr = u.client.UploadPart(ctx, input)
		return callErr
	})
	if err != nil {
		return "", errors.NewObjectError("uploadPart", u.bucket, key, err)
	}
	return aws.ToString(output.ETag), nil
}

// complete assembles the uploaded parts into the final object.
func (u *Uploader) complete(ctx context.Context, key, uploadID string, parts []awstypes.CompletedPart) (string, error) {
	permit, err := u.limiter.Acquire(ctx, s3types.OpUpload)
	if err != nil {
		return "", err
	}
	defer permit.Release()

	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	}

	var output *s3.CompleteMultipartUploadOutput
	err = retry.Do(ctx, u.logger, "completeMultipartUpload", u.policy, func(ctx context.Context) error {
		var callErr error
		output, callErr = u.client.CompleteMultipartUpload(ctx, input)
		return callErr
	})
	if err != nil {
		return "", errors.NewObjectError("completeMultipartUpload", u.bucket, key, err)
	}
	return aws.ToString(output.ETag), nil
}

// abort cleans up a failed multipart upload. Cleanup errors are logged
// and otherwise ignored; the store expires abandoned uploads anyway.
func (u *Uploader) abort(ctx context.Context, key, uploadID string) {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}
	if _, err := u.client.AbortMultipartUpload(context.WithoutCancel(ctx), input); err != nil && u.logger != nil {
		u.logger.Warn("abort multipart upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
