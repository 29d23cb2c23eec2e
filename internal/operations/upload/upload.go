// Package upload implements single uploads: single-shot PutObject for
// small sources and delegation to the multipart engine above the
// configured threshold. Batch scheduling and conflict handling live in
// the root package; this engine moves one object's bytes.
package upload

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/transfer/multipart"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// DefaultContentType is used when content type detection fails.
const DefaultContentType = "application/octet-stream"

// Config holds the upload engine's size gates. All values come from
// client configuration, never per call.
type Config struct {
	// MultipartThreshold is the size above which uploads go multipart.
	// A source of exactly this size stays single-shot.
	MultipartThreshold int64

	// PartSize and PartConcurrency configure the multipart engine.
	PartSize        int64
	PartConcurrency int

	// MaxObjectSize is the absolute cap; zero disables it.
	MaxObjectSize int64
}

// Uploader handles single-object uploads against one bucket.
type Uploader struct {
	client  s3api.S3API
	bucket  string
	limiter *ratelimit.Limiter
	policy  *retry.Policy
	logger  *slog.Logger
	mp      *multipart.Uploader
	cfg     Config
}

// New creates an Uploader.
func New(client s3api.S3API, bucket string, limiter *ratelimit.Limiter, policy *retry.Policy, logger *slog.Logger, cfg Config) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  bucket,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		mp:      multipart.New(client, bucket, limiter, policy, logger),
		cfg:     cfg,
	}
}

// Upload writes reader to key. Sources above the multipart threshold
// use the multipart engine; everything else is one PutObject. The key
// is expected to be already sanitized; the size gate runs before any
// permit is consumed.
func (u *Uploader) Upload(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	progress chan<- s3types.TransferProgress,
	cancelled func() bool,
) (*s3types.UploadResult, error) {
	if u.cfg.MaxObjectSize > 0 && size > u.cfg.MaxObjectSize {
		return nil, errors.NewObjectError("upload", u.bucket, key, errors.ErrSizeExceeded).
			WithMessage("source is " + humanize.IBytes(uint64(size)) +
				", maximum is " + humanize.IBytes(uint64(u.cfg.MaxObjectSize)))
	}

	if cancelled != nil && cancelled() {
		return nil, errors.NewObjectError("upload", u.bucket, key, errors.ErrCancelled)
	}

	if size > u.cfg.MultipartThreshold {
		return u.mp.Upload(ctx, key, reader, size, multipart.Config{
			PartSize:    u.cfg.PartSize,
			Concurrency: u.cfg.PartConcurrency,
			ContentType: contentTypeByExtension(key),
		}, progress, cancelled)
	}

	return u.uploadSingle(ctx, key, reader, size, progress)
}

// CreateFolderMarker writes the zero-byte marker object for a folder
// key.
func (u *Uploader) CreateFolderMarker(ctx context.Context, key string) error {
	_, err := u.uploadSingle(ctx, key, bytes.NewReader(nil), 0, nil)
	return err
}

// uploadSingle performs one PutObject with content sniffing.
func (u *Uploader) uploadSingle(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	progress chan<- s3types.TransferProgress,
) (*s3types.UploadResult, error) {
	start := time.Now()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewObjectError("upload", u.bucket, key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		size = int64(len(data))
	}

	permit, err := u.limiter.Acquire(ctx, s3types.OpUpload)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(detectContentType(key, data)),
		ContentLength: aws.Int64(size),
	}

	var output *s3.PutObjectOutput
	err = retry.Do(ctx, u.logger, "putObject", u.policy, func(ctx context.Context) error {
		input.Body = bytes.NewReader(data)
		var callErr error
		output, callErr = u.client.PutObject(ctx, input)
		return callErr
	})
	if err != nil {
		return nil, errors.NewObjectError("upload", u.bucket, key, err)
	}

	s3types.Emit(progress, s3types.TransferProgress{Key: key, Transferred: size, Total: size})

	return &s3types.UploadResult{
		Key:      key,
		Size:     size,
		ETag:     aws.ToString(output.ETag),
		Duration: time.Since(start),
	}, nil
}

// detectContentType sniffs the payload, falling back to the key's
// extension.
func detectContentType(key string, data []byte) string {
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}
	return contentTypeByExtension(key)
}

// contentTypeByExtension resolves a content type from the key alone.
// Multipart sources are not sniffed since their bytes stream through
// fixed part buffers.
func contentTypeByExtension(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
