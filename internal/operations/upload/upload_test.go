package upload

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/testutil"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// routeRecorder counts single-shot PUTs and multipart initiations.
type routeRecorder struct {
	s3api.S3API

	puts       atomic.Int32
	multiparts atomic.Int32
}

func (r *routeRecorder) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	r.puts.Add(1)
	return r.S3API.PutObject(ctx, params, optFns...)
}

func (r *routeRecorder) CreateMultipartUpload(
	ctx context.Context,
	params *s3.CreateMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	r.multiparts.Add(1)
	return r.S3API.CreateMultipartUpload(ctx, params, optFns...)
}

func newUploader(client s3api.S3API, cfg Config) *Uploader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, "test-bucket", ratelimit.New(nil), retry.DefaultPolicy(), logger, cfg)
}

// A source of exactly the threshold stays single-shot; one byte more
// goes multipart.
func TestUploadThresholdRouting(t *testing.T) {
	const threshold = 1024

	tests := []struct {
		name           string
		size           int64
		wantPuts       int32
		wantMultiparts int32
	}{
		{"below threshold", threshold - 1, 1, 0},
		{"exactly threshold", threshold, 1, 0},
		{"one over threshold", threshold + 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBucket()
			rec := &routeRecorder{S3API: fake}
			u := newUploader(rec, Config{
				MultipartThreshold: threshold,
				PartSize:           5 * 1024 * 1024,
				PartConcurrency:    2,
			})

			data := bytes.Repeat([]byte("z"), int(tt.size))
			result, err := u.Upload(context.Background(), "files/data.bin", bytes.NewReader(data), tt.size, nil, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.wantPuts, rec.puts.Load())
			assert.Equal(t, tt.wantMultiparts, rec.multiparts.Load())
			assert.Equal(t, "files/data.bin", result.Key)

			stored, ok := fake.Get("files/data.bin")
			require.True(t, ok)
			assert.Equal(t, data, stored)
		})
	}
}

// Oversized sources are rejected before any network call.
func TestUploadSizeCapRejectedPreflight(t *testing.T) {
	fake := testutil.NewFakeBucket()
	rec := &routeRecorder{S3API: fake}
	u := newUploader(rec, Config{
		MultipartThreshold: 1024,
		MaxObjectSize:      100,
	})

	_, err := u.Upload(context.Background(), "big.bin", bytes.NewReader(make([]byte, 200)), 200, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSizeExceeded)
	assert.Equal(t, int32(0), rec.puts.Load())
	assert.Equal(t, int32(0), rec.multiparts.Load())
	assert.Empty(t, fake.Keys())
}

func TestUploadEmitsFinalProgress(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake, Config{MultipartThreshold: 1024})

	progress := make(chan s3types.TransferProgress, 8)
	data := []byte("hello world")
	_, err := u.Upload(context.Background(), "greeting.txt", bytes.NewReader(data), int64(len(data)), progress, nil)
	require.NoError(t, err)

	select {
	case ev := <-progress:
		assert.Equal(t, "greeting.txt", ev.Key)
		assert.Equal(t, int64(len(data)), ev.Transferred)
		assert.True(t, ev.Done())
	default:
		t.Fatal("expected a progress event")
	}
}

func TestUploadCancelledBeforeStart(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake, Config{MultipartThreshold: 1024})

	cancelled := func() bool { return true }
	_, err := u.Upload(context.Background(), "x.txt", bytes.NewReader([]byte("x")), 1, nil, cancelled)

	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.Empty(t, fake.Keys())
}

func TestUploadSetsContentType(t *testing.T) {
	fake := testutil.NewFakeBucket()

	var gotContentType string
	mock := testutil.NewMockBuilder().
		WithPutObject(func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			if params.ContentType != nil {
				gotContentType = *params.ContentType
			}
			return fake.PutObject(ctx, params)
		}).
		Build()

	u := newUploader(mock, Config{MultipartThreshold: 1 << 20})
	payload := []byte(`{"ok":true}`)
	_, err := u.Upload(context.Background(), "data.json", bytes.NewReader(payload), int64(len(payload)), nil, nil)

	require.NoError(t, err)
	assert.Contains(t, gotContentType, "json")
}

func TestCreateFolderMarker(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake, Config{MultipartThreshold: 1024})

	require.NoError(t, u.CreateFolderMarker(context.Background(), "projects/new/"))

	data, ok := fake.Get("projects/new/")
	require.True(t, ok)
	assert.Empty(t, data)
}
