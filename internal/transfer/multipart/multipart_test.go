package multipart

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

func newUploader(client s3api.S3API) *Uploader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, "test-bucket", ratelimit.New(nil), retry.DefaultPolicy(), logger)
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// Parts complete in any order; the assembled object must still be
// byte-identical to the source.
func TestUploadAssemblesPartsInOrder(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake)

	size := 2*MinPartSize + 1234
	data := pattern(size)

	result, err := u.Upload(context.Background(), "big/file.bin", bytes.NewReader(data), int64(size), Config{
		PartSize:    MinPartSize,
		Concurrency: 3,
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(size), result.Size)

	stored, ok := fake.Get("big/file.bin")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, stored), "assembled object differs from source")
}

func TestUploadEmitsPerPartProgress(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake)

	size := 3 * MinPartSize
	progress := make(chan s3types.TransferProgress, 16)

	_, err := u.Upload(context.Background(), "big.bin", bytes.NewReader(pattern(size)), int64(size), Config{
		PartSize:    MinPartSize,
		Concurrency: 1,
	}, progress, nil)
	require.NoError(t, err)
	close(progress)

	var events []s3types.TransferProgress
	for ev := range progress {
		events = append(events, ev)
	}
	require.Len(t, events, 3)

	// Progress is the sum of acknowledged part bytes, monotone with
	// sequential parts.
	var prev int64
	for _, ev := range events {
		assert.Greater(t, ev.Transferred, prev)
		assert.Equal(t, int64(size), ev.Total)
		prev = ev.Transferred
	}
	assert.True(t, events[len(events)-1].Done())
}

// A failing part aborts the upload; no assembled object appears.
type failingPartClient struct {
	s3api.S3API

	aborts atomic.Int32
}

func (f *failingPartClient) UploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	if *params.PartNumber == 2 {
		return nil, &injectedError{}
	}
	return f.S3API.UploadPart(ctx, params, optFns...)
}

func (f *failingPartClient) AbortMultipartUpload(
	ctx context.Context,
	params *s3.AbortMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.aborts.Add(1)
	return f.S3API.AbortMultipartUpload(ctx, params, optFns...)
}

type injectedError struct{}

func (e *injectedError) Error() string { return "injected part failure" }

func TestUploadAbortsOnPartFailure(t *testing.T) {
	fake := testutil.NewFakeBucket()
	client := &failingPartClient{S3API: fake}
	u := newUploader(client)

	size := 3 * MinPartSize
	_, err := u.Upload(context.Background(), "big.bin", bytes.NewReader(pattern(size)), int64(size), Config{
		PartSize:    MinPartSize,
		Concurrency: 2,
	}, nil, nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), client.aborts.Load())
	_, ok := fake.Get("big.bin")
	assert.False(t, ok, "no object must exist after an aborted upload")
}

// Cancellation between parts stops scheduling and aborts the upload.
func TestUploadCancelledMidway(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake)

	var calls atomic.Int32
	cancelled := func() bool {
		// Allow the first part to schedule, then cancel.
		return calls.Add(1) > 1
	}

	size := 3 * MinPartSize
	_, err := u.Upload(context.Background(), "big.bin", bytes.NewReader(pattern(size)), int64(size), Config{
		PartSize:    MinPartSize,
		Concurrency: 1,
	}, nil, cancelled)

	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	_, ok := fake.Get("big.bin")
	assert.False(t, ok)
}

func TestUploadRaisesPartSizeToMinimum(t *testing.T) {
	fake := testutil.NewFakeBucket()
	u := newUploader(fake)

	// A tiny configured part size must not produce hundreds of parts.
	size := MinPartSize + 100
	data := pattern(size)
	_, err := u.Upload(context.Background(), "f.bin", bytes.NewReader(data), int64(size), Config{
		PartSize:    1024,
		Concurrency: 2,
	}, nil, nil)

	require.NoError(t, err)
	stored, ok := fake.Get("f.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)
}
