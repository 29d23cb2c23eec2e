package download

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
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

func newDownloader(client s3api.S3API, presigner s3api.PresignAPI, httpClient *http.Client, cfg Config) *Downloader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, presigner, httpClient, "test-bucket", ratelimit.New(nil), retry.DefaultPolicy(), logger, cfg)
}

func presignTo(url string) *testutil.MockPresignClient {
	return &testutil.MockPresignClient{
		PresignGetObjectFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
			return &v4.PresignedHTTPRequest{URL: url, Method: http.MethodGet}, nil
		},
	}
}

// Small objects fetch through the presigned URL and report one
// completion event.
func TestDownloadPresignedFastPath(t *testing.T) {
	content := []byte("small object content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newDownloader(testutil.NewFakeBucket(), presignTo(server.URL), server.Client(), Config{
		PresignThreshold: 1024,
	})

	var buf bytes.Buffer
	progress := make(chan s3types.TransferProgress, 4)
	result, err := d.Download(context.Background(), "small.txt", int64(len(content)), &buf, progress)

	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())
	assert.Equal(t, int64(len(content)), result.Size)

	close(progress)
	var events []s3types.TransferProgress
	for ev := range progress {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].Done())
}

// Without a progress channel the presigned path is taken regardless of
// size; GetObject is never called.
func TestDownloadNoProgressUsesPresigned(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(content)
	}))
	defer server.Close()

	mock := testutil.NewMockBuilder().
		WithGetObject(func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			t.Fatal("GetObject must not be called on the presigned path")
			return nil, nil
		}).
		Build()

	d := newDownloader(mock, presignTo(server.URL), server.Client(), Config{
		PresignThreshold: 1, // size is over the threshold
	})

	var buf bytes.Buffer
	result, err := d.Download(context.Background(), "any.bin", int64(len(content)), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Size)
}

// Large objects with a progress consumer stream through GetObject with
// delta-gated events.
func TestDownloadStreamingProgress(t *testing.T) {
	const size = 1 << 20
	content := bytes.Repeat([]byte("s"), size)

	fake := testutil.NewFakeBucket()
	fake.Seed("large.bin", content)

	const minDelta = 256 * 1024
	d := newDownloader(fake, presignTo("unused"), nil, Config{
		PresignThreshold:  1024,
		ProgressByteDelta: minDelta,
	})

	var buf bytes.Buffer
	progress := make(chan s3types.TransferProgress, 64)
	result, err := d.Download(context.Background(), "large.bin", size, &buf, progress)

	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())
	assert.Equal(t, int64(size), result.Size)

	close(progress)
	var events []s3types.TransferProgress
	for ev := range progress {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	// Intermediate events are at least minDelta apart; the last event
	// is the completion.
	for i := 1; i < len(events)-1; i++ {
		assert.GreaterOrEqual(t, events[i].Transferred-events[i-1].Transferred, int64(minDelta))
	}
	assert.True(t, events[len(events)-1].Done())
	assert.Equal(t, int64(size), events[len(events)-1].Transferred)
}

// Once body bytes have reached the caller's writer a failure must not
// retry into the same writer; the partial transfer surfaces as an
// error instead of a success with duplicated bytes.
func TestDownloadPresignedNoRetryAfterPartialBody(t *testing.T) {
	content := []byte("0123456789abcdef")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			// Declaring the full length but writing half of it makes the
			// server drop the connection mid-body.
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			_, _ = w.Write(content[:8])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newDownloader(testutil.NewFakeBucket(), presignTo(server.URL), server.Client(), Config{
		PresignThreshold: 1024,
	})

	var buf bytes.Buffer
	_, err := d.Download(context.Background(), "flaky.bin", int64(len(content)), &buf, nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "partial body must not trigger a second fetch")
	assert.LessOrEqual(t, buf.Len(), 8, "writer must not hold duplicated bytes")
}

// A transient status before any body bytes still retries.
func TestDownloadPresignedRetriesTransientStatus(t *testing.T) {
	content := []byte("eventually fine")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newDownloader(testutil.NewFakeBucket(), presignTo(server.URL), server.Client(), Config{
		PresignThreshold: 1024,
	})

	var buf bytes.Buffer
	result, err := d.Download(context.Background(), "recovers.txt", int64(len(content)), &buf, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, content, buf.Bytes())
	assert.Equal(t, int64(len(content)), result.Size)
}

func TestDownloadStreamingMissingKey(t *testing.T) {
	d := newDownloader(testutil.NewFakeBucket(), presignTo("unused"), nil, Config{
		PresignThreshold: 1,
	})

	var buf bytes.Buffer
	progress := make(chan s3types.TransferProgress, 4)
	_, err := d.Download(context.Background(), "missing.bin", 4096, &buf, progress)

	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDownloadPresignedNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := newDownloader(testutil.NewFakeBucket(), presignTo(server.URL), server.Client(), Config{
		PresignThreshold: 1024,
	})

	var buf bytes.Buffer
	_, err := d.Download(context.Background(), "gone.txt", 10, &buf, nil)

	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestShareLinkExpiry(t *testing.T) {
	var gotExpiry time.Duration
	presigner := &testutil.MockPresignClient{
		PresignGetObjectFunc: func(_ context.Context, _ *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
			opts := &s3.PresignOptions{}
			for _, fn := range optFns {
				fn(opts)
			}
			gotExpiry = opts.Expires
			return &v4.PresignedHTTPRequest{URL: "https://example.com/signed"}, nil
		},
	}

	d := newDownloader(testutil.NewFakeBucket(), presigner, nil, Config{
		DefaultExpiry: time.Hour,
		MaxExpiry:     24 * time.Hour,
	})

	url, err := d.ShareLink(context.Background(), "file.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/signed", url)
	assert.Equal(t, time.Hour, gotExpiry)

	_, err = d.ShareLink(context.Background(), "file.txt", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, gotExpiry)
}

func TestShareLinkExpiryOutOfRange(t *testing.T) {
	d := newDownloader(testutil.NewFakeBucket(), presignTo("unused"), nil, Config{
		DefaultExpiry: time.Hour,
		MaxExpiry:     24 * time.Hour,
	})

	_, err := d.ShareLink(context.Background(), "file.txt", 48*time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrShareExpiryOutOfRange)

	_, err = d.ShareLink(context.Background(), "file.txt", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrShareExpiryOutOfRange)
}
