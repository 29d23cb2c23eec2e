package s3zen

import (
	"context"
	"io"
	"time"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// Download writes the object at path to writer. Small objects and
// downloads with no progress channel fetch through a short-lived
// presigned URL and report a single completion event; larger objects
// stream with byte-level progress. Progress events are dropped rather
// than block a slow consumer; the final event always arrives.
func (c *Client) Download(
	ctx context.Context,
	path string,
	writer io.Writer,
	progress chan<- s3types.TransferProgress,
) (*s3types.DownloadResult, error) {
	if err := c.ready("download"); err != nil {
		return nil, err
	}
	key, err := keypath.Sanitize(path)
	if err != nil {
		return nil, err
	}

	// Size drives fast/slow path selection. Without a progress channel
	// the presigned path is taken regardless, so skip the HEAD.
	size := int64(-1)
	if progress != nil {
		info, headErr := c.headObject(ctx, key)
		if headErr != nil {
			return nil, headErr
		}
		size = info.Size
	}

	return c.downloader.Download(ctx, key, size, writer, progress)
}

// ShareLink returns a presigned URL for the object at path, valid for
// the given expiry. Zero expiry uses the configured default; expiries
// beyond the configured maximum fail with ErrShareExpiryOutOfRange.
// The object's existence is not checked; sharing a missing key yields
// a URL that returns NoSuchKey when fetched.
func (c *Client) ShareLink(ctx context.Context, path string, expiry time.Duration) (string, error) {
	if err := c.ready("shareLink"); err != nil {
		return "", err
	}
	key, err := keypath.Sanitize(path)
	if err != nil {
		return "", err
	}
	if key == "" || key[len(key)-1] == '/' {
		return "", errors.NewObjectError("shareLink", c.cfg.Bucket, key, errors.ErrInvalidPath).
			WithMessage("share links require a file key")
	}
	return c.downloader.ShareLink(ctx, key, expiry)
}
