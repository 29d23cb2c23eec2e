package s3zen

import (
	"context"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// DeleteKeys deletes the given object keys. Keys are validated up
// front; one invalid key fails the whole call before anything is
// deleted. Per-key outcomes, including partial failure, are reported in
// the result rather than as an error.
func (c *Client) DeleteKeys(ctx context.Context, keys []string) (*s3types.BatchResult, error) {
	if err := c.ready("deleteKeys"); err != nil {
		return nil, err
	}

	sanitized := make([]string, 0, len(keys))
	for _, raw := range keys {
		key, err := keypath.Sanitize(raw)
		if err != nil {
			return nil, err
		}
		sanitized = append(sanitized, key)
	}

	return c.deleter.DeleteKeys(ctx, sanitized)
}

// DeleteItems deletes a mixed selection of files and folders. Folders
// are expanded recursively to every descendant plus their own marker
// objects; overlapping selections are de-duplicated before deletion.
func (c *Client) DeleteItems(ctx context.Context, items []s3types.Entry) (*s3types.BatchResult, error) {
	if err := c.ready("deleteItems"); err != nil {
		return nil, err
	}
	return c.deleter.DeleteItems(ctx, c.lister, items)
}
