package s3zen

import (
	"context"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// Rename gives a file or folder a new name within its parent and
// returns the resulting key or prefix. The store has no native rename;
// objects are copied first and originals deleted after, so a mid-way
// failure can leave copies at the destination but never loses the
// originals.
//
// For files, a new name without a usable extension keeps the
// original's. Renaming to the current name is a no-op. For folders the
// returned BatchResult reports the per-key outcome of removing the
// originals; for files it is nil.
func (c *Client) Rename(ctx context.Context, item s3types.Entry, newName string) (string, *s3types.BatchResult, error) {
	if err := c.ready("rename"); err != nil {
		return "", nil, err
	}

	if item.IsFolder() {
		prefix, err := keypath.SanitizeFolder(item.Key)
		if err != nil {
			return "", nil, err
		}
		return c.renamer.RenameFolder(ctx, prefix, newName)
	}

	key, err := keypath.Sanitize(item.Key)
	if err != nil {
		return "", nil, err
	}
	newKey, err := c.renamer.RenameFile(ctx, key, newName)
	return newKey, nil, err
}

// Move relocates a selection of files and folders under the destination
// folder, keeping their names. An empty destination means the bucket
// root. Folders move recursively; each item is copied before its
// original is removed, and per-item failures are reported in the
// result.
func (c *Client) Move(ctx context.Context, items []s3types.Entry, destFolder string) (*s3types.BatchResult, error) {
	if err := c.ready("move"); err != nil {
		return nil, err
	}
	destPrefix, err := sanitizePrefix(destFolder)
	if err != nil {
		return nil, err
	}
	return c.renamer.Move(ctx, items, destPrefix)
}
