package s3zen

import (
	"context"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/list"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// ListPager iterates the listing of one folder, page by page, in the
// order the store returns keys. Each page partitions entries into
// folders (common prefixes) and files. The sequence is a snapshot at
// call time; create a fresh pager to restart.
type ListPager struct {
	pager *list.Pager
}

// HasMorePages reports whether another page can be fetched.
func (p *ListPager) HasMorePages() bool {
	return p.pager.HasMorePages()
}

// NextPage fetches the next page of entries.
func (p *ListPager) NextPage(ctx context.Context) (*s3types.Page, error) {
	return p.pager.NextPage(ctx)
}

// List returns a pager over the immediate children of path. An empty
// path lists the bucket root. The folder's own marker object never
// appears in the results.
func (c *Client) List(path string) (*ListPager, error) {
	if err := c.ready("list"); err != nil {
		return nil, err
	}
	prefix, err := sanitizePrefix(path)
	if err != nil {
		return nil, err
	}
	return &ListPager{pager: c.lister.Pages(prefix)}, nil
}

// ListAll drains every page of a folder listing into one slice.
// Convenience over List for small folders; large folders should page.
func (c *Client) ListAll(ctx context.Context, path string) ([]s3types.Entry, error) {
	pager, err := c.List(path)
	if err != nil {
		return nil, err
	}

	var entries []s3types.Entry
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page.Items...)
	}
	return entries, nil
}

// sanitizePrefix normalizes a user-facing folder path into a listing
// prefix. Empty means the bucket root.
func sanitizePrefix(path string) (string, error) {
	if keypath.Clean(path) == "" {
		return "", nil
	}
	return keypath.SanitizeFolder(path)
}
