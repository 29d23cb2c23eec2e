// Package list implements the listing engine: paginated prefix listing
// with delimiter-based folder/file partitioning, and flat recursive
// scans used by the delete and rename engines.
package list

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// MaxPageSize is the store's per-request listing cap.
const MaxPageSize = 1000

// Lister handles paginated listing against one bucket.
type Lister struct {
	client  s3api.S3API
	bucket  string
	limiter *ratelimit.Limiter
	policy  *retry.Policy
	logger  *slog.Logger
}

// New creates a Lister. The prefix passed to each call is expected to be
// already sanitized by the caller.
func New(client s3api.S3API, bucket string, limiter *ratelimit.Limiter, policy *retry.Policy, logger *slog.Logger) *Lister {
	return &Lister{
		client:  client,
		bucket:  bucket,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

// Pages returns a pager over the immediate children of prefix,
// partitioned into folders and files via the store delimiter.
// The sequence reflects a snapshot at call time; a fresh pager starts
// over from the beginning.
func (l *Lister) Pages(prefix string) *Pager {
	return &Pager{
		lister:    l,
		prefix:    prefix,
		delimiter: keypath.Delimiter,
		firstPage: true,
	}
}

// FlatPages returns a pager over every key under prefix with no
// delimiter grouping: the flat recursive enumeration used for folder
// expansion, rename, and stats.
func (l *Lister) FlatPages(prefix string) *Pager {
	return &Pager{
		lister:    l,
		prefix:    prefix,
		firstPage: true,
	}
}

// Pager fetches listing pages one at a time in the order the store
// returns them. A failure on any page aborts the sequence.
type Pager struct {
	lister    *Lister
	prefix    string
	delimiter string
	token     string
	firstPage bool
	hasMore   bool
}

// HasMorePages reports whether another page can be fetched.
func (p *Pager) HasMorePages() bool {
	return p.firstPage || p.hasMore
}

// NextPage fetches the next page. Each page request holds one list
// permit and runs under the list retry policy.
func (p *Pager) NextPage(ctx context.Context) (*s3types.Page, error) {
	l := p.lister

	permit, err := l.limiter.Acquire(ctx, s3types.OpList)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(l.bucket),
		Prefix:  aws.String(p.prefix),
		MaxKeys: aws.Int32(MaxPageSize),
	}
	if p.delimiter != "" {
		input.Delimiter = aws.String(p.delimiter)
	}
	if !p.firstPage && p.token != "" {
		input.ContinuationToken = aws.String(p.token)
	}

	var output *s3.ListObjectsV2Output
	err = retry.Do(ctx, l.logger, "list", l.policy, func(ctx context.Context) error {
		var callErr error
		output, callErr = l.client.ListObjectsV2(ctx, input)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	p.firstPage = false
	p.hasMore = aws.ToBool(output.IsTruncated)
	p.token = aws.ToString(output.NextContinuationToken)

	return p.convert(output), nil
}

// convert partitions a raw listing page into folder and file entries.
// The prefix's own marker object is excluded.
func (p *Pager) convert(output *s3.ListObjectsV2Output) *s3types.Page {
	page := &s3types.Page{
		Items: make([]s3types.Entry, 0, len(output.CommonPrefixes)+len(output.Contents)),
	}
	if p.hasMore {
		page.NextToken = p.token
	}

	for _, cp := range output.CommonPrefixes {
		key := aws.ToString(cp.Prefix)
		display := strings.TrimPrefix(key, p.prefix)
		page.Items = append(page.Items, s3types.Entry{
			Key:         key,
			DisplayName: strings.TrimSuffix(display, keypath.Delimiter),
			Kind:        s3types.KindFolder,
		})
	}

	for _, obj := range output.Contents {
		key := aws.ToString(obj.Key)
		if key == p.prefix {
			continue
		}
		page.Items = append(page.Items, s3types.Entry{
			Key:          key,
			DisplayName:  strings.TrimPrefix(key, p.prefix),
			Kind:         s3types.KindFile,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
		})
	}

	return page
}

// ScanItem is one streamed result from Scan: an object or a terminal
// error.
type ScanItem struct {
	Object s3types.Entry
	Err    error
}

// Scan streams every key under prefix through a channel, fetching flat
// pages sequentially. The channel closes when the scan completes, the
// context is cancelled, or a page fails (the error is sent last).
// The prefix's own marker key is excluded like any other listing;
// callers that need it (folder deletion) add it explicitly.
func (l *Lister) Scan(ctx context.Context, prefix string) <-chan ScanItem {
	out := make(chan ScanItem, MaxPageSize)

	go func() {
		defer close(out)

		pager := l.FlatPages(prefix)
		for pager.HasMorePages() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			page, err := pager.NextPage(ctx)
			if err != nil {
				select {
				case out <- ScanItem{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			for _, item := range page.Items {
				select {
				case out <- ScanItem{Object: item}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
