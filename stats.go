package s3zen

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// fileCategories maps lowercased extensions (no dot) to a display
// category for the stats breakdown.
var fileCategories = map[string]string{
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image",
	"webp": "image", "svg": "image", "bmp": "image", "ico": "image",
	"tiff": "image", "heic": "image",

	"mp4": "video", "mov": "video", "avi": "video", "mkv": "video",
	"webm": "video", "m4v": "video", "wmv": "video", "flv": "video",

	"mp3": "audio", "wav": "audio", "flac": "audio", "aac": "audio",
	"ogg": "audio", "m4a": "audio", "wma": "audio",

	"pdf": "document", "doc": "document", "docx": "document",
	"xls": "document", "xlsx": "document", "ppt": "document",
	"pptx": "document", "txt": "document", "md": "document",
	"csv": "document", "rtf": "document", "odt": "document",

	"zip": "archive", "tar": "archive", "gz": "archive", "rar": "archive",
	"7z": "archive", "bz2": "archive", "xz": "archive", "tgz": "archive",
}

// otherCategory collects everything without a known extension,
// folder markers included.
const otherCategory = "other"

// BucketStats scans the whole bucket and aggregates object count, total
// size, and a per-category breakdown by file extension. The scan pages
// through every key under the same rate and retry discipline as
// listing, so it is safe to run against large buckets, just not fast.
func (c *Client) BucketStats(ctx context.Context) (*s3types.BucketStats, error) {
	if err := c.ready("bucketStats"); err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &s3types.BucketStats{
		Categories: make(map[string]s3types.CategoryStats),
	}

	for item := range c.lister.Scan(ctx, "") {
		if item.Err != nil {
			return nil, item.Err
		}

		stats.ObjectCount++
		stats.TotalSize += item.Object.Size

		cat := categorize(item.Object.Key)
		cs := stats.Categories[cat]
		cs.Count++
		cs.Size += item.Object.Size
		stats.Categories[cat] = cs
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// categorize resolves the stats category for one key.
func categorize(key string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if cat, ok := fileCategories[ext]; ok {
		return cat
	}
	return otherCategory
}
