// Package s3zen provides functional options for configuring client behavior.
// These options follow the functional options pattern for clean, composable configuration.
package s3zen

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// WithBucket sets the bucket the client is bound to. Required.
func WithBucket(bucket string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Bucket = bucket
	}
}

// WithRegion sets the AWS region.
// If not specified, uses the default region from the credential chain.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom endpoint URL.
// Useful for S3-compatible services or local testing.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithStaticCredentials supplies fixed credentials instead of the
// default credential chain. sessionToken may be empty.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
		c.SessionToken = sessionToken
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
// Required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMultipartThreshold sets the size above which uploads switch to
// multipart. Sources of exactly this size stay single-shot.
func WithMultipartThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if threshold > 0 {
			c.MultipartThreshold = threshold
		}
	}
}

// WithPartSize sets the fixed part size for multipart uploads.
// Default is 8MB. Must be at least 5MB for S3 multipart uploads.
func WithPartSize(partSize int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithPartConcurrency bounds simultaneously in-flight parts of one
// multipart upload.
func WithPartConcurrency(concurrency int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if concurrency > 0 {
			c.PartConcurrency = concurrency
		}
	}
}

// WithBatchConcurrency bounds simultaneous uploads in a batch and the
// copy window during folder renames.
func WithBatchConcurrency(concurrency int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if concurrency > 0 {
			c.BatchConcurrency = concurrency
		}
	}
}

// WithMaxObjectSize sets the absolute upload size cap. Oversized
// sources are rejected before any network call. Zero disables the cap.
func WithMaxObjectSize(maxSize int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxObjectSize = maxSize
	}
}

// WithPresignThreshold sets the size at or below which downloads use
// the presigned fast path even when progress is requested.
func WithPresignThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if threshold > 0 {
			c.PresignThreshold = threshold
		}
	}
}

// WithProgressByteDelta sets the minimum accumulated byte delta between
// streamed download progress events.
func WithProgressByteDelta(delta int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if delta > 0 {
			c.ProgressByteDelta = delta
		}
	}
}

// WithShareExpiry sets the default and maximum share link lifetimes.
// The maximum is capped at the signing scheme's 7-day limit.
func WithShareExpiry(defaultExpiry, maxExpiry time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if defaultExpiry > 0 {
			c.DefaultShareExpiry = defaultExpiry
		}
		if maxExpiry > 0 {
			c.MaxShareExpiry = maxExpiry
		}
	}
}

// WithRetry sets the retry policy for one operation category.
// Unset fields fall back to the engine default.
func WithRetry(cat s3types.OpCategory, rc s3types.RetryConfig) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if c.Retry == nil {
			c.Retry = make(map[s3types.OpCategory]s3types.RetryConfig)
		}
		c.Retry[cat] = rc
	}
}

// WithRateLimit sets the concurrent-permit count for one operation
// category. Categories without an explicit limit use the engine default.
func WithRateLimit(cat s3types.OpCategory, permits int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if c.RateLimits == nil {
			c.RateLimits = make(map[s3types.OpCategory]int64)
		}
		c.RateLimits[cat] = permits
	}
}

// WithLogger sets the logger for retry and scheduling diagnostics.
// By default diagnostics are discarded.
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithHTTPClient allows providing a custom HTTP client, used both by
// the SDK and for fetching presigned download URLs.
func WithHTTPClient(client *http.Client) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.HTTPClient = client
	}
}
