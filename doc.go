// Package s3zen provides the object storage operations engine behind a
// browser-style S3 bucket manager: listing with folder semantics,
// single and multipart uploads with conflict-aware batching, presigned
// and streamed downloads, share links, batch deletion, and recursive
// rename/move.
//
// All operations hang off an explicit Client bound to one bucket at
// construction:
//
//	client, err := s3zen.New(ctx,
//		s3zen.WithBucket("my-bucket"),
//		s3zen.WithRegion("us-east-1"),
//		s3zen.WithStaticCredentials(accessKey, secretKey, ""),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Preflight(ctx); err != nil {
//		return err
//	}
//
// Every user-supplied path is sanitized and validated before any
// network call. Remote calls run under per-category rate limits and
// retry policies; transient store failures are retried with jittered
// exponential backoff, everything else fails fast. Bulk operations
// report partial failure through BatchResult values, never through a
// returned error.
package s3zen
