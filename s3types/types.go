// Package s3types provides shared type definitions for the storage engine.
package s3types

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/dustin/go-humanize"
)

// OpCategory identifies a class of remote operations for retry and
// rate-limit purposes. The set is closed; every engine call maps to
// exactly one category.
type OpCategory int

// Operation categories.
const (
	// OpList covers paginated prefix listings and flat scans.
	OpList OpCategory = iota

	// OpUpload covers PutObject and all multipart upload calls.
	OpUpload

	// OpDownload covers GetObject and presigned GET generation.
	OpDownload

	// OpDelete covers single and batched object deletion.
	OpDelete

	// OpCopy covers server-side CopyObject calls.
	OpCopy

	// OpStat covers HeadObject, HeadBucket, and identity checks.
	OpStat
)

// String returns the category name for logging.
func (c OpCategory) String() string {
	switch c {
	case OpList:
		return "list"
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	case OpDelete:
		return "delete"
	case OpCopy:
		return "copy"
	case OpStat:
		return "stat"
	default:
		return "unknown"
	}
}

// Categories lists every operation category. Used when building
// per-category retry policies and rate-limit buckets.
func Categories() []OpCategory {
	return []OpCategory{OpList, OpUpload, OpDownload, OpDelete, OpCopy, OpStat}
}

// EntryKind distinguishes files from pseudo-folders in listing results.
type EntryKind int

const (
	// KindFile is a regular object.
	KindFile EntryKind = iota

	// KindFolder is a common-prefix pseudo-folder.
	KindFolder
)

// Entry represents one item produced by the listing engine.
// Entries are immutable values; each listing call yields a fresh set.
type Entry struct {
	// Key is the full object key. Folder keys end in "/".
	Key string

	// DisplayName is the key with the queried prefix stripped and,
	// for folders, the trailing delimiter removed.
	DisplayName string

	// Kind indicates whether the entry is a file or a folder.
	Kind EntryKind

	// Size is the object size in bytes. Always 0 for folders.
	Size int64

	// LastModified is the object's modification time. Zero for folders.
	LastModified time.Time

	// ETag is the store entity tag, when reported.
	ETag string
}

// IsFolder reports whether the entry is a pseudo-folder.
func (e Entry) IsFolder() bool { return e.Kind == KindFolder }

// Page is one page of listing results.
type Page struct {
	// Items are the entries on this page, folders first.
	Items []Entry

	// NextToken continues the listing when non-empty.
	NextToken string
}

// KeyError describes a single key that failed inside a bulk operation.
type KeyError struct {
	Key     string
	Code    string
	Message string
}

// BatchResult is the uniform result shape for bulk operations.
// Partial failure is reported here, never as a returned error.
type BatchResult struct {
	// Succeeded holds the keys that completed.
	Succeeded []string

	// Failed holds per-key failures.
	Failed []KeyError

	// Duration is how long the whole operation took.
	Duration time.Duration
}

// Merge folds another result into this one.
func (r *BatchResult) Merge(other *BatchResult) {
	if other == nil {
		return
	}
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	r.Failed = append(r.Failed, other.Failed...)
}

// TransferProgress is a progress event emitted during uploads and
// downloads. Events are delivered over a channel owned by the caller;
// sends never block, so a slow consumer loses intermediate events but
// always receives the final one.
type TransferProgress struct {
	// Key is the object key the transfer belongs to.
	Key string

	// Transferred is the number of bytes acknowledged so far.
	Transferred int64

	// Total is the expected total size, or -1 when unknown.
	Total int64
}

// Done reports whether the event marks a completed transfer.
func (p TransferProgress) Done() bool { return p.Total >= 0 && p.Transferred >= p.Total }

// Emit sends a progress event without blocking. A nil channel is a no-op.
func Emit(ch chan<- TransferProgress, ev TransferProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// TaskState tracks the lifecycle of a batch upload task.
type TaskState int32

const (
	// TaskQueued means the task is waiting for a worker.
	TaskQueued TaskState = iota

	// TaskAwaitingConflict means a duplicate display name was found in
	// the target location and the task is suspended until the caller
	// resolves the conflict.
	TaskAwaitingConflict

	// TaskInFlight means bytes are moving.
	TaskInFlight

	// TaskCompleted means the upload finished.
	TaskCompleted

	// TaskFailed means the upload failed or was cancelled.
	TaskFailed
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskAwaitingConflict:
		return "awaiting-conflict"
	case TaskInFlight:
		return "in-flight"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConflictDecision is the caller's answer to a duplicate-name conflict.
type ConflictDecision int

const (
	// DecisionOverwrite uploads over the existing object.
	DecisionOverwrite ConflictDecision = iota

	// DecisionKeepBoth uploads under a derived, non-conflicting name.
	DecisionKeepBoth

	// DecisionSkip abandons the task without uploading.
	DecisionSkip
)

// UploadResult contains the result of a single upload.
type UploadResult struct {
	// Key is the object key that was written. May differ from the
	// requested key after a keep-both conflict resolution.
	Key string

	// Size is the number of bytes uploaded.
	Size int64

	// ETag is the store entity tag of the written object.
	ETag string

	// Duration is how long the upload took.
	Duration time.Duration
}

// DownloadResult contains the result of a download.
type DownloadResult struct {
	// Key is the object key that was read.
	Key string

	// Size is the number of bytes written to the destination.
	Size int64

	// ETag is the store entity tag of the object.
	ETag string

	// Duration is how long the download took.
	Duration time.Duration
}

// ObjectInfo is the metadata returned by a HEAD lookup.
type ObjectInfo struct {
	// Key is the object key.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ContentType is the stored content type, when reported.
	ContentType string

	// LastModified is the object's modification time.
	LastModified time.Time

	// ETag is the store entity tag.
	ETag string
}

// CategoryStats is one slice of the bucket stats breakdown.
type CategoryStats struct {
	Count int64
	Size  int64
}

// BucketStats is the aggregate produced by a full recursive scan.
type BucketStats struct {
	// ObjectCount is the number of objects, folder markers included.
	ObjectCount int64

	// TotalSize is the sum of object sizes in bytes.
	TotalSize int64

	// Categories breaks the totals down by file category
	// (image, video, audio, document, archive, other).
	Categories map[string]CategoryStats

	// Duration is how long the scan took.
	Duration time.Duration
}

// HumanTotalSize renders the total size for display.
func (s BucketStats) HumanTotalSize() string {
	if s.TotalSize < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(s.TotalSize))
}

// RetryConfig is the per-category retry policy surface.
// Values are immutable after client construction.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff base for attempt zero.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff before jitter.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay by +/- this fraction.
	JitterFraction float64
}

// ClientConfig holds configuration for the storage client.
type ClientConfig struct {
	// Bucket, Region, and Endpoint identify the target store.
	Bucket   string
	Region   string
	Endpoint string

	// Static credentials supplied by the credential collaborator.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ForcePathStyle enables path-style addressing for S3-compatible
	// stores that do not support virtual hosting.
	ForcePathStyle bool

	// MultipartThreshold is the size above which uploads switch to
	// multipart. Sources of exactly this size use single-shot.
	MultipartThreshold int64

	// PartSize is the fixed multipart part size.
	PartSize int64

	// PartConcurrency bounds simultaneously in-flight parts of one
	// multipart upload.
	PartConcurrency int

	// BatchConcurrency bounds simultaneous uploads in a batch, and the
	// copy window during folder renames.
	BatchConcurrency int

	// MaxObjectSize is the absolute upload size cap. Zero disables it.
	MaxObjectSize int64

	// PresignThreshold is the size below which downloads use the
	// presigned fast path even when progress is requested.
	PresignThreshold int64

	// ProgressByteDelta is the minimum accumulated byte delta between
	// streamed progress events.
	ProgressByteDelta int64

	// DefaultShareExpiry and MaxShareExpiry bound share link lifetimes.
	DefaultShareExpiry time.Duration
	MaxShareExpiry     time.Duration

	// Retry holds per-category retry policies. Missing categories use
	// the engine default.
	Retry map[OpCategory]RetryConfig

	// RateLimits holds per-category permit counts. Missing categories
	// use the engine default.
	RateLimits map[OpCategory]int64

	// Logger receives retry and scheduling diagnostics. Nil discards.
	Logger *slog.Logger

	// CustomAWSConfig overrides default AWS configuration loading.
	CustomAWSConfig *aws.Config

	// HTTPClient overrides the SDK's HTTP client.
	HTTPClient *http.Client
}

// Option is a functional option for configuring the storage client.
type Option func(*ClientConfig)
