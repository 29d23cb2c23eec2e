// Package delete implements the batch delete engine: chunking arbitrary
// key sets into store-size-limited batches, dispatching them in
// parallel, and aggregating partial failures into a single result.
package delete

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/list"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// MaxBatchSize is the store's per-request deletion cap.
const MaxBatchSize = 1000

// defaultParallelism bounds concurrently dispatched delete batches.
const defaultParallelism = 3

// BatchDeleter handles chunked, parallel deletion of object keys.
type BatchDeleter struct {
	client      s3api.S3API
	bucket      string
	limiter     *ratelimit.Limiter
	policy      *retry.Policy
	logger      *slog.Logger
	parallelism int
}

// New creates a BatchDeleter.
func New(client s3api.S3API, bucket string, limiter *ratelimit.Limiter, policy *retry.Policy, logger *slog.Logger) *BatchDeleter {
	return &BatchDeleter{
		client:      client,
		bucket:      bucket,
		limiter:     limiter,
		policy:      policy,
		logger:      logger,
		parallelism: defaultParallelism,
	}
}

// DeleteKeys deletes the given keys and reports per-key outcomes.
// Every key is validated up front; a single invalid key fails the whole
// call before any remote side effect, since keys reaching this layer
// should already be known-good.
func (b *BatchDeleter) DeleteKeys(ctx context.Context, keys []string) (*s3types.BatchResult, error) {
	start := time.Now()

	for _, key := range keys {
		if err := keypath.ValidateKey(key); err != nil {
			return nil, err
		}
	}

	result := &s3types.BatchResult{}
	if len(keys) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	batches := splitIntoBatches(keys, MaxBatchSize)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, b.parallelism)

	for _, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}

		go func(batchKeys []string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			batchResult := b.deleteBatch(ctx, batchKeys)

			mu.Lock()
			result.Merge(batchResult)
			mu.Unlock()
		}(batch)
	}

	wg.Wait()

	result.Duration = time.Since(start)
	return result, nil
}

// DeleteItems deletes a mixed set of files and folders. Folders are
// expanded to every descendant key via a flat recursive scan plus the
// folder's own marker key; the unioned, de-duplicated set is then
// deleted as one flat key set.
func (b *BatchDeleter) DeleteItems(ctx context.Context, lister *list.Lister, items []s3types.Entry) (*s3types.BatchResult, error) {
	start := time.Now()

	seen := make(map[string]struct{})
	flat := make([]string, 0, len(items))
	add := func(key string) {
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			flat = append(flat, key)
		}
	}

	for _, item := range items {
		if err := keypath.ValidateKey(item.Key); err != nil {
			return nil, err
		}
		if !item.IsFolder() {
			add(item.Key)
			continue
		}

		for scanned := range lister.Scan(ctx, item.Key) {
			if scanned.Err != nil {
				return nil, scanned.Err
			}
			add(scanned.Object.Key)
		}
		add(item.Key)
	}

	result, err := b.DeleteKeys(ctx, flat)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// deleteBatch issues one DeleteObjects call under a permit and the
// delete retry policy. A whole-batch failure is folded into per-key
// failures rather than aborting sibling batches.
func (b *BatchDeleter) deleteBatch(ctx context.Context, keys []string) *s3types.BatchResult {
	result := &s3types.BatchResult{}

	permit, err := b.limiter.Acquire(ctx, s3types.OpDelete)
	if err != nil {
		return failAll(result, keys, "Cancelled", err)
	}
	defer permit.Release()

	identifiers := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		identifiers = append(identifiers, types.ObjectIdentifier{Key: aws.String(key)})
	}

	input := &s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &types.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(false),
		},
	}

	var output *s3.DeleteObjectsOutput
	err = retry.Do(ctx, b.logger, "deleteObjects", b.policy, func(ctx context.Context) error {
		var callErr error
		output, callErr = b.client.DeleteObjects(ctx, input)
		return callErr
	})
	if err != nil {
		return failAll(result, keys, "BatchError", err)
	}

	for _, deleted := range output.Deleted {
		result.Succeeded = append(result.Succeeded, aws.ToString(deleted.Key))
	}
	for _, delErr := range output.Errors {
		result.Failed = append(result.Failed, s3types.KeyError{
			Key:     aws.ToString(delErr.Key),
			Code:    aws.ToString(delErr.Code),
			Message: aws.ToString(delErr.Message),
		})
	}

	return result
}

// failAll marks every key in a batch as failed with the same cause.
func failAll(result *s3types.BatchResult, keys []string, code string, err error) *s3types.BatchResult {
	for _, key := range keys {
		result.Failed = append(result.Failed, s3types.KeyError{
			Key:     key,
			Code:    code,
			Message: err.Error(),
		})
	}
	return result
}

// splitIntoBatches splits keys into chunks of at most batchSize.
func splitIntoBatches(keys []string, batchSize int) [][]string {
	batches := make([][]string, 0, (len(keys)+batchSize-1)/batchSize)
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[i:end])
	}
	return batches
}
