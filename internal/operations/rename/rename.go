// Package rename implements the rename and move engine. The store has
// no native rename, so every operation is copy-then-delete: files are a
// single server-side copy, folders are a streamed recursive copy of
// every descendant followed by a batch delete of the originals.
//
// There is no rollback. A failure mid-way through a folder rename
// leaves already-copied objects at the destination; the returned error
// says so and the originals are left untouched.
package rename

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/delete"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/list"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// DefaultCopyConcurrency bounds in-flight copies during a folder rename
// when none is configured.
const DefaultCopyConcurrency = 5

// Renamer performs copy-then-delete renames and moves against one
// bucket.
type Renamer struct {
	client      s3api.S3API
	bucket      string
	limiter     *ratelimit.Limiter
	policy      *retry.Policy
	logger      *slog.Logger
	lister      *list.Lister
	deleter     *delete.BatchDeleter
	concurrency int
}

// New creates a Renamer. concurrency bounds the folder-rename copy
// window; values below one fall back to the default.
func New(
	client s3api.S3API,
	bucket string,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	logger *slog.Logger,
	lister *list.Lister,
	deleter *delete.BatchDeleter,
	concurrency int,
) *Renamer {
	if concurrency < 1 {
		concurrency = DefaultCopyConcurrency
	}
	return &Renamer{
		client:      client,
		bucket:      bucket,
		limiter:     limiter,
		policy:      policy,
		logger:      logger,
		lister:      lister,
		deleter:     deleter,
		concurrency: concurrency,
	}
}

// RenameFile renames a single object within its parent folder and
// returns the new key. When newName has no usable extension the
// original's extension is carried over, so "report.pdf" renamed to
// "summary" becomes "summary.pdf". Renaming to the identical key is a
// no-op with no remote calls.
func (r *Renamer) RenameFile(ctx context.Context, key, newName string) (string, error) {
	newName = strings.TrimSpace(newName)
	if !keypath.ValidateFileName(newName) {
		return "", errors.NewObjectError("rename", r.bucket, key, errors.ErrInvalidPath).
			WithMessage(fmt.Sprintf("invalid file name %q", newName))
	}

	if !keypath.HasWellFormedExtension(newName) {
		if ext := path.Ext(key); ext != "" {
			newName += ext
		}
	}

	newKey := newName
	if dir := parentPrefix(key); dir != "" {
		newKey = dir + newName
	}
	if err := keypath.ValidateKey(newKey); err != nil {
		return "", err
	}
	if newKey == key {
		return key, nil
	}

	if err := r.copyObject(ctx, key, newKey); err != nil {
		return "", err
	}
	if err := r.deleteObject(ctx, key); err != nil {
		// The copy already landed; report the leftover rather than
		// pretending the rename never started.
		return "", errors.NewObjectError("rename", r.bucket, key, err).
			WithMessage("copied to " + newKey + " but the original could not be removed")
	}
	return newKey, nil
}

// RenameFolder renames a folder prefix and returns the new prefix plus
// the per-key outcome of deleting the originals. Every descendant is
// copied under the new prefix first, with a bounded number of copies in
// flight; only after all copies succeed are the originals batch-deleted.
func (r *Renamer) RenameFolder(ctx context.Context, oldPrefix, newName string) (string, *s3types.BatchResult, error) {
	newName = strings.TrimSpace(strings.TrimSuffix(newName, keypath.Delimiter))
	if !keypath.ValidateFolderName(newName) {
		return "", nil, errors.NewObjectError("renameFolder", r.bucket, oldPrefix, errors.ErrInvalidPath).
			WithMessage(fmt.Sprintf("invalid folder name %q", newName))
	}

	newPrefix := newName + keypath.Delimiter
	if dir := parentPrefix(strings.TrimSuffix(oldPrefix, keypath.Delimiter)); dir != "" {
		newPrefix = dir + newPrefix
	}
	if err := keypath.ValidateKey(newPrefix); err != nil {
		return "", nil, err
	}
	if newPrefix == oldPrefix {
		return oldPrefix, &s3types.BatchResult{}, nil
	}

	result, err := r.relocatePrefix(ctx, oldPrefix, newPrefix)
	if err != nil {
		return "", nil, err
	}
	return newPrefix, result, nil
}

// Move relocates a mixed set of files and folders under destPrefix,
// which must be an existing folder prefix or empty for the bucket root.
// Folder items are moved recursively. Like renames, moves copy first
// and delete originals last, per item.
func (r *Renamer) Move(ctx context.Context, items []s3types.Entry, destPrefix string) (*s3types.BatchResult, error) {
	start := time.Now()
	result := &s3types.BatchResult{}

	for _, item := range items {
		if err := keypath.ValidateKey(item.Key); err != nil {
			return nil, err
		}

		if item.IsFolder() {
			base := path.Base(strings.TrimSuffix(item.Key, keypath.Delimiter))
			target := destPrefix + base + keypath.Delimiter
			if target == item.Key {
				// Already in the destination, like the file case below.
				result.Succeeded = append(result.Succeeded, item.Key)
				continue
			}
			if strings.HasPrefix(target, item.Key) {
				return nil, errors.NewObjectError("move", r.bucket, item.Key, errors.ErrInvalidPath).
					WithMessage("cannot move a folder into itself")
			}
			sub, err := r.relocatePrefix(ctx, item.Key, target)
			if err != nil {
				return nil, err
			}
			result.Merge(sub)
			continue
		}

		target := destPrefix + path.Base(item.Key)
		if target == item.Key {
			result.Succeeded = append(result.Succeeded, item.Key)
			continue
		}
		if err := r.copyObject(ctx, item.Key, target); err != nil {
			result.Failed = append(result.Failed, s3types.KeyError{
				Key:     item.Key,
				Code:    "CopyError",
				Message: err.Error(),
			})
			continue
		}
		if err := r.deleteObject(ctx, item.Key); err != nil {
			result.Failed = append(result.Failed, s3types.KeyError{
				Key:     item.Key,
				Code:    "DeleteError",
				Message: "copied to " + target + " but the original could not be removed: " + err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, item.Key)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// relocatePrefix copies every key under oldPrefix to newPrefix, then
// batch-deletes the originals. Copies run in a bounded window fed by a
// streaming scan, so the full key set is never held before copying
// starts; successfully copied source keys are collected for deletion.
func (r *Renamer) relocatePrefix(ctx context.Context, oldPrefix, newPrefix string) (*s3types.BatchResult, error) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var (
		mu     sync.Mutex
		copied []string
	)

	var scanErr error
	for item := range r.lister.Scan(gctx, oldPrefix) {
		if item.Err != nil {
			scanErr = item.Err
			break
		}
		srcKey := item.Object.Key
		dstKey := newPrefix + strings.TrimPrefix(srcKey, oldPrefix)

		g.Go(func() error {
			if err := r.copyObject(gctx, srcKey, dstKey); err != nil {
				return err
			}
			mu.Lock()
			copied = append(copied, srcKey)
			mu.Unlock()
			return nil
		})
	}

	copyErr := g.Wait()
	if scanErr == nil {
		scanErr = copyErr
	}
	if scanErr != nil {
		if len(copied) > 0 {
			return nil, errors.NewObjectError("renameFolder", r.bucket, oldPrefix, scanErr).
				WithMessage(fmt.Sprintf("%d objects were already copied under %s and were not removed",
					len(copied), newPrefix))
		}
		return nil, errors.NewObjectError("renameFolder", r.bucket, oldPrefix, scanErr)
	}

	// Recreate the folder marker so the destination lists even when
	// empty, then drop the originals including the old marker.
	if err := r.copyOrCreateMarker(ctx, oldPrefix, newPrefix); err != nil {
		return nil, err
	}

	result, err := r.deleter.DeleteKeys(ctx, append(copied, oldPrefix))
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// copyOrCreateMarker carries the folder marker object to the new
// prefix. A missing source marker (prefix-only folder) is written fresh
// instead.
func (r *Renamer) copyOrCreateMarker(ctx context.Context, oldPrefix, newPrefix string) error {
	err := r.copyObject(ctx, oldPrefix, newPrefix)
	if err == nil || !errors.IsNotFound(err) {
		return err
	}

	permit, acqErr := r.limiter.Acquire(ctx, s3types.OpUpload)
	if acqErr != nil {
		return acqErr
	}
	defer permit.Release()

	return retry.Do(ctx, r.logger, "putFolderMarker", r.policy, func(ctx context.Context) error {
		_, putErr := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(r.bucket),
			Key:           aws.String(newPrefix),
			ContentLength: aws.Int64(0),
		})
		return putErr
	})
}

// copyObject performs one server-side copy under a copy permit.
func (r *Renamer) copyObject(ctx context.Context, srcKey, dstKey string) error {
	permit, err := r.limiter.Acquire(ctx, s3types.OpCopy)
	if err != nil {
		return err
	}
	defer permit.Release()

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(r.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.QueryEscape(r.bucket + "/" + srcKey)),
	}

	err = retry.Do(ctx, r.logger, "copyObject", r.policy, func(ctx context.Context) error {
		_, callErr := r.client.CopyObject(ctx, input)
		return callErr
	})
	if err != nil {
		return errors.NewObjectError("copy", r.bucket, srcKey, errors.FromStore(err))
	}
	return nil
}

// deleteObject removes one object under a delete permit.
func (r *Renamer) deleteObject(ctx context.Context, key string) error {
	permit, err := r.limiter.Acquire(ctx, s3types.OpDelete)
	if err != nil {
		return err
	}
	defer permit.Release()

	err = retry.Do(ctx, r.logger, "deleteObject", r.policy, func(ctx context.Context) error {
		_, callErr := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		return callErr
	})
	if err != nil {
		return errors.FromStore(err)
	}
	return nil
}

// parentPrefix returns the folder prefix containing key, delimiter
// included, or "" for the bucket root.
func parentPrefix(key string) string {
	idx := strings.LastIndex(key, keypath.Delimiter)
	if idx < 0 {
		return ""
	}
	return key[:idx+1]
}
