package s3zen

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// Upload writes reader to the object at path. Sources above the
// multipart threshold upload in concurrent parts; everything else is a
// single PUT. The path is sanitized and validated, and the size cap
// enforced, before any network call. Progress events are dropped rather
// than block a slow consumer; the final event always arrives.
func (c *Client) Upload(
	ctx context.Context,
	path string,
	reader io.Reader,
	size int64,
	progress chan<- s3types.TransferProgress,
) (*s3types.UploadResult, error) {
	if err := c.ready("upload"); err != nil {
		return nil, err
	}
	key, err := keypath.Sanitize(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, keypath.Delimiter) {
		return nil, errors.NewObjectError("upload", c.cfg.Bucket, key, errors.ErrInvalidPath).
			WithMessage("upload target must be a file key")
	}
	return c.uploader.Upload(ctx, key, reader, size, progress, nil)
}

// CreateFolder creates an empty folder at path by writing its marker
// object, and returns the folder key.
func (c *Client) CreateFolder(ctx context.Context, path string) (string, error) {
	if err := c.ready("createFolder"); err != nil {
		return "", err
	}
	key, err := keypath.SanitizeFolder(path)
	if err != nil {
		return "", err
	}
	if err := c.uploader.CreateFolderMarker(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

// UploadSource is one pending upload in a batch: a display name in the
// destination folder plus its content.
type UploadSource struct {
	// Name is the file name within the destination folder.
	Name string

	// Reader supplies the content. Read at most once, by one worker.
	Reader io.Reader

	// Size is the content length in bytes.
	Size int64
}

// UploadTask tracks one batch upload through its lifecycle:
//
//	Queued -> InFlight -> Completed | Failed
//	Queued -> AwaitingConflict -> (Resolve) -> Queued | Failed
//
// Tasks that collide with an existing name in the destination, or with
// an earlier task in the same batch, start in AwaitingConflict and stay
// suspended until Resolve is called; suspended tasks never hold a
// worker, so siblings keep flowing.
type UploadTask struct {
	batch  *UploadBatch
	source UploadSource

	mu     sync.Mutex
	state  s3types.TaskState
	key    string
	result *s3types.UploadResult
	err    error

	cancelled atomic.Bool
}

// Name returns the display name the task was submitted under.
func (t *UploadTask) Name() string { return t.source.Name }

// Key returns the object key the task will write (or wrote). After a
// keep-both resolution this differs from the submitted name.
func (t *UploadTask) Key() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.key
}

// State returns the task's current lifecycle state.
func (t *UploadTask) State() s3types.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the upload outcome. ErrConflictPending while the task
// still awaits a conflict decision; nil result and nil error while the
// task is queued or in flight.
func (t *UploadTask) Result() (*s3types.UploadResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == s3types.TaskAwaitingConflict {
		return nil, errors.NewObjectError("upload", t.batch.bucket, t.key, errors.ErrConflictPending)
	}
	return t.result, t.err
}

// Resolve answers a duplicate-name conflict. Overwrite re-queues the
// task against the colliding key; KeepBoth re-queues it under a derived
// name ("report (1).pdf"); Skip abandons it. Resolve on a task that is
// not awaiting a decision is an error.
func (t *UploadTask) Resolve(decision s3types.ConflictDecision) error {
	t.mu.Lock()
	if t.state != s3types.TaskAwaitingConflict {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("task %q is %s, not awaiting conflict resolution", t.source.Name, state)
	}

	switch decision {
	case s3types.DecisionSkip:
		t.finishLocked(nil, errors.NewObjectError("upload", t.batch.bucket, t.key, errors.ErrCancelled).
			WithMessage("skipped by conflict resolution"))
		t.mu.Unlock()
		return nil

	case s3types.DecisionKeepBoth:
		name := t.batch.claimDerivedName(t.source.Name)
		t.key = t.batch.prefix + name
		t.state = s3types.TaskQueued
		t.mu.Unlock()
		t.batch.enqueue(t)
		return nil

	case s3types.DecisionOverwrite:
		t.state = s3types.TaskQueued
		t.mu.Unlock()
		t.batch.enqueue(t)
		return nil

	default:
		t.mu.Unlock()
		return fmt.Errorf("unknown conflict decision %d", decision)
	}
}

// Cancel stops the task. Queued and conflict-suspended tasks terminate
// immediately; an in-flight multipart upload stops before its next part
// and is aborted. Cancelling a terminal task is a no-op.
func (t *UploadTask) Cancel() {
	t.cancelled.Store(true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == s3types.TaskQueued || t.state == s3types.TaskAwaitingConflict {
		t.finishLocked(nil, errors.NewObjectError("upload", t.batch.bucket, t.key, errors.ErrCancelled))
	}
}

// finishLocked moves the task to a terminal state exactly once.
// Callers hold t.mu.
func (t *UploadTask) finishLocked(result *s3types.UploadResult, err error) {
	if t.state == s3types.TaskCompleted || t.state == s3types.TaskFailed {
		return
	}
	t.result = result
	t.err = err
	if err != nil {
		t.state = s3types.TaskFailed
	} else {
		t.state = s3types.TaskCompleted
	}
	t.batch.wg.Done()
}

// run executes the task on a worker. A task that was cancelled or
// resolved away while sitting in the queue is skipped.
func (t *UploadTask) run(ctx context.Context) {
	t.mu.Lock()
	if t.state != s3types.TaskQueued {
		t.mu.Unlock()
		return
	}
	t.state = s3types.TaskInFlight
	key := t.key
	t.mu.Unlock()

	result, err := t.batch.client.uploader.Upload(
		ctx, key, t.source.Reader, t.source.Size,
		t.batch.progress, t.cancelled.Load,
	)

	t.mu.Lock()
	t.finishLocked(result, err)
	t.mu.Unlock()
}

// UploadBatch is a scheduled set of uploads into one destination
// folder, drained by a bounded worker pool.
type UploadBatch struct {
	client   *Client
	bucket   string
	prefix   string
	progress chan<- s3types.TransferProgress

	tasks []*UploadTask
	queue chan *UploadTask
	wg    sync.WaitGroup
	done  chan struct{}

	namesMu sync.Mutex
	names   map[string]struct{}
}

// UploadBatch schedules sources for upload into destFolder and returns
// immediately. Names are validated and checked against the folder's
// current listing before anything is scheduled; colliding tasks start
// suspended in AwaitingConflict (see UploadTask.Resolve), the rest are
// drained by BatchConcurrency workers. One invalid name fails the whole
// call before any byte moves.
func (c *Client) UploadBatch(
	ctx context.Context,
	destFolder string,
	sources []UploadSource,
	progress chan<- s3types.TransferProgress,
) (*UploadBatch, error) {
	if err := c.ready("uploadBatch"); err != nil {
		return nil, err
	}
	prefix, err := sanitizePrefix(destFolder)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		if !keypath.ValidateFileName(src.Name) {
			return nil, errors.NewObjectError("uploadBatch", c.cfg.Bucket, prefix+src.Name, errors.ErrInvalidPath).
				WithMessage(fmt.Sprintf("invalid file name %q", src.Name))
		}
	}

	existing, err := c.existingNames(ctx, prefix)
	if err != nil {
		return nil, err
	}

	b := &UploadBatch{
		client:   c,
		bucket:   c.cfg.Bucket,
		prefix:   prefix,
		progress: progress,
		queue:    make(chan *UploadTask, len(sources)),
		done:     make(chan struct{}),
		names:    existing,
	}

	b.wg.Add(len(sources))
	for _, src := range sources {
		task := &UploadTask{
			batch:  b,
			source: src,
			key:    prefix + src.Name,
		}
		if b.claimName(src.Name) {
			task.state = s3types.TaskQueued
		} else {
			task.state = s3types.TaskAwaitingConflict
		}
		b.tasks = append(b.tasks, task)
	}

	workers := c.cfg.BatchConcurrency
	if workers < 1 {
		workers = DefaultBatchConcurrency
	}
	for i := 0; i < workers; i++ {
		go func() {
			for task := range b.queue {
				task.run(ctx)
			}
		}()
	}

	go func() {
		b.wg.Wait()
		close(b.done)
		close(b.queue)
	}()

	for _, task := range b.tasks {
		if task.State() == s3types.TaskQueued {
			b.enqueue(task)
		}
	}

	return b, nil
}

// Tasks returns every task in submission order.
func (b *UploadBatch) Tasks() []*UploadTask {
	return b.tasks
}

// Pending returns the tasks still suspended on a conflict decision.
func (b *UploadBatch) Pending() []*UploadTask {
	var pending []*UploadTask
	for _, task := range b.tasks {
		if task.State() == s3types.TaskAwaitingConflict {
			pending = append(pending, task)
		}
	}
	return pending
}

// Wait blocks until every task reaches a terminal state or the context
// is done, then reports per-task outcomes. A batch with unresolved
// conflicts does not finish until they are resolved or cancelled.
func (b *UploadBatch) Wait(ctx context.Context) (*s3types.BatchResult, error) {
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := &s3types.BatchResult{}
	for _, task := range b.tasks {
		res, err := task.Result()
		if err != nil {
			result.Failed = append(result.Failed, s3types.KeyError{
				Key:     task.Key(),
				Code:    failureCode(err),
				Message: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, res.Key)
		result.Duration += res.Duration
	}
	return result, nil
}

// enqueue hands a runnable task to the workers. The queue is sized for
// every task, so the send cannot block.
func (b *UploadBatch) enqueue(t *UploadTask) {
	b.queue <- t
}

// claimName reserves a display name. Reports false when the name is
// already taken by the destination folder or an earlier task.
func (b *UploadBatch) claimName(name string) bool {
	b.namesMu.Lock()
	defer b.namesMu.Unlock()
	if _, taken := b.names[name]; taken {
		return false
	}
	b.names[name] = struct{}{}
	return true
}

// claimDerivedName reserves the first free "name (n).ext" variant.
func (b *UploadBatch) claimDerivedName(name string) string {
	b.namesMu.Lock()
	defer b.namesMu.Unlock()

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, taken := b.names[candidate]; !taken {
			b.names[candidate] = struct{}{}
			return candidate
		}
	}
}

// existingNames lists the destination folder and collects the display
// names already present, files and folders alike.
func (c *Client) existingNames(ctx context.Context, prefix string) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	pager := c.lister.Pages(prefix)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Items {
			names[entry.DisplayName] = struct{}{}
		}
	}
	return names, nil
}

// failureCode maps a task error onto a short result code.
func failureCode(err error) string {
	switch {
	case errors.IsCancelled(err):
		return "Cancelled"
	case errors.IsInvalidPath(err):
		return "InvalidPath"
	case stderrors.Is(err, errors.ErrSizeExceeded):
		return "SizeExceeded"
	default:
		return "UploadError"
	}
}
