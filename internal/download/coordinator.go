package download

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	ioutils "github.com/handiism/attachment-downloader/internal/io"
	"github.com/handiism/attachment-downloader/internal/model"
	"golang.org/x/sync/semaphore"
)

// PathResolver returns the deterministic local path of an attachment file.
type PathResolver interface {
	AttachmentPath(libraryID model.LibraryIdentifier, key, filename, contentType string) (string, error)
}

// ItemStore persists the downloaded state of attachments.
type ItemStore interface {
	MarkAttachmentDownloaded(key string, libraryID model.LibraryIdentifier, downloaded bool) error
}

// FileValidator checks whether a local file looks like a valid file of the given content type.
type FileValidator interface {
	IsValid(path, contentType string) bool
}

// Options configures a Coordinator.
type Options struct {
	// MaxConcurrent bounds the number of transfers running at once.
	// Operations beyond the limit wait in line. Zero means unlimited.
	MaxConcurrent int

	Retry  RetryPolicy
	Logger *slog.Logger
}

// Coordinator is the single authority on whether an attachment needs fetching
// and on the transfer state of every attachment.
//
// All bookkeeping (active operations, sticky errors, batch progress) is
// private and guarded by one mutex. Methods never block on I/O; transfers run
// on their own goroutines and report back through callbacks. Updates are
// published outside the lock, so subscribers may call back into the Coordinator.
type Coordinator struct {
	transfer  Transferer
	paths     PathResolver
	store     ItemStore
	validator FileValidator
	sem       *semaphore.Weighted
	retry     RetryPolicy
	logger    *slog.Logger
	bus       *Broadcaster

	mu         sync.Mutex
	userID     int64
	session    uint64
	operations map[model.Download]*Operation
	errors     map[model.Download]error
	batch      *BatchProgress
	batchTotal int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator. Initialize must be called before downloads are requested.
func NewCoordinator(transfer Transferer, paths PathResolver, store ItemStore, validator FileValidator, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sem *semaphore.Weighted
	if opts.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		transfer:   transfer,
		paths:      paths,
		store:      store,
		validator:  validator,
		sem:        sem,
		retry:      opts.Retry,
		logger:     logger,
		bus:        NewBroadcaster(),
		operations: make(map[model.Download]*Operation),
		errors:     make(map[model.Download]error),
		batch:      NewBatchProgress(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize resets all bookkeeping and stores the user used to authenticate transfers.
//
// Outstanding operations are not cancelled. They are detached from the new
// session: when they finish they neither touch its bookkeeping nor publish updates.
func (c *Coordinator) Initialize(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.operations); n > 0 {
		c.logger.Warn("initializing with downloads in flight, detaching them", "count", n)
	}

	c.userID = userID
	c.session++
	c.operations = make(map[model.Download]*Operation)
	c.errors = make(map[model.Download]error)
	c.batch.Reset()
	c.batchTotal = 0
}

// Subscribe registers a subscriber for Updates. See Broadcaster.Subscribe.
func (c *Coordinator) Subscribe(buffer int) (<-chan Update, func()) {
	return c.bus.Subscribe(buffer)
}

// DownloadIfNeeded makes the attachment available locally, downloading it if required.
// The outcome is reported through Updates, never returned.
func (c *Coordinator) DownloadIfNeeded(att model.Attachment, parentKey string) {
	d := att.Download()

	switch kind := att.Kind.(type) {
	case model.URLKind:
		c.bus.Publish(readyUpdate(d, parentKey))

	case model.FileKind:
		if !kind.LinkType.IsOwned() {
			c.logger.Debug("attachment not downloadable", "download", d.String(), "link_type", kind.LinkType.String())
			c.bus.Publish(failedUpdate(d, parentKey, ErrIncompatibleAttachment))
			return
		}

		switch kind.Location {
		case model.LocationLocal:
			c.bus.Publish(readyUpdate(d, parentKey))

		case model.LocationRemote, model.LocationRemoteMissing:
			path, err := c.resolvePath(d, parentKey, kind)
			if err != nil {
				return
			}
			c.start(d, parentKey, path, kind, false)

		case model.LocationLocalAndChangedRemotely:
			path, err := c.resolvePath(d, parentKey, kind)
			if err != nil {
				return
			}
			c.start(d, parentKey, path, kind, c.checkLocalCopy(d, path, kind))
		}

	default:
		c.bus.Publish(failedUpdate(d, parentKey, ErrIncompatibleAttachment))
	}
}

func (c *Coordinator) resolvePath(d model.Download, parentKey string, file model.FileKind) (string, error) {
	path, err := c.paths.AttachmentPath(d.LibraryID, d.Key, file.Filename, file.ContentType)
	if err != nil {
		c.logger.Error("can't resolve attachment path", "download", d.String(), "error", err)

		c.mu.Lock()
		if _, active := c.operations[d]; !active {
			c.errors[d] = err
		}
		c.mu.Unlock()

		c.bus.Publish(failedUpdate(d, parentKey, err))
		return "", err
	}
	return path, nil
}

// checkLocalCopy reports whether a usable stale copy exists at path.
// A copy that fails content validation is deleted.
func (c *Coordinator) checkLocalCopy(d model.Download, path string, file model.FileKind) bool {
	if !ioutils.FileExists(path) {
		return false
	}
	if c.validator != nil && !c.validator.IsValid(path, file.ContentType) {
		c.logger.Warn("removing corrupted local copy", "download", d.String(), "path", path, "content_type", file.ContentType)
		ioutils.RemoveIfExists(path)
		return false
	}
	return true
}

// start creates and launches an operation. It returns false when one is already running for d.
func (c *Coordinator) start(d model.Download, parentKey, path string, file model.FileKind, hasLocalCopy bool) bool {
	c.mu.Lock()
	if _, exists := c.operations[d]; exists {
		c.mu.Unlock()
		c.logger.Debug("download already in progress", "download", d.String())
		return false
	}

	op := newOperation(c.ctx, d, parentKey, path, file, hasLocalCopy)
	op.session = c.session
	op.userID = c.userID
	op.transfer = c.transfer
	op.sem = c.sem
	op.retry = c.retry
	op.logger = c.logger
	op.onProgress = func(percent int) { c.handleProgress(op, percent) }
	op.onComplete = func(err error) { c.handleCompletion(op, err) }

	delete(c.errors, d)
	c.operations[d] = op
	c.batch.Update(d, 0)
	c.batchTotal++
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("download started",
		"op", op.ID, "download", d.String(), "path", path, "has_local_copy", hasLocalCopy, "compressed", file.Compressed)

	c.bus.Publish(progressUpdate(d, parentKey, 0))

	go func() {
		defer c.wg.Done()
		op.Run()
	}()
	return true
}

func (c *Coordinator) handleProgress(op *Operation, percent int) {
	c.mu.Lock()
	if c.operations[op.Download] != op {
		c.mu.Unlock()
		return
	}
	c.batch.Update(op.Download, percent)
	c.mu.Unlock()

	c.bus.Publish(progressUpdate(op.Download, op.ParentKey, percent))
}

func (c *Coordinator) handleCompletion(op *Operation, err error) {
	d := op.Download

	c.mu.Lock()
	stale := op.session != c.session
	if op.Cancelled() {
		err = ErrCancelled
	}
	c.mu.Unlock()
	if stale {
		c.logger.Warn("dropping result of detached download", "op", op.ID, "download", d.String(), "error", err)
		return
	}

	if err == nil && c.store != nil {
		if storeErr := c.store.MarkAttachmentDownloaded(d.Key, d.LibraryID, true); storeErr != nil {
			c.logger.Error("can't mark attachment downloaded", "op", op.ID, "download", d.String(), "error", storeErr)
			err = storeErr
		}
	}

	update, publish := c.finish(op, err)
	if publish {
		c.bus.Publish(update)
	}
}

// finish removes the operation from bookkeeping and classifies its outcome.
// publish is false when the operation belongs to an earlier session or a
// newer operation for the same download has taken over.
func (c *Coordinator) finish(op *Operation, err error) (update Update, publish bool) {
	d := op.Download

	c.mu.Lock()
	defer c.mu.Unlock()

	if op.session != c.session {
		c.logger.Warn("dropping result of detached download", "op", op.ID, "download", d.String(), "error", err)
		return Update{}, false
	}
	if op.Cancelled() {
		err = ErrCancelled
	}

	current, registered := c.operations[d]
	if registered && current == op {
		delete(c.operations, d)
		c.batch.Finish(d)
		c.resetBatchIfIdleLocked()
	} else if registered {
		c.logger.Debug("superseded download finished", "op", op.ID, "download", d.String(), "error", err)
		return Update{}, false
	}

	switch {
	case errors.Is(err, ErrCancelled):
		delete(c.errors, d)
		c.logger.Info("download cancelled", "op", op.ID, "download", d.String())
		return cancelledUpdate(d, op.ParentKey), true

	case err != nil && op.HasLocalCopy:
		delete(c.errors, d)
		c.logger.Warn("download failed, using local copy", "op", op.ID, "download", d.String(), "error", err)
		return readyUpdate(d, op.ParentKey), true

	case err != nil:
		c.errors[d] = err
		c.logger.Error("download failed", "op", op.ID, "download", d.String(), "error", err)
		return failedUpdate(d, op.ParentKey, err), true

	default:
		delete(c.errors, d)
		c.logger.Info("download finished", "op", op.ID, "download", d.String())
		return readyUpdate(d, op.ParentKey), true
	}
}

func (c *Coordinator) resetBatchIfIdleLocked() {
	if len(c.operations) == 0 {
		c.batch.Reset()
		c.batchTotal = 0
	}
}

// Cancel cancels the active download for the key. It is a no-op when nothing matches.
func (c *Coordinator) Cancel(key string, libraryID model.LibraryIdentifier) {
	c.mu.Lock()
	op := c.detachLocked(model.NewDownload(key, libraryID))
	c.mu.Unlock()

	if op != nil {
		c.logger.Debug("cancelling download", "op", op.ID, "download", op.Download.String())
		op.Cancel()
	}
}

// Stop cancels every active download.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	ops := make([]*Operation, 0, len(c.operations))
	for d := range c.operations {
		if op := c.detachLocked(d); op != nil {
			ops = append(ops, op)
		}
	}
	c.mu.Unlock()

	if len(ops) > 0 {
		c.logger.Info("stopping downloads", "count", len(ops))
	}
	for _, op := range ops {
		op.Cancel()
	}
}

func (c *Coordinator) detachLocked(d model.Download) *Operation {
	op, ok := c.operations[d]
	if !ok {
		return nil
	}
	// The flag is set under the lock so a completion racing this call is
	// classified as cancelled. The context is cancelled by the caller.
	op.cancelled.Store(true)
	delete(c.operations, d)
	c.batch.Finish(d)
	c.resetBatchIfIdleLocked()
	return op
}

// Data returns the progress of an active download and the sticky error of the last failed one.
func (c *Coordinator) Data(key string, libraryID model.LibraryIdentifier) (progress int, hasProgress bool, err error) {
	d := model.NewDownload(key, libraryID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, active := c.operations[d]; active {
		progress, hasProgress = c.batch.progress[d]
	}
	return progress, hasProgress, c.errors[d]
}

// BatchData returns the aggregate progress of the current batch, the number
// of downloads still active and the number started since the batch began.
// It returns (0, false, 0, 0) when nothing is downloading.
func (c *Coordinator) BatchData() (progress int, hasProgress bool, remaining, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.operations) == 0 {
		return 0, false, 0, 0
	}
	progress, hasProgress = c.batch.Current()
	return progress, hasProgress, len(c.operations), c.batchTotal
}

// IsDownloading reports whether a download is active for the key.
func (c *Coordinator) IsDownloading(key string, libraryID model.LibraryIdentifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.operations[model.NewDownload(key, libraryID)]
	return ok
}

// Wait blocks until every operation started by the coordinator has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels all downloads, waits for them and closes subscriber channels.
func (c *Coordinator) Close() {
	c.Stop()
	c.cancel()
	c.wg.Wait()
	c.bus.Close()
}
