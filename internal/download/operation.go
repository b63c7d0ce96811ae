package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ioutils "github.com/handiism/attachment-downloader/internal/io"
	"github.com/handiism/attachment-downloader/internal/model"
	"golang.org/x/sync/semaphore"
)

// Transferer streams a remote attachment file to a local path.
//
// onProgress receives (bytesWritten, totalBytes); totalBytes is -1 when unknown.
// Implementations must honour ctx cancellation and release their resources on return.
type Transferer interface {
	DownloadAttachment(ctx context.Context, userID int64, d model.Download, destPath string, onProgress func(written, total int64)) error
}

// RetryPolicy controls how an Operation retries transient transfer failures.
//
// The wait before retry n (0-based) is Cooldown * Exponent^n seconds.
type RetryPolicy struct {
	MaxRetries int
	Cooldown   float64
	Exponent   float64

	// Retryable classifies errors. A nil Retryable disables retries.
	Retryable func(error) bool
}

// Operation is one in-flight transfer of a single attachment to local storage.
type Operation struct {
	ID        uuid.UUID
	Download  model.Download
	ParentKey string

	// Path is the final destination of the attachment file.
	Path string

	// Compressed operations fetch a zip archive and extract it next to Path.
	Compressed bool

	// HasLocalCopy is set when a stale local copy can be used if the transfer fails.
	HasLocalCopy bool

	session  uint64
	userID   int64
	transfer Transferer
	sem      *semaphore.Weighted
	retry    RetryPolicy
	logger   *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	lastProgress int
	onProgress   func(int)
	onComplete   func(error)
}

func newOperation(parent context.Context, d model.Download, parentKey, path string, file model.FileKind, hasLocalCopy bool) *Operation {
	ctx, cancel := context.WithCancel(parent)
	return &Operation{
		ID:           uuid.New(),
		Download:     d,
		ParentKey:    parentKey,
		Path:         path,
		Compressed:   file.Compressed,
		HasLocalCopy: hasLocalCopy,
		ctx:          ctx,
		cancel:       cancel,
		logger:       slog.Default(),
	}
}

// Cancel asks the operation to stop. The running transfer observes the
// cancellation at its next I/O boundary and completes with ErrCancelled.
func (o *Operation) Cancel() {
	o.cancelled.Store(true)
	o.cancel()
}

// Cancelled reports whether Cancel was called.
func (o *Operation) Cancelled() bool {
	return o.cancelled.Load()
}

// Run performs the transfer and invokes the completion callback exactly once.
func (o *Operation) Run() {
	err := o.run()
	o.cancel()
	if o.onComplete != nil {
		o.onComplete(err)
	}
}

func (o *Operation) run() error {
	if o.sem != nil {
		if err := o.sem.Acquire(o.ctx, 1); err != nil {
			return ErrCancelled
		}
		defer o.sem.Release(1)
	}

	if err := ioutils.EnsureDir(filepath.Dir(o.Path)); err != nil {
		return &TransferError{Download: o.Download, Err: err}
	}

	tmpPath := o.Path + ".download"
	if o.Compressed {
		tmpPath = filepath.Join(filepath.Dir(o.Path), o.Download.Key+".zip.download")
	}

	if err := o.transferWithRetry(tmpPath); err != nil {
		ioutils.RemoveIfExists(tmpPath)
		return err
	}

	if o.ctx.Err() != nil {
		ioutils.RemoveIfExists(tmpPath)
		return ErrCancelled
	}

	if o.Compressed {
		defer ioutils.RemoveIfExists(tmpPath)
		if err := o.extractSnapshot(tmpPath); err != nil {
			return err
		}
	} else if err := os.Rename(tmpPath, o.Path); err != nil {
		ioutils.RemoveIfExists(tmpPath)
		return &TransferError{Download: o.Download, Err: err}
	}

	o.reportPercent(100)
	return nil
}

func (o *Operation) transferWithRetry(tmpPath string) error {
	for tries := 0; ; tries++ {
		err := o.transfer.DownloadAttachment(o.ctx, o.userID, o.Download, tmpPath, o.reportBytes)
		if err == nil {
			return nil
		}

		if o.ctx.Err() != nil {
			return ErrCancelled
		}
		if tries >= o.retry.MaxRetries || o.retry.Retryable == nil || !o.retry.Retryable(err) {
			return &TransferError{Download: o.Download, Err: err}
		}

		o.logger.Warn("retrying download",
			"op", o.ID, "download", o.Download.String(), "try", tries+1, "max", o.retry.MaxRetries, "error", err)
		ioutils.RemoveIfExists(tmpPath)

		if !o.waitForRetry(tries) {
			return ErrCancelled
		}
	}
}

func (o *Operation) waitForRetry(tries int) bool {
	cooldown := o.retry.Cooldown * math.Pow(o.retry.Exponent, float64(tries))
	timer := time.NewTimer(time.Duration(cooldown * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-o.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (o *Operation) extractSnapshot(archivePath string) error {
	dir := filepath.Dir(o.Path)
	if err := ioutils.Unzip(archivePath, dir); err != nil {
		return fmt.Errorf("%w: %v", ErrCantUnzipSnapshot, err)
	}

	if _, err := os.Stat(o.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrZipDidntContainRequestedFile
		}
		return &TransferError{Download: o.Download, Err: err}
	}
	return nil
}

func (o *Operation) reportBytes(written, total int64) {
	if total <= 0 {
		return
	}
	o.reportPercent(int(written * 100 / total))
}

// reportPercent forwards progress only when it increases, which keeps the
// sequence monotonic across retries.
func (o *Operation) reportPercent(percent int) {
	percent = clampPercent(percent)
	if percent <= o.lastProgress {
		return
	}
	o.lastProgress = percent
	if o.onProgress != nil {
		o.onProgress(percent)
	}
}
