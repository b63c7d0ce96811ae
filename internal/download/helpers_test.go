package download

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/attachment-downloader/internal/model"
)

// fakeTransfer runs fn for every transfer and counts the calls.
type fakeTransfer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, destPath string, onProgress func(written, total int64)) error
}

func (f *fakeTransfer) DownloadAttachment(ctx context.Context, userID int64, d model.Download, destPath string, onProgress func(written, total int64)) error {
	f.calls.Add(1)
	return f.fn(ctx, destPath, onProgress)
}

// writeContent returns a transfer writing content with progress reports.
func writeContent(content string) func(context.Context, string, func(int64, int64)) error {
	return func(ctx context.Context, destPath string, onProgress func(int64, int64)) error {
		total := int64(len(content))
		onProgress(total/2, total)
		if err := os.WriteFile(destPath, []byte(content), 0644); err != nil {
			return err
		}
		onProgress(total, total)
		return nil
	}
}

// blockUntilCancelled returns a transfer that signals started and blocks until ctx is done.
func blockUntilCancelled(started chan<- struct{}) func(context.Context, string, func(int64, int64)) error {
	return func(ctx context.Context, destPath string, onProgress func(int64, int64)) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
}

func failWith(err error) func(context.Context, string, func(int64, int64)) error {
	return func(context.Context, string, func(int64, int64)) error {
		return err
	}
}

func writeZip(files map[string]string) func(context.Context, string, func(int64, int64)) error {
	return func(ctx context.Context, destPath string, onProgress func(int64, int64)) error {
		f, err := os.Create(destPath)
		if err != nil {
			return err
		}
		defer f.Close()

		zw := zip.NewWriter(f)
		for name, content := range files {
			w, err := zw.Create(name)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, content); err != nil {
				return err
			}
		}
		return zw.Close()
	}
}

type fakePaths struct {
	root string
}

var errNoFileName = errors.New("no file name")

func (p fakePaths) AttachmentPath(libraryID model.LibraryIdentifier, key, filename, contentType string) (string, error) {
	if filename == "" {
		return "", errNoFileName
	}
	return filepath.Join(p.root, libraryID.String(), key, filename), nil
}

type fakeStore struct {
	mu         sync.Mutex
	downloaded map[model.Download]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{downloaded: make(map[model.Download]bool)}
}

func (s *fakeStore) MarkAttachmentDownloaded(key string, libraryID model.LibraryIdentifier, downloaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloaded[model.NewDownload(key, libraryID)] = downloaded
	return nil
}

func (s *fakeStore) isDownloaded(d model.Download) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloaded[d]
}

type validatorFunc func(path, contentType string) bool

func (f validatorFunc) IsValid(path, contentType string) bool {
	return f(path, contentType)
}

var testLibrary = model.CustomLibrary(1)

func remotePDF(key string) model.Attachment {
	return model.Attachment{
		Key:       key,
		LibraryID: testLibrary,
		Title:     "Full Text PDF",
		Kind: model.FileKind{
			Filename:    key + ".pdf",
			ContentType: "application/pdf",
			Location:    model.LocationRemote,
			LinkType:    model.LinkTypeImportedFile,
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect reads updates for key until a terminal one arrives.
func collect(t *testing.T, ch <-chan Update, key string) []Update {
	t.Helper()

	var updates []Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatalf("updates channel closed; got %v", updates)
			}
			if u.Key != key {
				continue
			}
			updates = append(updates, u)
			if u.IsTerminal() {
				return updates
			}
		case <-timeout:
			t.Fatalf("timed out waiting for terminal update of %s; got %v", key, updates)
		}
	}
}

// expectNoUpdate fails if an update arrives within a short grace period.
func expectNoUpdate(t *testing.T, ch <-chan Update) {
	t.Helper()
	select {
	case u := <-ch:
		t.Errorf("unexpected update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}
}
