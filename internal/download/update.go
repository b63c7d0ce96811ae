package download

import (
	"fmt"

	"github.com/handiism/attachment-downloader/internal/model"
)

// UpdateKind is the kind of state change carried by an Update.
type UpdateKind int

const (
	// KindProgress carries a 0-100 percentage in Update.Progress.
	KindProgress UpdateKind = iota

	// KindReady means the attachment file is available locally.
	KindReady

	// KindFailed means the download failed; Update.Err holds the cause.
	KindFailed

	// KindCancelled means the download was cancelled.
	KindCancelled
)

func (k UpdateKind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindReady:
		return "ready"
	case KindFailed:
		return "failed"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("UpdateKind(%d)", int(k))
	}
}

// Update is an immutable event describing the download state of one attachment.
type Update struct {
	Key string

	// ParentKey is the key of the parent item, empty for standalone attachments.
	ParentKey string

	LibraryID model.LibraryIdentifier
	Kind      UpdateKind

	// Progress is set for KindProgress updates.
	Progress int

	// Err is set for KindFailed updates.
	Err error
}

// Download returns the Download the update refers to.
func (u Update) Download() model.Download {
	return model.NewDownload(u.Key, u.LibraryID)
}

// IsTerminal reports whether the update ends a download attempt.
func (u Update) IsTerminal() bool {
	return u.Kind != KindProgress
}

func progressUpdate(d model.Download, parentKey string, progress int) Update {
	return Update{Key: d.Key, ParentKey: parentKey, LibraryID: d.LibraryID, Kind: KindProgress, Progress: progress}
}

func readyUpdate(d model.Download, parentKey string) Update {
	return Update{Key: d.Key, ParentKey: parentKey, LibraryID: d.LibraryID, Kind: KindReady}
}

func failedUpdate(d model.Download, parentKey string, err error) Update {
	return Update{Key: d.Key, ParentKey: parentKey, LibraryID: d.LibraryID, Kind: KindFailed, Err: err}
}

func cancelledUpdate(d model.Download, parentKey string) Update {
	return Update{Key: d.Key, ParentKey: parentKey, LibraryID: d.LibraryID, Kind: KindCancelled}
}
