package download

import (
	"errors"
	"fmt"

	"github.com/handiism/attachment-downloader/internal/model"
)

var (
	// ErrIncompatibleAttachment is reported for attachments this downloader can't fetch,
	// such as linked files and embedded images.
	ErrIncompatibleAttachment = errors.New("incompatible attachment")

	// ErrZipDidntContainRequestedFile is reported when a downloaded snapshot
	// archive does not contain the attachment's file.
	ErrZipDidntContainRequestedFile = errors.New("snapshot archive did not contain requested file")

	// ErrCantUnzipSnapshot is reported when a downloaded snapshot archive can't be extracted.
	ErrCantUnzipSnapshot = errors.New("can't unzip snapshot")

	// ErrCancelled is the completion error of a cancelled operation.
	ErrCancelled = errors.New("download cancelled")
)

// TransferError wraps a failure of the underlying transfer.
type TransferError struct {
	Download model.Download
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Download, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
