package ioutils

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/handiism/attachment-downloader/internal/model"
)

// ErrEmptyFileName is returned when an attachment has no usable file name.
var ErrEmptyFileName = errors.New("attachment has no file name")

// PathResolver maps attachments to deterministic local paths under Root.
//
// Files are laid out as <Root>/<library>/<key>/<file name>, e.g.
//
//	/data/attachments/L1/ABCD2345/paper.pdf
//	/data/attachments/G42/EFGH6789/snapshot.html
type PathResolver struct {
	Root string
}

// NewPathResolver creates a PathResolver rooted at root.
func NewPathResolver(root string) *PathResolver {
	return &PathResolver{Root: root}
}

// AttachmentPath returns the local path of an attachment file.
//
// The file name is sanitized. When it has no extension, the first extension
// registered for contentType is appended.
func (r *PathResolver) AttachmentPath(libraryID model.LibraryIdentifier, key, filename, contentType string) (string, error) {
	name := model.SanitizeFileName(filename)
	if name == "" {
		return "", ErrEmptyFileName
	}
	if filepath.Ext(name) == "" {
		name += ExtensionForContentType(contentType)
	}
	return filepath.Join(r.AttachmentDir(libraryID, key), name), nil
}

// AttachmentDir returns the directory holding an attachment's files.
func (r *PathResolver) AttachmentDir(libraryID model.LibraryIdentifier, key string) string {
	return filepath.Join(r.Root, libraryID.String(), model.SanitizeFileName(key))
}

var preferredExtensions = map[string]string{
	"application/pdf":      ".pdf",
	"application/epub+zip": ".epub",
	"text/html":            ".html",
	"text/plain":           ".txt",
	"image/jpeg":           ".jpg",
	"image/png":            ".png",
}

// ExtensionForContentType returns a file extension (with dot) for a MIME type,
// or "" when none is known.
func ExtensionForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
