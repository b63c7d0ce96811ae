package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// LinkType describes who owns an attachment file.
//
// Only imported attachments are stored on the server and can be downloaded.
// Linked files and embedded images live outside the account's file storage.
type LinkType int

const (
	// LinkTypeImportedFile is a file uploaded to the account's storage.
	LinkTypeImportedFile LinkType = iota

	// LinkTypeImportedURL is a web page snapshot uploaded to the account's storage.
	LinkTypeImportedURL

	// LinkTypeLinkedFile points to a file on the user's own disk.
	LinkTypeLinkedFile

	// LinkTypeEmbeddedImage is an image embedded in a note or annotation.
	LinkTypeEmbeddedImage
)

var linkTypeNames = map[LinkType]string{
	LinkTypeImportedFile:  "imported_file",
	LinkTypeImportedURL:   "imported_url",
	LinkTypeLinkedFile:    "linked_file",
	LinkTypeEmbeddedImage: "embedded_image",
}

// String returns the snake_case name used in manifests and the item store.
func (t LinkType) String() string {
	if name, ok := linkTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("LinkType(%d)", int(t))
}

// IsOwned reports whether the file is managed by the account and
// therefore fetchable from the server.
func (t LinkType) IsOwned() bool {
	return t == LinkTypeImportedFile || t == LinkTypeImportedURL
}

// ParseLinkType parses a name produced by LinkType.String.
func ParseLinkType(s string) (LinkType, error) {
	for t, name := range linkTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown link type %q", s)
}

// Location describes where the attachment file currently is.
type Location int

const (
	// LocationLocal means the file is present on disk and up to date.
	LocationLocal Location = iota

	// LocationRemote means the file exists only on the server.
	LocationRemote

	// LocationRemoteMissing means the file is expected locally but was not found.
	LocationRemoteMissing

	// LocationLocalAndChangedRemotely means a local copy exists but the
	// server has a newer version.
	LocationLocalAndChangedRemotely
)

var locationNames = map[Location]string{
	LocationLocal:                   "local",
	LocationRemote:                  "remote",
	LocationRemoteMissing:           "remote_missing",
	LocationLocalAndChangedRemotely: "local_and_changed_remotely",
}

// String returns the snake_case name used in manifests and the item store.
func (l Location) String() string {
	if name, ok := locationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

// ParseLocation parses a name produced by Location.String.
func ParseLocation(s string) (Location, error) {
	for l, name := range locationNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown location %q", s)
}

// Kind is the storage kind of an attachment: either a URLKind or a FileKind.
type Kind interface {
	kind()
}

// URLKind is a bare link. There is nothing to download.
type URLKind struct {
	URL string
}

// FileKind is a file-backed attachment.
type FileKind struct {
	// Filename is the attachment's file name as stored on the server.
	Filename string

	// ContentType is the MIME type, e.g. "application/pdf".
	ContentType string

	// Location tells whether the file is local, remote or stale.
	Location Location

	// LinkType tells whether the file is owned by the account.
	LinkType LinkType

	// Compressed is set for web snapshots, which the server delivers as a zip archive.
	Compressed bool
}

func (URLKind) kind()  {}
func (FileKind) kind() {}

// Attachment is a file or URL associated with a bibliographic item.
//
// Example:
//
//	att := model.Attachment{
//	    Key:       "ABCD2345",
//	    LibraryID: model.CustomLibrary(1),
//	    Title:     "Full Text PDF",
//	    Kind: model.FileKind{
//	        Filename:    "paper.pdf",
//	        ContentType: "application/pdf",
//	        Location:    model.LocationRemote,
//	        LinkType:    model.LinkTypeImportedFile,
//	    },
//	}
type Attachment struct {
	Key       string
	LibraryID LibraryIdentifier
	Title     string
	Kind      Kind
}

// Download returns the Download identity of the attachment.
func (a Attachment) Download() Download {
	return NewDownload(a.Key, a.LibraryID)
}

// File returns the FileKind of a file-backed attachment.
func (a Attachment) File() (FileKind, bool) {
	f, ok := a.Kind.(FileKind)
	return f, ok
}

// WithLocation returns a copy of a file attachment with its location replaced.
// URL attachments are returned unchanged.
func (a Attachment) WithLocation(location Location) Attachment {
	if f, ok := a.Kind.(FileKind); ok {
		f.Location = location
		a.Kind = f
	}
	return a
}

// attachmentJSON is the wire form used by manifests and the item store.
type attachmentJSON struct {
	Key         string            `json:"key"`
	LibraryID   LibraryIdentifier `json:"library"`
	Title       string            `json:"title,omitempty"`
	Type        string            `json:"type"`
	URL         string            `json:"url,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Location    string            `json:"location,omitempty"`
	LinkType    string            `json:"link_type,omitempty"`
	Compressed  bool              `json:"compressed,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Attachment) MarshalJSON() ([]byte, error) {
	w := attachmentJSON{
		Key:       a.Key,
		LibraryID: a.LibraryID,
		Title:     a.Title,
	}

	switch k := a.Kind.(type) {
	case URLKind:
		w.Type = "url"
		w.URL = k.URL
	case FileKind:
		w.Type = "file"
		w.Filename = k.Filename
		w.ContentType = k.ContentType
		w.Location = k.Location.String()
		w.LinkType = k.LinkType.String()
		w.Compressed = k.Compressed
	default:
		return nil, fmt.Errorf("attachment %s has no kind", a.Key)
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var w attachmentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Key == "" {
		return fmt.Errorf("attachment without key")
	}

	a.Key = w.Key
	a.LibraryID = w.LibraryID
	a.Title = w.Title

	switch w.Type {
	case "url":
		a.Kind = URLKind{URL: w.URL}
	case "file":
		location, err := ParseLocation(w.Location)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", w.Key, err)
		}
		linkType, err := ParseLinkType(w.LinkType)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", w.Key, err)
		}
		a.Kind = FileKind{
			Filename:    w.Filename,
			ContentType: w.ContentType,
			Location:    location,
			LinkType:    linkType,
			Compressed:  w.Compressed,
		}
	default:
		return fmt.Errorf("attachment %s: unknown type %q", w.Key, w.Type)
	}

	return nil
}

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Trailing whitespace is removed
//
// The extension is preserved as long as the name does not end in dots.
//
// Example:
//
//	SanitizeFileName("Paper: Part 1/2.pdf") // Returns "Paper_ Part 1_2.pdf"
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	// Limit length for cross-platform compatibility, keeping the extension.
	if len(name) > maxFileNameLength {
		ext := filepath.Ext(name)
		if len(ext) >= maxFileNameLength {
			ext = ""
		}
		name = name[:maxFileNameLength-len(ext)] + ext
	}

	return name
}

const maxFileNameLength = 200

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots = regexp.MustCompile(`\.+$`)
	whitespace   = regexp.MustCompile(`\s+`)
)
