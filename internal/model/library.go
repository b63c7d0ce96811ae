package model

import (
	"fmt"
	"strconv"
	"strings"
)

// LibraryType distinguishes the personal library of the signed-in user
// from shared group libraries.
type LibraryType int

const (
	// LibraryTypeCustom is the user's own (personal) library.
	LibraryTypeCustom LibraryType = iota

	// LibraryTypeGroup is a library shared through a group.
	LibraryTypeGroup
)

// LibraryIdentifier identifies the collection an item belongs to.
//
// LibraryIdentifier is a plain comparable value, so it can be used directly
// as a map key or as part of a composite key such as Download.
//
// Example:
//
//	personal := model.CustomLibrary(1)
//	group := model.GroupLibrary(42)
//	fmt.Println(personal, group) // "L1 G42"
type LibraryIdentifier struct {
	// Type is the kind of library.
	Type LibraryType

	// ID is the numeric identifier of the library.
	// For custom libraries this is the local library number, for groups the group id.
	ID int
}

// CustomLibrary returns the identifier of a personal library.
func CustomLibrary(id int) LibraryIdentifier {
	return LibraryIdentifier{Type: LibraryTypeCustom, ID: id}
}

// GroupLibrary returns the identifier of a group library.
func GroupLibrary(id int) LibraryIdentifier {
	return LibraryIdentifier{Type: LibraryTypeGroup, ID: id}
}

// String renders the identifier as "L<id>" for custom libraries and
// "G<id>" for group libraries. The same form is accepted by ParseLibraryIdentifier.
func (l LibraryIdentifier) String() string {
	if l.Type == LibraryTypeGroup {
		return "G" + strconv.Itoa(l.ID)
	}
	return "L" + strconv.Itoa(l.ID)
}

// APIPath returns the remote path prefix for the library.
//
// The personal library is addressed through the signed-in user:
//
//	CustomLibrary(1).APIPath(77)  // "users/77"
//	GroupLibrary(42).APIPath(77)  // "groups/42"
func (l LibraryIdentifier) APIPath(userID int64) string {
	if l.Type == LibraryTypeGroup {
		return fmt.Sprintf("groups/%d", l.ID)
	}
	return fmt.Sprintf("users/%d", userID)
}

// MarshalText implements encoding.TextMarshaler.
func (l LibraryIdentifier) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LibraryIdentifier) UnmarshalText(text []byte) error {
	parsed, err := ParseLibraryIdentifier(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLibraryIdentifier parses the "L<id>" / "G<id>" form produced by String.
func ParseLibraryIdentifier(s string) (LibraryIdentifier, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return LibraryIdentifier{}, fmt.Errorf("invalid library identifier %q", s)
	}

	id, err := strconv.Atoi(s[1:])
	if err != nil || id < 0 {
		return LibraryIdentifier{}, fmt.Errorf("invalid library identifier %q", s)
	}

	switch s[0] {
	case 'L', 'l':
		return CustomLibrary(id), nil
	case 'G', 'g':
		return GroupLibrary(id), nil
	default:
		return LibraryIdentifier{}, fmt.Errorf("invalid library identifier %q", s)
	}
}

// Download identifies one unit of download work.
//
// Two Downloads are equal when both the key and the library match, which makes
// Download suitable as a map key for in-flight bookkeeping.
type Download struct {
	// Key is the attachment item key.
	Key string

	// LibraryID is the library containing the attachment.
	LibraryID LibraryIdentifier
}

// NewDownload creates a Download for the given item key and library.
func NewDownload(key string, libraryID LibraryIdentifier) Download {
	return Download{Key: key, LibraryID: libraryID}
}

// String renders the download as "<library>/<key>", used in logs.
func (d Download) String() string {
	return d.LibraryID.String() + "/" + d.Key
}
