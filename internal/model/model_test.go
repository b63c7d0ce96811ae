package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-file.pdf", "normal-file.pdf"},
		{"file:with:colons.pdf", "file_with_colons.pdf"},
		{"file<with>brackets.pdf", "file_with_brackets.pdf"},
		{"file/with\\slashes.pdf", "file_with_slashes.pdf"},
		{"file|with|pipes.pdf", "file_with_pipes.pdf"},
		{"file?with*wildcards.pdf", "file_with_wildcards.pdf"},
		{"file\"with\"quotes.pdf", "file_with_quotes.pdf"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"trailing spaces   ", "trailing spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeFileName(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileName_KeepsExtensionWhenTruncating(t *testing.T) {
	name := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFileName(name)

	if len(got) != maxFileNameLength {
		t.Errorf("len = %d, want %d", len(got), maxFileNameLength)
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("SanitizeFileName dropped extension: %q", got)
	}
}

func TestLibraryIdentifier_RoundTrip(t *testing.T) {
	tests := []struct {
		lib  LibraryIdentifier
		want string
	}{
		{CustomLibrary(1), "L1"},
		{GroupLibrary(42), "G42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.lib.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParseLibraryIdentifier(tt.want)
			if err != nil {
				t.Fatalf("ParseLibraryIdentifier(%q) error: %v", tt.want, err)
			}
			if parsed != tt.lib {
				t.Errorf("ParseLibraryIdentifier(%q) = %v, want %v", tt.want, parsed, tt.lib)
			}
		})
	}
}

func TestParseLibraryIdentifier_Invalid(t *testing.T) {
	for _, input := range []string{"", "L", "X1", "Labc", "G-3"} {
		if _, err := ParseLibraryIdentifier(input); err == nil {
			t.Errorf("ParseLibraryIdentifier(%q) expected error", input)
		}
	}
}

func TestLibraryIdentifier_APIPath(t *testing.T) {
	if got := CustomLibrary(1).APIPath(77); got != "users/77" {
		t.Errorf("CustomLibrary APIPath = %q, want users/77", got)
	}
	if got := GroupLibrary(42).APIPath(77); got != "groups/42" {
		t.Errorf("GroupLibrary APIPath = %q, want groups/42", got)
	}
}

func TestDownload_IsComparableKey(t *testing.T) {
	m := map[Download]int{}
	m[NewDownload("AAAA", CustomLibrary(1))] = 1
	m[NewDownload("AAAA", CustomLibrary(1))] = 2
	m[NewDownload("AAAA", GroupLibrary(1))] = 3

	if len(m) != 2 {
		t.Errorf("expected 2 distinct downloads, got %d", len(m))
	}
}

func TestLinkType_IsOwned(t *testing.T) {
	tests := []struct {
		linkType LinkType
		want     bool
	}{
		{LinkTypeImportedFile, true},
		{LinkTypeImportedURL, true},
		{LinkTypeLinkedFile, false},
		{LinkTypeEmbeddedImage, false},
	}

	for _, tt := range tests {
		t.Run(tt.linkType.String(), func(t *testing.T) {
			if got := tt.linkType.IsOwned(); got != tt.want {
				t.Errorf("IsOwned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttachment_JSON(t *testing.T) {
	input := `[
		{"key":"FILE0001","library":"G5","title":"PDF","type":"file","filename":"a.pdf",
		 "content_type":"application/pdf","location":"local_and_changed_remotely","link_type":"imported_file"},
		{"key":"URL00001","library":"L1","type":"url","url":"https://example.com"}
	]`

	var atts []Attachment
	if err := json.Unmarshal([]byte(input), &atts); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(atts))
	}

	file, ok := atts[0].File()
	if !ok {
		t.Fatal("first attachment should be a file")
	}
	if file.Location != LocationLocalAndChangedRemotely {
		t.Errorf("Location = %v, want %v", file.Location, LocationLocalAndChangedRemotely)
	}
	if atts[0].LibraryID != GroupLibrary(5) {
		t.Errorf("LibraryID = %v, want G5", atts[0].LibraryID)
	}

	if _, ok := atts[1].Kind.(URLKind); !ok {
		t.Errorf("second attachment kind = %T, want URLKind", atts[1].Kind)
	}

	data, err := json.Marshal(atts[0])
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(data), `"library":"G5"`) {
		t.Errorf("marshalled attachment missing library: %s", data)
	}
}

func TestAttachment_JSONRejectsUnknownType(t *testing.T) {
	var att Attachment
	err := json.Unmarshal([]byte(`{"key":"X","library":"L1","type":"note"}`), &att)
	if err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestAttachment_WithLocation(t *testing.T) {
	att := Attachment{Key: "K", Kind: FileKind{Location: LocationRemote}}
	updated := att.WithLocation(LocationLocal)

	file, _ := updated.File()
	if file.Location != LocationLocal {
		t.Errorf("Location = %v, want local", file.Location)
	}
	original, _ := att.File()
	if original.Location != LocationRemote {
		t.Error("WithLocation should not modify the receiver")
	}
}
