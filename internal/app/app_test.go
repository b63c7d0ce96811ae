package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/handiism/attachment-downloader/internal/config"
	"github.com/handiism/attachment-downloader/internal/download"
	ioutils "github.com/handiism/attachment-downloader/internal/io"
	"github.com/handiism/attachment-downloader/internal/logging"
	"github.com/handiism/attachment-downloader/internal/model"
)

const testManifest = `{"attachments": [
	{"parent_key": "ITEM0001", "attachment": {"key": "PDF00001", "library": "L1", "title": "Paper", "type": "file",
	 "filename": "paper.pdf", "content_type": "application/pdf", "location": "remote", "link_type": "imported_file"}},
	{"attachment": {"key": "IMG00001", "library": "L1", "title": "Figure", "type": "file",
	 "filename": "figure.png", "content_type": "image/png", "location": "remote", "link_type": "imported_file"}},
	{"attachment": {"key": "URL00001", "library": "L1", "title": "Site", "type": "url", "url": "https://example.com"}},
	{"attachment": {"key": "LNK00001", "library": "L1", "title": "Linked", "type": "file",
	 "filename": "linked.pdf", "content_type": "application/pdf", "location": "remote", "link_type": "linked_file"}}
]}`

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	files := map[string][]byte{
		"/users/7/items/PDF00001/file": []byte("%PDF-1.7 test document"),
		"/users/7/items/IMG00001/file": testPNG(t),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	settings := config.DefaultSettings()
	settings.API.BaseURL = server.URL
	settings.API.UserID = 7
	settings.Downloads.Path = filepath.Join(dir, "storage")
	settings.Downloads.MaxRetries = 0
	settings.Downloads.Thumbnails = true
	settings.Downloads.ThumbnailSize = 16
	settings.Store.Path = filepath.Join(dir, "attachments.db")

	a, err := New(settings, logging.NullLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	manifest := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifest, []byte(testManifest), 0644); err != nil {
		t.Fatal(err)
	}
	n, err := a.ImportManifest(manifest)
	if err != nil {
		t.Fatalf("ImportManifest error: %v", err)
	}
	if n != 4 {
		t.Fatalf("imported %d records, want 4", n)
	}
	return a
}

func TestApp_DownloadAll(t *testing.T) {
	a := newTestApp(t)
	lib := model.CustomLibrary(1)

	records, err := a.Attachments(lib, nil)
	if err != nil {
		t.Fatalf("Attachments error: %v", err)
	}

	updates, unsubscribe := a.Coordinator.Subscribe(64)
	defer unsubscribe()

	for _, rec := range records {
		a.Coordinator.DownloadIfNeeded(rec.Attachment, rec.ParentKey)
	}

	outcome := make(map[string]download.Update)
	timeout := time.After(10 * time.Second)
	for len(outcome) < len(records) {
		select {
		case u := <-updates:
			if u.IsTerminal() {
				outcome[u.Key] = u
				a.AfterReady(u)
			}
		case <-timeout:
			t.Fatalf("timed out; outcomes so far: %v", outcome)
		}
	}

	want := map[string]download.UpdateKind{
		"PDF00001": download.KindReady,
		"IMG00001": download.KindReady,
		"URL00001": download.KindReady,
		"LNK00001": download.KindFailed,
	}
	for key, kind := range want {
		if got := outcome[key].Kind; got != kind {
			t.Errorf("%s: kind = %v, want %v (err %v)", key, got, kind, outcome[key].Err)
		}
	}
	if outcome["PDF00001"].ParentKey != "ITEM0001" {
		t.Errorf("ParentKey = %q, want ITEM0001", outcome["PDF00001"].ParentKey)
	}

	pdfPath, _ := a.Paths.AttachmentPath(lib, "PDF00001", "paper.pdf", "application/pdf")
	if data, err := os.ReadFile(pdfPath); err != nil || !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("pdf = %q, %v", data, err)
	}

	imgPath, _ := a.Paths.AttachmentPath(lib, "IMG00001", "figure.png", "image/png")
	thumb, err := os.Open(ioutils.ThumbnailPath(imgPath))
	if err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
	defer thumb.Close()
	cfg, _, err := image.DecodeConfig(thumb)
	if err != nil {
		t.Fatalf("thumbnail decode: %v", err)
	}
	if cfg.Width != 16 || cfg.Height != 8 {
		t.Errorf("thumbnail = %dx%d, want 16x8", cfg.Width, cfg.Height)
	}

	rec, err := a.Store.GetAttachment(lib, "PDF00001")
	if err != nil {
		t.Fatalf("GetAttachment error: %v", err)
	}
	if !rec.Downloaded {
		t.Error("store should mark the pdf downloaded")
	}
	if _, _, err := a.Coordinator.Data("LNK00001", lib); err != nil {
		t.Errorf("incompatible attachments leave no sticky error, got %v", err)
	}
}

func TestApp_EstimateSizes(t *testing.T) {
	a := newTestApp(t)

	records, err := a.Attachments(model.CustomLibrary(1), nil)
	if err != nil {
		t.Fatalf("Attachments error: %v", err)
	}

	estimates, total := a.EstimateSizes(context.Background(), records)
	if len(estimates) != 2 {
		t.Fatalf("estimates = %+v, want 2 (url and linked files need no transfer)", estimates)
	}

	var want int64
	for _, e := range estimates {
		if e.Err != nil {
			t.Errorf("%s: %v", e.Key, e.Err)
		}
		want += e.Size
	}
	if total != want || total == 0 {
		t.Errorf("total = %d, want %d", total, want)
	}
}

func TestApp_AttachmentsByKey(t *testing.T) {
	a := newTestApp(t)
	lib := model.CustomLibrary(1)

	records, err := a.Attachments(lib, []string{"URL00001", "PDF00001"})
	if err != nil {
		t.Fatalf("Attachments error: %v", err)
	}
	if len(records) != 2 || records[0].Attachment.Key != "URL00001" {
		t.Errorf("records = %v", records)
	}

	if _, err := a.Attachments(lib, []string{"MISSING1"}); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestMatchTitle(t *testing.T) {
	a := newTestApp(t)
	records, _ := a.Attachments(model.CustomLibrary(1), nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", 4},
		{"paper", 1},
		{"FIG", 1},
		{"lnkd", 1},
		{"nothing like it", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := MatchTitle(records, tt.query); len(got) != tt.want {
				t.Errorf("MatchTitle(%q) returned %d records, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"A", []string{"A"}},
		{" A , B,,C ", []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		if got := ParseKeys(tt.in); fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("ParseKeys(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
