package ioutils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestPNG(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestValidator_IsValid(t *testing.T) {
	dir := t.TempDir()

	goodPDF := filepath.Join(dir, "good.pdf")
	badPDF := filepath.Join(dir, "bad.pdf")
	shortPDF := filepath.Join(dir, "short.pdf")
	goodPNG := filepath.Join(dir, "good.png")
	badPNG := filepath.Join(dir, "bad.png")
	text := filepath.Join(dir, "notes.txt")

	os.WriteFile(goodPDF, []byte("%PDF-1.7\n..."), 0644)
	os.WriteFile(badPDF, []byte("<html>not a pdf</html>"), 0644)
	os.WriteFile(shortPDF, []byte("%P"), 0644)
	writeTestPNG(t, goodPNG, 4, 4)
	os.WriteFile(badPNG, []byte("garbage"), 0644)
	os.WriteFile(text, []byte("anything"), 0644)

	tests := []struct {
		name        string
		path        string
		contentType string
		want        bool
	}{
		{"valid pdf", goodPDF, "application/pdf", true},
		{"corrupted pdf", badPDF, "application/pdf", false},
		{"truncated pdf", shortPDF, "application/pdf", false},
		{"valid png", goodPNG, "image/png", true},
		{"corrupted png", badPNG, "image/png", false},
		{"other type", text, "text/plain", true},
		{"missing file", filepath.Join(dir, "missing.pdf"), "application/pdf", false},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.IsValid(tt.path, tt.contentType); got != tt.want {
				t.Errorf("IsValid(%s, %s) = %v, want %v", filepath.Base(tt.path), tt.contentType, got, tt.want)
			}
		})
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF(strings.NewReader("%PDF-1.4")) {
		t.Error("IsPDF should accept a PDF header")
	}
	if IsPDF(strings.NewReader("PK\x03\x04")) {
		t.Error("IsPDF should reject a zip header")
	}
}
