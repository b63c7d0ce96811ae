package ioutils

import (
	"bytes"
	"image"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration
	"io"
	"mime"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"  // BMP decoder registration
	_ "golang.org/x/image/tiff" // TIFF decoder registration
	_ "golang.org/x/image/webp" // WebP decoder registration
)

var pdfSignature = []byte("%PDF")

// Validator sniffs local files to detect corrupted copies of known content types.
//
// Supported checks:
//   - application/pdf: the file must start with the "%PDF" signature
//   - image/*: the image header must decode (GIF, JPEG, PNG, BMP, TIFF, WebP)
//
// Files of other content types are considered valid when they exist.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// IsValid reports whether the file at path looks like a valid file of contentType.
func (v *Validator) IsValid(path, contentType string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/pdf":
		return IsPDF(f)
	case strings.HasPrefix(mediaType, "image/"):
		return IsImage(f)
	default:
		return true
	}
}

// IsPDF reports whether r starts with the PDF file signature.
func IsPDF(r io.Reader) bool {
	header := make([]byte, len(pdfSignature))
	if _, err := io.ReadFull(r, header); err != nil {
		return false
	}
	return bytes.Equal(header, pdfSignature)
}

// IsImage reports whether r holds an image in a registered format.
// Only the header is decoded.
func IsImage(r io.Reader) bool {
	_, _, err := image.DecodeConfig(r)
	return err == nil
}
