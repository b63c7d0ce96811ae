package ioutils

import (
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"
)

// ImageService produces previews of downloaded image attachments.
//
// Example usage:
//
//	svc := NewImageService()
//	err := svc.Thumbnail("/data/L1/ABCD2345/figure.png", "/data/L1/ABCD2345/.thumb.jpg", 256)
type ImageService struct{}

// NewImageService creates a new ImageService.
func NewImageService() *ImageService {
	return &ImageService{}
}

// Thumbnail writes a JPEG preview of the image at src to dst, scaled to fit
// within maxSize x maxSize.
//
// The aspect ratio is preserved and images smaller than maxSize are not
// enlarged. The Catmull-Rom algorithm is used for high-quality resizing.
//
// Example:
//
//	// A 1500x1000 image becomes 256x170
//	err := svc.Thumbnail(src, dst, 256)
func (s *ImageService) Thumbnail(src, dst string, maxSize int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxSize)

	thumb := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// fitWithin scales (width, height) down to fit a maxSize square, keeping the aspect ratio.
func fitWithin(width, height, maxSize int) (int, int) {
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return width, height
	}
	if width >= height {
		h := height * maxSize / width
		if h < 1 {
			h = 1
		}
		return maxSize, h
	}
	w := width * maxSize / height
	if w < 1 {
		w = 1
	}
	return w, maxSize
}

// ThumbnailPath returns the path used for the preview of the attachment file at path.
func ThumbnailPath(path string) string {
	return path + ".thumb.jpg"
}
