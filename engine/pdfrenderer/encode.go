package pdfrenderer

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used by the in-process renderers when none is configured
const DefaultJPEGQuality = 90

// writeJPEG encodes a rendered page to path
func writeJPEG(img image.Image, path string, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create page image %s: %w", path, err)
	}
	if err := imaging.Encode(file, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		file.Close()
		return fmt.Errorf("unable to encode page image %s: %w", path, err)
	}
	return file.Close()
}
