package assets

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DecodedImage holds the pixels of a decoded page in BGRA8 order
type DecodedImage struct {
	Width  int
	Height int
	Pixels []byte
	Image  *image.NRGBA
}

// ImageDecoder decodes compressed image bytes
type ImageDecoder interface {
	Decode(data []byte) (*DecodedImage, error)
}

type imagingDecoder struct{}

// NewImageDecoder returns the decoder used for produced page images
func NewImageDecoder() ImageDecoder {
	return imagingDecoder{}
}

func (imagingDecoder) Decode(data []byte) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}

	nrgba := imaging.Clone(img)
	width, height := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return &DecodedImage{
		Width:  width,
		Height: height,
		Pixels: toBGRA(nrgba),
		Image:  nrgba,
	}, nil
}

// toBGRA reorders tightly packed NRGBA rows into BGRA
func toBGRA(img *image.NRGBA) []byte {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		dst := out[y*width*4 : (y+1)*width*4]
		for x := 0; x < width*4; x += 4 {
			dst[x] = row[x+2]
			dst[x+1] = row[x+1]
			dst[x+2] = row[x]
			dst[x+3] = row[x+3]
		}
	}
	return out
}
