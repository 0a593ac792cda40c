package pdfrenderer

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzConverter renders pages with MuPDF through go-fitz (requires CGo)
type FitzConverter struct {
	JPEGQuality int
}

// NewFitzConverter creates a MuPDF-backed converter
func NewFitzConverter() *FitzConverter {
	return &FitzConverter{JPEGQuality: DefaultJPEGQuality}
}

func (c *FitzConverter) Name() string {
	return "mupdf"
}

// ConvertDocumentToImages renders every page in the range to outputTemplate
func (c *FitzConverter) ConvertDocumentToImages(ctx context.Context, inputPath, outputTemplate string, dpi, firstPage, lastPage int) error {
	if dpi <= 0 {
		return fmt.Errorf("invalid dpi %d", dpi)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := fitz.New(inputPath)
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	pageRange := NormalizePageRange(firstPage, lastPage).Clamp(numPages)
	if pageRange.Empty() {
		return fmt.Errorf("%w: document has %d pages", ErrNoPages, numPages)
	}

	for pageNumber := pageRange.First; pageNumber <= pageRange.Last; pageNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.ImageDPI(pageNumber-1, float64(dpi))
		if err != nil {
			return fmt.Errorf("unable to render page %d: %w", pageNumber, err)
		}
		if err := writeJPEG(img, PageFileName(outputTemplate, pageNumber-pageRange.First+1), c.JPEGQuality); err != nil {
			return err
		}
	}
	return nil
}

// ExtractText returns the text of every page in document order
func (c *FitzConverter) ExtractText(ctx context.Context, inputPath string) ([]string, error) {
	doc, err := fitz.New(inputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	texts := make([]string, 0, numPages)
	for pageNum := 0; pageNum < numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(pageNum)
		if err != nil {
			return nil, fmt.Errorf("unable to extract text of page %d: %w", pageNum+1, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// Close cleans up resources (no-op, the document is closed per call)
func (c *FitzConverter) Close() error {
	return nil
}
