package pdfrenderer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// pdfiumRuntime holds the single WebAssembly instance shared by the process
var pdfiumRuntime struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

var pdfiumLibrary = &libraryLifecycle{
	name:     "PDFium",
	open:     openPDFium,
	shutdown: closePDFium,
}

// InitPDFium loads PDFium for the whole process. It returns
// ErrAlreadyInitialized when called twice without ClosePDFium.
func InitPDFium() error {
	return pdfiumLibrary.Init()
}

// ClosePDFium releases PDFium. It returns ErrNotInitialized when PDFium is not loaded.
func ClosePDFium() error {
	return pdfiumLibrary.Close()
}

// PDFiumInitialized reports whether InitPDFium has succeeded and ClosePDFium has not run since
func PDFiumInitialized() bool {
	return pdfiumLibrary.Initialized()
}

func openPDFium() error {
	// Single-threaded usage, one worker is enough
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	pdfiumRuntime.pool = pool
	pdfiumRuntime.instance = instance
	buildCharacterCodes()
	return nil
}

func closePDFium() error {
	var err error
	if pdfiumRuntime.instance != nil {
		err = pdfiumRuntime.instance.Close()
	}
	if pdfiumRuntime.pool != nil {
		if closeErr := pdfiumRuntime.pool.Close(); err == nil {
			err = closeErr
		}
	}
	pdfiumRuntime.pool = nil
	pdfiumRuntime.instance = nil
	return err
}

// PDFiumConverter renders pages with PDFium. InitPDFium must have been called.
type PDFiumConverter struct {
	JPEGQuality int
}

// NewPDFiumConverter creates a PDFium-backed converter
func NewPDFiumConverter() *PDFiumConverter {
	return &PDFiumConverter{JPEGQuality: DefaultJPEGQuality}
}

func (c *PDFiumConverter) Name() string {
	return "pdfium"
}

// ConvertDocumentToImages renders every page in the range to outputTemplate
func (c *PDFiumConverter) ConvertDocumentToImages(ctx context.Context, inputPath, outputTemplate string, dpi, firstPage, lastPage int) error {
	if inputPath == "" {
		return fmt.Errorf("input path is empty")
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("unable to access PDF file: %w", err)
	}
	if dpi <= 0 {
		return fmt.Errorf("invalid dpi %d", dpi)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pageRange := NormalizePageRange(firstPage, lastPage)
	return pdfiumLibrary.Do(func() error {
		return c.renderDocument(ctx, pdfiumRuntime.instance, inputPath, outputTemplate, dpi, pageRange)
	})
}

func (c *PDFiumConverter) renderDocument(ctx context.Context, instance pdfium.Pdfium, inputPath, outputTemplate string, dpi int, pageRange PageRange) error {
	pdfBytes, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("unable to read PDF file: %w", err)
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCountResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return fmt.Errorf("unable to get page count: %w", err)
	}

	pageRange = pageRange.Clamp(pageCountResp.PageCount)
	if pageRange.Empty() {
		return fmt.Errorf("%w: document has %d pages, requested %d-%d", ErrNoPages, pageCountResp.PageCount, pageRange.First, pageRange.Last)
	}

	Logger.Debug("Rendering PDF with PDFium", "file", inputPath, "pages", pageCountResp.PageCount, "first", pageRange.First, "last", pageRange.Last, "dpi", dpi)
	for pageNumber := pageRange.First; pageNumber <= pageRange.Last; pageNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		outputPath := PageFileName(outputTemplate, pageNumber-pageRange.First+1)
		if err := c.renderPage(instance, doc.Document, pageNumber, dpi, outputPath); err != nil {
			return err
		}
	}
	return nil
}

func (c *PDFiumConverter) renderPage(instance pdfium.Pdfium, document references.FPDF_DOCUMENT, pageNumber, dpi int, outputPath string) error {
	pageResp, err := instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: document,
		Index:    pageNumber - 1,
	})
	if err != nil {
		return fmt.Errorf("unable to load page %d: %w", pageNumber, err)
	}
	defer instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	page := requests.Page{ByReference: &pageResp.Page}
	size, err := instance.GetPageSize(&requests.GetPageSize{Page: page})
	if err != nil {
		return fmt.Errorf("unable to get size of page %d: %w", pageNumber, err)
	}
	Logger.Debug("Rendering page", "page", pageNumber, "width_pt", size.Width, "height_pt", size.Height)

	// RenderPageInDPI fills the bitmap white before drawing, form fields need the document
	pageRender, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI:        dpi,
		Page:       page,
		RenderForm: true,
		Document:   &document,
	})
	if err != nil {
		return fmt.Errorf("unable to render page %d: %w", pageNumber, err)
	}
	defer pageRender.Cleanup()

	return writeJPEG(pageRender.Result.Image, outputPath, c.JPEGQuality)
}

// ExtractText returns the text of every page in document order
func (c *PDFiumConverter) ExtractText(ctx context.Context, inputPath string) ([]string, error) {
	if inputPath == "" {
		return nil, fmt.Errorf("input path is empty")
	}
	pdfBytes, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	var texts []string
	err = pdfiumLibrary.Do(func() error {
		instance := pdfiumRuntime.instance
		doc, err := instance.OpenDocument(&requests.OpenDocument{
			File: &pdfBytes,
		})
		if err != nil {
			return fmt.Errorf("unable to open PDF document: %w", err)
		}
		defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
			Document: doc.Document,
		})

		pageCountResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
			Document: doc.Document,
		})
		if err != nil {
			return fmt.Errorf("unable to get page count: %w", err)
		}

		texts = make([]string, 0, pageCountResp.PageCount)
		for pageIndex := 0; pageIndex < pageCountResp.PageCount; pageIndex++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := extractPageText(instance, doc.Document, pageIndex)
			if err != nil {
				return err
			}
			texts = append(texts, text)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return texts, nil
}

func extractPageText(instance pdfium.Pdfium, document references.FPDF_DOCUMENT, pageIndex int) (string, error) {
	pageResp, err := instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: document,
		Index:    pageIndex,
	})
	if err != nil {
		return "", fmt.Errorf("unable to load page %d: %w", pageIndex+1, err)
	}
	defer instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	textPage, err := instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
		Page: requests.Page{ByReference: &pageResp.Page},
	})
	if err != nil {
		return "", fmt.Errorf("unable to load text of page %d: %w", pageIndex+1, err)
	}
	defer instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
		TextPage: textPage.TextPage,
	})

	count, err := instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
		TextPage: textPage.TextPage,
	})
	if err != nil {
		return "", fmt.Errorf("unable to count characters of page %d: %w", pageIndex+1, err)
	}

	text, err := instance.FPDFText_GetText(&requests.FPDFText_GetText{
		TextPage:   textPage.TextPage,
		StartIndex: 0,
		Count:      count.Count,
	})
	if err != nil {
		return "", fmt.Errorf("unable to get text of page %d: %w", pageIndex+1, err)
	}
	return text.Text, nil
}

// Close is a no-op, PDFium is released with ClosePDFium
func (c *PDFiumConverter) Close() error {
	return nil
}
