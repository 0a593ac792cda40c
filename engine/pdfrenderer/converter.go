package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// UnboundedLastPage is the last page used when the caller asks for the whole document
const UnboundedLastPage = math.MaxInt32

// PageIndexDigits is the fixed width of the page number in produced file names
const PageIndexDigits = 10

// PageFileExtension is the extension of every produced page image
const PageFileExtension = ".jpg"

var (
	// ErrAlreadyInitialized is returned by Init when the library is already up
	ErrAlreadyInitialized = errors.New("library already initialized")
	// ErrNotInitialized is returned when the library is used before Init or closed twice
	ErrNotInitialized = errors.New("library not initialized")
	// ErrNoPages is returned when the requested range selects no page of the document
	ErrNoPages = errors.New("no pages to render")
)

// Converter rasterizes the pages of a PDF into one JPEG file per page.
//
// outputTemplate must contain a single integer verb (e.g. %010d) which is
// replaced by the output counter, starting at 1 for the first page of the range.
type Converter interface {
	Name() string
	ConvertDocumentToImages(ctx context.Context, inputPath, outputTemplate string, dpi, firstPage, lastPage int) error
	Close() error
}

// TextExtractor returns the text of every page of a PDF, in page order
type TextExtractor interface {
	ExtractText(ctx context.Context, inputPath string) ([]string, error)
}

// PageRange is an inclusive, 1-indexed range of pages
type PageRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// NormalizePageRange turns an invalid range into "all pages"
func NormalizePageRange(firstPage, lastPage int) PageRange {
	if firstPage <= 0 || lastPage <= 0 || firstPage > lastPage {
		return PageRange{First: 1, Last: UnboundedLastPage}
	}
	return PageRange{First: firstPage, Last: lastPage}
}

// IsValidRange reports whether first/last describe an explicit range
func IsValidRange(firstPage, lastPage int) bool {
	return firstPage > 0 && lastPage > 0 && firstPage <= lastPage
}

// Clamp limits the range to a document with pageCount pages.
// The result is empty (First > Last) when nothing is left.
func (r PageRange) Clamp(pageCount int) PageRange {
	if r.Last > pageCount {
		r.Last = pageCount
	}
	return r
}

// Empty reports whether the range selects no page
func (r PageRange) Empty() bool {
	return r.First > r.Last
}

// OutputTemplate builds the page-numbered output path for a document.
// Literal percent signs are escaped so only the page verb remains.
func OutputTemplate(dir, baseName string) string {
	escape := func(s string) string { return strings.ReplaceAll(s, "%", "%%") }
	return escape(filepath.Join(dir, baseName)) + "%0" + strconv.Itoa(PageIndexDigits) + "d" + PageFileExtension
}

// PageFileName returns the file produced for a page by OutputTemplate
func PageFileName(outputTemplate string, pageNumber int) string {
	return fmt.Sprintf(outputTemplate, pageNumber)
}

// ParsePageNumber extracts the fixed-width page number from a produced file name
func ParsePageNumber(fileName string) (int, bool) {
	name := filepath.Base(fileName)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if len(name) < PageIndexDigits {
		return 0, false
	}
	digits := name[len(name)-PageIndexDigits:]
	pageNumber, err := strconv.Atoi(digits)
	if err != nil || strings.ContainsAny(digits, "+-") {
		return 0, false
	}
	return pageNumber, true
}

// DocumentName strips the page number suffix and extension from a produced file name
func DocumentName(fileName string) string {
	name := filepath.Base(fileName)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if _, ok := ParsePageNumber(fileName); ok {
		return name[:len(name)-PageIndexDigits]
	}
	return name
}
