package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfimporter/config"
	"github.com/drummonds/pdfimporter/database"
	"github.com/drummonds/pdfimporter/engine/assets"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// WorkingDirName is the scratch directory created below the saved directory
const WorkingDirName = "ConvertTemp"

var (
	// ErrInputNotFound is returned when the PDF to import does not exist
	ErrInputNotFound = errors.New("input file not found")
	// ErrConversionFailed wraps any rasterization failure
	ErrConversionFailed = errors.New("conversion failed")
	// ErrTextUnsupported is returned when no text extractor is configured
	ErrTextUnsupported = errors.New("text extraction not available")
)

// ConversionRequest describes one import. A non-positive or inverted page
// range means the whole document.
type ConversionRequest struct {
	InputPath string      `json:"path"`
	DPI       int         `json:"dpi"`
	FirstPage int         `json:"firstPage"`
	LastPage  int         `json:"lastPage"`
	Mode      assets.Mode `json:"mode"`
}

// PdfAsset is the result of an import: one texture per rendered page
type PdfAsset struct {
	ID         ulid.ULID             `json:"id"`
	Name       string                `json:"name"`
	SourceFile string                `json:"sourceFile"`
	PageRange  pdfrenderer.PageRange `json:"pageRange"`
	DPI        int                   `json:"dpi"`
	Pages      []*assets.Texture     `json:"pages"`
}

// Importer runs the conversion pipeline. Calls are serialized.
type Importer struct {
	converter    pdfrenderer.Converter
	extractor    pdfrenderer.TextExtractor
	materializer *assets.Materializer
	db           database.Repository
	savedDir     string
	defaultDPI   int

	mu sync.Mutex
}

// NewImporter wires the pipeline. extractor and db may be nil.
func NewImporter(importerConfig config.ImporterConfig, converter pdfrenderer.Converter, extractor pdfrenderer.TextExtractor, materializer *assets.Materializer, db database.Repository) *Importer {
	defaultDPI := importerConfig.DefaultDPI
	if defaultDPI <= 0 {
		defaultDPI = 150
	}
	return &Importer{
		converter:    converter,
		extractor:    extractor,
		materializer: materializer,
		db:           db,
		savedDir:     importerConfig.SavedDir,
		defaultDPI:   defaultDPI,
	}
}

// WorkingDir is where page images are written during a conversion
func (im *Importer) WorkingDir() string {
	return filepath.Join(im.savedDir, WorkingDirName)
}

// Converter returns the rasterizer in use
func (im *Importer) Converter() pdfrenderer.Converter {
	return im.converter
}

// ConvertPdfToPdfAsset rasterizes a PDF and turns every produced page into a texture.
// No asset is returned when the rasterizer fails. Pages that cannot be decoded are skipped.
func (im *Importer) ConvertPdfToPdfAsset(ctx context.Context, req ConversionRequest) (*PdfAsset, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	info, err := os.Stat(req.InputPath)
	if err != nil || info.IsDir() {
		Logger.Error("PDF file not found", "path", req.InputPath)
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, req.InputPath)
	}

	mode := req.Mode
	if mode == "" {
		mode = assets.ModeRuntime
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = im.defaultDPI
	}

	conversion := im.trackStart(req.InputPath, mode)
	asset, err := im.convert(ctx, req.InputPath, dpi, req.FirstPage, req.LastPage, mode)
	im.trackFinish(conversion, asset, err)
	return asset, err
}

func (im *Importer) convert(ctx context.Context, inputPath string, dpi, firstPage, lastPage int, mode assets.Mode) (*PdfAsset, error) {
	workDir := im.WorkingDir()
	if err := resetDir(workDir); err != nil {
		return nil, fmt.Errorf("unable to prepare working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			Logger.Warn("Unable to remove working directory", "path", workDir, "error", err)
		}
	}()

	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	template := pdfrenderer.OutputTemplate(workDir, baseName)
	Logger.Info("Converting PDF", "file", inputPath, "converter", im.converter.Name(), "dpi", dpi, "first", firstPage, "last", lastPage)

	if err := im.converter.ConvertDocumentToImages(ctx, inputPath, template, dpi, firstPage, lastPage); err != nil {
		Logger.Error("Rasterization failed", "file", inputPath, "converter", im.converter.Name(), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	pageFiles, err := listPageFiles(workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	assetID, err := database.CalculateUUID(time.Now())
	if err != nil {
		return nil, err
	}
	asset := &PdfAsset{
		ID:         assetID,
		Name:       baseName,
		SourceFile: inputPath,
		DPI:        dpi,
		Pages:      make([]*assets.Texture, 0, len(pageFiles)),
	}
	for _, pageFile := range pageFiles {
		texture, err := im.materializer.MaterializePage(pageFile, mode)
		if err != nil {
			Logger.Warn("Skipping page that could not be materialized", "file", pageFile, "error", err)
			continue
		}
		asset.Pages = append(asset.Pages, texture)
	}
	asset.PageRange = assetPageRange(inputPath, firstPage, lastPage, len(asset.Pages))

	if mode == assets.ModePersisted {
		im.savePdfAsset(asset)
	}
	Logger.Info("PDF converted", "file", inputPath, "pages", len(asset.Pages), "first", asset.PageRange.First, "last", asset.PageRange.Last)
	return asset, nil
}

// assetPageRange is the range recorded on the asset: the request when it was
// valid, with the end clamped to the document, otherwise 1..pagesProduced
func assetPageRange(inputPath string, firstPage, lastPage, pagesProduced int) pdfrenderer.PageRange {
	if !pdfrenderer.IsValidRange(firstPage, lastPage) {
		return pdfrenderer.PageRange{First: 1, Last: pagesProduced}
	}
	pageRange := pdfrenderer.PageRange{First: firstPage, Last: lastPage}
	total, err := pdfrenderer.CountPages(inputPath)
	if err != nil {
		Logger.Debug("Unable to count pages, keeping requested range", "file", inputPath, "error", err)
		return pageRange
	}
	if total > 0 && pageRange.Last > total {
		pageRange.Last = total
	}
	return pageRange
}

// ExtractText returns the text of every page of a PDF
func (im *Importer) ExtractText(ctx context.Context, inputPath string) ([]string, error) {
	if im.extractor == nil {
		return nil, ErrTextUnsupported
	}
	info, err := os.Stat(inputPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}
	return im.extractor.ExtractText(ctx, inputPath)
}

// resetDir deletes and recreates dir so a conversion starts empty
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, os.ModePerm)
}

// listPageFiles returns the produced page images ordered by page number
func listPageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list page images: %w", err)
	}

	type pageFile struct {
		path string
		page int
	}
	var pages []pageFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), pdfrenderer.PageFileExtension) {
			continue
		}
		page, ok := pdfrenderer.ParsePageNumber(entry.Name())
		if !ok {
			Logger.Debug("Ignoring file without page number", "file", entry.Name())
			continue
		}
		pages = append(pages, pageFile{path: filepath.Join(dir, entry.Name()), page: page})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].page < pages[j].page })

	paths := make([]string, 0, len(pages))
	for _, p := range pages {
		paths = append(paths, p.path)
	}
	return paths, nil
}

func (im *Importer) trackStart(inputPath string, mode assets.Mode) *database.Conversion {
	if im.db == nil {
		return nil
	}
	conversion, err := im.db.CreateConversion(inputPath, im.converter.Name(), string(mode))
	if err != nil {
		Logger.Warn("Unable to record conversion", "file", inputPath, "error", err)
		return nil
	}
	if err := im.db.StartConversion(conversion.ID); err != nil {
		Logger.Warn("Unable to mark conversion as running", "id", conversion.ID, "error", err)
	}
	return conversion
}

func (im *Importer) trackFinish(conversion *database.Conversion, asset *PdfAsset, convErr error) {
	if im.db == nil || conversion == nil {
		return
	}
	var err error
	if convErr != nil {
		err = im.db.FailConversion(conversion.ID, convErr.Error())
	} else {
		err = im.db.CompleteConversion(conversion.ID, asset.ID.String(), len(asset.Pages))
	}
	if err != nil {
		Logger.Warn("Unable to update conversion", "id", conversion.ID, "error", err)
	}
}

func (im *Importer) savePdfAsset(asset *PdfAsset) {
	if im.db == nil {
		return
	}
	textureIDs := make([]string, 0, len(asset.Pages))
	for _, page := range asset.Pages {
		textureIDs = append(textureIDs, page.AssetID)
	}
	record := &database.PdfAssetRecord{
		ID:         asset.ID,
		Name:       asset.Name,
		SourceFile: asset.SourceFile,
		FirstPage:  asset.PageRange.First,
		LastPage:   asset.PageRange.Last,
		DPI:        asset.DPI,
		PageCount:  len(asset.Pages),
		TextureIDs: textureIDs,
	}
	if err := im.db.SavePdfAsset(record); err != nil {
		Logger.Warn("Unable to record pdf asset", "name", asset.Name, "error", err)
	}
}
