package engine

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pdfimporter/config"
	"github.com/drummonds/pdfimporter/database"
	"github.com/drummonds/pdfimporter/engine/assets"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer/pdftest"
)

func TestMain(m *testing.M) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	Logger = logger
	database.Logger = logger
	assets.Logger = logger
	pdfrenderer.Logger = logger
	os.Exit(m.Run())
}

// fakeConverter writes one small JPEG per page of the requested range
type fakeConverter struct {
	pageCount   int
	corruptPage int    // counter of a page written as garbage, 0 for none
	failOn      string // input base name that makes the conversion fail
	calls       int
	workDirSeen []bool // whether the output directory existed when each call started
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Close() error { return nil }

func (f *fakeConverter) ConvertDocumentToImages(ctx context.Context, inputPath, outputTemplate string, dpi, firstPage, lastPage int) error {
	f.calls++
	_, statErr := os.Stat(filepath.Dir(outputTemplate))
	f.workDirSeen = append(f.workDirSeen, statErr == nil)
	if f.failOn != "" && filepath.Base(inputPath) == f.failOn {
		return errors.New("interpreter returned code -100")
	}
	pageRange := pdfrenderer.NormalizePageRange(firstPage, lastPage).Clamp(f.pageCount)
	if pageRange.Empty() {
		return pdfrenderer.ErrNoPages
	}
	for page := pageRange.First; page <= pageRange.Last; page++ {
		counter := page - pageRange.First + 1
		outputPath := pdfrenderer.PageFileName(outputTemplate, counter)
		if counter == f.corruptPage {
			if err := os.WriteFile(outputPath, []byte("not a jpeg"), 0644); err != nil {
				return err
			}
			continue
		}
		img := imaging.New(8+page, 10, color.NRGBA{R: 255, A: 255})
		if err := imaging.Save(img, outputPath); err != nil {
			return err
		}
	}
	return nil
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractText(ctx context.Context, inputPath string) ([]string, error) {
	return []string{"Page 1", "Page 2"}, nil
}

type testEnv struct {
	cfg       config.ImporterConfig
	converter *fakeConverter
	db        *database.BunDB
	importer  *Importer
}

func newTestEnv(t *testing.T, pageCount int, withDB bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.ImporterConfig{
		SavedDir:    filepath.Join(root, "Saved"),
		ContentPath: filepath.Join(root, "Content"),
		ImportRoot:  filepath.Join(root, "Import"),
		DefaultDPI:  150,
	}
	env := &testEnv{cfg: cfg, converter: &fakeConverter{pageCount: pageCount}}

	var repo database.Repository
	var registry assets.AssetRegistry
	if withDB {
		db, err := database.NewRepository(config.ImporterConfig{
			DatabaseType:   "sqlite",
			DatabaseDbname: filepath.Join(root, "test.sqlite"),
		})
		if err != nil {
			t.Fatalf("Failed to set up sqlite repository: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		env.db = db
		repo = db
		registry = db
	}
	materializer := assets.NewMaterializer(cfg.ContentPath, nil, registry)
	env.importer = NewImporter(cfg, env.converter, fakeExtractor{}, materializer, repo)
	return env
}

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := pdftest.WriteFile(path, pdftest.Pages(pages)); err != nil {
		t.Fatalf("Failed to write test PDF: %v", err)
	}
	return path
}

func assertWorkingDirDuringCall(t *testing.T, converter *fakeConverter) {
	t.Helper()
	if len(converter.workDirSeen) == 0 {
		t.Fatal("Converter was not called")
	}
	for i, seen := range converter.workDirSeen {
		if !seen {
			t.Errorf("Working directory missing during converter call %d", i+1)
		}
	}
}

func assertNoWorkingDir(t *testing.T, im *Importer) {
	t.Helper()
	if _, err := os.Stat(im.WorkingDir()); !os.IsNotExist(err) {
		t.Errorf("Expected working directory %s to be removed, stat returned %v", im.WorkingDir(), err)
	}
}

func TestConvertRuntimeAllPages(t *testing.T) {
	env := newTestEnv(t, 3, false)
	input := writePDF(t, t.TempDir(), "brochure.pdf", 3)

	asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{InputPath: input})
	if err != nil {
		t.Fatalf("Conversion failed: %v", err)
	}
	if len(asset.Pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(asset.Pages))
	}
	if asset.PageRange.First != 1 || asset.PageRange.Last != 3 {
		t.Errorf("Expected page range 1-3, got %d-%d", asset.PageRange.First, asset.PageRange.Last)
	}
	if asset.DPI != 150 {
		t.Errorf("Expected default DPI 150, got %d", asset.DPI)
	}
	if asset.Name != "brochure" {
		t.Errorf("Expected asset name brochure, got %s", asset.Name)
	}
	for i, page := range asset.Pages {
		if !page.Transient {
			t.Errorf("Page %d should be transient", i+1)
		}
		// the fake converter makes page n 8+n pixels wide
		if page.Width != 9+i {
			t.Errorf("Page %d out of order, width %d", i+1, page.Width)
		}
		if len(page.Pixels) != page.Width*page.Height*4 {
			t.Errorf("Page %d has %d bytes of pixels", i+1, len(page.Pixels))
		}
	}
	assertWorkingDirDuringCall(t, env.converter)
	assertNoWorkingDir(t, env.importer)
}

func TestConvertMissingInput(t *testing.T) {
	env := newTestEnv(t, 3, false)

	asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{
		InputPath: filepath.Join(t.TempDir(), "missing.pdf"),
	})
	if asset != nil {
		t.Error("Expected no asset for a missing input")
	}
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}
	if env.converter.calls != 0 {
		t.Error("Converter must not run for a missing input")
	}
	if _, err := os.Stat(env.cfg.SavedDir); !os.IsNotExist(err) {
		t.Error("Missing input must not touch the saved directory")
	}
}

func TestConvertSkipsCorruptedPage(t *testing.T) {
	env := newTestEnv(t, 4, false)
	env.converter.corruptPage = 2
	input := writePDF(t, t.TempDir(), "scan.pdf", 4)

	asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{InputPath: input})
	if err != nil {
		t.Fatalf("Conversion failed: %v", err)
	}
	if len(asset.Pages) != 3 {
		t.Errorf("Expected 3 decodable pages, got %d", len(asset.Pages))
	}
	assertNoWorkingDir(t, env.importer)
}

func TestConvertPageRange(t *testing.T) {
	env := newTestEnv(t, 5, false)
	input := writePDF(t, t.TempDir(), "manual.pdf", 5)

	tests := []struct {
		first, last         int
		wantFirst, wantLast int
		wantPages           int
	}{
		{2, 3, 2, 3, 2},
		{4, 99, 4, 5, 2},
		{0, 0, 1, 5, 5},
		{4, 2, 1, 5, 5},
		{-1, 3, 1, 5, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.first, tt.last), func(t *testing.T) {
			asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{
				InputPath: input,
				FirstPage: tt.first,
				LastPage:  tt.last,
			})
			if err != nil {
				t.Fatalf("Conversion failed: %v", err)
			}
			if len(asset.Pages) != tt.wantPages {
				t.Errorf("Expected %d pages, got %d", tt.wantPages, len(asset.Pages))
			}
			if asset.PageRange.First != tt.wantFirst || asset.PageRange.Last != tt.wantLast {
				t.Errorf("Expected range %d-%d, got %d-%d", tt.wantFirst, tt.wantLast, asset.PageRange.First, asset.PageRange.Last)
			}
		})
	}
}

func TestConvertFailureReturnsNoAsset(t *testing.T) {
	env := newTestEnv(t, 2, true)
	env.converter.failOn = "broken.pdf"
	input := writePDF(t, t.TempDir(), "broken.pdf", 2)

	asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{InputPath: input})
	if asset != nil {
		t.Error("Expected no asset when the converter fails")
	}
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Expected ErrConversionFailed, got %v", err)
	}
	assertWorkingDirDuringCall(t, env.converter)
	assertNoWorkingDir(t, env.importer)

	conversions, err := env.db.GetRecentConversions(10, 0)
	if err != nil {
		t.Fatalf("Failed to list conversions: %v", err)
	}
	if len(conversions) != 1 || conversions[0].Status != database.ConversionStatusFailed {
		t.Fatalf("Expected one failed conversion, got %+v", conversions)
	}
	if !strings.Contains(conversions[0].Error, "-100") {
		t.Errorf("Expected interpreter error to be recorded, got %q", conversions[0].Error)
	}
}

func TestConvertPersisted(t *testing.T) {
	env := newTestEnv(t, 2, true)
	input := writePDF(t, t.TempDir(), "catalog.pdf", 2)

	asset, err := env.importer.ConvertPdfToPdfAsset(context.Background(), ConversionRequest{
		InputPath: input,
		Mode:      assets.ModePersisted,
	})
	if err != nil {
		t.Fatalf("Conversion failed: %v", err)
	}
	if len(asset.Pages) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(asset.Pages))
	}
	wantNames := []string{"catalog", "catalog_1"}
	for i, page := range asset.Pages {
		if page.Transient {
			t.Errorf("Persisted page %d marked transient", i+1)
		}
		if page.Name != wantNames[i] {
			t.Errorf("Expected page name %s, got %s", wantNames[i], page.Name)
		}
		if page.PackagePath != "/PDFImporter/catalog/catalog" {
			t.Errorf("Unexpected package path %s", page.PackagePath)
		}
		if _, err := os.Stat(page.FilePath); err != nil {
			t.Errorf("Persisted texture file missing: %v", err)
		}
	}

	record, err := env.db.GetPdfAsset(asset.ID)
	if err != nil {
		t.Fatalf("Pdf asset not recorded: %v", err)
	}
	if record.PageCount != 2 || len(record.TextureIDs) != 2 {
		t.Errorf("Unexpected pdf asset record %+v", record)
	}
	textures, err := env.db.GetTextureAssetsByPackage("/PDFImporter/catalog/catalog")
	if err != nil || len(textures) != 2 {
		t.Errorf("Expected 2 registered textures, got %d (%v)", len(textures), err)
	}

	conversions, err := env.db.GetRecentConversions(10, 0)
	if err != nil || len(conversions) != 1 {
		t.Fatalf("Expected one conversion, got %d (%v)", len(conversions), err)
	}
	if conversions[0].Status != database.ConversionStatusCompleted || conversions[0].AssetID != asset.ID.String() {
		t.Errorf("Unexpected conversion %+v", conversions[0])
	}
	assertNoWorkingDir(t, env.importer)
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t, 2, false)
	input := writePDF(t, t.TempDir(), "letter.pdf", 2)

	pages, err := env.importer.ExtractText(context.Background(), input)
	if err != nil {
		t.Fatalf("Text extraction failed: %v", err)
	}
	if len(pages) != 2 || pages[1] != "Page 2" {
		t.Errorf("Unexpected text %v", pages)
	}

	if _, err := env.importer.ExtractText(context.Background(), filepath.Join(t.TempDir(), "none.pdf")); !errors.Is(err, ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}

	noText := NewImporter(env.cfg, env.converter, nil, nil, nil)
	if _, err := noText.ExtractText(context.Background(), input); !errors.Is(err, ErrTextUnsupported) {
		t.Errorf("Expected ErrTextUnsupported, got %v", err)
	}
}

func TestListPageFilesOrdersByPageNumber(t *testing.T) {
	dir := t.TempDir()
	template := pdfrenderer.OutputTemplate(dir, "doc")
	for _, n := range []int{10, 2, 1} {
		if err := os.WriteFile(pdfrenderer.PageFileName(template, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644)
	os.WriteFile(filepath.Join(dir, "cover.jpg"), nil, 0644)

	files, err := listPageFiles(dir)
	if err != nil {
		t.Fatalf("listPageFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 page files, got %v", files)
	}
	for i, want := range []int{1, 2, 10} {
		if got, _ := pdfrenderer.ParsePageNumber(files[i]); got != want {
			t.Errorf("Position %d: expected page %d, got %d", i, want, got)
		}
	}
}
