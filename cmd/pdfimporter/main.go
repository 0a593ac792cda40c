package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	config "github.com/drummonds/pdfimporter/config"
	database "github.com/drummonds/pdfimporter/database"
	engine "github.com/drummonds/pdfimporter/engine"
	"github.com/drummonds/pdfimporter/engine/assets"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	assets.Logger = Logger
	pdfrenderer.Logger = Logger
}

func main() {
	backendName := flag.String("backend", "", "Converter backend: pdfium, ghostscript or mupdf (default from CONVERTER_BACKEND)")
	dpi := flag.Int("dpi", 0, "Render resolution (default from DEFAULT_DPI)")
	firstPage := flag.Int("first", 0, "First page to convert, 0 for the whole document")
	lastPage := flag.Int("last", 0, "Last page to convert, 0 for the whole document")
	modeName := flag.String("mode", "runtime", "Texture mode: runtime or persisted")
	persist := flag.Bool("persist", false, "Shorthand for -mode persisted")
	extractText := flag.Bool("text", false, "Print the text of every page instead of converting")
	legacyOut := flag.String("legacy-out", "", "With -text, also write the text as single byte character codes to this file")
	legacyIn := flag.String("legacy-in", "", "Print a file of single byte character codes as text and exit")
	flag.Parse()

	mode, err := assets.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *persist {
		mode = assets.ModePersisted
	}

	if *legacyIn != "" {
		_, logger := config.SetupImporter()
		injectGlobals(logger)
		if err := printLegacyFile(*legacyIn); err != nil {
			Logger.Error("Unable to decode legacy text", "file", *legacyIn, "error", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfimporter [flags] file.pdf")
		flag.PrintDefaults()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	importerConfig, logger := config.SetupImporter()
	injectGlobals(logger)
	if *backendName != "" {
		importerConfig.Backend = strings.ToLower(*backendName)
	}

	backend, err := engine.NewBackend(importerConfig)
	if err != nil {
		Logger.Error("Unable to create converter", "backend", importerConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if *extractText {
		if err := printText(backend, importerConfig, inputPath, *legacyOut); err != nil {
			Logger.Error("Text extraction failed", "file", inputPath, "error", err)
			os.Exit(1)
		}
		return
	}

	var db database.Repository
	var registry assets.AssetRegistry
	if mode == assets.ModePersisted {
		repo, err := database.NewRepository(importerConfig)
		if err != nil {
			Logger.Error("Unable to set up database", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		db, registry = repo, repo
	}

	materializer := assets.NewMaterializer(importerConfig.ContentPath, assets.NewImageDecoder(), registry)
	importer := engine.NewImporter(importerConfig, backend.Converter, backend.Extractor, materializer, db)
	asset, err := importer.ConvertPdfToPdfAsset(context.Background(), engine.ConversionRequest{
		InputPath: inputPath,
		DPI:       *dpi,
		FirstPage: *firstPage,
		LastPage:  *lastPage,
		Mode:      mode,
	})
	if err != nil {
		Logger.Error("Conversion failed", "file", inputPath, "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s: pages %d-%d at %d dpi, %d textures\n", asset.Name, asset.PageRange.First, asset.PageRange.Last, asset.DPI, len(asset.Pages))
	for _, page := range asset.Pages {
		if page.Persisted() {
			fmt.Printf("  %s %dx%d %s\n", page.Name, page.Width, page.Height, page.FilePath)
		} else {
			fmt.Printf("  %s %dx%d\n", page.Name, page.Width, page.Height)
		}
	}
}

func printText(backend *engine.Backend, importerConfig config.ImporterConfig, inputPath, legacyOut string) error {
	importer := engine.NewImporter(importerConfig, backend.Converter, backend.Extractor, nil, nil)
	pages, err := importer.ExtractText(context.Background(), inputPath)
	if err != nil {
		return err
	}
	for i, text := range pages {
		fmt.Printf("--- page %d ---\n%s\n", i+1, text)
	}
	if legacyOut == "" {
		return nil
	}
	return writeLegacyText(legacyOut, pages)
}

// writeLegacyText writes the pages, separated by line breaks, as single byte character codes
func writeLegacyText(path string, pages []string) error {
	var codes []byte
	err := withCharacterCodes(func() error {
		var err error
		codes, err = pdfrenderer.EncodeLegacyText(strings.Join(pages, "\n"))
		return err
	})
	if err != nil {
		return fmt.Errorf("unable to encode text: %w", err)
	}
	return os.WriteFile(path, codes, 0644)
}

func printLegacyFile(path string) error {
	codes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var text string
	err = withCharacterCodes(func() error {
		var err error
		text, err = pdfrenderer.DecodeLegacyText(codes)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// withCharacterCodes runs fn with the character-code table available.
// The table is built by PDFium, which is started for the call when the backend did not.
func withCharacterCodes(fn func() error) error {
	if pdfrenderer.CharacterCodes() == nil && !pdfrenderer.PDFiumInitialized() {
		if err := pdfrenderer.InitPDFium(); err != nil {
			return err
		}
		defer func() {
			if err := pdfrenderer.ClosePDFium(); err != nil {
				Logger.Warn("Unable to close PDFium", "error", err)
			}
		}()
	}
	return fn()
}
