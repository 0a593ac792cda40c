package engine

import (
	"errors"
	"fmt"

	"github.com/drummonds/pdfimporter/config"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// Backend bundles the rasterizer and text extractor chosen by configuration
type Backend struct {
	Converter pdfrenderer.Converter
	Extractor pdfrenderer.TextExtractor
	ownPDFium bool
}

// NewBackend creates the converter named by importerConfig.Backend.
// Close must be called to release native libraries.
func NewBackend(importerConfig config.ImporterConfig) (*Backend, error) {
	switch importerConfig.Backend {
	case config.BackendGhostscript:
		converter, err := newGhostscriptConverter(importerConfig.GhostscriptConfig)
		if err != nil {
			return nil, err
		}
		// Ghostscript has no text API, MuPDF reads the text instead
		return &Backend{Converter: converter, Extractor: pdfrenderer.NewFitzConverter()}, nil
	case config.BackendMuPDF:
		converter := pdfrenderer.NewFitzConverter()
		return &Backend{Converter: converter, Extractor: converter}, nil
	default:
		err := pdfrenderer.InitPDFium()
		if err != nil && !errors.Is(err, pdfrenderer.ErrAlreadyInitialized) {
			return nil, fmt.Errorf("unable to start PDFium: %w", err)
		}
		converter := pdfrenderer.NewPDFiumConverter()
		return &Backend{Converter: converter, Extractor: converter, ownPDFium: err == nil}, nil
	}
}

func newGhostscriptConverter(gsConfig config.GhostscriptConfig) (*pdfrenderer.GhostscriptConverter, error) {
	encoding, err := pdfrenderer.ParseArgEncoding(gsConfig.ArgEncoding)
	if err != nil {
		return nil, err
	}
	opts := pdfrenderer.DefaultGhostscriptOptions()
	opts.Encoding = encoding
	if gsConfig.Threads > 0 {
		opts.Threads = gsConfig.Threads
	}
	if gsConfig.MaxBitmap > 0 {
		opts.MaxBitmap = gsConfig.MaxBitmap
	}

	var lib pdfrenderer.GhostscriptLibrary
	if gsConfig.Mode == config.GhostscriptModeExecutable {
		lib = pdfrenderer.NewGhostscriptExecutable(gsConfig.ExecutablePath)
	} else {
		lib, err = pdfrenderer.LoadGhostscriptLibrary(gsConfig.LibraryPaths...)
		if err != nil {
			return nil, fmt.Errorf("unable to load ghostscript: %w", err)
		}
	}
	Logger.Info("Ghostscript converter ready", "mode", gsConfig.Mode, "encoding", encoding)
	return pdfrenderer.NewGhostscriptConverter(lib, opts), nil
}

// Close releases the converter and PDFium when this backend started it
func (b *Backend) Close() error {
	err := b.Converter.Close()
	if b.ownPDFium {
		if closeErr := pdfrenderer.ClosePDFium(); err == nil {
			err = closeErr
		}
	}
	return err
}
