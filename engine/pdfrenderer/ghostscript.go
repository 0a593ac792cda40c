package pdfrenderer

import (
	"context"
	"fmt"
	"strconv"
)

// gsErrorQuit is returned by gsapi_init_with_args when -dBATCH ends the run normally
const gsErrorQuit = -101

// GhostscriptLibrary is the subset of the Ghostscript C API used for rendering.
// argv entries passed to InitWithArgs are NUL-terminated.
type GhostscriptLibrary interface {
	NewInstance() (uintptr, error)
	InitWithArgs(ctx context.Context, instance uintptr, argv [][]byte) int
	Exit(instance uintptr) int
	DeleteInstance(instance uintptr)
	Close() error
}

// GhostscriptError carries a non-zero interpreter return code
type GhostscriptError struct {
	Code int
}

func (e *GhostscriptError) Error() string {
	return fmt.Sprintf("ghostscript returned code %d", e.Code)
}

// GhostscriptOptions tune the interpreter run
type GhostscriptOptions struct {
	Threads   int
	MaxBitmap int
	Encoding  ArgEncoding
}

// DefaultGhostscriptOptions returns the options used when nothing is configured
func DefaultGhostscriptOptions() GhostscriptOptions {
	return GhostscriptOptions{
		Threads:   4,
		MaxBitmap: 500000000,
		Encoding:  ArgEncodingUTF8,
	}
}

// GhostscriptConverter renders pages by running the Ghostscript interpreter
type GhostscriptConverter struct {
	library GhostscriptLibrary
	options GhostscriptOptions
}

// NewGhostscriptConverter wraps a loaded library
func NewGhostscriptConverter(library GhostscriptLibrary, options GhostscriptOptions) *GhostscriptConverter {
	defaults := DefaultGhostscriptOptions()
	if options.Threads <= 0 {
		options.Threads = defaults.Threads
	}
	if options.MaxBitmap <= 0 {
		options.MaxBitmap = defaults.MaxBitmap
	}
	if options.Encoding == "" {
		options.Encoding = defaults.Encoding
	}
	return &GhostscriptConverter{library: library, options: options}
}

func (c *GhostscriptConverter) Name() string {
	return "ghostscript"
}

// Arguments builds the interpreter argument vector, argv[0] included
func (c *GhostscriptConverter) Arguments(inputPath, outputTemplate string, dpi, firstPage, lastPage int) []string {
	pageRange := NormalizePageRange(firstPage, lastPage)
	resolution := strconv.Itoa(dpi)
	return []string{
		"gs",
		"-q",
		"-dQUIET",
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-dNOPROMPT",
		"-dMaxBitmap=" + strconv.Itoa(c.options.MaxBitmap),
		"-dNumRenderingThreads=" + strconv.Itoa(c.options.Threads),
		"-dAlignToPixels=0",
		"-dGridFitTT=0",
		"-dTextAlphaBits=1",
		"-dGraphicsAlphaBits=1",
		"-sDEVICE=jpeg",
		"-sPAPERSIZE=a7",
		"-dFirstPage=" + strconv.Itoa(pageRange.First),
		"-dLastPage=" + strconv.Itoa(pageRange.Last),
		"-dDEVICEXRESOLUTION=" + resolution,
		"-dDEVICEYRESOLUTION=" + resolution,
		"-sOutputFile=" + outputTemplate,
		inputPath,
	}
}

// ConvertDocumentToImages runs one interpreter instance over the document.
// The instance is always exited and deleted once it exists.
func (c *GhostscriptConverter) ConvertDocumentToImages(ctx context.Context, inputPath, outputTemplate string, dpi, firstPage, lastPage int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv, err := encodeArgs(c.Arguments(inputPath, outputTemplate, dpi, firstPage, lastPage), c.options.Encoding)
	if err != nil {
		return err
	}

	instance, err := c.library.NewInstance()
	if err != nil {
		Logger.Error("Failed to create Ghostscript instance", "error", err)
		return fmt.Errorf("failed to create ghostscript instance: %w", err)
	}

	code := c.library.InitWithArgs(ctx, instance, argv)
	exitCode := c.library.Exit(instance)
	c.library.DeleteInstance(instance)

	if code == gsErrorQuit {
		code = 0
	}
	Logger.Info("Ghostscript finished", "file", inputPath, "code", code, "exit", exitCode)
	if code != 0 {
		return &GhostscriptError{Code: code}
	}
	// a failed exit can leave the last page unflushed
	if exitCode < 0 && exitCode != gsErrorQuit {
		return &GhostscriptError{Code: exitCode}
	}
	return nil
}

// Close releases the underlying library
func (c *GhostscriptConverter) Close() error {
	return c.library.Close()
}
