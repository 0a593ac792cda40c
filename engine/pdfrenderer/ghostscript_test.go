package pdfrenderer

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// fakeGhostscript writes one small JPEG per page of the requested range
type fakeGhostscript struct {
	pageCount   int
	code        int
	exitCode    int
	newErr      error
	calls       []string
	lastArgs    []string
	nextHandle  uintptr
	liveHandles int
}

func (f *fakeGhostscript) NewInstance() (uintptr, error) {
	f.calls = append(f.calls, "new")
	if f.newErr != nil {
		return 0, f.newErr
	}
	f.nextHandle++
	f.liveHandles++
	return f.nextHandle, nil
}

func (f *fakeGhostscript) InitWithArgs(ctx context.Context, instance uintptr, argv [][]byte) int {
	f.calls = append(f.calls, "init")
	f.lastArgs = nil
	for _, arg := range argv {
		f.lastArgs = append(f.lastArgs, strings.TrimSuffix(string(arg), "\x00"))
	}
	if f.code != 0 {
		return f.code
	}

	var first, last int
	var template string
	for _, arg := range f.lastArgs {
		switch {
		case strings.HasPrefix(arg, "-dFirstPage="):
			first, _ = strconv.Atoi(strings.TrimPrefix(arg, "-dFirstPage="))
		case strings.HasPrefix(arg, "-dLastPage="):
			last, _ = strconv.Atoi(strings.TrimPrefix(arg, "-dLastPage="))
		case strings.HasPrefix(arg, "-sOutputFile="):
			template = strings.TrimPrefix(arg, "-sOutputFile=")
		}
	}
	if last > f.pageCount {
		last = f.pageCount
	}
	// like the jpeg device, files are numbered from 1 whatever the first page is
	for page := first; page <= last; page++ {
		img := image.NewRGBA(image.Rect(0, 0, 8, 4))
		if err := writeJPEG(img, PageFileName(template, page-first+1), 90); err != nil {
			return -1
		}
	}
	return 0
}

func (f *fakeGhostscript) Exit(instance uintptr) int {
	f.calls = append(f.calls, "exit")
	return f.exitCode
}

func (f *fakeGhostscript) DeleteInstance(instance uintptr) {
	f.calls = append(f.calls, "delete")
	f.liveHandles--
}

func (f *fakeGhostscript) Close() error {
	return nil
}

func TestGhostscriptArguments(t *testing.T) {
	converter := NewGhostscriptConverter(&fakeGhostscript{}, GhostscriptOptions{})
	args := converter.Arguments("/in/doc.pdf", "/out/doc%010d.jpg", 200, 0, 0)

	if args[0] != "gs" || args[len(args)-1] != "/in/doc.pdf" {
		t.Fatalf("Unexpected program name or input: %v", args)
	}
	want := []string{
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-sDEVICE=jpeg", "-sPAPERSIZE=a7",
		"-dMaxBitmap=500000000", "-dNumRenderingThreads=4",
		"-dTextAlphaBits=1", "-dGraphicsAlphaBits=1",
		"-dFirstPage=1", "-dLastPage=" + strconv.Itoa(UnboundedLastPage),
		"-dDEVICEXRESOLUTION=200", "-dDEVICEYRESOLUTION=200",
		"-sOutputFile=/out/doc%010d.jpg",
	}
	joined := " " + strings.Join(args, " ") + " "
	for _, w := range want {
		if !strings.Contains(joined, " "+w+" ") {
			t.Errorf("Missing argument %s in %v", w, args)
		}
	}

	ranged := converter.Arguments("/in/doc.pdf", "/out/doc%010d.jpg", 72, 2, 3)
	joined = strings.Join(ranged, " ")
	if !strings.Contains(joined, "-dFirstPage=2") || !strings.Contains(joined, "-dLastPage=3") {
		t.Errorf("Expected explicit range in %v", ranged)
	}
}

func TestGhostscriptConvertWritesPages(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeGhostscript{pageCount: 3}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())

	err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(dir, "doc"), 150, 0, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if len(matches) != 3 {
		t.Errorf("Expected 3 pages, got %d", len(matches))
	}
	if strings.Join(fake.calls, ",") != "new,init,exit,delete" {
		t.Errorf("Unexpected call sequence %v", fake.calls)
	}
	if fake.liveHandles != 0 {
		t.Errorf("Expected instance to be deleted, %d still live", fake.liveHandles)
	}
}

func TestGhostscriptNonZeroCode(t *testing.T) {
	fake := &fakeGhostscript{code: -100}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())

	err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(t.TempDir(), "doc"), 150, 0, 0)
	var gsErr *GhostscriptError
	if !errors.As(err, &gsErr) || gsErr.Code != -100 {
		t.Fatalf("Expected GhostscriptError -100, got %v", err)
	}
	if strings.Join(fake.calls, ",") != "new,init,exit,delete" {
		t.Errorf("Expected teardown after failure, got %v", fake.calls)
	}
}

func TestGhostscriptQuitIsSuccess(t *testing.T) {
	fake := &fakeGhostscript{code: gsErrorQuit}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())

	if err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(t.TempDir(), "doc"), 150, 0, 0); err != nil {
		t.Errorf("Expected quit code to be treated as success, got %v", err)
	}
}

func TestGhostscriptExitFailure(t *testing.T) {
	fake := &fakeGhostscript{pageCount: 1, exitCode: -100}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())

	err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(t.TempDir(), "doc"), 150, 0, 0)
	var gsErr *GhostscriptError
	if !errors.As(err, &gsErr) || gsErr.Code != -100 {
		t.Fatalf("Expected GhostscriptError -100 from exit, got %v", err)
	}
	if fake.liveHandles != 0 {
		t.Errorf("Expected instance to be deleted, %d still live", fake.liveHandles)
	}
}

func TestGhostscriptInstanceFailureSkipsInit(t *testing.T) {
	fake := &fakeGhostscript{newErr: errors.New("out of memory")}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())

	err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(t.TempDir(), "doc"), 150, 0, 0)
	if err == nil {
		t.Fatal("Expected an error when the instance cannot be created")
	}
	if strings.Join(fake.calls, ",") != "new" {
		t.Errorf("Expected no init after instance failure, got %v", fake.calls)
	}
}

func TestGhostscriptCancelledContext(t *testing.T) {
	fake := &fakeGhostscript{}
	converter := NewGhostscriptConverter(fake, DefaultGhostscriptOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := converter.ConvertDocumentToImages(ctx, "/in/doc.pdf", "/out/doc%010d.jpg", 150, 0, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("Expected no library calls, got %v", fake.calls)
	}
}

func TestGhostscriptExecutableExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a unix shell")
	}
	script := filepath.Join(t.TempDir(), "gs")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	converter := NewGhostscriptConverter(NewGhostscriptExecutable(script), DefaultGhostscriptOptions())
	err := converter.ConvertDocumentToImages(context.Background(), "/in/doc.pdf", OutputTemplate(t.TempDir(), "doc"), 150, 0, 0)
	var gsErr *GhostscriptError
	if !errors.As(err, &gsErr) || gsErr.Code != 3 {
		t.Errorf("Expected GhostscriptError 3, got %v", err)
	}
}

func TestGhostscriptExecutableMissing(t *testing.T) {
	library := NewGhostscriptExecutable(filepath.Join(t.TempDir(), "missing-gs"))
	if _, err := library.NewInstance(); err == nil {
		t.Error("Expected an error for a missing executable")
	}
}

func TestLoadGhostscriptLibraryMissing(t *testing.T) {
	if _, err := LoadGhostscriptLibrary(filepath.Join(t.TempDir(), "libgs-missing.so")); err == nil {
		t.Error("Expected an error for a missing library")
	}
	if _, err := LoadGhostscriptLibrary(); err == nil {
		t.Error("Expected an error when no path is given")
	}
}
