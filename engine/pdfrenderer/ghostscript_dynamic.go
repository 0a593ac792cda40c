//go:build darwin || linux || windows

package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// dynamicGhostscript calls the interpreter shared library in-process
type dynamicGhostscript struct {
	path   string
	handle uintptr

	newInstance    func(pinstance *uintptr, callerHandle uintptr) int32
	deleteInstance func(instance uintptr)
	initWithArgs   func(instance uintptr, argc int32, argv unsafe.Pointer) int32
	exit           func(instance uintptr) int32
}

// LoadGhostscriptLibrary opens the first loadable library among paths and
// resolves the interpreter entry points. A missing entry point is an error.
func LoadGhostscriptLibrary(paths ...string) (GhostscriptLibrary, error) {
	if len(paths) == 0 {
		return nil, errors.New("no ghostscript library path given")
	}

	var loadErrors []error
	for _, path := range paths {
		handle, err := openLibrary(path)
		if err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("%s: %w", path, err))
			continue
		}
		library := &dynamicGhostscript{path: path, handle: handle}
		if err := library.resolve(); err != nil {
			closeLibrary(handle)
			return nil, err
		}
		Logger.Info("Ghostscript library loaded", "path", path)
		return library, nil
	}
	return nil, fmt.Errorf("unable to load ghostscript library: %w", errors.Join(loadErrors...))
}

func (g *dynamicGhostscript) resolve() error {
	entryPoints := []struct {
		name string
		fn   any
	}{
		{"gsapi_new_instance", &g.newInstance},
		{"gsapi_delete_instance", &g.deleteInstance},
		{"gsapi_init_with_args", &g.initWithArgs},
		{"gsapi_exit", &g.exit},
	}
	for _, entry := range entryPoints {
		symbol, err := lookupSymbol(g.handle, entry.name)
		if err != nil || symbol == 0 {
			return fmt.Errorf("unable to resolve %s in %s: %v", entry.name, g.path, err)
		}
		purego.RegisterFunc(entry.fn, symbol)
	}
	return nil
}

func (g *dynamicGhostscript) NewInstance() (uintptr, error) {
	var instance uintptr
	code := g.newInstance(&instance, 0)
	if code < 0 || instance == 0 {
		return 0, &GhostscriptError{Code: int(code)}
	}
	return instance, nil
}

// InitWithArgs runs the interpreter. ctx is only checked before the call,
// the library cannot be interrupted once it started.
func (g *dynamicGhostscript) InitWithArgs(ctx context.Context, instance uintptr, argv [][]byte) int {
	if ctx.Err() != nil || len(argv) == 0 {
		return -1
	}
	pointers := make([]*byte, len(argv)+1)
	for i := range argv {
		pointers[i] = &argv[i][0]
	}
	code := g.initWithArgs(instance, int32(len(argv)), unsafe.Pointer(&pointers[0]))
	runtime.KeepAlive(argv)
	runtime.KeepAlive(pointers)
	return int(code)
}

func (g *dynamicGhostscript) Exit(instance uintptr) int {
	return int(g.exit(instance))
}

func (g *dynamicGhostscript) DeleteInstance(instance uintptr) {
	g.deleteInstance(instance)
}

func (g *dynamicGhostscript) Close() error {
	if g.handle == 0 {
		return nil
	}
	err := closeLibrary(g.handle)
	g.handle = 0
	return err
}
