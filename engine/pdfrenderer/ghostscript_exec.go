package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// executableGhostscript runs the gs binary instead of the shared library.
// Each instance is a bookkeeping handle, the process is started by InitWithArgs.
type executableGhostscript struct {
	path string

	mu   sync.Mutex
	next uintptr
	live map[uintptr]bool
}

// NewGhostscriptExecutable uses the gs binary at path
func NewGhostscriptExecutable(path string) GhostscriptLibrary {
	return &executableGhostscript{path: path, live: make(map[uintptr]bool)}
}

func (g *executableGhostscript) NewInstance() (uintptr, error) {
	if _, err := exec.LookPath(g.path); err != nil {
		return 0, fmt.Errorf("ghostscript executable not usable: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.live[g.next] = true
	return g.next, nil
}

// InitWithArgs runs the binary with argv[1:], its exit status is the return code
func (g *executableGhostscript) InitWithArgs(ctx context.Context, instance uintptr, argv [][]byte) int {
	g.mu.Lock()
	live := g.live[instance]
	g.mu.Unlock()
	if !live {
		return -1
	}

	args := make([]string, 0, len(argv))
	for i, arg := range argv {
		if i == 0 {
			continue
		}
		args = append(args, strings.TrimRight(string(arg), "\x00"))
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, g.path, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		Logger.Warn("Ghostscript exited with error", "code", exitErr.ExitCode(), "output", output.String())
		if code := exitErr.ExitCode(); code != 0 {
			return code
		}
		return -1
	}
	Logger.Error("Unable to run ghostscript", "path", g.path, "error", err)
	return -1
}

func (g *executableGhostscript) Exit(instance uintptr) int {
	return 0
}

func (g *executableGhostscript) DeleteInstance(instance uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, instance)
}

func (g *executableGhostscript) Close() error {
	return nil
}
