//go:build !darwin && !linux && !windows

package pdfrenderer

import (
	"fmt"
	"runtime"
)

// LoadGhostscriptLibrary is not available on this platform, use NewGhostscriptExecutable
func LoadGhostscriptLibrary(paths ...string) (GhostscriptLibrary, error) {
	return nil, fmt.Errorf("loading the ghostscript library is not supported on %s", runtime.GOOS)
}
