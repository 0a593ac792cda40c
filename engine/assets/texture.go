// Package assets turns rendered page images into textures, either transient
// in-memory textures or persisted ones stored in a package on disk and
// registered in the asset index.
package assets

import (
	"fmt"
	"log/slog"
	"strings"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Mode selects how a page becomes a texture
type Mode string

const (
	// ModeRuntime creates a transient texture that lives only in memory
	ModeRuntime Mode = "runtime"
	// ModePersisted stores the texture in a package and registers it
	ModePersisted Mode = "persisted"
)

// ParseMode accepts the names used by the API and the CLI
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "runtime", "transient":
		return ModeRuntime, nil
	case "persisted", "persist", "editor":
		return ModePersisted, nil
	}
	return "", fmt.Errorf("unknown texture mode %q", name)
}

// PixelFormat of texture data
type PixelFormat string

// FormatBGRA8 is 8 bits per channel in blue, green, red, alpha order
const FormatBGRA8 PixelFormat = "BGRA8"

// Texture is a decoded page image
type Texture struct {
	Name      string      `json:"name"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    PixelFormat `json:"format"`
	Pixels    []byte      `json:"-"` // Width*Height*4 bytes
	Transient bool        `json:"transient"`

	// only set for persisted textures
	PackagePath string `json:"packagePath,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	AssetID     string `json:"assetId,omitempty"`
}

// Persisted reports whether the texture was registered as an asset
func (t *Texture) Persisted() bool {
	return !t.Transient && t.AssetID != ""
}
