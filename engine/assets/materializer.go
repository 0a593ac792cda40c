package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfimporter/database"
	"github.com/drummonds/pdfimporter/engine/pdfrenderer"
)

// PackageRoot is the virtual root under which persisted documents are mounted
const PackageRoot = "/PDFImporter/"

// AssetRegistry is the part of the asset index the materializer writes to
type AssetRegistry interface {
	SaveTextureAsset(asset *database.TextureAsset) error
	DeleteTextureAsset(id ulid.ULID) error
}

// Package groups the persisted textures of one document
type Package struct {
	Path     string
	Dir      string
	Textures []*Texture
	Dirty    bool
}

// manifest is the on-disk description of a package
type manifest struct {
	Package  string     `json:"package"`
	Saved    time.Time  `json:"saved"`
	Textures []*Texture `json:"textures"`
}

// Materializer turns produced page images into textures
type Materializer struct {
	contentPath string
	decoder     ImageDecoder
	registry    AssetRegistry

	mu          sync.Mutex
	mountPoints map[string]string
	packages    map[string]*Package
}

// NewMaterializer persists packages below contentPath and registers them in registry.
// registry may be nil when only runtime textures are produced.
func NewMaterializer(contentPath string, decoder ImageDecoder, registry AssetRegistry) *Materializer {
	if decoder == nil {
		decoder = NewImageDecoder()
	}
	return &Materializer{
		contentPath: contentPath,
		decoder:     decoder,
		registry:    registry,
		mountPoints: make(map[string]string),
		packages:    make(map[string]*Package),
	}
}

// MaterializePage decodes one page image and creates a texture in the given mode
func (m *Materializer) MaterializePage(filePath string, mode Mode) (*Texture, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to read page image: %w", err)
	}
	decoded, err := m.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", filepath.Base(filePath), err)
	}

	switch mode {
	case ModeRuntime:
		return newTransientTexture(filePath, decoded), nil
	case ModePersisted:
		return m.persist(filePath, decoded)
	}
	return nil, fmt.Errorf("unknown texture mode %q", mode)
}

func newTransientTexture(filePath string, decoded *DecodedImage) *Texture {
	pixels := make([]byte, len(decoded.Pixels))
	copy(pixels, decoded.Pixels)
	name := filepath.Base(filePath)
	return &Texture{
		Name:      name[:len(name)-len(filepath.Ext(name))],
		Width:     decoded.Width,
		Height:    decoded.Height,
		Format:    FormatBGRA8,
		Pixels:    pixels,
		Transient: true,
	}
}

func (m *Materializer) persist(filePath string, decoded *DecodedImage) (*Texture, error) {
	if m.registry == nil {
		return nil, fmt.Errorf("no asset registry configured for persisted textures")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docName := pdfrenderer.DocumentName(filePath)
	mountPoint := PackageRoot + docName + "/"
	pkg, err := m.createPackage(mountPoint, docName)
	if err != nil {
		return nil, err
	}

	name := pkg.uniqueName(docName)
	texture := &Texture{
		Name:        name,
		Width:       decoded.Width,
		Height:      decoded.Height,
		Format:      FormatBGRA8,
		Pixels:      decoded.Pixels,
		PackagePath: pkg.Path,
		FilePath:    filepath.Join(pkg.Dir, name+".png"),
	}
	// the package only keeps metadata, pixels live in the saved PNG
	entry := *texture
	entry.Pixels = nil
	pkg.Textures = append(pkg.Textures, &entry)
	pkg.Dirty = true

	asset := &database.TextureAsset{
		Name:        texture.Name,
		PackagePath: texture.PackagePath,
		FilePath:    texture.FilePath,
		SourceFile:  filePath,
		Width:       texture.Width,
		Height:      texture.Height,
		Format:      string(texture.Format),
	}
	if err := m.registry.SaveTextureAsset(asset); err != nil {
		pkg.remove(&entry)
		return nil, fmt.Errorf("unable to register texture %s: %w", name, err)
	}
	texture.AssetID = asset.ID.String()
	entry.AssetID = texture.AssetID

	if err := m.savePackage(pkg, texture, decoded); err != nil {
		pkg.remove(&entry)
		if delErr := m.registry.DeleteTextureAsset(asset.ID); delErr != nil {
			Logger.Warn("Unable to unregister texture after failed save", "texture", name, "error", delErr)
		}
		return nil, err
	}
	Logger.Debug("Persisted texture", "package", pkg.Path, "texture", name, "file", texture.FilePath)
	return texture, nil
}

// createPackage returns the package for a document, mounting its directory first
func (m *Materializer) createPackage(mountPoint, docName string) (*Package, error) {
	diskDir, mounted := m.mountPoints[mountPoint]
	if !mounted {
		diskDir = filepath.Join(m.contentPath, docName)
		if err := os.MkdirAll(diskDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("unable to create package directory %s: %w", diskDir, err)
		}
		m.mountPoints[mountPoint] = diskDir
		Logger.Info("Registered mount point", "mount", mountPoint, "dir", diskDir)
	}

	packagePath := path.Join(mountPoint, docName)
	pkg, ok := m.packages[packagePath]
	if !ok {
		pkg = &Package{Path: packagePath, Dir: diskDir}
		textures, err := loadManifest(pkg.manifestPath())
		if err != nil {
			return nil, err
		}
		pkg.Textures = textures
		m.packages[packagePath] = pkg
	}
	return pkg, nil
}

// loadManifest reads the textures saved by an earlier run, a missing manifest is an empty package
func loadManifest(manifestPath string) ([]*Texture, error) {
	data, err := os.ReadFile(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read package manifest: %w", err)
	}
	var saved manifest
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("unable to decode package manifest %s: %w", manifestPath, err)
	}
	Logger.Debug("Loaded package manifest", "package", saved.Package, "textures", len(saved.Textures))
	return saved.Textures, nil
}

func (p *Package) manifestPath() string {
	return filepath.Join(p.Dir, path.Base(p.Path)+".json")
}

// uniqueName returns base, base_1, base_2 ... avoiding names used in memory or on disk
func (p *Package) uniqueName(base string) string {
	taken := func(name string) bool {
		for _, texture := range p.Textures {
			if texture.Name == name {
				return true
			}
		}
		_, err := os.Stat(filepath.Join(p.Dir, name+".png"))
		return err == nil
	}
	name := base
	for i := 1; taken(name); i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	return name
}

func (p *Package) remove(texture *Texture) {
	for i, t := range p.Textures {
		if t == texture {
			p.Textures = append(p.Textures[:i], p.Textures[i+1:]...)
			return
		}
	}
}

// savePackage writes the new texture image and rewrites the package manifest
func (m *Materializer) savePackage(pkg *Package, texture *Texture, decoded *DecodedImage) error {
	if err := imaging.Save(decoded.Image, texture.FilePath); err != nil {
		return fmt.Errorf("unable to save texture %s: %w", texture.FilePath, err)
	}

	data, err := json.MarshalIndent(manifest{Package: pkg.Path, Saved: time.Now(), Textures: pkg.Textures}, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode package manifest: %w", err)
	}
	if err := os.WriteFile(pkg.manifestPath(), data, 0644); err != nil {
		os.Remove(texture.FilePath)
		return fmt.Errorf("unable to save package manifest: %w", err)
	}
	pkg.Dirty = false
	return nil
}

// MountPoints returns a copy of the registered mount points
func (m *Materializer) MountPoints() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.mountPoints))
	for k, v := range m.mountPoints {
		out[k] = v
	}
	return out
}

// Package looks up a package created by a persisted import
func (m *Materializer) Package(packagePath string) (*Package, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.packages[packagePath]
	return pkg, ok
}
