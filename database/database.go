package database

import (
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// TextureAsset is a persisted page texture registered in the asset index
type TextureAsset struct {
	ID          ulid.ULID `json:"id"`
	Name        string    `json:"name"`        // unique object name inside the package
	PackagePath string    `json:"packagePath"` // e.g. /PDFImporter/report/report
	FilePath    string    `json:"filePath"`    // serialized image on disk
	SourceFile  string    `json:"sourceFile"`  // page image the texture was decoded from
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PdfAssetRecord is a persisted conversion result grouping page textures
type PdfAssetRecord struct {
	ID         ulid.ULID `json:"id"`
	Name       string    `json:"name"`
	SourceFile string    `json:"sourceFile"`
	FirstPage  int       `json:"firstPage"`
	LastPage   int       `json:"lastPage"`
	DPI        int       `json:"dpi"`
	PageCount  int       `json:"pageCount"`
	TextureIDs []string  `json:"textureIds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository defines database operations
type Repository interface {
	Close() error
	// Texture asset methods
	SaveTextureAsset(asset *TextureAsset) error
	DeleteTextureAsset(id ulid.ULID) error
	GetTextureAsset(id ulid.ULID) (*TextureAsset, error)
	GetTextureAssetsByPackage(packagePath string) ([]TextureAsset, error)
	GetAllTextureAssets() ([]TextureAsset, error)
	// Pdf asset methods
	SavePdfAsset(asset *PdfAssetRecord) error
	GetPdfAsset(id ulid.ULID) (*PdfAssetRecord, error)
	GetAllPdfAssets() ([]PdfAssetRecord, error)
	// Conversion tracking methods
	CreateConversion(sourceFile, backend, mode string) (*Conversion, error)
	StartConversion(id ulid.ULID) error
	CompleteConversion(id ulid.ULID, assetID string, pageCount int) error
	FailConversion(id ulid.ULID, errorMsg string) error
	GetConversion(id ulid.ULID) (*Conversion, error)
	GetRecentConversions(limit, offset int) ([]Conversion, error)
	GetActiveConversions() ([]Conversion, error)
	DeleteOldConversions(olderThan time.Duration) (int, error)
}

// CalculateUUID creates a time ordered id
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
