package database

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunTextureAsset represents the texture_assets table for Bun ORM
type BunTextureAsset struct {
	bun.BaseModel `bun:"table:texture_assets,alias:ta"`

	ID          string    `bun:"id,pk"` // ULID as string
	Name        string    `bun:"name,notnull"`
	PackagePath string    `bun:"package_path,notnull"`
	FilePath    string    `bun:"file_path,notnull"`
	SourceFile  string    `bun:"source_file,nullzero"`
	Width       int       `bun:"width,notnull"`
	Height      int       `bun:"height,notnull"`
	Format      string    `bun:"format,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ToTextureAsset converts BunTextureAsset to TextureAsset
func (bt *BunTextureAsset) ToTextureAsset() (*TextureAsset, error) {
	parsedULID, err := ulid.Parse(bt.ID)
	if err != nil {
		return nil, err
	}
	return &TextureAsset{
		ID:          parsedULID,
		Name:        bt.Name,
		PackagePath: bt.PackagePath,
		FilePath:    bt.FilePath,
		SourceFile:  bt.SourceFile,
		Width:       bt.Width,
		Height:      bt.Height,
		Format:      bt.Format,
		CreatedAt:   bt.CreatedAt,
	}, nil
}

// FromTextureAsset converts TextureAsset to BunTextureAsset
func FromTextureAsset(asset *TextureAsset) *BunTextureAsset {
	return &BunTextureAsset{
		ID:          asset.ID.String(),
		Name:        asset.Name,
		PackagePath: asset.PackagePath,
		FilePath:    asset.FilePath,
		SourceFile:  asset.SourceFile,
		Width:       asset.Width,
		Height:      asset.Height,
		Format:      asset.Format,
		CreatedAt:   asset.CreatedAt,
	}
}

// BunPdfAsset represents the pdf_assets table for Bun ORM
type BunPdfAsset struct {
	bun.BaseModel `bun:"table:pdf_assets,alias:pa"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull"`
	SourceFile string    `bun:"source_file,notnull"`
	FirstPage  int       `bun:"first_page,notnull"`
	LastPage   int       `bun:"last_page,notnull"`
	DPI        int       `bun:"dpi,notnull"`
	PageCount  int       `bun:"page_count,notnull"`
	TextureIDs string    `bun:"texture_ids,nullzero"` // comma separated ULIDs
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ToPdfAsset converts BunPdfAsset to PdfAssetRecord
func (bp *BunPdfAsset) ToPdfAsset() (*PdfAssetRecord, error) {
	parsedULID, err := ulid.Parse(bp.ID)
	if err != nil {
		return nil, err
	}
	var textureIDs []string
	if bp.TextureIDs != "" {
		textureIDs = strings.Split(bp.TextureIDs, ",")
	}
	return &PdfAssetRecord{
		ID:         parsedULID,
		Name:       bp.Name,
		SourceFile: bp.SourceFile,
		FirstPage:  bp.FirstPage,
		LastPage:   bp.LastPage,
		DPI:        bp.DPI,
		PageCount:  bp.PageCount,
		TextureIDs: textureIDs,
		CreatedAt:  bp.CreatedAt,
	}, nil
}

// FromPdfAsset converts PdfAssetRecord to BunPdfAsset
func FromPdfAsset(asset *PdfAssetRecord) *BunPdfAsset {
	return &BunPdfAsset{
		ID:         asset.ID.String(),
		Name:       asset.Name,
		SourceFile: asset.SourceFile,
		FirstPage:  asset.FirstPage,
		LastPage:   asset.LastPage,
		DPI:        asset.DPI,
		PageCount:  asset.PageCount,
		TextureIDs: strings.Join(asset.TextureIDs, ","),
		CreatedAt:  asset.CreatedAt,
	}
}

// BunConversion represents the conversions table for Bun ORM
type BunConversion struct {
	bun.BaseModel `bun:"table:conversions,alias:c"`

	ID          string     `bun:"id,pk"` // ULID as string
	SourceFile  string     `bun:"source_file,notnull"`
	Backend     string     `bun:"backend,notnull"`
	Mode        string     `bun:"mode,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	PageCount   int        `bun:"page_count,default:0"`
	AssetID     string     `bun:"asset_id,nullzero"`
	Error       string     `bun:"error,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToConversion converts BunConversion to Conversion
func (bc *BunConversion) ToConversion() (*Conversion, error) {
	parsedULID, err := ulid.Parse(bc.ID)
	if err != nil {
		return nil, err
	}
	return &Conversion{
		ID:          parsedULID,
		SourceFile:  bc.SourceFile,
		Backend:     bc.Backend,
		Mode:        bc.Mode,
		Status:      ConversionStatus(bc.Status),
		PageCount:   bc.PageCount,
		AssetID:     bc.AssetID,
		Error:       bc.Error,
		CreatedAt:   bc.CreatedAt,
		UpdatedAt:   bc.UpdatedAt,
		StartedAt:   bc.StartedAt,
		CompletedAt: bc.CompletedAt,
	}, nil
}

// FromConversion converts Conversion to BunConversion
func FromConversion(conversion *Conversion) *BunConversion {
	return &BunConversion{
		ID:          conversion.ID.String(),
		SourceFile:  conversion.SourceFile,
		Backend:     conversion.Backend,
		Mode:        conversion.Mode,
		Status:      string(conversion.Status),
		PageCount:   conversion.PageCount,
		AssetID:     conversion.AssetID,
		Error:       conversion.Error,
		CreatedAt:   conversion.CreatedAt,
		UpdatedAt:   conversion.UpdatedAt,
		StartedAt:   conversion.StartedAt,
		CompletedAt: conversion.CompletedAt,
	}
}
