package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drummonds/pdfimporter/config"
	"github.com/oklog/ulid/v2"
)

func newTestRepository(t *testing.T) *BunDB {
	t.Helper()
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
	}

	dbFile := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := NewRepository(config.ImporterConfig{DatabaseType: "sqlite", DatabaseDbname: dbFile})
	if err != nil {
		t.Fatalf("Failed to set up sqlite repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBunSQLiteTextureAssets(t *testing.T) {
	db := newTestRepository(t)

	t.Run("Save and retrieve texture asset", func(t *testing.T) {
		asset := &TextureAsset{
			Name:        "report",
			PackagePath: "/PDFImporter/report/report",
			FilePath:    "/content/report/report.png",
			SourceFile:  "/saved/ConvertTemp/report0000000001.jpg",
			Width:       1240,
			Height:      1754,
			Format:      "BGRA8",
		}
		if err := db.SaveTextureAsset(asset); err != nil {
			t.Fatalf("Failed to save texture asset: %v", err)
		}
		if asset.ID == (ulid.ULID{}) {
			t.Fatal("Texture asset ID was not set after save")
		}

		retrieved, err := db.GetTextureAsset(asset.ID)
		if err != nil {
			t.Fatalf("Failed to get texture asset: %v", err)
		}
		if retrieved.Name != asset.Name || retrieved.Width != 1240 || retrieved.Height != 1754 {
			t.Errorf("Retrieved asset does not match: %+v", retrieved)
		}
	})

	t.Run("Unique name per package", func(t *testing.T) {
		duplicate := &TextureAsset{
			Name:        "report",
			PackagePath: "/PDFImporter/report/report",
			FilePath:    "/content/report/report.png",
			Width:       1,
			Height:      1,
			Format:      "BGRA8",
		}
		if err := db.SaveTextureAsset(duplicate); err == nil {
			t.Error("Expected duplicate name in the same package to be rejected")
		}
	})

	t.Run("List by package", func(t *testing.T) {
		second := &TextureAsset{
			Name:        "report_1",
			PackagePath: "/PDFImporter/report/report",
			FilePath:    "/content/report/report_1.png",
			Width:       10,
			Height:      10,
			Format:      "BGRA8",
		}
		other := &TextureAsset{
			Name:        "invoice",
			PackagePath: "/PDFImporter/invoice/invoice",
			FilePath:    "/content/invoice/invoice.png",
			Width:       10,
			Height:      10,
			Format:      "BGRA8",
		}
		for _, asset := range []*TextureAsset{second, other} {
			if err := db.SaveTextureAsset(asset); err != nil {
				t.Fatalf("Failed to save texture asset: %v", err)
			}
		}

		inPackage, err := db.GetTextureAssetsByPackage("/PDFImporter/report/report")
		if err != nil {
			t.Fatalf("Failed to list package: %v", err)
		}
		if len(inPackage) != 2 {
			t.Errorf("Expected 2 textures in package, got %d", len(inPackage))
		}

		all, err := db.GetAllTextureAssets()
		if err != nil {
			t.Fatalf("Failed to list textures: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("Expected 3 textures, got %d", len(all))
		}

		if err := db.DeleteTextureAsset(other.ID); err != nil {
			t.Fatalf("Failed to delete texture asset: %v", err)
		}
		if _, err := db.GetTextureAsset(other.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := db.DeleteTextureAsset(other.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestBunSQLitePdfAssets(t *testing.T) {
	db := newTestRepository(t)

	record := &PdfAssetRecord{
		Name:       "report",
		SourceFile: "/in/report.pdf",
		FirstPage:  2,
		LastPage:   3,
		DPI:        150,
		PageCount:  2,
		TextureIDs: []string{ulid.Make().String(), ulid.Make().String()},
	}
	if err := db.SavePdfAsset(record); err != nil {
		t.Fatalf("Failed to save pdf asset: %v", err)
	}

	retrieved, err := db.GetPdfAsset(record.ID)
	if err != nil {
		t.Fatalf("Failed to get pdf asset: %v", err)
	}
	if retrieved.FirstPage != 2 || retrieved.LastPage != 3 || retrieved.DPI != 150 {
		t.Errorf("Unexpected pdf asset %+v", retrieved)
	}
	if len(retrieved.TextureIDs) != 2 || retrieved.TextureIDs[0] != record.TextureIDs[0] {
		t.Errorf("Texture ids not preserved: %v", retrieved.TextureIDs)
	}

	all, err := db.GetAllPdfAssets()
	if err != nil {
		t.Fatalf("Failed to list pdf assets: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 pdf asset, got %d", len(all))
	}

	if _, err := db.GetPdfAsset(ulid.Make()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestBunSQLiteConversions(t *testing.T) {
	db := newTestRepository(t)

	conversion, err := db.CreateConversion("/in/report.pdf", "pdfium", "runtime")
	if err != nil {
		t.Fatalf("Failed to create conversion: %v", err)
	}
	if conversion.Status != ConversionStatusPending {
		t.Errorf("Expected pending status, got %s", conversion.Status)
	}

	if err := db.StartConversion(conversion.ID); err != nil {
		t.Fatalf("Failed to start conversion: %v", err)
	}
	active, err := db.GetActiveConversions()
	if err != nil {
		t.Fatalf("Failed to list active conversions: %v", err)
	}
	if len(active) != 1 || active[0].Status != ConversionStatusRunning || active[0].StartedAt == nil {
		t.Errorf("Expected one running conversion, got %+v", active)
	}

	if err := db.CompleteConversion(conversion.ID, "asset-id", 4); err != nil {
		t.Fatalf("Failed to complete conversion: %v", err)
	}
	completed, err := db.GetConversion(conversion.ID)
	if err != nil {
		t.Fatalf("Failed to get conversion: %v", err)
	}
	if !completed.Finished() || completed.PageCount != 4 || completed.AssetID != "asset-id" {
		t.Errorf("Unexpected completed conversion %+v", completed)
	}

	failed, err := db.CreateConversion("/in/broken.pdf", "ghostscript", "persisted")
	if err != nil {
		t.Fatalf("Failed to create conversion: %v", err)
	}
	if err := db.FailConversion(failed.ID, "ghostscript returned code -100"); err != nil {
		t.Fatalf("Failed to fail conversion: %v", err)
	}

	recent, err := db.GetRecentConversions(10, 0)
	if err != nil {
		t.Fatalf("Failed to list conversions: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 conversions, got %d", len(recent))
	}

	deleted, err := db.DeleteOldConversions(-time.Hour)
	if err != nil {
		t.Fatalf("Failed to delete old conversions: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 finished conversions to be deleted, got %d", deleted)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestRepository(t)
	ctx := context.Background()

	if err := db.runMigrations(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if err := db.rollbackMigrations(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if err := db.runMigrations(ctx); err != nil {
		t.Fatalf("Migration after rollback failed: %v", err)
	}
	if _, err := db.CreateConversion("/in/a.pdf", "pdfium", "runtime"); err != nil {
		t.Errorf("Expected conversions table after re-migration: %v", err)
	}
}

func TestNewRepositoryUnknownType(t *testing.T) {
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if _, err := NewRepository(config.ImporterConfig{DatabaseType: "oracle"}); err == nil {
		t.Error("Expected an error for an unknown database type")
	}
}
