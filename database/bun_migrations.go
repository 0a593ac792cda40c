package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type migration struct {
	version  string
	name     string
	up       func(context.Context, *bun.DB) error
	rollback func(context.Context, *bun.DB) error
}

// migrations run in order, each one exactly once
var migrations = []migration{
	{"001", "create_texture_assets", init001CreateTextureAssets, init001RollbackTextureAssets},
	{"002", "create_pdf_assets", init002CreatePdfAssets, init002RollbackPdfAssets},
	{"003", "create_conversions", init003CreateConversions, init003RollbackConversions},
}

// appliedMigration is a row of bun_schema_migrations
type appliedMigration struct {
	bun.BaseModel `bun:"table:bun_schema_migrations"`
	Version       string `bun:"version"`
}

func isPostgres(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// runMigrations runs all Bun migrations
func (b *BunDB) runMigrations(ctx context.Context) error {
	// Create a simple migrations tracking table
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if isPostgres(b.db) {
		idColumn = "id SERIAL PRIMARY KEY"
	}
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bun_schema_migrations (
			`+idColumn+`,
			version TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check which migrations have been applied
	var applied []appliedMigration
	err = b.db.NewSelect().
		Model(&applied).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, b.db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		// Mark as applied
		_, err = b.db.NewInsert().
			Model(&appliedMigration{Version: m.version}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// rollbackMigrations undoes every applied migration, newest first
func (b *BunDB) rollbackMigrations(ctx context.Context) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if err := m.rollback(ctx, b.db); err != nil {
			return fmt.Errorf("failed to roll back migration %s: %w", m.version, err)
		}
		_, err := b.db.NewDelete().
			Model((*appliedMigration)(nil)).
			Where("version = ?", m.version).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to unmark migration %s: %w", m.version, err)
		}
	}
	return nil
}

func createIndexes(ctx context.Context, db *bun.DB, indexes []string) error {
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Migration 001: texture assets registered by persisted imports
func init001CreateTextureAssets(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS texture_assets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			package_path TEXT NOT NULL,
			file_path TEXT NOT NULL,
			source_file TEXT,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			format TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (package_path, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create texture_assets table: %w", err)
	}

	return createIndexes(ctx, db, []string{
		"CREATE INDEX IF NOT EXISTS idx_texture_assets_package ON texture_assets(package_path)",
		"CREATE INDEX IF NOT EXISTS idx_texture_assets_created_at ON texture_assets(created_at DESC)",
	})
}

func init001RollbackTextureAssets(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS texture_assets")
	return err
}

// Migration 002: pdf assets grouping the page textures of one import
func init002CreatePdfAssets(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pdf_assets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_file TEXT NOT NULL,
			first_page INTEGER NOT NULL,
			last_page INTEGER NOT NULL,
			dpi INTEGER NOT NULL,
			page_count INTEGER NOT NULL,
			texture_ids TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pdf_assets table: %w", err)
	}

	return createIndexes(ctx, db, []string{
		"CREATE INDEX IF NOT EXISTS idx_pdf_assets_created_at ON pdf_assets(created_at DESC)",
	})
}

func init002RollbackPdfAssets(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS pdf_assets")
	return err
}

// Migration 003: conversion bookkeeping
func init003CreateConversions(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversions (
			id TEXT PRIMARY KEY,
			source_file TEXT NOT NULL,
			backend TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT DEFAULT 'pending',
			page_count INTEGER DEFAULT 0,
			asset_id TEXT,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversions table: %w", err)
	}

	return createIndexes(ctx, db, []string{
		"CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions(status)",
		"CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at DESC)",
	})
}

func init003RollbackConversions(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS conversions")
	return err
}
