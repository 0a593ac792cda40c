package database

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ConversionStatus represents the status of a conversion
type ConversionStatus string

const (
	ConversionStatusPending   ConversionStatus = "pending"
	ConversionStatusRunning   ConversionStatus = "running"
	ConversionStatusCompleted ConversionStatus = "completed"
	ConversionStatusFailed    ConversionStatus = "failed"
)

// Conversion records one run of the PDF importer
type Conversion struct {
	ID          ulid.ULID        `json:"id"`
	SourceFile  string           `json:"sourceFile"`
	Backend     string           `json:"backend"`
	Mode        string           `json:"mode"`
	Status      ConversionStatus `json:"status"`
	PageCount   int              `json:"pageCount"`
	AssetID     string           `json:"assetId,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Finished reports whether the conversion reached a final state
func (c *Conversion) Finished() bool {
	return c.Status == ConversionStatusCompleted || c.Status == ConversionStatusFailed
}
