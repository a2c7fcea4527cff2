package domain

import (
	"context"
	"time"
)

type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportFilter selects rows with Start <= created_at < End.
type ExportFilter struct {
	Start   time.Time
	End     time.Time
	Actions []string
	Actor   string
}

type ExportRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Format    ExportFormat
	Actions   []string
	Actor     string
	// IncludeArchived also reads audit_trail_archives, so ranges older than the
	// archive cutoff still export.
	IncludeArchived bool
}

type ExportRecord struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Details     string         `json:"details"`
	Context     map[string]any `json:"context,omitempty"`
	Archived    bool           `json:"archived"`
}

type ExportResult struct {
	Data     []byte
	Checksum string
	Format   ExportFormat
	Count    int
}

type ExportService interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}
