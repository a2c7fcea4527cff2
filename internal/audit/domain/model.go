package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidExportRange = errors.New("invalid_export_range")

const SystemActor = "system"

// AuditLog is an append-only record of a state-changing action.
type AuditLog struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Action      string            `json:"action" gorm:"type:text;not null;index"`
	PerformedBy string            `json:"performed_by" gorm:"type:text;not null"`
	Details     string            `json:"details" gorm:"type:text;not null"`
	Context     datatypes.JSONMap `json:"context"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_trails" }

type AuditLogArchive struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Action      string            `json:"action" gorm:"type:text;not null"`
	PerformedBy string            `json:"performed_by" gorm:"type:text;not null"`
	Details     string            `json:"details" gorm:"type:text;not null"`
	Context     datatypes.JSONMap `json:"context"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	ArchivedAt  time.Time         `json:"archived_at" gorm:"not null"`
}

func (AuditLogArchive) TableName() string { return "audit_trail_archives" }

// Entry is what callers hand to the recorder. Timestamp defaults to now.
type Entry struct {
	Action    string
	Actor     string
	Context   map[string]string
	Timestamp time.Time
}

// Details renders the entry as "<action> by <actor>: k=v, ..." with sorted keys.
func (e Entry) Details() string {
	actor := strings.TrimSpace(e.Actor)
	if actor == "" {
		actor = SystemActor
	}
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s by %s", e.Action, actor)
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Context[k])
	}
	return fmt.Sprintf("%s by %s: %s", e.Action, actor, strings.Join(parts, ", "))
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, log *AuditLog) error
	ListBetween(ctx context.Context, db *gorm.DB, filter ExportFilter) ([]AuditLog, error)
	ListArchivedBetween(ctx context.Context, db *gorm.DB, filter ExportFilter) ([]AuditLogArchive, error)
	Archive(ctx context.Context, db *gorm.DB, cutoff, archivedAt time.Time) (int64, error)
}

// Service is the audit recorder. Record never fails the caller.
type Service interface {
	Record(ctx context.Context, db *gorm.DB, entry Entry)
	Archive(ctx context.Context, cutoff time.Time) (int64, error)
}
