package repository

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, log *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(log).Error
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, filter auditdomain.ExportFilter) ([]auditdomain.AuditLog, error) {
	var logs []auditdomain.AuditLog
	err := exportScope(db.WithContext(ctx).Model(&auditdomain.AuditLog{}), filter).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) ListArchivedBetween(ctx context.Context, db *gorm.DB, filter auditdomain.ExportFilter) ([]auditdomain.AuditLogArchive, error) {
	var logs []auditdomain.AuditLogArchive
	err := exportScope(db.WithContext(ctx).Model(&auditdomain.AuditLogArchive{}), filter).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func exportScope(query *gorm.DB, filter auditdomain.ExportFilter) *gorm.DB {
	query = query.Where("created_at >= ? AND created_at < ?", filter.Start, filter.End)
	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query = query.Where("performed_by = ?", actor)
	}
	return query.Order("created_at ASC, id ASC")
}

// Archive copies rows older than cutoff into audit_trail_archives and removes them,
// inside one transaction.
func (r *repo) Archive(ctx context.Context, db *gorm.DB, cutoff, archivedAt time.Time) (int64, error) {
	var moved int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO audit_trail_archives (id, action, performed_by, details, context, created_at, archived_at)
			 SELECT id, action, performed_by, details, context, created_at, ?
			 FROM audit_trails WHERE created_at < ?`,
			archivedAt, cutoff,
		).Error; err != nil {
			return err
		}

		res := tx.Exec(`DELETE FROM audit_trails WHERE created_at < ?`, cutoff)
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return nil
	})
	return moved, err
}
