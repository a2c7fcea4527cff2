package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/audit/repository"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, now time.Time) (*Service, *gorm.DB) {
	db := testutil.NewDB(t, &auditdomain.AuditLog{}, &auditdomain.AuditLogArchive{})
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.Fixed{At: now},
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db
}

func TestEntryDetailsSortsContext(t *testing.T) {
	entry := auditdomain.Entry{
		Action:  "billing.created",
		Actor:   "clerk",
		Context: map[string]string{"total": "200.00", "bill_no": "0001"},
	}
	assert.Equal(t, "billing.created by clerk: bill_no=0001, total=200.00", entry.Details())

	assert.Equal(t, "rate.created by system", auditdomain.Entry{Action: "rate.created"}.Details())
}

func TestRecordWithinTransaction(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		svc.Record(ctx, tx, auditdomain.Entry{
			Action:  "billing.created",
			Actor:   "clerk",
			Context: map[string]string{"bill_no": "0001"},
		})
		return nil
	})
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "clerk", logs[0].PerformedBy)
	assert.Equal(t, "billing.created by clerk: bill_no=0001", logs[0].Details)
	assert.Equal(t, "0001", logs[0].Context["bill_no"])
	assert.True(t, logs[0].CreatedAt.Equal(now))
}

func TestRecordFailureIsSwallowed(t *testing.T) {
	svc, db := newTestService(t, time.Now())
	require.NoError(t, db.Migrator().DropTable(&auditdomain.AuditLog{}))

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), nil, auditdomain.Entry{Action: "noop"})
	})
}

func TestArchiveMovesRowsOlderThanCutoff(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	ctx := context.Background()

	svc.Record(ctx, nil, auditdomain.Entry{Action: "old", Timestamp: now.AddDate(0, -4, 0)})
	svc.Record(ctx, nil, auditdomain.Entry{Action: "older", Timestamp: now.AddDate(-1, 0, 0)})
	svc.Record(ctx, nil, auditdomain.Entry{Action: "fresh", Timestamp: now.AddDate(0, 0, -1)})

	moved, err := svc.Archive(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	var remaining []auditdomain.AuditLog
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].Action)

	var archived []auditdomain.AuditLogArchive
	require.NoError(t, db.Order("created_at ASC").Find(&archived).Error)
	require.Len(t, archived, 2)
	assert.Equal(t, "older", archived[0].Action)
	assert.True(t, archived[0].ArchivedAt.Equal(now))
}

func TestExportCSV(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	ctx := context.Background()

	svc.Record(ctx, nil, auditdomain.Entry{Action: "billing.created", Actor: "clerk", Timestamp: now.Add(-time.Hour)})
	svc.Record(ctx, nil, auditdomain.Entry{Action: "payment.verified", Actor: "admin", Timestamp: now.Add(-30 * time.Minute)})

	exporter := NewExportService(db, repository.Provide())
	result, err := exporter.Export(ctx, auditdomain.ExportRequest{
		StartDate: now.Add(-24 * time.Hour),
		EndDate:   now,
		Format:    auditdomain.ExportFormatCSV,
		Actions:   []string{"billing.created"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Len(t, result.Checksum, 64)

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "billing.created", rows[1][2])
	assert.Equal(t, "clerk", rows[1][3])
	assert.Equal(t, "false", rows[1][6])

	_, err = exporter.Export(ctx, auditdomain.ExportRequest{StartDate: now, EndDate: now, Format: auditdomain.ExportFormatJSON})
	require.ErrorIs(t, err, auditdomain.ErrInvalidExportRange)
}

func TestExportIncludesArchivedRows(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	ctx := context.Background()

	svc.Record(ctx, nil, auditdomain.Entry{Action: "billing.create", Actor: "clerk", Timestamp: now.AddDate(0, -5, 0)})
	svc.Record(ctx, nil, auditdomain.Entry{Action: "billing.create", Actor: "admin", Timestamp: now.AddDate(0, -4, 0)})
	svc.Record(ctx, nil, auditdomain.Entry{Action: "billing.create", Actor: "clerk", Timestamp: now.AddDate(0, 0, -2)})
	_, err := svc.Archive(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)

	exporter := NewExportService(db, repository.Provide())
	req := auditdomain.ExportRequest{
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now,
		Format:    auditdomain.ExportFormatJSON,
		Actor:     "clerk",
	}

	liveOnly, err := exporter.Export(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, liveOnly.Count)

	req.IncludeArchived = true
	all, err := exporter.Export(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Count)

	var records []auditdomain.ExportRecord
	require.NoError(t, json.Unmarshal(all.Data, &records))
	require.Len(t, records, 2)
	assert.True(t, records[0].Archived)
	assert.False(t, records[1].Archived)
	assert.True(t, records[0].Timestamp.Before(records[1].Timestamp))
}
