package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"gorm.io/gorm"
)

type ExportService struct {
	db   *gorm.DB
	repo auditdomain.Repository
}

func NewExportService(db *gorm.DB, repo auditdomain.Repository) auditdomain.ExportService {
	return &ExportService{db: db, repo: repo}
}

// Export renders the selected audit rows, oldest first, with a sha256 of the
// rendered bytes so a downloaded file can be checked later.
func (s *ExportService) Export(ctx context.Context, req auditdomain.ExportRequest) (*auditdomain.ExportResult, error) {
	if !req.EndDate.After(req.StartDate) {
		return nil, auditdomain.ErrInvalidExportRange
	}
	filter := auditdomain.ExportFilter{
		Start:   req.StartDate,
		End:     req.EndDate,
		Actions: req.Actions,
		Actor:   req.Actor,
	}

	live, err := s.repo.ListBetween(ctx, s.db, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	records := make([]auditdomain.ExportRecord, 0, len(live))
	for _, l := range live {
		records = append(records, auditdomain.ExportRecord{
			ID: l.ID.String(), Timestamp: l.CreatedAt.UTC(), Action: l.Action,
			PerformedBy: l.PerformedBy, Details: l.Details, Context: l.Context,
		})
	}

	if req.IncludeArchived {
		archived, err := s.repo.ListArchivedBetween(ctx, s.db, filter)
		if err != nil {
			return nil, fmt.Errorf("list audit archive: %w", err)
		}
		for _, l := range archived {
			records = append(records, auditdomain.ExportRecord{
				ID: l.ID.String(), Timestamp: l.CreatedAt.UTC(), Action: l.Action,
				PerformedBy: l.PerformedBy, Details: l.Details, Context: l.Context, Archived: true,
			})
		}
		sort.SliceStable(records, func(i, j int) bool {
			if !records[i].Timestamp.Equal(records[j].Timestamp) {
				return records[i].Timestamp.Before(records[j].Timestamp)
			}
			return records[i].ID < records[j].ID
		})
	}

	var data []byte
	switch req.Format {
	case auditdomain.ExportFormatCSV:
		data, err = formatCSV(records)
	case auditdomain.ExportFormatJSON:
		data, err = json.MarshalIndent(records, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported export format: %s", req.Format)
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return &auditdomain.ExportResult{
		Data:     data,
		Checksum: hex.EncodeToString(sum[:]),
		Format:   req.Format,
		Count:    len(records),
	}, nil
}

func formatCSV(records []auditdomain.ExportRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "timestamp", "action", "performed_by", "details", "context", "archived"}); err != nil {
		return nil, err
	}
	for _, r := range records {
		contextJSON, _ := json.Marshal(r.Context)
		if err := w.Write([]string{
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			r.Action,
			r.PerformedBy,
			r.Details,
			string(contextJSON),
			strconv.FormatBool(r.Archived),
		}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
