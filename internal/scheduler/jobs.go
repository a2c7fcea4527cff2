package scheduler

import (
	"context"

	"go.uber.org/zap"
)

func (s *Scheduler) archiveCutoffDays() int {
	return s.cfg.Audit.ArchiveAfterDays
}

func (s *Scheduler) ArchiveAuditTrailsJob(ctx context.Context, run *jobRun) error {
	days := s.archiveCutoffDays()
	if days <= 0 {
		s.log.Info("audit archival disabled", zap.Int("days", days))
		return nil
	}
	cutoff := s.clock.Now(ctx).AddDate(0, 0, -days)
	moved, err := s.audit.Archive(ctx, cutoff)
	if err != nil {
		return err
	}
	run.AddProcessed(moved)
	return nil
}

func (s *Scheduler) ArchiveDeliveryLogsJob(ctx context.Context, run *jobRun) error {
	days := s.archiveCutoffDays()
	if days <= 0 {
		s.log.Info("delivery log archival disabled", zap.Int("days", days))
		return nil
	}
	cutoff := s.clock.Now(ctx).AddDate(0, 0, -days)
	flagged, err := s.deliveryLogs.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	run.AddProcessed(flagged)
	return nil
}

// RefreshPenaltiesJob persists penalties of unpaid past-due billings so reports
// that bypass the read path see current totals.
func (s *Scheduler) RefreshPenaltiesJob(ctx context.Context, run *jobRun) error {
	changed, err := s.billing.RefreshPenalties(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(int64(changed))
	return nil
}
