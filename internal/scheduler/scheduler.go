package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
)

const (
	JobArchiveAuditTrails  = "archive_audit_trails"
	JobArchiveDeliveryLogs = "archive_delivery_logs"
	JobRefreshPenalties    = "refresh_penalties"

	defaultJobTimeout = 10 * time.Minute
)

type Params struct {
	fx.In

	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Audit        auditdomain.Service
	DeliveryLogs notificationdomain.DeliveryLogService
	Billing      billingdomain.Service
}

type jobFunc func(ctx context.Context, run *jobRun) error

// Scheduler owns the periodic housekeeping of the billing pipeline.
type Scheduler struct {
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	audit        auditdomain.Service
	deliveryLogs notificationdomain.DeliveryLogService
	billing      billingdomain.Service

	cron *cron.Cron
	jobs map[string]jobFunc

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	s := &Scheduler{
		cfg:          p.Cfg,
		log:          p.Log.Named("scheduler"),
		clock:        p.Clock,
		audit:        p.Audit,
		deliveryLogs: p.DeliveryLogs,
		billing:      p.Billing,
		lastRun:      make(map[string]time.Time),
	}
	s.jobs = map[string]jobFunc{
		JobArchiveAuditTrails:  s.ArchiveAuditTrailsJob,
		JobArchiveDeliveryLogs: s.ArchiveDeliveryLogsJob,
		JobRefreshPenalties:    s.RefreshPenaltiesJob,
	}

	logger := cronLogger{log: s.log.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	schedules := map[string]string{
		JobArchiveAuditTrails:  p.Cfg.Audit.ArchiveSchedule,
		JobArchiveDeliveryLogs: p.Cfg.Audit.ArchiveSchedule,
		JobRefreshPenalties:    p.Cfg.Audit.PenaltySchedule,
	}
	for name, spec := range schedules {
		if spec == "" {
			s.log.Info("job not scheduled", zap.String("job", name))
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { _ = s.Run(context.Background(), name) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
	}
	return s, nil
}

// Jobs lists the job names accepted by Run.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a single job immediately, outside of its cron schedule.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultJobTimeout)
	defer cancel()

	run := s.startRun(ctx, name)
	err := job(ctx, run)
	s.finishRun(run, err)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun reports when a job last finished successfully.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastRun[name]
	return at, ok
}

type jobRun struct {
	name      string
	startedAt time.Time
	processed int64
}

func (r *jobRun) AddProcessed(n int64) {
	r.processed += n
}

func (s *Scheduler) startRun(ctx context.Context, name string) *jobRun {
	run := &jobRun{name: name, startedAt: s.clock.Now(ctx)}
	s.log.Info("job started", zap.String("job", name))
	return run
}

func (s *Scheduler) finishRun(run *jobRun, err error) {
	elapsed := time.Since(run.startedAt)
	if err != nil {
		s.log.Error("job failed",
			zap.String("job", run.name),
			zap.Int64("processed", run.processed),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	s.mu.Lock()
	s.lastRun[run.name] = run.startedAt
	s.mu.Unlock()
	s.log.Info("job finished",
		zap.String("job", run.name),
		zap.Int64("processed", run.processed),
		zap.Duration("elapsed", elapsed),
	)
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
