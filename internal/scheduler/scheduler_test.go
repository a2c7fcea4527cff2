package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
)

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Record(context.Context, *gorm.DB, auditdomain.Entry) {}

func (m *mockAudit) Archive(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockDeliveryLogs struct{ mock.Mock }

func (m *mockDeliveryLogs) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// mockBilling only implements what the scheduler calls.
type mockBilling struct {
	billingdomain.Service
	mock.Mock
}

func (m *mockBilling) RefreshPenalties(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

var now = time.Date(2025, 9, 1, 2, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, cfg config.AuditConfig) (*Scheduler, *mockAudit, *mockDeliveryLogs, *mockBilling) {
	t.Helper()
	audit := &mockAudit{}
	logs := &mockDeliveryLogs{}
	billing := &mockBilling{}
	s, err := New(Params{
		Cfg:          config.Config{Audit: cfg},
		Log:          zap.NewNop(),
		Clock:        clock.Fixed{At: now},
		Audit:        audit,
		DeliveryLogs: logs,
		Billing:      billing,
	})
	require.NoError(t, err)
	return s, audit, logs, billing
}

func TestRunArchivesWithRetentionCutoff(t *testing.T) {
	s, audit, logs, _ := newScheduler(t, config.AuditConfig{ArchiveAfterDays: 30, ArchiveSchedule: "0 2 * * *"})
	cutoff := now.AddDate(0, 0, -30)

	audit.On("Archive", mock.Anything, cutoff).Return(int64(12), nil).Once()
	logs.On("ArchiveBefore", mock.Anything, cutoff).Return(int64(4), nil).Once()

	require.NoError(t, s.Run(context.Background(), JobArchiveAuditTrails))
	require.NoError(t, s.Run(context.Background(), JobArchiveDeliveryLogs))

	audit.AssertExpectations(t)
	logs.AssertExpectations(t)
	at, ok := s.LastRun(JobArchiveAuditTrails)
	assert.True(t, ok)
	assert.Equal(t, now, at)
}

func TestArchiveDisabledSkipsRepository(t *testing.T) {
	s, audit, logs, _ := newScheduler(t, config.AuditConfig{})

	require.NoError(t, s.Run(context.Background(), JobArchiveAuditTrails))
	require.NoError(t, s.Run(context.Background(), JobArchiveDeliveryLogs))

	audit.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
	logs.AssertNotCalled(t, "ArchiveBefore", mock.Anything, mock.Anything)
	assert.Empty(t, s.cron.Entries())
}

func TestRefreshPenaltiesFailureIsReported(t *testing.T) {
	s, _, _, billing := newScheduler(t, config.AuditConfig{PenaltySchedule: "15 0 * * *"})
	boom := errors.New("db down")
	billing.On("RefreshPenalties", mock.Anything).Return(0, boom).Once()

	err := s.Run(context.Background(), JobRefreshPenalties)
	assert.ErrorIs(t, err, boom)
	_, ok := s.LastRun(JobRefreshPenalties)
	assert.False(t, ok)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRunUnknownJob(t *testing.T) {
	s, _, _, _ := newScheduler(t, config.AuditConfig{})
	assert.Error(t, s.Run(context.Background(), "vacuum"))
	assert.Equal(t, []string{JobArchiveAuditTrails, JobArchiveDeliveryLogs, JobRefreshPenalties}, s.Jobs())
}

func TestInvalidScheduleRejected(t *testing.T) {
	_, err := New(Params{
		Cfg:   config.Config{Audit: config.AuditConfig{ArchiveSchedule: "every tuesday"}},
		Log:   zap.NewNop(),
		Clock: clock.Fixed{At: now},
	})
	assert.Error(t, err)
}
