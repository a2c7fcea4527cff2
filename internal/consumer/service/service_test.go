package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	auditrepository "github.com/railzwaylabs/aquaduct/internal/audit/repository"
	auditservice "github.com/railzwaylabs/aquaduct/internal/audit/service"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/internal/consumer/repository"
	"github.com/railzwaylabs/aquaduct/internal/testutil"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &consumerdomain.Consumer{}, &auditdomain.AuditLog{})
	node := testutil.NewNode(t)
	clk := clock.Fixed{At: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	svc := NewService(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo: repository.Provide(), Audit: audit,
	}).(*Service)
	return svc, db
}

func TestCreateNormalizesAccountType(t *testing.T) {
	svc, db := newTestService(t)

	c, err := svc.Create(context.Background(), consumerdomain.CreateRequest{
		AccountNo:   "ACC-001",
		FirstName:   " Juan ",
		LastName:    "Dela Cruz",
		AccountType: "Semi Commercial",
		Actor:       "clerk",
	})
	require.NoError(t, err)
	assert.Equal(t, consumerdomain.AccountType("semi-commercial"), c.AccountType)
	assert.Equal(t, "Juan Dela Cruz", c.FullName())

	var logs []auditdomain.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "consumer.create", logs[0].Action)
	assert.Equal(t, "clerk", logs[0].PerformedBy)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, consumerdomain.CreateRequest{FirstName: "A", LastName: "B", AccountType: "residential"})
	assert.ErrorIs(t, err, consumerdomain.ErrInvalidAccountNo)

	_, err = svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: "1", LastName: "B", AccountType: "residential"})
	assert.ErrorIs(t, err, consumerdomain.ErrInvalidName)

	_, err = svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: "1", FirstName: "A", LastName: "B", AccountType: "  "})
	assert.ErrorIs(t, err, consumerdomain.ErrInvalidAccountType)

	_, err = svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: "1", FirstName: "A", LastName: "B", AccountType: "residential"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: "1", FirstName: "C", LastName: "D", AccountType: "residential"})
	assert.ErrorIs(t, err, consumerdomain.ErrDuplicateAccountNo)
}

func TestSetDisconnected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: "9", FirstName: "A", LastName: "B", AccountType: "residential"})
	require.NoError(t, err)

	updated, err := svc.SetDisconnected(ctx, c.ID.String(), true, "admin")
	require.NoError(t, err)
	assert.True(t, updated.IsDisconnected)

	got, err := svc.Get(ctx, c.ID.String())
	require.NoError(t, err)
	assert.True(t, got.IsDisconnected)

	_, err = svc.SetDisconnected(ctx, "12345", true, "admin")
	assert.ErrorIs(t, err, consumerdomain.ErrConsumerNotFound)

	_, err = svc.Get(ctx, "not-an-id")
	assert.ErrorIs(t, err, consumerdomain.ErrInvalidID)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, no := range []string{"A1", "A2", "A3"} {
		_, err := svc.Create(ctx, consumerdomain.CreateRequest{AccountNo: no, FirstName: "F", LastName: "L", AccountType: "residential"})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, consumerdomain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Consumers, 2)
	assert.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, consumerdomain.ListRequest{PageSize: 2, PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Consumers, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.NotEqual(t, first.Consumers[0].ID, second.Consumers[0].ID)
	assert.NotEqual(t, first.Consumers[1].ID, second.Consumers[0].ID)
}

func TestListBoundsPageSize(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	node := testutil.NewNode(t)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	rows := make([]*consumerdomain.Consumer, 0, pagination.MaxPageSize+1)
	for i := 0; i <= pagination.MaxPageSize; i++ {
		rows = append(rows, &consumerdomain.Consumer{
			ID: node.Generate(), AccountNo: fmt.Sprintf("BULK-%03d", i), FirstName: "F", LastName: "L",
			AccountType: consumerdomain.AccountTypeResidential, CreatedAt: now, UpdatedAt: now,
		})
	}
	require.NoError(t, db.CreateInBatches(rows, 100).Error)

	unsized, err := svc.List(ctx, consumerdomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, unsized.Consumers, pagination.DefaultPageSize)
	assert.True(t, unsized.PageInfo.HasMore)

	oversized, err := svc.List(ctx, consumerdomain.ListRequest{PageSize: 1 << 30})
	require.NoError(t, err)
	assert.Len(t, oversized.Consumers, pagination.MaxPageSize)
	assert.True(t, oversized.PageInfo.HasMore)
}
