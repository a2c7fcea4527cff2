package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	auditrepository "github.com/railzwaylabs/aquaduct/internal/audit/repository"
	auditservice "github.com/railzwaylabs/aquaduct/internal/audit/service"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/notification/repository"
	"github.com/railzwaylabs/aquaduct/internal/security/vault"
	"github.com/railzwaylabs/aquaduct/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockPush struct{ mock.Mock }

func (m *mockPush) Send(ctx context.Context, target notificationdomain.PushTarget, payload notificationdomain.PushPayload) error {
	return m.Called(ctx, target, payload).Error(0)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) Send(ctx context.Context, phone, message string) (notificationdomain.SMSResult, error) {
	args := m.Called(ctx, phone, message)
	return args.Get(0).(notificationdomain.SMSResult), args.Error(1)
}

type mockEmail struct{ mock.Mock }

func (m *mockEmail) Send(ctx context.Context, address, subject, htmlBody string) error {
	return m.Called(ctx, address, subject, htmlBody).Error(0)
}

type dispatchFixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	vault      vault.Provider
	push       *mockPush
	sms        *mockSMS
	email      *mockEmail
	dispatcher *Dispatcher
	now        time.Time
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db := testutil.NewDB(t,
		&notificationdomain.Notification{},
		&notificationdomain.BillNotification{},
		&notificationdomain.PushSubscription{},
		&notificationdomain.SmsLog{},
		&notificationdomain.EmailLog{},
		&auditdomain.AuditLog{},
	)
	node := testutil.NewNode(t)
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	clk := clock.Fixed{At: now}
	v, err := vault.NewAESVault("dispatch-test-key")
	require.NoError(t, err)
	composer, err := NewComposer()
	require.NoError(t, err)

	f := &dispatchFixture{db: db, node: node, vault: v, push: &mockPush{}, sms: &mockSMS{}, email: &mockEmail{}, now: now}
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	f.dispatcher = NewDispatcher(DispatcherParams{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      config.Config{Dispatch: config.DispatchConfig{Timeout: 5 * time.Second, PushConcurrency: 2}},
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		Audit:    audit,
		Vault:    v,
		Composer: composer,
		Push:     f.push,
		SMS:      f.sms,
		Email:    f.email,
	}).(*Dispatcher)
	return f
}

func (f *dispatchFixture) subscribe(t *testing.T, userID snowflake.ID, endpoint, auth string) {
	t.Helper()
	secret, err := f.vault.Encrypt([]byte(auth), []byte(endpoint))
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&notificationdomain.PushSubscription{
		ID: f.node.Generate(), UserID: userID, Endpoint: endpoint, P256dh: "p256", AuthSecret: secret, CreatedAt: f.now,
	}).Error)
}

func (f *dispatchFixture) request(t *testing.T, withUser bool) notificationdomain.DispatchRequest {
	t.Helper()
	req := notificationdomain.DispatchRequest{
		Kind:         notificationdomain.KindBillCreated,
		Actor:        "clerk",
		BillingID:    f.node.Generate(),
		BillNo:       "0001",
		BillingDate:  f.now,
		DueDate:      f.now.AddDate(0, 0, 20),
		AmountDue:    decimal.NewFromInt(200),
		Penalty:      decimal.Zero,
		Total:        decimal.NewFromInt(200),
		ConsumerID:   f.node.Generate(),
		ConsumerName: "Maria Santos",
		AccountNo:    "ACC-7",
		Phone:        "+639170000001",
		Email:        "maria@example.com",
	}
	if withUser {
		userID := f.node.Generate()
		bn := &notificationdomain.BillNotification{
			ID: f.node.Generate(), BillingID: req.BillingID, UserID: userID, CreatedAt: f.now, UpdatedAt: f.now,
		}
		require.NoError(t, f.db.Create(bn).Error)
		req.UserID = &userID
		req.BillNotificationID = &bn.ID
	}
	return req
}

func endpoint(url string) any {
	return mock.MatchedBy(func(target notificationdomain.PushTarget) bool { return target.Endpoint == url })
}

func TestDispatchPushFailureDoesNotBlockOtherChannels(t *testing.T) {
	f := newDispatchFixture(t)
	req := f.request(t, true)
	f.subscribe(t, *req.UserID, "https://push.example/a", "auth-a")
	f.subscribe(t, *req.UserID, "https://push.example/b", "auth-b")

	f.push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("gone"))
	f.sms.On("Send", mock.Anything, "+639170000001", mock.Anything).
		Return(notificationdomain.SMSResult{Success: true, Response: "queued"}, nil)
	f.email.On("Send", mock.Anything, "maria@example.com", "Water Bill #0001", mock.Anything).
		Return(errors.New("smtp down"))

	report := f.dispatcher.Dispatch(context.Background(), req)

	assert.NotEmpty(t, report.DispatchID)
	assert.True(t, report.InApp.Delivered)
	assert.True(t, report.Push.Attempted)
	assert.False(t, report.Push.Delivered)
	assert.Equal(t, 2, report.Push.Attempts)
	assert.True(t, report.SMS.Delivered)
	assert.False(t, report.Email.Delivered)
	assert.Contains(t, report.Messages, "SMS sent")
	assert.Contains(t, report.Messages, "Email failed: smtp down")
	f.push.AssertNumberOfCalls(t, "Send", 2)

	var smsLogs []notificationdomain.SmsLog
	require.NoError(t, f.db.Find(&smsLogs).Error)
	require.Len(t, smsLogs, 1)
	assert.True(t, smsLogs[0].Success)
	assert.Equal(t, "queued", smsLogs[0].Response)
	assert.Equal(t, report.DispatchID, smsLogs[0].DispatchID)
	assert.Contains(t, smsLogs[0].Message, "#0001")

	var emailLogs []notificationdomain.EmailLog
	require.NoError(t, f.db.Find(&emailLogs).Error)
	require.Len(t, emailLogs, 1)
	assert.False(t, emailLogs[0].Success)
	assert.Equal(t, "smtp down", emailLogs[0].Response)

	var bn notificationdomain.BillNotification
	require.NoError(t, f.db.First(&bn, "id = ?", *req.BillNotificationID).Error)
	assert.False(t, bn.IsNotified)

	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Order("action").Pluck("action", &actions).Error)
	assert.Equal(t, []string{"notification.email.failed", "notification.push.failed", "notification.sms.delivered"}, actions)
}

func liveContext() any {
	return mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
}

func TestDispatchHungPushDoesNotStarveOtherChannels(t *testing.T) {
	f := newDispatchFixture(t)
	f.dispatcher.timeout = 100 * time.Millisecond
	req := f.request(t, true)
	f.subscribe(t, *req.UserID, "https://push.example/slow", "auth")

	f.push.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(context.DeadlineExceeded)
	f.sms.On("Send", liveContext(), "+639170000001", mock.Anything).
		Return(notificationdomain.SMSResult{Success: true, Response: "queued"}, nil)
	f.email.On("Send", liveContext(), "maria@example.com", mock.Anything, mock.Anything).Return(nil)

	report := f.dispatcher.Dispatch(context.Background(), req)

	assert.False(t, report.Push.Delivered)
	assert.True(t, report.SMS.Delivered)
	assert.True(t, report.Email.Delivered)
	f.sms.AssertExpectations(t)
	f.email.AssertExpectations(t)

	var smsCount, emailCount, auditCount int64
	require.NoError(t, f.db.Model(&notificationdomain.SmsLog{}).Count(&smsCount).Error)
	require.NoError(t, f.db.Model(&notificationdomain.EmailLog{}).Count(&emailCount).Error)
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Count(&auditCount).Error)
	assert.Equal(t, int64(1), smsCount)
	assert.Equal(t, int64(1), emailCount)
	assert.Equal(t, int64(3), auditCount)
}

func TestDispatchAnyPushSuccessMarksNotified(t *testing.T) {
	f := newDispatchFixture(t)
	req := f.request(t, true)
	req.Phone = ""
	req.Email = ""
	f.subscribe(t, *req.UserID, "https://push.example/a", "auth-a")
	f.subscribe(t, *req.UserID, "https://push.example/b", "auth-b")

	f.push.On("Send", mock.Anything, endpoint("https://push.example/a"), mock.Anything).Return(errors.New("expired"))
	f.push.On("Send", mock.Anything, mock.MatchedBy(func(target notificationdomain.PushTarget) bool {
		return target.Endpoint == "https://push.example/b" && target.Auth == "auth-b"
	}), mock.Anything).Return(nil)

	report := f.dispatcher.Dispatch(context.Background(), req)

	assert.True(t, report.Push.Delivered)
	assert.Equal(t, 1, report.Push.Succeeded)
	assert.False(t, report.SMS.Attempted)
	assert.False(t, report.Email.Attempted)

	var bn notificationdomain.BillNotification
	require.NoError(t, f.db.First(&bn, "id = ?", *req.BillNotificationID).Error)
	assert.True(t, bn.IsNotified)

	var count int64
	require.NoError(t, f.db.Model(&notificationdomain.SmsLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDispatchRecoversChannelPanic(t *testing.T) {
	f := newDispatchFixture(t)
	req := f.request(t, false)

	f.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("gateway client exploded") }).
		Return(notificationdomain.SMSResult{}, nil)
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	report := f.dispatcher.Dispatch(context.Background(), req)

	assert.False(t, report.SMS.Delivered)
	assert.Contains(t, report.SMS.Error, "panic: gateway client exploded")
	assert.True(t, report.Email.Delivered)
	assert.False(t, report.Push.Attempted)

	var smsLogs []notificationdomain.SmsLog
	require.NoError(t, f.db.Find(&smsLogs).Error)
	require.Len(t, smsLogs, 1)
	assert.False(t, smsLogs[0].Success)

	var emailLogs []notificationdomain.EmailLog
	require.NoError(t, f.db.Find(&emailLogs).Error)
	require.Len(t, emailLogs, 1)
	assert.True(t, emailLogs[0].Success)
	assert.Contains(t, emailLogs[0].Body, "Maria Santos")
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	f := newDispatchFixture(t)
	req := f.request(t, false)
	req.Email = ""

	f.sms.On("Send", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything, mock.Anything).
		Return(notificationdomain.SMSResult{Success: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.dispatcher.Dispatch(ctx, req)

	assert.True(t, report.SMS.Delivered)
	f.sms.AssertExpectations(t)
}

func TestComposerOverdueTemplates(t *testing.T) {
	composer, err := NewComposer()
	require.NoError(t, err)

	req := notificationdomain.DispatchRequest{
		Kind:         notificationdomain.KindBillOverdue,
		BillNo:       "0003",
		ConsumerName: "Ana <Reyes>",
		AccountNo:    "ACC-1",
		DueDate:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		AmountDue:    decimal.NewFromInt(200),
		Penalty:      decimal.NewFromInt(10),
		Total:        decimal.NewFromInt(210),
	}

	sms, err := composer.SMS(req)
	require.NoError(t, err)
	assert.Contains(t, sms, "overdue")
	assert.Contains(t, sms, "210.00")

	subject, body, err := composer.Email(req)
	require.NoError(t, err)
	assert.Equal(t, "Overdue Water Bill #0003", subject)
	assert.Contains(t, body, "Ana &lt;Reyes&gt;")
	assert.Contains(t, body, "Apr 1, 2025")

	title, _, err := composer.InApp(req)
	require.NoError(t, err)
	assert.Equal(t, "Water bill #0003 is overdue", title)
}
