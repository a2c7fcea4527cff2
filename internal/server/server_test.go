package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	auditrepository "github.com/railzwaylabs/aquaduct/internal/audit/repository"
	auditservice "github.com/railzwaylabs/aquaduct/internal/audit/service"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	billingrepository "github.com/railzwaylabs/aquaduct/internal/billing/repository"
	billingservice "github.com/railzwaylabs/aquaduct/internal/billing/service"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	consumerrepository "github.com/railzwaylabs/aquaduct/internal/consumer/repository"
	consumerservice "github.com/railzwaylabs/aquaduct/internal/consumer/service"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/notification/provider/noop"
	notificationrepository "github.com/railzwaylabs/aquaduct/internal/notification/repository"
	notificationservice "github.com/railzwaylabs/aquaduct/internal/notification/service"
	"github.com/railzwaylabs/aquaduct/internal/observability"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	paymentrepository "github.com/railzwaylabs/aquaduct/internal/payment/repository"
	paymentservice "github.com/railzwaylabs/aquaduct/internal/payment/service"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	raterepository "github.com/railzwaylabs/aquaduct/internal/rate/repository"
	rateservice "github.com/railzwaylabs/aquaduct/internal/rate/service"
	"github.com/railzwaylabs/aquaduct/internal/security/vault"
	"github.com/railzwaylabs/aquaduct/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t,
		&consumerdomain.Consumer{}, &ratedomain.Rate{}, &billingdomain.Billing{}, &paymentdomain.Payment{},
		&notificationdomain.Notification{}, &notificationdomain.BillNotification{}, &notificationdomain.PushSubscription{},
		&notificationdomain.SmsLog{}, &notificationdomain.EmailLog{}, &auditdomain.AuditLog{},
	)
	node := testutil.NewNode(t)
	log := zap.NewNop()
	clk := clock.Fixed{At: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
	cfg := config.Config{
		Billing:  config.BillingConfig{MinimumUsage: 10, DueDays: 20, FallbackPenalty: 10},
		Dispatch: config.DispatchConfig{Timeout: 5 * time.Second, PushConcurrency: 2},
	}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	v, err := vault.NewAESVault("server-test")
	require.NoError(t, err)
	composer, err := notificationservice.NewComposer()
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide()})
	rates := rateservice.NewService(rateservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: clk, Repo: raterepository.Provide(), Audit: audit})
	consumers := consumerservice.NewService(consumerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: consumerrepository.Provide(), Audit: audit})
	notifications := notificationrepository.Provide()
	dispatcher := notificationservice.NewDispatcher(notificationservice.DispatcherParams{
		DB: db, Log: log, Cfg: cfg, GenID: node, Clock: clk, Repo: notifications, Audit: audit, Vault: v,
		Composer: composer, Push: noop.Push{}, SMS: noop.SMS{}, Email: noop.Email{}, Metrics: metrics,
	})
	billingRepo := billingrepository.Provide()
	billings := billingservice.NewService(billingservice.Params{
		DB: db, Log: log, Cfg: cfg, GenID: node, Clock: clk, Repo: billingRepo,
		Consumers: consumerrepository.Provide(), Rates: rateservice.ProvideResolver(rates),
		Payments: paymentrepository.Provide(), Notifications: notifications, Composer: composer,
		Dispatcher: dispatcher, Audit: audit, Metrics: metrics,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: paymentrepository.Provide(), Billings: billingRepo, Audit: audit,
	})
	subs := notificationservice.NewSubscriptionService(notificationservice.SubscriptionParams{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: notifications, Audit: audit, Vault: v,
	})

	return New(Params{
		Cfg:             cfg,
		Log:             log,
		DB:              db,
		ConsumerSvc:     consumers,
		RateSvc:         rates,
		BillingSvc:      billings,
		PaymentSvc:      payments,
		SubscriptionSvc: subs,
		AuditExportSvc:  auditservice.NewExportService(db, auditrepository.Provide()),
		Registry:        reg,
	})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerActor, "clerk@utility")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Error.Code
}

type billingJSON struct {
	ID        string          `json:"id"`
	BillNo    string          `json:"bill_no"`
	AmountDue decimal.Decimal `json:"amount_due"`
	Penalty   decimal.Decimal `json:"penalty"`
	Total     decimal.Decimal `json:"total"`
	Remark    string          `json:"remark"`
	Status    string          `json:"status"`
}

func TestBillingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/rates", gin.H{
		"account_type": "Residential", "rate_per_unit": "20", "penalty_amount": "10", "effective_date": "2025-01-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/consumers", gin.H{
		"account_no": "WTR-0001", "first_name": "Ana", "last_name": "Reyes", "account_type": "residential", "phone": "+639171234567",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	consumer := decode[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = do(t, s, http.MethodGet, "/api/consumers/eligible", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, s, http.MethodPost, "/api/billings", gin.H{
		"consumer_id": consumer.ID, "previous_reading": "0", "present_reading": "5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Billing       billingJSON                       `json:"billing"`
		Notifications notificationdomain.DeliveryReport `json:"notifications"`
	}](t, rec)
	assert.Equal(t, "0001", created.Billing.BillNo)
	assert.True(t, created.Billing.Total.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, billingdomain.MinimumChargeRemark, created.Billing.Remark)
	assert.NotEmpty(t, created.Notifications.DispatchID)
	assert.True(t, created.Notifications.SMS.Attempted)
	assert.False(t, created.Notifications.SMS.Delivered)
	assert.Contains(t, created.Notifications.Messages, "SMS failed: channel disabled")

	rec = do(t, s, http.MethodPost, "/api/billings", gin.H{"consumer_id": consumer.ID, "present_reading": "30"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "consumer_not_eligible", errorCode(t, rec))

	rec = do(t, s, http.MethodPost, "/api/billings/"+created.Billing.ID+"/notify", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "billing_not_overdue", errorCode(t, rec))

	rec = do(t, s, http.MethodPost, "/api/payments", gin.H{"billing_id": created.Billing.ID, "amount_paid": "200", "method": "cash"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = do(t, s, http.MethodPost, "/api/payments/"+payment.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/billings/"+created.Billing.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Paid", decode[billingJSON](t, rec).Status)

	rec = do(t, s, http.MethodGet, "/api/billings?consumer_id="+consumer.ID+"&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]billingJSON](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/audit/export?start_date=2025-06-01&end_date=2025-06-30&format=json&actions=billing.create", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Audit-Export-Count"))
	assert.NotEmpty(t, rec.Header().Get("X-Audit-Export-Checksum"))
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown billing", http.MethodGet, "/api/billings/123456", nil, http.StatusNotFound, "billing_not_found"},
		{"malformed billing id", http.MethodGet, "/api/billings/abc", nil, http.StatusBadRequest, "invalid_id"},
		{"unknown consumer", http.MethodPost, "/api/billings", gin.H{"consumer_id": "123456", "present_reading": "3"}, http.StatusNotFound, "consumer_not_found"},
		{"bad due date", http.MethodPost, "/api/billings", gin.H{"consumer_id": "1", "due_date": "next week"}, http.StatusBadRequest, "invalid_due_date"},
		{"bad page token", http.MethodGet, "/api/billings?page_token=***", nil, http.StatusBadRequest, "invalid_page_token"},
		{"missing export range", http.MethodGet, "/api/audit/export", nil, http.StatusBadRequest, "missing_date_range"},
		{"plain http push endpoint", http.MethodPost, "/api/push-subscriptions", gin.H{"user_id": "1", "endpoint": "http://push.example/x", "keys": gin.H{"p256dh": "k", "auth": "a"}}, http.StatusBadRequest, "invalid_push_subscription"},
		{"unknown push endpoint", http.MethodDelete, "/api/push-subscriptions", gin.H{"endpoint": "https://push.example/none"}, http.StatusNotFound, "push_subscription_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestNegativeUsageIsUnprocessable(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/rates", gin.H{
		"account_type": "commercial", "rate_per_unit": "35", "effective_date": "2025-01-01",
	}).Code)
	rec := do(t, s, http.MethodPost, "/api/consumers", gin.H{
		"account_no": "WTR-0002", "first_name": "Ben", "last_name": "Cruz", "account_type": "commercial",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	consumer := decode[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = do(t, s, http.MethodPost, "/api/billings", gin.H{"consumer_id": consumer.ID, "previous_reading": "90", "present_reading": "80"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "present reading must be >= previous reading", errorCode(t, rec))

	rec = do(t, s, http.MethodGet, "/api/billings?consumer_id="+consumer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]billingJSON](t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
