package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/railzwaylabs/aquaduct/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
)

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(Start),
)

type Params struct {
	fx.In

	Cfg             config.Config
	Log             *zap.Logger
	DB              *gorm.DB
	ConsumerSvc     consumerdomain.Service
	RateSvc         ratedomain.Service
	BillingSvc      billingdomain.Service
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc notificationdomain.SubscriptionService
	AuditExportSvc  auditdomain.ExportService
	Registry        *prometheus.Registry `optional:"true"`
	Tracer          trace.TracerProvider `optional:"true"`
}

type Server struct {
	cfg             config.Config
	log             *zap.Logger
	db              *gorm.DB
	consumerSvc     consumerdomain.Service
	rateSvc         ratedomain.Service
	billingSvc      billingdomain.Service
	paymentSvc      paymentdomain.Service
	subscriptionSvc notificationdomain.SubscriptionService
	auditExportSvc  auditdomain.ExportService
	registry        *prometheus.Registry
	tracer          trace.Tracer

	engine *gin.Engine
}

func New(p Params) *Server {
	tp := p.Tracer
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	s := &Server{
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		db:              p.DB,
		consumerSvc:     p.ConsumerSvc,
		rateSvc:         p.RateSvc,
		billingSvc:      p.BillingSvc,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditExportSvc:  p.AuditExportSvc,
		registry:        p.Registry,
		tracer:          tp.Tracer("aquaduct/http"),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Tracing(s.tracer), AccessLog(s.log), Recovery(s.log))

	r.GET("/healthz", s.Health)
	r.GET("/metrics", s.Metrics())

	api := r.Group("/api")

	consumers := api.Group("/consumers")
	consumers.POST("", s.CreateConsumer)
	consumers.GET("", s.ListConsumers)
	consumers.GET("/eligible", s.ListEligibleConsumers)
	consumers.GET("/:id", s.GetConsumer)
	consumers.POST("/:id/disconnect", s.DisconnectConsumer)
	consumers.POST("/:id/reconnect", s.ReconnectConsumer)

	rates := api.Group("/rates")
	rates.POST("", s.CreateRate)
	rates.GET("", s.ListRates)

	billings := api.Group("/billings")
	billings.POST("", s.CreateBilling)
	billings.GET("", s.ListBillings)
	billings.GET("/:id", s.GetBilling)
	billings.PATCH("/:id", s.UpdateBilling)
	billings.DELETE("/:id", s.DeleteBilling)
	billings.POST("/:id/notify", s.NotifyBilling)
	billings.GET("/:id/payments", s.ListBillingPayments)

	payments := api.Group("/payments")
	payments.POST("", s.SubmitPayment)
	payments.POST("/:id/verify", s.VerifyPayment)
	payments.POST("/:id/unverify", s.UnverifyPayment)
	payments.DELETE("/:id", s.DeletePayment)

	subs := api.Group("/push-subscriptions")
	subs.POST("", s.RegisterPushSubscription)
	subs.DELETE("", s.UnregisterPushSubscription)

	api.GET("/audit/export", s.ExportAuditLogs)

	return r
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics serves the application registry together with the default one,
// where the gorm prometheus plugin registers its collectors.
func (s *Server) Metrics() gin.HandlerFunc {
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if s.registry != nil {
		gatherers = append(prometheus.Gatherers{s.registry}, gatherers...)
	}
	return gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
}

func Start(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
