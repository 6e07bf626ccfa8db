package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	"github.com/smallbiznis/digimart/internal/authorization"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	"github.com/smallbiznis/digimart/internal/config"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	"github.com/smallbiznis/digimart/internal/observability"
	obsmiddleware "github.com/smallbiznis/digimart/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	obstracing "github.com/smallbiznis/digimart/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	recondomain "github.com/smallbiznis/digimart/internal/reconciliation/domain"
	refunddomain "github.com/smallbiznis/digimart/internal/refund/domain"
	reviewdomain "github.com/smallbiznis/digimart/internal/review/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// EngineConfig carries the middleware inputs of the gin engine.
type EngineConfig struct {
	Debug       bool
	HTTPMetrics *obsmetrics.HTTPMetrics
}

func NewEngine(cfg EngineConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if cfg.HTTPMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(cfg.HTTPMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(EngineConfig{Debug: obsCfg.Debug(), HTTPMetrics: httpMetrics})
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	if !cfg.ServesHTTP() {
		return
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	checkoutSvc     checkoutdomain.Service
	walletSvc       walletdomain.Service
	depositSvc      walletdomain.DepositService
	reconciliation  recondomain.Service
	refundSvc       refunddomain.Service
	reviewSvc       reviewdomain.Service
	inventorySvc    inventorydomain.Service
	paymentSvc      paymentdomain.Service
	notificationSvc notificationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	CheckoutSvc    checkoutdomain.Service
	WalletSvc      walletdomain.Service
	DepositSvc     walletdomain.DepositService
	Reconciliation recondomain.Service
	RefundSvc      refunddomain.Service
	ReviewSvc      reviewdomain.Service
	InventorySvc   inventorydomain.Service
	PaymentSvc     paymentdomain.Service
	Notifications  notificationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		checkoutSvc:     p.CheckoutSvc,
		walletSvc:       p.WalletSvc,
		depositSvc:      p.DepositSvc,
		reconciliation:  p.Reconciliation,
		refundSvc:       p.RefundSvc,
		reviewSvc:       p.ReviewSvc,
		inventorySvc:    p.InventorySvc,
		paymentSvc:      p.PaymentSvc,
		notificationSvc: p.Notifications,
	}

	svc.registerAPIRoutes()
	svc.registerSellerRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.IdentityRequired())

	api.POST("/checkout", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutCreate), s.Checkout)

	// -------- Wallet --------
	api.GET("/wallet", s.authorize(authorization.ObjectWallet, authorization.ActionWalletView), s.GetWallet)
	api.POST("/wallet/deposits", s.authorize(authorization.ObjectWallet, authorization.ActionWalletDeposit), s.CreateDeposit)
	api.GET("/wallet/deposits/:id", s.authorize(authorization.ObjectWallet, authorization.ActionWalletView), s.GetDepositStatus)
	api.POST("/wallet/deposits/:id/verify", s.authorize(authorization.ObjectWallet, authorization.ActionWalletDeposit), s.VerifyDeposit)

	// -------- Orders --------
	api.POST("/orders/:id/verify-payment", s.authorize(authorization.ObjectOrder, authorization.ActionOrderVerify), s.VerifyPayment)
	api.GET("/orders/:id/refund", s.authorize(authorization.ObjectOrder, authorization.ActionOrderRefund), s.QuoteRefund)
	api.POST("/orders/:id/refund", s.authorize(authorization.ObjectOrder, authorization.ActionOrderRefund), s.RequestRefund)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
}

func (s *Server) registerSellerRoutes() {
	seller := s.engine.Group("/api/seller", s.IdentityRequired())
	seller.Use(s.authorize(authorization.ObjectInventory, authorization.ActionInventoryUpload))

	seller.POST("/products/:id/codes", s.UploadCodes)
	seller.POST("/products/:id/accounts", s.UploadAccounts)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.IdentityRequired())

	admin.POST("/orders/:id/review", s.authorize(authorization.ObjectOrder, authorization.ActionOrderReview), s.ReviewOrder)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
