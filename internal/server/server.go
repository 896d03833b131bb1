package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/kawhe-app/kawhe/internal/account"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/ledger"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	"github.com/kawhe-app/kawhe/internal/observability"
	obsmiddleware "github.com/kawhe-app/kawhe/internal/observability/logger"
	obsmetrics "github.com/kawhe-app/kawhe/internal/observability/metrics"
	"github.com/kawhe-app/kawhe/internal/passkit"
	"github.com/kawhe-app/kawhe/internal/push"
	"github.com/kawhe-app/kawhe/internal/registration"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	"github.com/kawhe-app/kawhe/internal/serial"
	"github.com/kawhe-app/kawhe/internal/syncer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	serial.Module,
	ledger.Module,
	registration.Module,
	passkit.Module,
	push.Module,
	syncer.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	db              *gorm.DB
	log             *zap.Logger
	accountSvc      accountdomain.Service
	accountRepo     accountdomain.Repository
	ledgerSvc       ledgerdomain.Service
	registrationSvc registrationdomain.Service
	resolver        *serial.Resolver
	passGen         passkit.Generator
	metrics         *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	AccountSvc      accountdomain.Service
	AccountRepo     accountdomain.Repository
	LedgerSvc       ledgerdomain.Service
	RegistrationSvc registrationdomain.Service
	Resolver        *serial.Resolver
	PassGen         passkit.Generator
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		accountSvc:      p.AccountSvc,
		accountRepo:     p.AccountRepo,
		ledgerSvc:       p.LedgerSvc,
		registrationSvc: p.RegistrationSvc,
		resolver:        p.Resolver,
		passGen:         p.PassGen,
		metrics:         p.Metrics,
	}

	svc.registerWalletRoutes()
	svc.registerLoyaltyRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWalletRoutes() {
	wallet := s.engine.Group("/wallet/v1")

	wallet.POST("/devices/:deviceId/registrations/:passTypeId/:serial", s.RegisterDevice)
	wallet.DELETE("/devices/:deviceId/registrations/:passTypeId/:serial", s.UnregisterDevice)
	wallet.GET("/devices/:deviceId/registrations/:passTypeId", s.ListUpdatedSerials)
	wallet.GET("/passes/:passTypeId/:serial", s.GetPass)
	wallet.POST("/log", s.WalletLog)
}

func (s *Server) registerLoyaltyRoutes() {
	api := s.engine.Group("/api/v1/loyalty")
	api.Use(s.StaffAuthRequired())

	api.POST("/stamp", s.Stamp)
	api.POST("/redeem", s.Redeem)
	api.GET("/accounts/:id", s.GetAccount)
}
