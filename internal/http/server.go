package http

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/http/middleware"
	"github.com/tembohq/sms-gateway/internal/ledger"
	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/ratelimit"
	"github.com/tembohq/sms-gateway/internal/repository"
	"github.com/tembohq/sms-gateway/internal/sender"
	"github.com/tembohq/sms-gateway/internal/service/delivery"
	"github.com/tembohq/sms-gateway/internal/service/send"
)

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, log *zap.Logger) *Server {
	// repos (MySQL)
	credentialsRepo := repository.NewCredentialsRepository(mysqlDB)
	messagesRepo := repository.NewMessagesRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	sendersRepo := repository.NewSendersRepository(mysqlDB)
	reportsRepo := repository.NewDeliveryReportsRepository(mysqlDB)
	balancesRepo := repository.NewBalancesRepository()
	entriesRepo := repository.NewCreditEntriesRepository()

	// repos (ClickHouse)
	chMessagesRepo := repository.NewCHMessagesRepository(clickhouseDB)

	// services
	credits := ledger.New(mysqlDB, balancesRepo, entriesRepo)
	registry := sender.NewRegistry(sendersRepo, cfg.SMS.DefaultSender, 0)
	limiter := ratelimit.New(rds, ratelimit.Limits{
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
		PerDay:    cfg.RateLimit.PerDay,
	}, log)
	disp := dispatcher.NewDispatcher(dispatcher.FromConfig(cfg.Providers))
	sendSvc := send.NewService(mysqlDB, limiter, registry, messagesRepo, outboxRepo,
		credits, disp, cfg.SMS, cfg.Tracker, log)
	applier := delivery.NewApplier(mysqlDB, messagesRepo, reportsRepo, log)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(glog.INFO)
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	authMW := middleware.APIKeyMiddleware(credentialsRepo)
	v1 := e.Group("/v1", authMW)

	v1.POST("/sms/send", sendSMSHandler(sendSvc), middleware.RequireWrite)
	v1.GET("/reports/messages", listMessagesHandler(chMessagesRepo), middleware.RequireRead)
	v1.POST("/credits/topup", topupHandler(credits), middleware.RequireWrite)

	v1.POST("/sender-ids", registerSenderHandler(registry), middleware.RequireWrite)
	v1.GET("/sender-ids", listSendersHandler(registry), middleware.RequireRead)
	v1.POST("/sender-ids/:identifier/approve", reviewSenderHandler(registry, true), middleware.RequireWrite)
	v1.POST("/sender-ids/:identifier/reject", reviewSenderHandler(registry, false), middleware.RequireWrite)

	v1.POST("/dlr/callback", dlrCallbackHandler(applier))

	return &Server{e: e, log: log}
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
