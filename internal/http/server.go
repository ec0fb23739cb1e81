package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/jmehdipour/vps-billing/internal/http/middleware"
	"github.com/jmehdipour/vps-billing/internal/metrics"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SweepTrigger queues an out-of-band run of a billing task.
type SweepTrigger interface {
	Trigger(name string) error
}

// Accounts is the admin view of the ledger.
type Accounts interface {
	GetAccount(ctx context.Context, accountID int64) (*model.Account, error)
	Deposit(ctx context.Context, accountID, amount int64, requestID string) (model.Transaction, error)
	Transactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error)
}

type Deps struct {
	Sweeps   SweepTrigger
	Accounts Accounts
	Redis    *redis.Client // optional, enables the admin rate limit
	Logger   *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.OpsConfig, deps Deps) *Server {
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.WARN)
	e.Use(echoMid.Recover())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	authMW := middleware.AdminTokenMiddleware(cfg.AdminToken)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.AdminRPS,
		KeyPrefix:      "vpsbill:rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	admin := e.Group("/admin", authMW, rlMW)
	if deps.Sweeps != nil {
		admin.POST("/sweeps/:task", triggerSweepHandler(deps.Sweeps, lg))
	}
	if deps.Accounts != nil {
		admin.GET("/accounts/:id", getAccountHandler(deps.Accounts))
		admin.POST("/accounts/:id/deposits", depositHandler(deps.Accounts, lg))
		admin.GET("/accounts/:id/transactions", listTransactionsHandler(deps.Accounts))
	}

	return &Server{e: e, log: lg}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("ops http listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
