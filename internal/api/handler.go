// Package api serves the read-only monitoring surface of the bot.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trend-core/internal/engine"
	"trend-core/internal/monitor"
	"trend-core/pkg/db"
)

// TradeSource is the trade journal as seen by the monitor.
type TradeSource interface {
	TradeHistory(ctx context.Context, symbol string, limit int) ([]db.Trade, error)
}

var _ TradeSource = (*db.Journal)(nil)

// Server wires HTTP endpoints around the controller snapshots.
type Server struct {
	Router    *gin.Engine
	Service   engine.Service
	Trades    TradeSource // nil when the journal is disabled
	Metrics   *monitor.Metrics
	JWTSecret string
	Log       *zap.Logger
}

func NewServer(svc engine.Service, trades TradeSource, metrics *monitor.Metrics, jwtSecret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(NewIPRateLimiter(20, 50).Middleware(log))
	r.Use(TimeoutMiddleware(10 * time.Second))

	s := &Server{
		Router:    r,
		Service:   svc,
		Trades:    trades,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Log:       log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	protected := s.Router.Group("")
	if s.JWTSecret != "" {
		protected.Use(AuthMiddleware(s.JWTSecret))
	}
	{
		protected.GET("/stats", s.stats)
		protected.GET("/positions", s.positions)
		protected.GET("/markets", s.markets)
		protected.GET("/trades", s.trades)
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("monitoring server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
