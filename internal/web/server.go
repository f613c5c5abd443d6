package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vitos/crypto_trade_ai/internal/usecase"
)

type Server struct {
	router *http.ServeMux
	server *http.Server
	ledger *usecase.PositionLedger
	logger *zap.Logger
}

func NewServer(port int, ledger *usecase.PositionLedger, logger *zap.Logger) *Server {
	s := &Server{
		router: http.NewServeMux(),
		ledger: ledger,
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handleOpenPositions)
	s.router.HandleFunc("GET /api/history", s.handleHistory)

	// Activity feed
	s.router.HandleFunc("GET /api/activity", s.handleActivity)

	// Performance
	s.router.HandleFunc("GET /api/stats", s.handleStats)
	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/export.csv", s.handleExportCSV)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
