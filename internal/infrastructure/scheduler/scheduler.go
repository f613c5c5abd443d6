package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vitos/crypto_trade_ai/internal/usecase"
)

// Scheduler fires one trading cycle shortly after each 15-minute bar closes.
// The 10-second offset gives the exchange time to finalize the bar.
type Scheduler struct {
	cron    *cron.Cron
	trading *usecase.TradingService
	logger  *zap.Logger
}

func NewScheduler(trading *usecase.TradingService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		trading: trading,
		logger:  logger,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("10 0,15,30,45 * * * *", func() {
		s.logger.Info("trading cycle started")
		s.trading.RunCycle(context.Background())
		s.logger.Info("trading cycle finished")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("cadence", "every 15m, 10s after bar close"))
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
