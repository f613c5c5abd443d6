package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

// TradingConfig carries the per-cycle trading knobs. Percent fields are in
// percent units; UnderwaterThreshold is a signed fraction and is normalized
// once at construction.
type TradingConfig struct {
	Pairs             []string
	Interval          string // exchange candle interval, e.g. "15"
	CandleLimit       int
	RiskPerTradePct   float64
	StopLossPct       float64
	ProfitTargetPct   float64
	MinConfidence     float64
	PyramidL1Fraction float64 // of L0 volume
	PyramidL2Fraction float64
	UnderwaterMinutes int
	// UnderwaterThreshold is a signed fraction, e.g. -0.008 for -0.8%.
	UnderwaterThreshold float64
	ErosionCapUSD       float64
}

// TradingService runs one trading cycle per pair: bars in, indicators and an
// AI decision in the middle, ledger mutations and exchange orders out. The
// ledger never talks to the exchange or the advisor itself.
type TradingService struct {
	cfg      TradingConfig
	exchange domain.Exchange
	advisor  domain.Advisor
	engine   *IndicatorEngine
	ledger   *PositionLedger
	logger   *zap.Logger

	// percent units, converted once from the configured fraction
	underwaterThresholdPct float64
}

func NewTradingService(
	cfg TradingConfig,
	exchange domain.Exchange,
	advisor domain.Advisor,
	engine *IndicatorEngine,
	ledger *PositionLedger,
	logger *zap.Logger,
) *TradingService {
	if cfg.CandleLimit == 0 {
		cfg.CandleLimit = 300
	}
	return &TradingService{
		cfg:                    cfg,
		exchange:               exchange,
		advisor:                advisor,
		engine:                 engine,
		ledger:                 ledger,
		logger:                 logger,
		underwaterThresholdPct: cfg.UnderwaterThreshold * 100,
	}
}

// Ledger exposes the ledger for the web layer.
func (s *TradingService) Ledger() *PositionLedger {
	return s.ledger
}

// RunCycle processes every configured pair in sequence. Pair failures are
// contained and logged; the cycle always moves on to the next pair.
func (s *TradingService) RunCycle(ctx context.Context) {
	for _, pair := range s.cfg.Pairs {
		if err := s.ProcessPair(ctx, pair); err != nil {
			s.logger.Error("pair cycle failed", zap.String("pair", pair), zap.Error(err))
		}
	}
}

// ProcessPair runs one full evaluation for a pair: refresh state at the
// current price, then either look for an exit/pyramid on an open position or
// consult the advisor for a new entry.
func (s *TradingService) ProcessPair(ctx context.Context, pair string) error {
	bars, err := s.exchange.GetCandles(ctx, pair, s.cfg.Interval, s.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}
	ind := s.engine.ComputeAll(bars)

	price, err := s.exchange.GetTicker(ctx, pair)
	if err != nil {
		return fmt.Errorf("failed to fetch ticker: %w", err)
	}

	pos, open := s.ledger.GetOpenPosition(pair)
	if !open {
		return s.tryEnter(ctx, pair, price, ind)
	}

	s.ledger.Refresh(ctx, pair, price)

	if reason := s.exitReason(pair, price); reason != "" {
		if _, err := s.exchange.PlaceOrder(ctx, pair, domain.SideSell, pos.TotalVolume); err != nil {
			// Order failed: keep the position open and retry next cycle.
			return fmt.Errorf("failed to place exit order: %w", err)
		}
		s.ledger.Close(ctx, pair, price, reason)
		return nil
	}

	return s.tryPyramid(ctx, pair, price, ind)
}

// exitReason evaluates the risk-gate cascade. Gates are advisory reads; the
// explicit Close happens in ProcessPair after the exit order is placed.
func (s *TradingService) exitReason(pair string, price float64) string {
	switch {
	case s.ledger.CheckStopLoss(pair, price):
		return domain.ExitStopLoss
	case s.ledger.CheckProfitTarget(pair, price):
		return domain.ExitProfitTarget
	case s.ledger.CheckErosionCap(pair):
		return domain.ExitErosionCap
	case s.ledger.CheckUnderwaterExit(pair, s.cfg.UnderwaterMinutes, s.underwaterThresholdPct):
		return domain.ExitUnderwater
	case s.ledger.CheckProfitableCollapse(pair):
		return domain.ExitCollapse
	}
	return ""
}

func (s *TradingService) tryEnter(ctx context.Context, pair string, price float64, ind *domain.IndicatorSnapshot) error {
	dec, err := s.advisor.Advise(ctx, pair, ind, nil)
	if err != nil {
		return fmt.Errorf("advisor failed: %w", err)
	}
	if dec.Verdict != domain.VerdictBuy || dec.Confidence < s.cfg.MinConfidence {
		s.logger.Debug("no entry",
			zap.String("pair", pair),
			zap.String("verdict", string(dec.Verdict)),
			zap.Float64("confidence", dec.Confidence))
		return nil
	}

	balance, err := s.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	volume := balance * s.cfg.RiskPerTradePct / 100 / price
	if volume <= 0 {
		return nil
	}

	if _, err := s.exchange.PlaceOrder(ctx, pair, domain.SideBuy, volume); err != nil {
		return fmt.Errorf("failed to place entry order: %w", err)
	}

	s.ledger.Open(ctx, EntryOrder{
		Pair:         pair,
		EntryPrice:   price,
		Volume:       volume,
		StopLoss:     price * (1 - s.cfg.StopLossPct/100),
		ProfitTarget: price * (1 + s.cfg.ProfitTargetPct/100),
		AIReasoning:  dec.Reasoning,
		ADX:          ind.ADX,
		Regime:       domain.ClassifyRegime(ind.ADX),
		ErosionCap:   s.cfg.ErosionCapUSD,
	})
	return nil
}

func (s *TradingService) tryPyramid(ctx context.Context, pair string, price float64, ind *domain.IndicatorSnapshot) error {
	pos, ok := s.ledger.GetOpenPosition(pair)
	if !ok {
		return nil
	}
	basis := pos.CostBasis()
	if basis <= 0 {
		return nil
	}
	profitFraction := pos.CurrentProfit / basis

	level := 0
	volume := 0.0
	switch {
	case s.ledger.IsReadyForL1(pair, profitFraction, PyramidL1Trigger):
		level = 1
		volume = pos.Volume * s.cfg.PyramidL1Fraction
	case s.ledger.IsReadyForL2(pair, profitFraction, PyramidL2Trigger):
		level = 2
		volume = pos.Volume * s.cfg.PyramidL2Fraction
	default:
		return nil
	}
	if volume <= 0 {
		return nil
	}

	dec, err := s.advisor.Advise(ctx, pair, ind, pos)
	if err != nil {
		return fmt.Errorf("advisor failed: %w", err)
	}
	if dec.Verdict != domain.VerdictBuy || dec.Confidence < s.cfg.MinConfidence {
		s.logger.Info("pyramid add skipped by advisor",
			zap.String("pair", pair),
			zap.Int("level", level),
			zap.Float64("confidence", dec.Confidence))
		return nil
	}

	if _, err := s.exchange.PlaceOrder(ctx, pair, domain.SideBuy, volume); err != nil {
		return fmt.Errorf("failed to place pyramid order: %w", err)
	}
	s.ledger.AddPyramidLevel(ctx, pair, level, price, volume, dec.Confidence)
	return nil
}
