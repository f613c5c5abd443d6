package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

type placedOrder struct {
	Pair   string
	Side   domain.Side
	Volume float64
}

// stubExchange returns canned data and records orders.
type stubExchange struct {
	candles  []domain.Candle
	price    float64
	balance  float64
	orders   []placedOrder
	orderErr error
}

func (s *stubExchange) GetCandles(ctx context.Context, pair, interval string, limit int) ([]domain.Candle, error) {
	return s.candles, nil
}
func (s *stubExchange) GetTicker(ctx context.Context, pair string) (float64, error) {
	return s.price, nil
}
func (s *stubExchange) GetBalance(ctx context.Context) (float64, error) {
	return s.balance, nil
}
func (s *stubExchange) PlaceOrder(ctx context.Context, pair string, side domain.Side, volume float64) (string, error) {
	if s.orderErr != nil {
		return "", s.orderErr
	}
	s.orders = append(s.orders, placedOrder{Pair: pair, Side: side, Volume: volume})
	return "order-1", nil
}
func (s *stubExchange) OnPriceUpdate(cb func(pair string, price float64)) {}
func (s *stubExchange) Subscribe(pairs []string) error                    { return nil }

type stubAdvisor struct {
	dec *domain.Decision
	err error
}

func (a *stubAdvisor) Advise(ctx context.Context, pair string, ind *domain.IndicatorSnapshot, pos *domain.Position) (*domain.Decision, error) {
	return a.dec, a.err
}

func newTestTradingService(ex *stubExchange, adv *stubAdvisor) (*TradingService, *PositionLedger) {
	ledger, _ := newTestLedger(LedgerConfig{AccountBalance: 10000, MaxGiveback: 0.5}, nil)
	svc := NewTradingService(TradingConfig{
		Pairs:               []string{"ETH/USD"},
		Interval:            "15",
		RiskPerTradePct:     5,
		StopLossPct:         2,
		ProfitTargetPct:     6,
		MinConfidence:       0.6,
		PyramidL1Fraction:   0.5,
		PyramidL2Fraction:   0.33,
		UnderwaterMinutes:   15,
		UnderwaterThreshold: -0.008,
	}, ex, adv, NewIndicatorEngine(), ledger, zap.NewNop())
	return svc, ledger
}

func TestTradingService_EntryOnBuyVerdict(t *testing.T) {
	ex := &stubExchange{price: 100, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictBuy, Confidence: 0.9, Reasoning: []string{"trend up"}}}
	svc, ledger := newTestTradingService(ex, adv)

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(ex.orders) != 1 || ex.orders[0].Side != domain.SideBuy {
		t.Fatalf("expected one buy order, got %v", ex.orders)
	}
	// 5% of 10000 at price 100.
	if ex.orders[0].Volume != 5 {
		t.Errorf("expected volume 5, got %f", ex.orders[0].Volume)
	}

	pos, ok := ledger.GetOpenPosition("ETH/USD")
	if !ok {
		t.Fatal("expected open position after entry")
	}
	if pos.StopLoss != 98 || pos.ProfitTarget != 106 {
		t.Errorf("unexpected stop/target: %f / %f", pos.StopLoss, pos.ProfitTarget)
	}
}

func TestTradingService_NoEntryBelowConfidence(t *testing.T) {
	ex := &stubExchange{price: 100, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictBuy, Confidence: 0.4}}
	svc, ledger := newTestTradingService(ex, adv)

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(ex.orders) != 0 {
		t.Errorf("expected no orders, got %v", ex.orders)
	}
	if _, ok := ledger.GetOpenPosition("ETH/USD"); ok {
		t.Error("expected no open position")
	}
}

func TestTradingService_NoEntryOnHold(t *testing.T) {
	ex := &stubExchange{price: 100, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictHold, Confidence: 0.95}}
	svc, _ := newTestTradingService(ex, adv)

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(ex.orders) != 0 {
		t.Errorf("expected no orders, got %v", ex.orders)
	}
}

func TestTradingService_StopLossExit(t *testing.T) {
	ex := &stubExchange{price: 90, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictHold}}
	svc, ledger := newTestTradingService(ex, adv)

	ledger.Open(context.Background(), EntryOrder{
		Pair: "ETH/USD", EntryPrice: 100, Volume: 5, StopLoss: 95, ProfitTarget: 110,
	})

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(ex.orders) != 1 || ex.orders[0].Side != domain.SideSell || ex.orders[0].Volume != 5 {
		t.Fatalf("expected sell of full volume, got %v", ex.orders)
	}
	closed := ledger.ClosedPositions()
	if len(closed) != 1 || closed[0].ExitReason != domain.ExitStopLoss {
		t.Fatalf("expected stop loss close, got %v", closed)
	}
}

func TestTradingService_ExitOrderFailureKeepsPosition(t *testing.T) {
	ex := &stubExchange{price: 90, balance: 10000, orderErr: errors.New("exchange down")}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictHold}}
	svc, ledger := newTestTradingService(ex, adv)

	ledger.Open(context.Background(), EntryOrder{
		Pair: "ETH/USD", EntryPrice: 100, Volume: 5, StopLoss: 95, ProfitTarget: 110,
	})

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err == nil {
		t.Fatal("expected error when the exit order fails")
	}
	if _, ok := ledger.GetOpenPosition("ETH/USD"); !ok {
		t.Error("position must stay open for a retry next cycle")
	}
	if len(ledger.ClosedPositions()) != 0 {
		t.Error("failed exit must not close the position")
	}
}

func TestTradingService_PyramidAddAtTrigger(t *testing.T) {
	ex := &stubExchange{price: 105, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictBuy, Confidence: 0.9}}
	svc, ledger := newTestTradingService(ex, adv)

	ledger.Open(context.Background(), EntryOrder{
		Pair: "ETH/USD", EntryPrice: 100, Volume: 10, StopLoss: 90, ProfitTarget: 120,
	})

	// +5% on basis clears the 4.5% L1 trigger.
	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(ex.orders) != 1 || ex.orders[0].Side != domain.SideBuy || ex.orders[0].Volume != 5 {
		t.Fatalf("expected L1 buy of half base volume, got %v", ex.orders)
	}
	pos, _ := ledger.GetOpenPosition("ETH/USD")
	if !pos.HasLevel(1) || pos.TotalVolume != 15 {
		t.Errorf("expected L1 tranche on position, got %+v", pos)
	}
}

func TestTradingService_PyramidSkippedByAdvisor(t *testing.T) {
	ex := &stubExchange{price: 105, balance: 10000}
	adv := &stubAdvisor{dec: &domain.Decision{Verdict: domain.VerdictHold, Confidence: 0.9}}
	svc, ledger := newTestTradingService(ex, adv)

	ledger.Open(context.Background(), EntryOrder{
		Pair: "ETH/USD", EntryPrice: 100, Volume: 10, StopLoss: 90, ProfitTarget: 120,
	})

	if err := svc.ProcessPair(context.Background(), "ETH/USD"); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(ex.orders) != 0 {
		t.Errorf("advisor veto must block the pyramid order, got %v", ex.orders)
	}
	pos, _ := ledger.GetOpenPosition("ETH/USD")
	if pos.PyramidLevelsActivated != 0 {
		t.Error("expected no tranches")
	}
}
