package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

func closeWithProfit(t *testing.T, ledger *PositionLedger, pair string, entry, exit float64) {
	t.Helper()
	ctx := context.Background()
	ledger.Open(ctx, EntryOrder{Pair: pair, EntryPrice: entry, Volume: 1, StopLoss: entry * 0.9, ProfitTarget: entry * 1.1})
	ledger.Close(ctx, pair, exit, domain.ExitManual)
}

func TestStats_EmptyHistoryIsAllZeros(t *testing.T) {
	ledger, _ := newTestLedger(LedgerConfig{AccountBalance: 1000, MaxGiveback: 0.5}, nil)

	stats := ledger.GetPerformanceStats()
	if stats.TotalTrades != 0 || stats.WinRate != 0 || stats.ProfitFactor != 0 {
		t.Errorf("expected all zeros, got %+v", stats)
	}
	if math.IsNaN(stats.Expectancy) || math.IsInf(stats.ProfitFactor, 0) {
		t.Error("empty history must not produce NaN or Inf")
	}
}

func TestStats_RecomputesFromClosedHistory(t *testing.T) {
	ledger, _ := newTestLedger(LedgerConfig{AccountBalance: 1000, MaxGiveback: 0.5}, nil)

	// +10, -5, +15 in order.
	closeWithProfit(t, ledger, "A/USD", 100, 110)
	closeWithProfit(t, ledger, "B/USD", 100, 95)
	closeWithProfit(t, ledger, "C/USD", 100, 115)

	stats := ledger.GetPerformanceStats()
	if stats.TotalTrades != 3 || stats.Wins != 2 || stats.Losses != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if math.Abs(stats.WinRate-200.0/3) > 1e-9 {
		t.Errorf("expected win rate 66.67, got %f", stats.WinRate)
	}
	if stats.TotalProfit != 25 || stats.TotalLoss != 5 || stats.NetProfit != 20 {
		t.Errorf("unexpected P&L sums: %+v", stats)
	}
	if math.Abs(stats.Expectancy-20.0/3) > 1e-9 {
		t.Errorf("expected expectancy 6.67, got %f", stats.Expectancy)
	}
	if stats.ProfitFactor != 5 {
		t.Errorf("expected profit factor 5, got %f", stats.ProfitFactor)
	}
	// Cumulative path 10, 5, 20: worst drawdown is the 5 USD dip.
	if stats.MaxDrawdown != 5 {
		t.Errorf("expected max drawdown 5, got %f", stats.MaxDrawdown)
	}
	if math.Abs(stats.MaxDrawdownPct-0.5) > 1e-9 {
		t.Errorf("expected max drawdown pct 0.5, got %f", stats.MaxDrawdownPct)
	}
}

func TestStats_ProfitFactorInfiniteWithoutLosses(t *testing.T) {
	ledger, _ := newTestLedger(LedgerConfig{AccountBalance: 1000, MaxGiveback: 0.5}, nil)

	closeWithProfit(t, ledger, "A/USD", 100, 120)

	stats := ledger.GetPerformanceStats()
	if !math.IsInf(stats.ProfitFactor, 1) {
		t.Errorf("expected +Inf profit factor, got %f", stats.ProfitFactor)
	}
}

func TestHealth_Classification(t *testing.T) {
	ledger, now := newTestLedger(LedgerConfig{AccountBalance: 1000, MaxGiveback: 0.5}, nil)
	ctx := context.Background()

	// ALERT: gave back 80% of peak against a 50% cap.
	ledger.Open(ctx, EntryOrder{Pair: "A/USD", EntryPrice: 100, Volume: 1})
	ledger.Refresh(ctx, "A/USD", 200)
	ledger.Refresh(ctx, "A/USD", 120)

	// CAUTION: gave back 25% of peak.
	ledger.Open(ctx, EntryOrder{Pair: "B/USD", EntryPrice: 100, Volume: 1})
	ledger.Refresh(ctx, "B/USD", 200)
	ledger.Refresh(ctx, "B/USD", 175)

	// HEALTHY: at its peak.
	ledger.Open(ctx, EntryOrder{Pair: "C/USD", EntryPrice: 100, Volume: 1})
	ledger.Refresh(ctx, "C/USD", 150)

	health := ledger.GetPositionHealth()
	if len(health) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(health))
	}
	byPair := map[string]domain.PositionHealth{}
	for _, h := range health {
		byPair[h.Pair] = h
	}
	if byPair["A/USD"].Status != domain.HealthAlert {
		t.Errorf("expected ALERT, got %s", byPair["A/USD"].Status)
	}
	if byPair["B/USD"].Status != domain.HealthCaution {
		t.Errorf("expected CAUTION, got %s", byPair["B/USD"].Status)
	}
	if byPair["C/USD"].Status != domain.HealthHealthy {
		t.Errorf("expected HEALTHY, got %s", byPair["C/USD"].Status)
	}
	if byPair["B/USD"].Note != "" {
		t.Error("young positions carry no long-held note")
	}

	// Past four hours the eroding position picks up the note.
	*now = now.Add(5 * time.Hour)
	health = ledger.GetPositionHealth()
	for _, h := range health {
		if h.Pair == "B/USD" && h.Note == "" {
			t.Error("expected long-held note on the eroding position")
		}
	}
}

func TestExportClosedCSV(t *testing.T) {
	ledger, _ := newTestLedger(LedgerConfig{AccountBalance: 1000, MaxGiveback: 0.5}, nil)

	closeWithProfit(t, ledger, "ETH/USD", 3000, 3150)
	closeWithProfit(t, ledger, "BTC/USD", 60000, 59000)

	var buf bytes.Buffer
	if err := ledger.ExportClosedCSV(&buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "pair" || records[0][8] != "exit_reason" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][0] != "ETH/USD" || records[2][0] != "BTC/USD" {
		t.Errorf("unexpected row order: %v / %v", records[1], records[2])
	}
	if records[1][8] != domain.ExitManual {
		t.Errorf("unexpected exit reason: %s", records[1][8])
	}
}
