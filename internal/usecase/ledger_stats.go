package usecase

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

// Health classification cut points as fractions of the configured
// max-giveback threshold.
const (
	healthRiskFraction    = 0.7
	healthCautionFraction = 0.3
	longHeldMinutes       = 240
)

// GetPerformanceStats recomputes from scratch over the entire closed history.
// An empty history returns all zeros (profit factor 0, never NaN or Inf from
// a 0/0).
func (l *PositionLedger) GetPerformanceStats() domain.PerformanceStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := domain.PerformanceStats{}
	if len(l.closed) == 0 {
		return stats
	}

	for _, pos := range l.closed {
		if pos.CurrentProfit > 0 {
			stats.Wins++
			stats.TotalProfit += pos.CurrentProfit
		} else {
			stats.Losses++
			stats.TotalLoss += -pos.CurrentProfit
		}
	}
	stats.TotalTrades = len(l.closed)
	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	stats.NetProfit = stats.TotalProfit - stats.TotalLoss
	stats.Expectancy = stats.NetProfit / float64(stats.TotalTrades)

	switch {
	case stats.TotalLoss > 0:
		stats.ProfitFactor = stats.TotalProfit / stats.TotalLoss
	case stats.TotalProfit > 0:
		stats.ProfitFactor = math.Inf(1)
	default:
		stats.ProfitFactor = 0
	}

	// Max drawdown: peak-to-trough of cumulative P&L over the chronological
	// sequence of closed trades.
	var cum, peak, maxDD float64
	for _, pos := range l.closed {
		cum += pos.CurrentProfit
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	stats.MaxDrawdown = maxDD
	if l.cfg.AccountBalance > 0 {
		stats.MaxDrawdownPct = maxDD / l.cfg.AccountBalance * 100
	}

	return stats
}

// GetPositionHealth classifies each open position by how much of its peak
// profit has eroded relative to the max-giveback threshold.
func (l *PositionLedger) GetPositionHealth() []domain.PositionHealth {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.timeNow()
	out := make([]domain.PositionHealth, 0, len(l.open))
	for _, pos := range l.open {
		h := domain.PositionHealth{
			Pair:          pos.Pair,
			Status:        domain.HealthHealthy,
			PeakProfit:    pos.PeakProfit,
			CurrentProfit: pos.CurrentProfit,
			AgeMinutes:    pos.Age(now).Minutes(),
		}

		var giveback float64
		if pos.PeakProfit > 0 {
			giveback = pos.ErosionUsed / pos.PeakProfit
			h.GivebackPct = giveback * 100
		}
		if l.cfg.MaxGiveback > 0 {
			switch rel := giveback / l.cfg.MaxGiveback; {
			case rel > 1.0:
				h.Status = domain.HealthAlert
			case rel > healthRiskFraction:
				h.Status = domain.HealthRisk
			case rel > healthCautionFraction:
				h.Status = domain.HealthCaution
			}
		}
		if h.Status == domain.HealthCaution && h.AgeMinutes > longHeldMinutes {
			h.Note = "held over 4h while giving back profit"
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// ExportClosedCSV writes one flat row per closed position, for offline
// inspection only; the file is never re-imported.
func (l *PositionLedger) ExportClosedCSV(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"pair", "entry_time", "exit_time", "entry_price", "exit_price",
		"volume", "profit_usd", "profit_pct", "exit_reason",
	}); err != nil {
		return err
	}

	for _, pos := range l.closed {
		row := []string{
			pos.Pair,
			pos.EntryTime.UTC().Format(time.RFC3339),
			pos.ExitTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(pos.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(pos.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(pos.Volume, 'f', -1, 64),
			strconv.FormatFloat(pos.CurrentProfit, 'f', 2, 64),
			strconv.FormatFloat(pos.ProfitPct, 'f', 4, 64),
			pos.ExitReason,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
