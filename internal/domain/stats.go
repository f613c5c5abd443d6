package domain

import (
	"encoding/json"
	"math"
)

// PerformanceStats is recomputed on demand from the full closed history.
// Never cached or maintained incrementally, so it cannot drift.
type PerformanceStats struct {
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	TotalProfit    float64 `json:"total_profit"`
	TotalLoss      float64 `json:"total_loss"`
	NetProfit      float64 `json:"net_profit"`
	Expectancy     float64 `json:"expectancy"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// MarshalJSON renders an infinite profit factor as null; encoding/json
// cannot represent Inf as a number.
func (s PerformanceStats) MarshalJSON() ([]byte, error) {
	type alias PerformanceStats
	doc := struct {
		alias
		ProfitFactor interface{} `json:"profit_factor"`
	}{alias: alias(s), ProfitFactor: s.ProfitFactor}
	if math.IsInf(s.ProfitFactor, 1) {
		doc.ProfitFactor = nil
	}
	return json.Marshal(doc)
}

type HealthStatus string

const (
	HealthHealthy HealthStatus = "HEALTHY"
	HealthCaution HealthStatus = "CAUTION"
	HealthRisk    HealthStatus = "RISK"
	HealthAlert   HealthStatus = "ALERT"
)

// PositionHealth classifies how much of its peak profit an open position has
// given back, relative to the configured max-giveback threshold.
type PositionHealth struct {
	Pair          string       `json:"pair"`
	Status        HealthStatus `json:"status"`
	GivebackPct   float64      `json:"giveback_pct"`
	PeakProfit    float64      `json:"peak_profit"`
	CurrentProfit float64      `json:"current_profit"`
	AgeMinutes    float64      `json:"age_minutes"`
	Note          string       `json:"note,omitempty"`
}
