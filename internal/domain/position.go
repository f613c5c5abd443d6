package domain

import "time"

type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// Regime is a coarse trend-strength classification derived from ADX at entry.
type Regime string

const (
	RegimeChoppy   Regime = "choppy"
	RegimeWeak     Regime = "weak"
	RegimeModerate Regime = "moderate"
	RegimeStrong   Regime = "strong"
)

// ClassifyRegime maps an ADX reading to a regime bucket.
func ClassifyRegime(adx float64) Regime {
	switch {
	case adx < 20:
		return RegimeChoppy
	case adx < 25:
		return RegimeWeak
	case adx < 35:
		return RegimeModerate
	default:
		return RegimeStrong
	}
}

// Exit reasons recorded on close.
const (
	ExitStopLoss     = "stop_loss"
	ExitProfitTarget = "profit_target"
	ExitErosionCap   = "erosion_cap"
	ExitUnderwater   = "underwater"
	ExitCollapse     = "profit_collapse"
	ExitManual       = "manual"
)

// PyramidLevel is one add-on tranche of an open position. Each tranche keeps
// its own cost basis; level 2 can only exist after level 1.
type PyramidLevel struct {
	Level            int       `json:"level"`
	EntryPrice       float64   `json:"entry_price"`
	Volume           float64   `json:"volume"`
	EntryTime        time.Time `json:"entry_time"`
	TriggerProfitPct float64   `json:"trigger_profit_pct"`
	AIConfidence     float64   `json:"ai_confidence"`
	Status           string    `json:"status"`
}

// Position is an open or closed trade on a single pair. At most one open
// position per pair exists at any time.
type Position struct {
	ID   string `json:"id"`
	Pair string `json:"pair"`

	// Base (L0) entry.
	EntryPrice   float64   `json:"entry_price"`
	Volume       float64   `json:"volume"`
	EntryTime    time.Time `json:"entry_time"`
	StopLoss     float64   `json:"stop_loss"`
	ProfitTarget float64   `json:"profit_target"`

	PyramidLevels          []PyramidLevel `json:"pyramid_levels,omitempty"`
	TotalVolume            float64        `json:"total_volume"`
	PyramidLevelsActivated int            `json:"pyramid_levels_activated"`

	CurrentProfit float64 `json:"current_profit"`
	ProfitPct     float64 `json:"profit_pct"`
	PeakProfit    float64 `json:"peak_profit"`
	ErosionCap    float64 `json:"erosion_cap"`
	ErosionUsed   float64 `json:"erosion_used"`

	// Entry context, for audit.
	AIReasoning []string `json:"ai_reasoning,omitempty"`
	EntryADX    float64  `json:"entry_adx"`
	Regime      Regime   `json:"regime"`

	Status     PositionStatus `json:"status"`
	ExitPrice  float64        `json:"exit_price,omitempty"`
	ExitTime   time.Time      `json:"exit_time"`
	ExitReason string         `json:"exit_reason,omitempty"`
}

// CostBasis is the total capital committed across L0 and all pyramid tranches.
func (p *Position) CostBasis() float64 {
	basis := p.EntryPrice * p.Volume
	for _, lvl := range p.PyramidLevels {
		basis += lvl.EntryPrice * lvl.Volume
	}
	return basis
}

// HasLevel reports whether a pyramid tranche with the given level exists.
func (p *Position) HasLevel(level int) bool {
	for _, lvl := range p.PyramidLevels {
		if lvl.Level == level {
			return true
		}
	}
	return false
}

// Age is the time since L0 entry.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// Snapshot is the persisted state document: open positions as a flat list
// (rebuilt into a pair-keyed map on load) plus the append-only closed history.
type Snapshot struct {
	Open      []*Position `json:"open"`
	Closed    []*Position `json:"closed"`
	Timestamp time.Time   `json:"timestamp"`
}
