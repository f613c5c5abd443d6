package domain

import "context"

type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictHold Verdict = "HOLD"
)

// Decision is the resolved output of the AI advisor. The ledger never talks
// to the advisor itself; decisions arrive through the trading service.
type Decision struct {
	Verdict    Verdict  `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}

// Advisor produces a trade decision for a pair from the current indicator
// snapshot. pos is nil when no position is open for the pair.
type Advisor interface {
	Advise(ctx context.Context, pair string, ind *IndicatorSnapshot, pos *Position) (*Decision, error)
}
