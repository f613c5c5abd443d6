package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

// Pyramid trigger thresholds as fractional profit on cost basis. Recorded on
// each tranche (in percent units) for audit; the readiness checks themselves
// take the threshold from the caller.
const (
	PyramidL1Trigger = 0.045
	PyramidL2Trigger = 0.08
	MaxPyramidLevels = 2
)

const activityFeedLimit = 100

// LedgerConfig carries the validated numeric configuration the ledger needs.
// Config loading and validation happen upstream in cmd.
type LedgerConfig struct {
	AccountBalance float64
	MaxGiveback    float64 // fraction of peak profit allowed to erode before exit, e.g. 0.5
	ErosionCapUSD  float64 // recorded on positions at entry, surfaced in health output
}

// EntryOrder describes an L0 entry for Open.
type EntryOrder struct {
	Pair         string
	EntryPrice   float64
	Volume       float64
	StopLoss     float64
	ProfitTarget float64
	AIReasoning  []string
	ADX          float64
	Regime       domain.Regime
	ErosionCap   float64
}

// PositionLedger owns all open and closed position state: lifecycle
// transitions, pyramid tranches and the risk-gate checks. Every mutating
// operation persists the full state snapshot write-through, so a crash loses
// at most the last not-yet-saved operation. Risk checks are read-only
// verdicts; closing is always an explicit Close call by the orchestrator.
//
// Invariant violations (duplicate open, out-of-order pyramid level, unknown
// pair) are logged no-ops, never faults: a missed check must not take down
// the monitoring loop.
type PositionLedger struct {
	cfg    LedgerConfig
	store  domain.SnapshotStore
	logger *zap.Logger

	mu       sync.RWMutex
	open     map[string]*domain.Position
	closed   []*domain.Position
	activity []domain.ActivityEntry

	timeNow func() time.Time // for testing
}

func NewPositionLedger(cfg LedgerConfig, store domain.SnapshotStore, logger *zap.Logger) *PositionLedger {
	return &PositionLedger{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		open:    make(map[string]*domain.Position),
		closed:  []*domain.Position{},
		timeNow: time.Now,
	}
}

// Restore rebuilds in-memory state from the persisted snapshot. Call once at
// startup; a missing snapshot is not an error.
func (l *PositionLedger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = make(map[string]*domain.Position, len(snap.Open))
	for _, p := range snap.Open {
		l.open[p.Pair] = p
	}
	l.closed = append([]*domain.Position{}, snap.Closed...)

	l.logger.Info("ledger state restored",
		zap.Int("open", len(l.open)),
		zap.Int("closed", len(l.closed)))
	return nil
}

// Open creates a new L0 position for the pair. A second entry while one is
// open is refused: logged and dropped, no state change.
func (l *PositionLedger) Open(ctx context.Context, ord EntryOrder) {
	l.mu.Lock()
	if _, exists := l.open[ord.Pair]; exists {
		l.mu.Unlock()
		l.logger.Warn("entry refused: position already open", zap.String("pair", ord.Pair))
		return
	}

	now := l.timeNow()
	pos := &domain.Position{
		ID:           uuid.NewString(),
		Pair:         ord.Pair,
		EntryPrice:   ord.EntryPrice,
		Volume:       ord.Volume,
		EntryTime:    now,
		StopLoss:     ord.StopLoss,
		ProfitTarget: ord.ProfitTarget,
		TotalVolume:  ord.Volume,
		ErosionCap:   ord.ErosionCap,
		AIReasoning:  ord.AIReasoning,
		EntryADX:     ord.ADX,
		Regime:       ord.Regime,
		Status:       domain.StatusOpen,
	}
	l.open[ord.Pair] = pos

	l.appendActivityLocked(now, ord.Pair, domain.ActionEntry,
		fmt.Sprintf("opened %.6f @ %.2f (stop %.2f, target %.2f, regime %s)",
			ord.Volume, ord.EntryPrice, ord.StopLoss, ord.ProfitTarget, ord.Regime))
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Info("position opened",
		zap.String("pair", ord.Pair),
		zap.Float64("entry", ord.EntryPrice),
		zap.Float64("volume", ord.Volume),
		zap.String("regime", string(ord.Regime)))
	l.persist(ctx, snap)
}

// Refresh recomputes unrealized P&L for the pair at the given price. Each
// tranche (L0 and pyramids) contributes against its own entry price, not a
// blended average. Peak profit only moves up; erosion resets to zero on the
// tick that sets a new peak. Unknown pair is a no-op.
func (l *PositionLedger) Refresh(ctx context.Context, pair string, currentPrice float64) {
	l.mu.Lock()
	pos, ok := l.open[pair]
	if !ok {
		l.mu.Unlock()
		return
	}

	profit := (currentPrice - pos.EntryPrice) * pos.Volume
	for _, lvl := range pos.PyramidLevels {
		profit += (currentPrice - lvl.EntryPrice) * lvl.Volume
	}

	pos.CurrentProfit = profit
	if basis := pos.CostBasis(); basis > 0 {
		pos.ProfitPct = profit / basis * 100
	}

	if profit > pos.PeakProfit {
		pos.PeakProfit = profit
		pos.ErosionUsed = 0
	} else {
		erosion := pos.PeakProfit - profit
		if erosion < 0 {
			erosion = 0
		}
		pos.ErosionUsed = erosion
	}

	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(ctx, snap)
}

// AddPyramidLevel attaches tranche 1 or 2 to an open position. Returns false
// without mutating when the position is missing, both levels are already
// active, the level already exists, or level 2 is requested before level 1.
func (l *PositionLedger) AddPyramidLevel(ctx context.Context, pair string, level int, entryPrice, volume, aiConfidence float64) bool {
	l.mu.Lock()
	pos, ok := l.open[pair]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("pyramid add refused: no open position", zap.String("pair", pair))
		return false
	}
	if level != 1 && level != 2 {
		l.mu.Unlock()
		l.logger.Warn("pyramid add refused: invalid level", zap.String("pair", pair), zap.Int("level", level))
		return false
	}
	if pos.PyramidLevelsActivated >= MaxPyramidLevels {
		l.mu.Unlock()
		l.logger.Warn("pyramid add refused: all levels activated", zap.String("pair", pair))
		return false
	}
	if pos.HasLevel(level) {
		l.mu.Unlock()
		l.logger.Warn("pyramid add refused: level already exists", zap.String("pair", pair), zap.Int("level", level))
		return false
	}
	if level == 2 && !pos.HasLevel(1) {
		l.mu.Unlock()
		l.logger.Warn("pyramid add refused: level 2 before level 1", zap.String("pair", pair))
		return false
	}

	trigger := PyramidL1Trigger * 100
	if level == 2 {
		trigger = PyramidL2Trigger * 100
	}

	now := l.timeNow()
	pos.PyramidLevels = append(pos.PyramidLevels, domain.PyramidLevel{
		Level:            level,
		EntryPrice:       entryPrice,
		Volume:           volume,
		EntryTime:        now,
		TriggerProfitPct: trigger,
		AIConfidence:     aiConfidence,
		Status:           "active",
	})
	pos.TotalVolume += volume
	pos.PyramidLevelsActivated++

	l.appendActivityLocked(now, pair, domain.ActionPyramid,
		fmt.Sprintf("L%d added %.6f @ %.2f (confidence %.2f)", level, volume, entryPrice, aiConfidence))
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Info("pyramid level added",
		zap.String("pair", pair),
		zap.Int("level", level),
		zap.Float64("entry", entryPrice),
		zap.Float64("volume", volume))
	l.persist(ctx, snap)
	return true
}

// IsReadyForL1 is a pure advisory gate: true when the pair is open, no L1
// tranche exists yet, and current fractional profit meets the threshold.
func (l *PositionLedger) IsReadyForL1(pair string, currentProfitFraction, threshold float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[pair]
	if !ok || pos.HasLevel(1) {
		return false
	}
	return currentProfitFraction >= threshold
}

// IsReadyForL2 additionally requires L1 to already be active.
func (l *PositionLedger) IsReadyForL2(pair string, currentProfitFraction, threshold float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[pair]
	if !ok || !pos.HasLevel(1) || pos.HasLevel(2) {
		return false
	}
	return currentProfitFraction >= threshold
}

// CheckErosionCap is the profit-lock guard: true when the position has given
// back more than the configured fraction of its peak profit. Peaks below 1%
// of cost basis are treated as noise and never trigger.
func (l *PositionLedger) CheckErosionCap(pair string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.open[pair]
	if !ok || pos.PeakProfit <= 0 {
		return false
	}

	basis := pos.CostBasis()
	if basis <= 0 {
		return false
	}
	peakPct := pos.PeakProfit / basis * 100
	if peakPct < 1.0 {
		return false
	}

	giveback := pos.ErosionUsed / pos.PeakProfit
	if giveback <= l.cfg.MaxGiveback {
		return false
	}

	l.appendActivityLocked(l.timeNow(), pair, domain.ActionErosionAlert,
		fmt.Sprintf("gave back %.1f%% of peak %.2f USD (cap %.0f%%)",
			giveback*100, pos.PeakProfit, l.cfg.MaxGiveback*100))
	l.logger.Warn("erosion cap exceeded",
		zap.String("pair", pair),
		zap.Float64("peak", pos.PeakProfit),
		zap.Float64("giveback", giveback))
	return true
}

// CheckUnderwaterExit applies only to positions that have never been
// profitable and are currently losing. The age gate protects against exits
// on entry slippage; thresholdPct is in percent units, negative.
func (l *PositionLedger) CheckUnderwaterExit(pair string, minTimeMinutes int, thresholdPct float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.open[pair]
	if !ok || pos.PeakProfit > 0 || pos.CurrentProfit >= 0 {
		return false
	}

	now := l.timeNow()
	if pos.Age(now) < time.Duration(minTimeMinutes)*time.Minute {
		return false
	}
	if pos.ProfitPct >= thresholdPct {
		return false
	}

	l.appendActivityLocked(now, pair, domain.ActionUnderwaterAlert,
		fmt.Sprintf("underwater %.2f%% after %.0f min (threshold %.2f%%)",
			pos.ProfitPct, pos.Age(now).Minutes(), thresholdPct))
	l.logger.Warn("underwater exit triggered",
		zap.String("pair", pair),
		zap.Float64("profit_pct", pos.ProfitPct),
		zap.Float64("age_min", pos.Age(now).Minutes()))
	return true
}

// CheckProfitableCollapse fires when a position that was meaningfully
// profitable (peak at least 0.5% of cost basis) has fallen back to breakeven
// or worse. Unlike the erosion cap, no giveback ratio is involved.
func (l *PositionLedger) CheckProfitableCollapse(pair string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.open[pair]
	if !ok || pos.PeakProfit <= 0 {
		return false
	}

	basis := pos.CostBasis()
	if basis <= 0 {
		return false
	}
	peakPct := pos.PeakProfit / basis * 100
	if peakPct < 0.5 {
		return false
	}
	if pos.CurrentProfit > 0 {
		return false
	}

	l.appendActivityLocked(l.timeNow(), pair, domain.ActionCollapseAlert,
		fmt.Sprintf("winner collapsed: peak %.2f USD (%.2f%% of basis), now %.2f USD",
			pos.PeakProfit, peakPct, pos.CurrentProfit))
	l.logger.Warn("profitable position collapsed",
		zap.String("pair", pair),
		zap.Float64("peak", pos.PeakProfit),
		zap.Float64("current", pos.CurrentProfit))
	return true
}

// CheckStopLoss compares the price against the L0 stop. Pyramid tranches do
// not move the stop; it is fixed at entry.
func (l *PositionLedger) CheckStopLoss(pair string, currentPrice float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[pair]
	if !ok {
		return false
	}
	return currentPrice <= pos.StopLoss
}

// CheckProfitTarget compares the price against the L0 target.
func (l *PositionLedger) CheckProfitTarget(pair string, currentPrice float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[pair]
	if !ok {
		return false
	}
	return currentPrice >= pos.ProfitTarget
}

// Close finalizes the position and moves it to the closed history. Final P&L
// is computed from the L0 entry only; the multi-tranche basis used during
// refresh is deliberately not applied at close time. Closed positions are
// never mutated again.
func (l *PositionLedger) Close(ctx context.Context, pair string, exitPrice float64, exitReason string) {
	l.mu.Lock()
	pos, ok := l.open[pair]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("close refused: no open position", zap.String("pair", pair))
		return
	}

	now := l.timeNow()
	pos.CurrentProfit = (exitPrice - pos.EntryPrice) * pos.Volume
	if pos.EntryPrice > 0 {
		pos.ProfitPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	pos.Status = domain.StatusClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = now
	pos.ExitReason = exitReason

	delete(l.open, pair)
	l.closed = append(l.closed, pos)

	l.appendActivityLocked(now, pair, domain.ActionExit,
		fmt.Sprintf("closed @ %.2f: %.2f USD (%.2f%%), reason %s",
			exitPrice, pos.CurrentProfit, pos.ProfitPct, exitReason))
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Info("position closed",
		zap.String("pair", pair),
		zap.Float64("exit", exitPrice),
		zap.Float64("profit", pos.CurrentProfit),
		zap.String("reason", exitReason))
	l.persist(ctx, snap)
}

// GetOpenPosition returns a copy of the open position for the pair.
func (l *PositionLedger) GetOpenPosition(pair string) (*domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[pair]
	if !ok {
		return nil, false
	}
	cp := copyPosition(pos)
	return cp, true
}

// OpenPositions returns copies of all open positions, sorted by pair.
func (l *PositionLedger) OpenPositions() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, copyPosition(pos))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// ClosedPositions returns copies of the closed history, chronological.
func (l *PositionLedger) ClosedPositions() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.closed))
	for _, pos := range l.closed {
		out = append(out, copyPosition(pos))
	}
	return out
}

// Activity returns the bounded feed, most recent first.
func (l *PositionLedger) Activity() []domain.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ActivityEntry, len(l.activity))
	for i, e := range l.activity {
		out[len(l.activity)-1-i] = e
	}
	return out
}

func (l *PositionLedger) appendActivityLocked(ts time.Time, pair string, action domain.ActivityAction, details string) {
	l.activity = append(l.activity, domain.ActivityEntry{
		Time:    ts,
		Pair:    pair,
		Action:  action,
		Details: details,
	})
	if len(l.activity) > activityFeedLimit {
		l.activity = l.activity[len(l.activity)-activityFeedLimit:]
	}
}

func (l *PositionLedger) snapshotLocked() *domain.Snapshot {
	snap := &domain.Snapshot{Timestamp: l.timeNow()}
	for _, pos := range l.open {
		snap.Open = append(snap.Open, copyPosition(pos))
	}
	sort.Slice(snap.Open, func(i, j int) bool { return snap.Open[i].Pair < snap.Open[j].Pair })
	for _, pos := range l.closed {
		snap.Closed = append(snap.Closed, copyPosition(pos))
	}
	return snap
}

// persist saves the snapshot write-through. Failures are contained: the state
// stays in memory and the next mutating call retries.
func (l *PositionLedger) persist(ctx context.Context, snap *domain.Snapshot) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, snap); err != nil {
		l.logger.Error("failed to persist snapshot", zap.Error(err))
	}
}

func copyPosition(pos *domain.Position) *domain.Position {
	cp := *pos
	if len(pos.PyramidLevels) > 0 {
		cp.PyramidLevels = append([]domain.PyramidLevel{}, pos.PyramidLevels...)
	}
	if len(pos.AIReasoning) > 0 {
		cp.AIReasoning = append([]string{}, pos.AIReasoning...)
	}
	return &cp
}
