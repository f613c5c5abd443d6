package usecase

import (
	"math"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

// Default indicator parameters, tuned for 15-minute bars.
const (
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	ADXPeriod      = 14
	VolumePeriod   = 20
	RecentWindow   = 20
	Momentum1hBars = 4  // ~1 hour of 15m bars
	Momentum4hBars = 16 // ~4 hours of 15m bars
	TrendEMAPeriod = 200
)

// IndicatorEngine derives technical signals from a bar window. It is pure and
// stateless: every call recomputes from scratch over the window it is given,
// and insufficient data always resolves to a neutral default, never an error.
type IndicatorEngine struct {
	// IncrementalMACDSignal switches the MACD signal line to a streaming EMA
	// of the line values instead of the exact per-prefix recompute. The two
	// differ slightly on short windows. Default is the exact variant.
	IncrementalMACDSignal bool
}

func NewIndicatorEngine() *IndicatorEngine {
	return &IndicatorEngine{}
}

// ComputeAll derives the full snapshot from an ordered (oldest first) bar
// window. An empty window yields the all-neutral snapshot.
func (e *IndicatorEngine) ComputeAll(bars []domain.Candle) *domain.IndicatorSnapshot {
	if len(bars) == 0 {
		return &domain.IndicatorSnapshot{RSI: 50, ADX: 20, VolumeRatio: 1.0}
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	m1 := Momentum1hBars
	if n-1 < m1 {
		m1 = n - 1
	}
	m4 := Momentum4hBars
	if n-1 < m4 {
		m4 = n - 1
	}

	recent := bars
	if n > RecentWindow {
		recent = bars[n-RecentWindow:]
	}
	recentHigh := recent[0].High
	recentLow := recent[0].Low
	for _, b := range recent[1:] {
		if b.High > recentHigh {
			recentHigh = b.High
		}
		if b.Low < recentLow {
			recentLow = b.Low
		}
	}

	return &domain.IndicatorSnapshot{
		RSI:         e.ComputeRSI(closes, RSIPeriod),
		MACD:        e.ComputeMACD(closes, MACDFast, MACDSlow, MACDSignal),
		ADX:         e.ComputeADX(highs, lows, closes, ADXPeriod),
		VolumeRatio: e.ComputeVolumeRatio(volumes, VolumePeriod),
		Momentum1h:  e.ComputeMomentum(closes, m1),
		Momentum4h:  e.ComputeMomentum(closes, m4),
		RecentHigh:  recentHigh,
		RecentLow:   recentLow,
		EMA200:      e.ComputeEMA(closes, TrendEMAPeriod),
	}
}

// ComputeRSI is Wilder's RSI: simple average gain/loss over the first period
// deltas, smoothed incrementally for the rest. Returns the neutral 50 when
// fewer than period+1 closes are available, 100 when average loss is zero.
func (e *IndicatorEngine) ComputeRSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100)
}

// ComputeMACD returns line, signal and histogram at the latest bar. The
// signal line is an EMA over the MACD value evaluated at every bar from index
// slow-1 onward; in the exact (default) mode each of those values recomputes
// both EMAs over the prefix ending at that bar. Returns zeros when fewer than
// slow+signal-1 closes are available.
func (e *IndicatorEngine) ComputeMACD(closes []float64, fast, slow, signal int) domain.MACD {
	if len(closes) < slow+signal-1 {
		return domain.MACD{}
	}

	line := e.ComputeEMA(closes, fast) - e.ComputeEMA(closes, slow)

	var series []float64
	if e.IncrementalMACDSignal {
		series = e.macdSeriesIncremental(closes, fast, slow)
	} else {
		for i := slow - 1; i < len(closes); i++ {
			prefix := closes[:i+1]
			series = append(series, e.ComputeEMA(prefix, fast)-e.ComputeEMA(prefix, slow))
		}
	}

	sig := e.ComputeEMA(series, signal)
	return domain.MACD{Line: line, Signal: sig, Histogram: line - sig}
}

// macdSeriesIncremental produces the MACD series with streaming EMAs instead
// of per-prefix recomputes. Cheaper, and equal in the limit of long windows.
func (e *IndicatorEngine) macdSeriesIncremental(closes []float64, fast, slow int) []float64 {
	fastMult := 2.0 / float64(fast+1)
	slowMult := 2.0 / float64(slow+1)

	emaFast := mean(closes[:fast])
	for _, v := range closes[fast:slow] {
		emaFast = (v-emaFast)*fastMult + emaFast
	}
	emaSlow := mean(closes[:slow])

	series := []float64{emaFast - emaSlow}
	for _, v := range closes[slow:] {
		emaFast = (v-emaFast)*fastMult + emaFast
		emaSlow = (v-emaSlow)*slowMult + emaSlow
		series = append(series, emaFast-emaSlow)
	}
	return series
}

// ComputeADX is Wilder's Average Directional Index. Seed sums over the first
// period TR/DM samples, then smoothed = smoothed - smoothed/period + new.
// ADX is the arithmetic mean of the last period DX values. Insufficient data
// or a NaN result yields the assumed-moderate default of 20.
func (e *IndicatorEngine) ComputeADX(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 20
	}

	var smoothTR, smoothPDM, smoothMDM float64
	var dx []float64

	for i := 1; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		var pdm, mdm float64
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}

		if i <= period {
			smoothTR += tr
			smoothPDM += pdm
			smoothMDM += mdm
		} else {
			smoothTR = smoothTR - smoothTR/float64(period) + tr
			smoothPDM = smoothPDM - smoothPDM/float64(period) + pdm
			smoothMDM = smoothMDM - smoothMDM/float64(period) + mdm
		}

		if i >= period && smoothTR > 0 {
			pdi := 100 * smoothPDM / smoothTR
			mdi := 100 * smoothMDM / smoothTR
			dx = append(dx, 100*math.Abs(pdi-mdi)/(pdi+mdi))
		}
	}

	if len(dx) == 0 {
		return 20
	}
	m := period
	if len(dx) < m {
		m = len(dx)
	}
	var sum float64
	for _, v := range dx[len(dx)-m:] {
		sum += v
	}
	adx := sum / float64(m)
	if math.IsNaN(adx) {
		return 20
	}
	return clamp(adx, 0, 100)
}

// ComputeEMA seeds with the SMA of the first period values and applies the
// 2/(period+1) multiplier forward. Short inputs fall back to a simple mean.
func (e *IndicatorEngine) ComputeEMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || len(values) < period {
		return mean(values)
	}

	ema := mean(values[:period])
	mult := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*mult + ema
	}
	return ema
}

// ComputeSMA is the mean of the last period values, or of all values if
// fewer are available.
func (e *IndicatorEngine) ComputeSMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period > 0 && len(values) > period {
		values = values[len(values)-period:]
	}
	return mean(values)
}

// ComputeVolumeRatio divides the latest volume by its SMA. Returns the
// neutral 1.0 when there are no volumes or the average is zero.
func (e *IndicatorEngine) ComputeVolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) == 0 {
		return 1.0
	}
	avg := e.ComputeSMA(volumes, period)
	if avg == 0 {
		return 1.0
	}
	return volumes[len(volumes)-1] / avg
}

// ComputeMomentum is the fractional change between the latest close and the
// close period bars earlier: (latest-prior)/prior, 0 when undefined.
func (e *IndicatorEngine) ComputeMomentum(closes []float64, period int) float64 {
	if period < 1 || len(closes) < period+1 {
		return 0
	}
	prior := closes[len(closes)-1-period]
	if prior == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prior) / prior
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
