package domain

// Candle is one OHLCV bar. Time is unix milliseconds. Sequences are ordered
// oldest first; the last element may be the current, still-forming bar.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// MACD holds the three MACD series values at the latest bar.
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// IndicatorSnapshot is the full set of technical signals derived from a bar
// window. It is recomputed fresh on every call; no streaming state exists.
// Missing data never fails a computation: each field falls back to a neutral
// default that biases downstream risk logic toward inaction.
type IndicatorSnapshot struct {
	RSI         float64 `json:"rsi"`
	MACD        MACD    `json:"macd"`
	ADX         float64 `json:"adx"`
	VolumeRatio float64 `json:"volume_ratio"`
	Momentum1h  float64 `json:"momentum_1h"`
	Momentum4h  float64 `json:"momentum_4h"`
	RecentHigh  float64 `json:"recent_high"`
	RecentLow   float64 `json:"recent_low"`
	EMA200      float64 `json:"ema_200"`
}
