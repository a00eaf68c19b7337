package model

// SignalKind is the closed enum of detector outputs (§4.3).
type SignalKind string

const (
	KindBollingerBreakoutUp    SignalKind = "bollinger_breakout_up"
	KindBollingerBreakoutDown  SignalKind = "bollinger_breakout_down"
	KindMACDGoldenCross        SignalKind = "macd_golden_cross"
	KindMACDDeathCross         SignalKind = "macd_death_cross"
	KindRSIOversoldReversal    SignalKind = "rsi_oversold_reversal"
	KindRSIOverboughtReversal  SignalKind = "rsi_overbought_reversal"
	KindVolatilitySurge        SignalKind = "volatility_surge"
	KindLargeBodyCandle        SignalKind = "large_body_candle"
	KindKeyLevelBreakout       SignalKind = "key_level_breakout"
	KindMultiTimeframeResonance SignalKind = "multi_timeframe_resonance"
	KindThirdBuyCandidate      SignalKind = "third_buy_candidate"
	KindThirdBuyConfirmed      SignalKind = "third_buy_confirmed"
)

// KeyLevels carries the optional structural reference prices a signal was
// derived from (§3, §12 supplement).
type KeyLevels struct {
	ZhongshuHigh *float64 `json:"zhongshu_high,omitempty"`
	ZhongshuLow  *float64 `json:"zhongshu_low,omitempty"`
	PullbackLow  *float64 `json:"pullback_low,omitempty"`
	ConfirmPrice *float64 `json:"confirm_price,omitempty"`
}

// Signal is a detector's emitted, deduplicated, store-owned record (§3).
type Signal struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Market       Market     `json:"market"`
	Timeframe    Timeframe  `json:"timeframe"`
	Kind         SignalKind `json:"kind"`
	Strength     float64    `json:"strength"`
	Price        float64    `json:"price"`
	TimeMS       int64      `json:"time"`
	Description  string     `json:"description"`
	KeyLevels    *KeyLevels `json:"key_levels,omitempty"`
	Acknowledged bool       `json:"acknowledged"`
}

// ClampStrength clamps a raw strength score to [0, 100] (§4.3).
func ClampStrength(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
