// Package model holds the data types shared across the analytical core:
// the input Bar the caller supplies, the structural entities the Chanlun
// pipeline produces, and the Signal the store and subscribers see.
//
// Nothing in this package depends on internal/feed, internal/gateway, or any
// other adapter — it is the core's own vocabulary.
package model

import "fmt"

// Market tags the venue a symbol trades on. It affects which ChanlunParams
// apply (see internal/config).
type Market string

const (
	MarketFX         Market = "fx"
	MarketCN         Market = "cn"
	MarketHK         Market = "hk"
	MarketUS         Market = "us"
	MarketCrypto     Market = "crypto"
	MarketCommodities Market = "commodities"
)

// Timeframe is a closed set of bar granularities the core reasons about.
type Timeframe string

const (
	Timeframe1D  Timeframe = "1D"
	Timeframe4H  Timeframe = "4H"
	Timeframe1H  Timeframe = "1H"
	Timeframe15m Timeframe = "15m"
	Timeframe5m  Timeframe = "5m"
)

// Weight returns the timeframe weight used by signal strength formulas
// (spec §4.3). Unknown timeframes weight as 1.0, the same as 15m.
func (tf Timeframe) Weight() float64 {
	switch tf {
	case Timeframe1D:
		return 3.0
	case Timeframe4H:
		return 2.0
	case Timeframe1H:
		return 1.5
	case Timeframe15m:
		return 1.0
	case Timeframe5m:
		return 0.7
	default:
		return 1.0
	}
}

// Bar is one OHLC observation. TimeSec is seconds since epoch. The caller
// supplies bars oldest-first with no gaps mid-range; the core does not
// validate alignment, only the OHLC invariant (see ValidateBars).
type Bar struct {
	TimeSec int64    `json:"time_s"`
	Open    float64  `json:"open"`
	High    float64  `json:"high"`
	Low     float64  `json:"low"`
	Close   float64  `json:"close"`
	Volume  *float64 `json:"volume,omitempty"`
}

// Quote is the adapter's get_quote response (spec §6).
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TimeMS int64   `json:"time_ms"`
}

// Validate checks the OHLC invariant low <= min(open,close) <= max(open,close) <= high
// and that every field is finite. It does not check ordering against neighbors.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if v != v || v > maxFinite || v < -maxFinite {
			return fmt.Errorf("%w: %s is non-finite", ErrMalformedBar, name)
		}
	}
	lo := minOf(b.Open, b.Close)
	hi := maxOf(b.Open, b.Close)
	if b.Low > lo || hi > b.High {
		return fmt.Errorf("%w: low=%v high=%v open=%v close=%v violates low<=min(o,c)<=max(o,c)<=high",
			ErrMalformedBar, b.Low, b.High, b.Open, b.Close)
	}
	return nil
}

const maxFinite = 1.0e308

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ValidateBars checks every bar's OHLC invariant and that TimeSec is strictly
// ascending. It returns on the first violation.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && bars[i-1].TimeSec >= b.TimeSec {
			return fmt.Errorf("%w: bar %d time %d does not strictly follow bar %d time %d",
				ErrMalformedBar, i, b.TimeSec, i-1, bars[i-1].TimeSec)
		}
	}
	return nil
}
