package model

// ProcessedBar is a bar after containment reduction (§4.2.1). OrigIndex is
// the index, into the original bar slice, of the last raw bar this one
// absorbed.
type ProcessedBar struct {
	OrigIndex int
	TimeSec   int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// FractalKind is a closed enum.
type FractalKind string

const (
	FractalTop    FractalKind = "top"
	FractalBottom FractalKind = "bottom"
)

// Fractal is a local extremum in the processed-bar sequence (§4.2.2).
// Index is the position within the processed sequence it was found at.
type Fractal struct {
	Index   int         `json:"index"`
	TimeSec int64       `json:"time"`
	Price   float64     `json:"price"`
	Kind    FractalKind `json:"kind"`
}

// Direction is a closed enum for a Bi's movement.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
)

// Bi is a directed segment joining two alternating fractals (§4.2.3). ID is
// dense 0-based in emission order.
type Bi struct {
	ID           int       `json:"id"`
	Direction    Direction `json:"direction"`
	StartFractal Fractal   `json:"start_fractal"`
	EndFractal   Fractal   `json:"end_fractal"`
	KBarCount    int       `json:"kbar_count"`
}

// RangeLow and RangeHigh are the bi's [low, high] price range, used by
// zhongshu detection and third-buy's pullback/breakout checks.
func (b Bi) RangeLow() float64 {
	return minOf(b.StartFractal.Price, b.EndFractal.Price)
}

func (b Bi) RangeHigh() float64 {
	return maxOf(b.StartFractal.Price, b.EndFractal.Price)
}

// Intersects reports whether b's range intersects [low, high].
func (b Bi) Intersects(low, high float64) bool {
	return b.RangeLow() <= high && low <= b.RangeHigh()
}

// Zhongshu is the central overlap region of three consecutive bis (§4.2.4),
// extensible by later intersecting bis. High/Low are fixed at construction
// and never narrowed or widened by extension.
type Zhongshu struct {
	ID        int     `json:"id"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	StartTime int64   `json:"start_time"`
	EndTime   int64   `json:"end_time"`
	BiIDs     []int   `json:"bi_ids"`
	Active    bool    `json:"active"`
}

// Contains reports whether price falls within [Low, High].
func (z Zhongshu) Contains(price float64) bool {
	return price >= z.Low && price <= z.High
}

// LastBiID returns the id of the last contributing bi, or -1 if empty.
func (z Zhongshu) LastBiID() int {
	if len(z.BiIDs) == 0 {
		return -1
	}
	return z.BiIDs[len(z.BiIDs)-1]
}

// ThirdBuyStatus is a closed enum for the ThirdBuySignal lifecycle.
type ThirdBuyStatus string

const (
	ThirdBuyCandidate ThirdBuyStatus = "candidate"
	ThirdBuyConfirmed ThirdBuyStatus = "confirmed"
)

// ThirdBuySignal is a post-breakout-pullback-confirmation pattern anchored
// to a zhongshu (§4.2.5 / §3).
type ThirdBuySignal struct {
	ID            int            `json:"id"`
	ZhongshuID    int            `json:"zhongshu_id"`
	Status        ThirdBuyStatus `json:"status"`
	Symbol        string         `json:"symbol"`
	Market        Market         `json:"market"`
	Timeframe     Timeframe      `json:"timeframe"`
	ZhongshuHigh  float64        `json:"zhongshu_high"`
	ZhongshuLow   float64        `json:"zhongshu_low"`
	BreakoutTime  int64          `json:"breakout_time"`
	BreakoutPrice float64        `json:"breakout_price"`
	PullbackTime  *int64         `json:"pullback_time,omitempty"`
	PullbackLow   *float64       `json:"pullback_low,omitempty"`
	ConfirmTime   *int64         `json:"confirm_time,omitempty"`
	ConfirmPrice  *float64       `json:"confirm_price,omitempty"`
}

// ChanlunParams are the per-market-overridable thresholds used across the
// pipeline's bi-formation and third-buy stages (§4.2.3, §4.2.5).
type ChanlunParams struct {
	MinBiKBars            int     `yaml:"min_bi_kbars"`
	MinBiMoveATR          float64 `yaml:"min_bi_move_atr"`
	BreakoutATR           float64 `yaml:"breakout_atr"`
	PullbackToleranceATR  float64 `yaml:"pullback_tolerance_atr"`
	ConfirmRule           string  `yaml:"confirm_rule"`
}

// Confirm rule names (§4.2.5 step 6).
const (
	ConfirmRuleNewHigh          = "new_high"
	ConfirmRuleBreakPullbackHigh = "break_pullback_high"
)

// DefaultChanlunParams returns the spec's default (non-crypto) parameter set.
func DefaultChanlunParams() ChanlunParams {
	return ChanlunParams{
		MinBiKBars:           5,
		MinBiMoveATR:         1.0,
		BreakoutATR:          0.5,
		PullbackToleranceATR: 0.3,
		ConfirmRule:          ConfirmRuleBreakPullbackHigh,
	}
}

// CryptoChanlunParams returns the spec's crypto override.
func CryptoChanlunParams() ChanlunParams {
	return ChanlunParams{
		MinBiKBars:           4,
		MinBiMoveATR:         0.8,
		BreakoutATR:          0.4,
		PullbackToleranceATR: 0.4,
		ConfirmRule:          ConfirmRuleBreakPullbackHigh,
	}
}

// Validate rejects configs that cannot produce a sane pipeline (§7 ConfigError).
func (p ChanlunParams) Validate() error {
	if p.MinBiKBars < 2 {
		return ErrConfigError
	}
	if p.MinBiMoveATR < 0 || p.BreakoutATR < 0 || p.PullbackToleranceATR < 0 {
		return ErrConfigError
	}
	if p.ConfirmRule != ConfirmRuleNewHigh && p.ConfirmRule != ConfirmRuleBreakPullbackHigh {
		return ErrConfigError
	}
	return nil
}
