// Package kernel implements the indicator kernels as pure, referentially
// transparent functions over a read-only bar slice (§4.1). The per-bar
// series return NaN at positions where the value is undefined rather than
// shortening their output — callers index them the same way they index the
// input bars. MACD and MASeries instead return only their defined points.
package kernel

import (
	"math"

	"chanwatch/internal/model"
)

// MASet is the closed set of moving-average periods exposed by name (§12
// supplement), on top of whatever single period a detector asks SMA for
// directly.
var MASet = []int{5, 10, 20, 30, 60, 120, 250}

// Point is a (time, value) pair for positions where a lazy sequence is
// defined (§4.1 "MA set").
type Point struct {
	TimeSec int64
	Value   float64
}

func closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// EMA seeds the first output at index period-1 as the SMA of the first
// period values, then applies the standard recurrence. Output length
// equals len(values); undefined positions are NaN.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// SMA is the rolling mean over a trailing window of size period.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out[i] = sum / float64(period)
	}
	return out
}

// MASeries computes SMA on closes for every period in MASet, each as a
// lazy (time, value) sequence restricted to defined positions.
func MASeries(bars []model.Bar) map[int][]Point {
	cl := closes(bars)
	out := make(map[int][]Point, len(MASet))
	for _, period := range MASet {
		vals := SMA(cl, period)
		pts := make([]Point, 0, len(vals))
		for i, v := range vals {
			if !math.IsNaN(v) {
				pts = append(pts, Point{TimeSec: bars[i].TimeSec, Value: v})
			}
		}
		out[period] = pts
	}
	return out
}

// MACDPoint is one (time, dif, dea, histogram) observation.
type MACDPoint struct {
	TimeSec   int64
	DIF       float64
	DEA       float64
	Histogram float64
}

// MACD computes DIF = EMA_fast(close) - EMA_slow(close), DEA = EMA_signal(DIF)
// over the compacted valid-DIF series, and histogram = (DIF-DEA)*2. Output is
// restricted to positions where all three are defined; requires
// len(bars) >= slow+signal, else returns nil.
func MACD(bars []model.Bar, fast, slow, signal int) []MACDPoint {
	if len(bars) < slow+signal {
		return nil
	}
	cl := closes(bars)
	emaFast := EMA(cl, fast)
	emaSlow := EMA(cl, slow)

	difVals := make([]float64, 0, len(bars))
	difTimes := make([]int64, 0, len(bars))
	for i := range bars {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		difVals = append(difVals, emaFast[i]-emaSlow[i])
		difTimes = append(difTimes, bars[i].TimeSec)
	}

	deaVals := EMA(difVals, signal)

	out := make([]MACDPoint, 0, len(difVals))
	for i, dea := range deaVals {
		if math.IsNaN(dea) {
			continue
		}
		dif := difVals[i]
		out = append(out, MACDPoint{
			TimeSec:   difTimes[i],
			DIF:       dif,
			DEA:       dea,
			Histogram: (dif - dea) * 2,
		})
	}
	return out
}

// RSI computes Wilder's RSI. The first defined value is at index period,
// seeded from simple averages of the first `period` diffs; thereafter
// Wilder smoothing applies. avgLoss == 0 yields RSI == 100.
func RSI(bars []model.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(bars) <= period {
		return out
	}
	cl := closes(bars)

	gainSum, lossSum := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := cl[i] - cl[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(cl); i++ {
		delta := cl[i] - cl[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// BollingerBands holds the three aligned bands, NaN where undefined.
type BollingerBands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger computes middle=SMA(closes,period) and upper/lower = middle +-
// stdDev * population-stddev(closes over the same window). The stddev
// divides by period, not period-1.
func Bollinger(bars []model.Bar, period int, stdDev float64) BollingerBands {
	cl := closes(bars)
	mid := SMA(cl, period)
	upper := make([]float64, len(cl))
	lower := make([]float64, len(cl))
	for i := range cl {
		if math.IsNaN(mid[i]) {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := cl[j] - mid[i]
			variance += d * d
		}
		variance /= float64(period)
		sd := math.Sqrt(variance)
		upper[i] = mid[i] + stdDev*sd
		lower[i] = mid[i] - stdDev*sd
	}
	return BollingerBands{Middle: mid, Upper: upper, Lower: lower}
}

// ATR computes Wilder's Average True Range. The first defined value is at
// index period, the mean of the first period true ranges; thereafter
// Wilder smoothing applies.
func ATR(bars []model.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(bars) <= period {
		return out
	}
	tr := make([]float64, len(bars))
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)

	p := float64(period)
	for i := period + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*(p-1) + tr[i]) / p
	}
	return out
}

func trueRange(cur, prev model.Bar) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// AvgATRSpan averages ATR values over the inclusive bar index span
// [from, to], skipping NaNs. Returns 0 if no valid value exists in the span
// (§4.2.3's "if no valid ATR, treat as 0").
func AvgATRSpan(atr []float64, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to >= len(atr) {
		to = len(atr) - 1
	}
	sum, n := 0.0, 0
	for i := from; i <= to; i++ {
		if !math.IsNaN(atr[i]) {
			sum += atr[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
