package kernel

import (
	"math"
	"testing"

	"chanwatch/internal/model"
)

func bar(t int64, o, h, l, c float64) model.Bar {
	return model.Bar{TimeSec: t, Open: o, High: h, Low: l, Close: c}
}

func flatBars(closes []float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = bar(int64(i), c, c+0.5, c-0.5, c)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(want) {
		if !math.IsNaN(got) {
			t.Errorf("%s: got %v, want NaN", label, got)
		}
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func TestSMA_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	vals := []float64{100, 102, 104, 103, 105}
	got := SMA(vals, 3)
	want := []float64{math.NaN(), math.NaN(), 102.0, 103.0, 104.0}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 0.0001)
	}
}

func TestEMA_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	vals := []float64{100, 102, 104, 103, 105}
	got := EMA(vals, 3)
	want := []float64{math.NaN(), math.NaN(), 102.0, 102.5, 103.75}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 0.0001)
	}
}

func TestRSI_Period5_MatchesHandCalculation(t *testing.T) {
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	bars := flatBars(prices)
	got := RSI(bars, 5)
	// First defined value at index 5 (period), per hand-calculated values
	// matching the same series used in the teacher's indicator tests.
	assertClose(t, "RSI idx5", got[5], 68.112, 0.1)
	assertClose(t, "RSI idx6", got[6], 72.219, 0.1)
	assertClose(t, "RSI idx7", got[7], 76.658, 0.1)
	assertClose(t, "RSI idx8", got[8], 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	got := RSI(flatBars(prices), 5)
	assertClose(t, "RSI all up", got[len(got)-1], 100.0, 0.001)
}

func TestRSI_Flat_Is100(t *testing.T) {
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100
	}
	got := RSI(flatBars(prices), 5)
	// avgLoss == 0 -> RSI == 100, even with avgGain == 0 too.
	assertClose(t, "RSI flat", got[len(got)-1], 100.0, 0.001)
}

func TestBollinger_PopulationStddev(t *testing.T) {
	// period=4 window [10, 12, 14, 12]: mean=12, population variance = ((4)+(0)+(4)+(0))/4... recompute
	prices := []float64{10, 12, 14, 12}
	bars := flatBars(prices)
	bb := Bollinger(bars, 4, 2)
	mean := 12.0
	variance := ((10.0-mean)*(10.0-mean) + (12.0-mean)*(12.0-mean) + (14.0-mean)*(14.0-mean) + (12.0-mean)*(12.0-mean)) / 4
	sd := math.Sqrt(variance)
	assertClose(t, "Bollinger middle", bb.Middle[3], mean, 0.0001)
	assertClose(t, "Bollinger upper", bb.Upper[3], mean+2*sd, 0.0001)
	assertClose(t, "Bollinger lower", bb.Lower[3], mean-2*sd, 0.0001)
}

func TestATR_SeedIsMeanOfFirstTRs(t *testing.T) {
	bars := []model.Bar{
		bar(0, 100, 105, 95, 100),
		bar(1, 100, 108, 99, 103),
		bar(2, 103, 110, 101, 107),
	}
	got := ATR(bars, 2)
	tr1 := math.Max(108-99, math.Max(math.Abs(108-100), math.Abs(99-100)))
	tr2 := math.Max(110-101, math.Max(math.Abs(110-103), math.Abs(101-103)))
	want := (tr1 + tr2) / 2
	assertClose(t, "ATR seed", got[2], want, 0.0001)
}

func TestMACD_RequiresSlowPlusSignalBars(t *testing.T) {
	bars := flatBars(make([]float64, 10))
	got := MACD(bars, 12, 26, 9)
	if got != nil {
		t.Errorf("MACD with too few bars should return nil, got %v", got)
	}
}

func TestMACD_ProducesAlignedTriples(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.5
	}
	bars := flatBars(prices)
	got := MACD(bars, 12, 26, 9)
	if len(got) == 0 {
		t.Fatal("expected MACD output for a trending series long enough to satisfy slow+signal")
	}
	for _, p := range got {
		want := (p.DIF - p.DEA) * 2
		assertClose(t, "MACD histogram", p.Histogram, want, 1e-9)
	}
}

func TestAvgATRSpan_SkipsNaN(t *testing.T) {
	atr := []float64{math.NaN(), 1.0, 2.0, math.NaN(), 3.0}
	got := AvgATRSpan(atr, 0, 4)
	assertClose(t, "AvgATRSpan", got, 2.0, 0.0001)
}

func TestAvgATRSpan_AllNaNReturnsZero(t *testing.T) {
	atr := []float64{math.NaN(), math.NaN()}
	got := AvgATRSpan(atr, 0, 1)
	assertClose(t, "AvgATRSpan all NaN", got, 0, 0.0001)
}
