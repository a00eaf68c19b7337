package signal

import (
	"testing"

	"chanwatch/internal/kernel"
	"chanwatch/internal/model"
)

func barSeries(closes []float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{TimeSec: int64(i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return out
}

func buildInput(bars []model.Bar) Input {
	return Input{
		Bars:      bars,
		Symbol:    "TEST",
		Market:    model.MarketUS,
		Timeframe: model.Timeframe1H,
		NowMS:     1000,
		MACD:      kernel.MACD(bars, 12, 26, 9),
		RSI:       kernel.RSI(bars, 14),
		Bollinger: kernel.Bollinger(bars, 20, 2),
		ATR:       kernel.ATR(bars, 14),
	}
}

func TestBollingerBreakoutUp(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 130 // sharp spike through the upper band
	bars := barSeries(closes)
	sig := BollingerBreakout(buildInput(bars))
	if sig == nil {
		t.Fatal("expected a bollinger breakout signal")
	}
	if sig.Kind != model.KindBollingerBreakoutUp {
		t.Errorf("expected breakout_up, got %v", sig.Kind)
	}
	if sig.Strength < 40 || sig.Strength > 100 {
		t.Errorf("strength out of range: %v", sig.Strength)
	}
}

func TestRSIReversal_OversoldUpward(t *testing.T) {
	// Force a long decline (RSI deep oversold) then a sharp bounce.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	closes = append(closes, 95) // bounce
	bars := barSeries(closes)
	in := buildInput(bars)
	sig := RSIReversal(in)
	if sig == nil {
		t.Fatal("expected an RSI reversal signal on a bounce from deep oversold")
	}
}

func TestLargeBodyCandle(t *testing.T) {
	bars := make([]model.Bar, 21)
	for i := 0; i < 20; i++ {
		bars[i] = model.Bar{TimeSec: int64(i), Open: 100, High: 100.2, Low: 99.8, Close: 100.1}
	}
	bars[20] = model.Bar{TimeSec: 20, Open: 100, High: 120, Low: 99, Close: 119}
	sig := LargeBodyCandle(buildInput(bars))
	if sig == nil {
		t.Fatal("expected a large body candle signal")
	}
	if sig.Kind != model.KindLargeBodyCandle {
		t.Errorf("expected large_body_candle, got %v", sig.Kind)
	}
}

func TestKeyLevelBreakout(t *testing.T) {
	bars := make([]model.Bar, 22)
	for i := 0; i < 21; i++ {
		bars[i] = model.Bar{TimeSec: int64(i), Open: 100, High: 101, Low: 99, Close: 100}
	}
	bars[21] = model.Bar{TimeSec: 21, Open: 100, High: 105, Low: 100, Close: 104}
	sig := KeyLevelBreakout(buildInput(bars))
	if sig == nil {
		t.Fatal("expected a key level breakout signal")
	}
}

func TestMACDCross_NearZeroBonusIsDeadCode(t *testing.T) {
	// nearZeroAxisBonus must be false for any nonzero DIF; this guards the
	// ambiguity-to-preserve from silently becoming live logic.
	if nearZeroAxisBonus(0.001) || nearZeroAxisBonus(-5) || nearZeroAxisBonus(100) {
		t.Error("nearZeroAxisBonus must always be false (tautological check preserved as dead code)")
	}
}

func TestThirdBuysToSignals_Strengths(t *testing.T) {
	confirmPrice := 117.0
	tbs := []model.ThirdBuySignal{
		{ZhongshuID: 0, Status: model.ThirdBuyCandidate, BreakoutPrice: 100},
		{ZhongshuID: 1, Status: model.ThirdBuyConfirmed, BreakoutPrice: 100, ConfirmPrice: &confirmPrice},
	}
	sigs := ThirdBuysToSignals(tbs, 5000)
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(sigs))
	}
	if sigs[0].Strength != 55 || sigs[0].Kind != model.KindThirdBuyCandidate {
		t.Errorf("candidate signal wrong: %+v", sigs[0])
	}
	if sigs[1].Strength != 85 || sigs[1].Kind != model.KindThirdBuyConfirmed || sigs[1].Price != 117 {
		t.Errorf("confirmed signal wrong: %+v", sigs[1])
	}
}

func TestRun_NoPanicOnShortInput(t *testing.T) {
	bars := barSeries([]float64{100, 101})
	_ = Run(buildInput(bars))
}
