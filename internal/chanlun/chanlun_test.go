package chanlun

import (
	"testing"

	"chanwatch/internal/model"
)

func barAt(t int64, o, h, l, c float64) model.Bar {
	return model.Bar{TimeSec: t, Open: o, High: h, Low: l, Close: c}
}

// S1: 5 bars with constant close 100 -> no fractals, no bis, no zhongshus.
func TestS1_FlatBars_NoStructure(t *testing.T) {
	var bars []model.Bar
	for i := int64(0); i < 5; i++ {
		bars = append(bars, barAt(i, 100, 100.5, 99.5, 100))
	}
	atr := ComputeATR(bars)
	res := Run(bars, atr, model.DefaultChanlunParams(), "X", model.MarketUS, model.Timeframe1H)

	if len(res.Fractals) != 0 {
		t.Errorf("expected no fractals, got %d", len(res.Fractals))
	}
	if len(res.Bis) != 0 {
		t.Errorf("expected no bis, got %d", len(res.Bis))
	}
	if len(res.Zhongshus) != 0 {
		t.Errorf("expected no zhongshus, got %d", len(res.Zhongshus))
	}
}

// S2: closes [100,101,102,101,100,99,100], highs/lows tracking close ->
// one top fractal at index 2, one bottom at index 5.
func TestS2_SimpleFractals(t *testing.T) {
	closes := []float64{100, 101, 102, 101, 100, 99, 100}
	var bars []model.Bar
	for i, c := range closes {
		bars = append(bars, barAt(int64(i), c, c, c, c))
	}
	processed := ReduceContainment(bars)
	fractals := DetectFractals(processed)

	var tops, bottoms []model.Fractal
	for _, f := range fractals {
		if f.Kind == model.FractalTop {
			tops = append(tops, f)
		} else {
			bottoms = append(bottoms, f)
		}
	}
	if len(tops) != 1 || tops[0].Index != 2 {
		t.Errorf("expected one top fractal at processed index 2, got %+v", tops)
	}
	if len(bottoms) != 1 || bottoms[0].Index != 5 {
		t.Errorf("expected one bottom fractal at processed index 5, got %+v", bottoms)
	}
}

// S3: fractals separated by 3 bars with min_bi_kbars=5 -> no bis emitted.
func TestS3_BiRejectedByKBarCount(t *testing.T) {
	// Build a small zigzag whose two fractals sit at processed indices 1 and 3
	// (kbar_count 2).
	closes := []float64{100, 105, 100, 95, 100}
	highs := []float64{100, 105, 100, 95, 100}
	lows := []float64{100, 105, 100, 95, 100}
	var bars []model.Bar
	for i := range closes {
		bars = append(bars, barAt(int64(i), closes[i], highs[i]+0.01, lows[i]-0.01, closes[i]))
	}
	atr := ComputeATR(bars)
	params := model.DefaultChanlunParams()
	params.MinBiKBars = 5
	res := Run(bars, atr, params, "X", model.MarketUS, model.Timeframe1H)

	if len(res.Bis) != 0 {
		t.Errorf("expected no bis with min_bi_kbars=5 over a short span, got %d", len(res.Bis))
	}
}

// S4: three alternating bis with overlapping ranges [100,110], [105,112],
// [104,109] -> one zhongshu with high=109, low=105.
func TestS4_ZhongshuFormation(t *testing.T) {
	mkBi := func(id int, dir model.Direction, startIdx, endIdx int, startPrice, endPrice float64) model.Bi {
		sKind, eKind := model.FractalBottom, model.FractalTop
		if dir == model.DirDown {
			sKind, eKind = model.FractalTop, model.FractalBottom
		}
		return model.Bi{
			ID:        id,
			Direction: dir,
			StartFractal: model.Fractal{Index: startIdx, TimeSec: int64(startIdx), Price: startPrice, Kind: sKind},
			EndFractal:   model.Fractal{Index: endIdx, TimeSec: int64(endIdx), Price: endPrice, Kind: eKind},
			KBarCount:    endIdx - startIdx,
		}
	}
	bis := []model.Bi{
		mkBi(0, model.DirUp, 0, 5, 100, 110),
		mkBi(1, model.DirDown, 5, 10, 110, 105),
		mkBi(2, model.DirUp, 10, 15, 104, 109),
	}
	zhongshus := DetectZhongshus(bis)
	if len(zhongshus) != 1 {
		t.Fatalf("expected exactly one zhongshu, got %d", len(zhongshus))
	}
	if zhongshus[0].High != 109 || zhongshus[0].Low != 105 {
		t.Errorf("expected high=109 low=105, got high=%v low=%v", zhongshus[0].High, zhongshus[0].Low)
	}
}

// S5: zhongshu [105,109]; B_out to 115; B_back to 110 (>=109-tolerance);
// B_conf to 117 -> third_buy_confirmed at price 117.
func TestS5_ThirdBuyConfirmed(t *testing.T) {
	z := model.Zhongshu{ID: 0, High: 109, Low: 105, BiIDs: []int{0, 1, 2}, Active: true}
	bis := []model.Bi{
		{ID: 0, Direction: model.DirUp, StartFractal: model.Fractal{Index: 0, Price: 100}, EndFractal: model.Fractal{Index: 5, Price: 110}},
		{ID: 1, Direction: model.DirDown, StartFractal: model.Fractal{Index: 5, Price: 110}, EndFractal: model.Fractal{Index: 10, Price: 105}},
		{ID: 2, Direction: model.DirUp, StartFractal: model.Fractal{Index: 10, Price: 105}, EndFractal: model.Fractal{Index: 15, Price: 109}},
		{ID: 3, Direction: model.DirUp, StartFractal: model.Fractal{Index: 15, Price: 109}, EndFractal: model.Fractal{Index: 20, Price: 115, TimeSec: 20}},
		{ID: 4, Direction: model.DirDown, StartFractal: model.Fractal{Index: 20, Price: 115}, EndFractal: model.Fractal{Index: 25, Price: 110, TimeSec: 25}},
		{ID: 5, Direction: model.DirUp, StartFractal: model.Fractal{Index: 25, Price: 110}, EndFractal: model.Fractal{Index: 30, Price: 117, TimeSec: 30}},
	}
	processed := make([]model.ProcessedBar, 40)
	for i := range processed {
		processed[i] = model.ProcessedBar{OrigIndex: i}
	}
	atr := make([]float64, 40)
	for i := range atr {
		atr[i] = 1.0 // avg_ATR=1 over any span -> thresholds become simple differences
	}
	params := model.DefaultChanlunParams()
	params.BreakoutATR = 0.5
	params.PullbackToleranceATR = 0.3
	params.ConfirmRule = model.ConfirmRuleNewHigh

	tb := DetectThirdBuys([]model.Zhongshu{z}, bis, processed, atr, params, "X", model.MarketUS, model.Timeframe1H)
	if len(tb) != 2 {
		t.Fatalf("expected a candidate and a confirmed third-buy signal, got %d", len(tb))
	}
	if tb[0].Status != model.ThirdBuyCandidate {
		t.Errorf("expected first signal to be the candidate, got %v", tb[0].Status)
	}
	if tb[1].Status != model.ThirdBuyConfirmed {
		t.Errorf("expected second signal to be confirmed, got %v", tb[1].Status)
	}
	if tb[0].ID == tb[1].ID {
		t.Errorf("candidate and confirmed signals must have distinct ids, both got %d", tb[0].ID)
	}
	if tb[1].ConfirmPrice == nil || *tb[1].ConfirmPrice != 117 {
		t.Errorf("expected confirm price 117, got %v", tb[1].ConfirmPrice)
	}
}

// S6: same as S5 but B_back pulls back to 106, below 109-tolerance -> no signal.
func TestS6_ThirdBuyInvalidPullback(t *testing.T) {
	z := model.Zhongshu{ID: 0, High: 109, Low: 105, BiIDs: []int{0, 1, 2}, Active: true}
	bis := []model.Bi{
		{ID: 0, Direction: model.DirUp, StartFractal: model.Fractal{Index: 0, Price: 100}, EndFractal: model.Fractal{Index: 5, Price: 110}},
		{ID: 1, Direction: model.DirDown, StartFractal: model.Fractal{Index: 5, Price: 110}, EndFractal: model.Fractal{Index: 10, Price: 105}},
		{ID: 2, Direction: model.DirUp, StartFractal: model.Fractal{Index: 10, Price: 105}, EndFractal: model.Fractal{Index: 15, Price: 109}},
		{ID: 3, Direction: model.DirUp, StartFractal: model.Fractal{Index: 15, Price: 109}, EndFractal: model.Fractal{Index: 20, Price: 115, TimeSec: 20}},
		{ID: 4, Direction: model.DirDown, StartFractal: model.Fractal{Index: 20, Price: 115}, EndFractal: model.Fractal{Index: 25, Price: 106, TimeSec: 25}},
	}
	processed := make([]model.ProcessedBar, 30)
	for i := range processed {
		processed[i] = model.ProcessedBar{OrigIndex: i}
	}
	atr := make([]float64, 30)
	for i := range atr {
		atr[i] = 1.0
	}
	params := model.DefaultChanlunParams()
	params.BreakoutATR = 0.5
	params.PullbackToleranceATR = 0.3

	tb := DetectThirdBuys([]model.Zhongshu{z}, bis, processed, atr, params, "X", model.MarketUS, model.Timeframe1H)
	if len(tb) != 0 {
		t.Errorf("expected no third-buy signal when pullback breaches the zhongshu, got %+v", tb)
	}
}

// Property 9: running the pipeline twice on the same bars is deterministic.
func TestDeterministic_SameBarsSameOutput(t *testing.T) {
	closes := []float64{100, 102, 104, 103, 101, 99, 97, 99, 101, 103, 106, 104, 102, 105, 108}
	var bars []model.Bar
	for i, c := range closes {
		bars = append(bars, barAt(int64(i), c, c+1, c-1, c))
	}
	atr := ComputeATR(bars)
	params := model.DefaultChanlunParams()

	r1 := Run(bars, atr, params, "X", model.MarketUS, model.Timeframe1H)
	r2 := Run(bars, atr, params, "X", model.MarketUS, model.Timeframe1H)

	if len(r1.Bis) != len(r2.Bis) || len(r1.Zhongshus) != len(r2.Zhongshus) {
		t.Errorf("expected identical structural output across runs: bis %d vs %d, zhongshus %d vs %d",
			len(r1.Bis), len(r2.Bis), len(r1.Zhongshus), len(r2.Zhongshus))
	}
}

// Property 1: containment output has no adjacent containing pair.
func TestContainment_NoAdjacentContainingPair(t *testing.T) {
	bars := []model.Bar{
		barAt(0, 100, 105, 95, 100),
		barAt(1, 101, 103, 98, 101), // contained by bar 0
		barAt(2, 102, 110, 100, 108),
		barAt(3, 103, 109, 101, 104), // contained by bar 2's merged range
	}
	processed := ReduceContainment(bars)
	for i := 1; i < len(processed); i++ {
		a, b := processed[i-1], processed[i]
		if containsRange(a.Low, a.High, b.Low, b.High) || containsRange(b.Low, b.High, a.Low, a.High) {
			t.Errorf("adjacent pair %d,%d still contains: %+v %+v", i-1, i, a, b)
		}
	}
}

// Property 3: every bi has end.kind != start.kind and kbar_count >= min_bi_kbars.
func TestBi_InvariantsHold(t *testing.T) {
	closes := []float64{100, 105, 98, 112, 90, 120, 85, 130}
	var bars []model.Bar
	for i, c := range closes {
		// widen the range a bit each step to generate clean fractals
		for j := 0; j < 6; j++ {
			bars = append(bars, barAt(int64(i*6+j), c, c+float64(j%3), c-float64(j%3), c))
		}
	}
	atr := ComputeATR(bars)
	params := model.DefaultChanlunParams()
	params.MinBiKBars = 2
	params.MinBiMoveATR = 0

	res := Run(bars, atr, params, "X", model.MarketUS, model.Timeframe1H)
	for _, b := range res.Bis {
		if b.StartFractal.Kind == b.EndFractal.Kind {
			t.Errorf("bi %d has matching start/end fractal kind", b.ID)
		}
		if b.KBarCount < params.MinBiKBars {
			t.Errorf("bi %d kbar_count %d below min %d", b.ID, b.KBarCount, params.MinBiKBars)
		}
	}
}
