package chanlun

import (
	"time"

	"chanwatch/internal/kernel"
	"chanwatch/internal/model"
)

// Result carries every stage's output for one pipeline run, kept for the
// duration of that run by the caller (the orchestrator owns this, not
// chanlun itself — see §3's ownership note).
type Result struct {
	Processed []model.ProcessedBar
	Fractals  []model.Fractal
	Bis       []model.Bi
	Zhongshus []model.Zhongshu
	ThirdBuys []model.ThirdBuySignal
}

// Run executes containment reduction, fractal detection, bi formation,
// zhongshu detection, and third-buy detection in sequence (§4.2). atr is the
// 14-period Wilder ATR over bars, computed once by the caller via
// kernel.ATR so it is shared with the indicator stage instead of
// recomputed. Every stage tolerates short/empty input by returning an
// empty slice; Run never errors.
//
// onStage, if given, is called once per sub-stage with its name
// (containment/fractal/bi/zhongshu/third_buy) and wall time, so a caller can
// feed a per-stage histogram without chanlun depending on a metrics type.
func Run(bars []model.Bar, atr []float64, params model.ChanlunParams, symbol string, market model.Market, timeframe model.Timeframe, onStage ...func(stage string, d time.Duration)) Result {
	report := func(stage string, start time.Time) {
		for _, f := range onStage {
			f(stage, time.Since(start))
		}
	}

	start := time.Now()
	processed := ReduceContainment(bars)
	report("containment", start)

	start = time.Now()
	fractals := DetectFractals(processed)
	report("fractal", start)

	start = time.Now()
	bis := FormBis(fractals, processed, atr, params)
	report("bi", start)

	start = time.Now()
	zhongshus := DetectZhongshus(bis)
	report("zhongshu", start)

	start = time.Now()
	thirdBuys := DetectThirdBuys(zhongshus, bis, processed, atr, params, symbol, market, timeframe)
	report("third_buy", start)

	return Result{
		Processed: processed,
		Fractals:  fractals,
		Bis:       bis,
		Zhongshus: zhongshus,
		ThirdBuys: thirdBuys,
	}
}

// DefaultATRPeriod is the period Run's caller should use for the ATR passed
// in, matching §4.1's ATR(period=14) default.
const DefaultATRPeriod = 14

// ComputeATR is a convenience wrapper so callers that only need the
// pipeline (not the full indicator set) can get an aligned ATR slice
// without importing kernel directly.
func ComputeATR(bars []model.Bar) []float64 {
	return kernel.ATR(bars, DefaultATRPeriod)
}
