// Package chanlun implements the five-stage structural pipeline: containment
// reduction, fractal detection, bi formation, zhongshu detection, and
// third-buy detection (§4.2). Each stage is a single forward pass over the
// previous stage's output; none of them error on short or empty input, they
// simply emit an empty result.
package chanlun

import "chanwatch/internal/model"

// ReduceContainment walks bars left to right, merging any bar whose [low,
// high] range is contained by (or contains) the current tail of the
// compacted list, per §4.2.1. The trend used to decide merge direction is
// derived from the tail's relationship to the bar before it in the
// compacted list; with only one compacted bar so far, uptrend is assumed.
func ReduceContainment(bars []model.Bar) []model.ProcessedBar {
	if len(bars) == 0 {
		return nil
	}
	out := make([]model.ProcessedBar, 0, len(bars))
	out = append(out, model.ProcessedBar{
		OrigIndex: 0,
		TimeSec:   bars[0].TimeSec,
		Open:      bars[0].Open,
		High:      bars[0].High,
		Low:       bars[0].Low,
		Close:     bars[0].Close,
	})

	for i := 1; i < len(bars); i++ {
		cur := bars[i]
		tail := &out[len(out)-1]

		if containsRange(tail.Low, tail.High, cur.Low, cur.High) || containsRange(cur.Low, cur.High, tail.Low, tail.High) {
			uptrend := true
			if len(out) >= 2 {
				prevPrev := out[len(out)-2]
				uptrend = tail.High > prevPrev.High
			}
			if uptrend {
				tail.High = maxF(tail.High, cur.High)
				tail.Low = maxF(tail.Low, cur.Low)
			} else {
				tail.High = minF(tail.High, cur.High)
				tail.Low = minF(tail.Low, cur.Low)
			}
			tail.Close = cur.Close
			tail.TimeSec = cur.TimeSec
			tail.OrigIndex = i
			continue
		}

		out = append(out, model.ProcessedBar{
			OrigIndex: i,
			TimeSec:   cur.TimeSec,
			Open:      cur.Open,
			High:      cur.High,
			Low:       cur.Low,
			Close:     cur.Close,
		})
	}
	return out
}

// containsRange reports whether [outerLow, outerHigh] fully spans
// [innerLow, innerHigh].
func containsRange(outerLow, outerHigh, innerLow, innerHigh float64) bool {
	return outerLow <= innerLow && outerHigh >= innerHigh
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
