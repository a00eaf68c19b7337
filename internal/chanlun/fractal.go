package chanlun

import "chanwatch/internal/model"

// DetectFractals scans the containment-reduced sequence for interior local
// extrema (§4.2.2). A position cannot be both a top and a bottom: the
// containment invariant rules out a bar's high exceeding both neighbors'
// highs while its low also undercuts both neighbors' lows, since that would
// mean the bar contains a neighbor and containment reduction would already
// have merged it away.
func DetectFractals(processed []model.ProcessedBar) []model.Fractal {
	var out []model.Fractal
	for i := 1; i < len(processed)-1; i++ {
		cur, left, right := processed[i], processed[i-1], processed[i+1]
		switch {
		case cur.High > left.High && cur.High > right.High:
			out = append(out, model.Fractal{Index: i, TimeSec: cur.TimeSec, Price: cur.High, Kind: model.FractalTop})
		case cur.Low < left.Low && cur.Low < right.Low:
			out = append(out, model.Fractal{Index: i, TimeSec: cur.TimeSec, Price: cur.Low, Kind: model.FractalBottom})
		}
	}
	return out
}
