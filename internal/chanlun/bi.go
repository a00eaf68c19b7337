package chanlun

import (
	"chanwatch/internal/kernel"
	"chanwatch/internal/model"
)

// alternateFractals filters fractals to a strictly alternating kind
// sequence. On encountering a same-kind fractal as the previous retained
// one, the previous is replaced by whichever is more extreme (higher high
// for a top, lower low for a bottom); ties keep the earlier fractal (§4.2.3,
// an Open Question this repo resolves by comparing fractal price with a
// stable earlier-wins tie-break).
func alternateFractals(fractals []model.Fractal) []model.Fractal {
	var out []model.Fractal
	for _, f := range fractals {
		if len(out) == 0 {
			out = append(out, f)
			continue
		}
		last := &out[len(out)-1]
		if last.Kind != f.Kind {
			out = append(out, f)
			continue
		}
		switch f.Kind {
		case model.FractalTop:
			if f.Price > last.Price {
				*last = f
			}
		case model.FractalBottom:
			if f.Price < last.Price {
				*last = f
			}
		}
	}
	return out
}

// FormBis turns an alternating fractal sequence into directed bis (§4.2.3).
// atr is aligned to the original bar index space (the same slice
// kernel.ATR(originalBars, 14) would return); processed maps a processed-bar
// index to its contributing original bar index via OrigIndex.
func FormBis(fractals []model.Fractal, processed []model.ProcessedBar, atr []float64, params model.ChanlunParams) []model.Bi {
	alt := alternateFractals(fractals)

	var out []model.Bi
	for i := 0; i+1 < len(alt); i++ {
		start, end := alt[i], alt[i+1]
		kbarCount := end.Index - start.Index
		if kbarCount < params.MinBiKBars {
			continue
		}

		fromOrig := processed[start.Index].OrigIndex
		toOrig := processed[end.Index].OrigIndex
		avgATR := kernel.AvgATRSpan(atr, fromOrig, toOrig)

		move := end.Price - start.Price
		if move < 0 {
			move = -move
		}
		if avgATR > 0 && move < params.MinBiMoveATR*avgATR {
			continue
		}

		direction := model.DirDown
		if start.Kind == model.FractalBottom {
			direction = model.DirUp
		}

		out = append(out, model.Bi{
			ID:           len(out),
			Direction:    direction,
			StartFractal: start,
			EndFractal:   end,
			KBarCount:    kbarCount,
		})
	}
	return out
}
