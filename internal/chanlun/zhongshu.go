package chanlun

import "chanwatch/internal/model"

// DetectZhongshus scans contiguous bi triples for overlap regions (§4.2.4).
// A triple extends an existing active zhongshu, rather than starting a new
// one, when that zhongshu's last contributing bi id strictly precedes the
// triple's first bi id and the triple's third bi intersects the existing
// zhongshu's fixed [low, high] range; extension never narrows or widens that
// range.
func DetectZhongshus(bis []model.Bi) []model.Zhongshu {
	var out []model.Zhongshu

	for i := 0; i+2 < len(bis); i++ {
		b0, b1, b2 := bis[i], bis[i+1], bis[i+2]
		zHigh := minOf3(b0.RangeHigh(), b1.RangeHigh(), b2.RangeHigh())
		zLow := maxOf3(b0.RangeLow(), b1.RangeLow(), b2.RangeLow())
		if zHigh <= zLow {
			continue
		}

		extended := false
		for j := range out {
			z := &out[j]
			if !z.Active {
				continue
			}
			if z.LastBiID() < b0.ID && b2.Intersects(z.Low, z.High) {
				z.EndTime = b2.EndFractal.TimeSec
				z.BiIDs = append(z.BiIDs, b2.ID)
				extended = true
				break
			}
		}
		if extended {
			continue
		}

		out = append(out, model.Zhongshu{
			ID:        len(out),
			High:      zHigh,
			Low:       zLow,
			StartTime: b0.StartFractal.TimeSec,
			EndTime:   b2.EndFractal.TimeSec,
			BiIDs:     []int{b0.ID, b1.ID, b2.ID},
			Active:    true,
		})
	}
	return out
}

func minOf3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
