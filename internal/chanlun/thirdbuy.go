package chanlun

import (
	"chanwatch/internal/kernel"
	"chanwatch/internal/model"
)

// DetectThirdBuys scans each zhongshu for a breakout/pullback/confirmation
// pattern anchored past its last contributing bi (§4.2.5). bis must be
// densely id-indexed (FormBis guarantees this, so bis[id].ID == id) so a
// bi can be looked up by id directly. processed/atr are used to compute the
// ATR-scaled breakout and pullback-tolerance margins over each candidate
// bi's own span.
func DetectThirdBuys(zhongshus []model.Zhongshu, bis []model.Bi, processed []model.ProcessedBar, atr []float64, params model.ChanlunParams, symbol string, market model.Market, timeframe model.Timeframe) []model.ThirdBuySignal {
	var out []model.ThirdBuySignal
	nextID := 0

	biSpanATR := func(b model.Bi) float64 {
		from := processed[b.StartFractal.Index].OrigIndex
		to := processed[b.EndFractal.Index].OrigIndex
		return kernel.AvgATRSpan(atr, from, to)
	}

	for _, z := range zhongshus {
		L := z.LastBiID()

		var bOut *model.Bi
		for id := L + 1; id < len(bis); id++ {
			b := bis[id]
			if b.Direction != model.DirUp {
				continue
			}
			if b.EndFractal.Price <= z.High {
				continue
			}
			margin := b.EndFractal.Price - z.High
			if margin >= params.BreakoutATR*biSpanATR(b) {
				bCopy := b
				bOut = &bCopy
				break
			}
		}
		if bOut == nil {
			continue
		}

		base := model.ThirdBuySignal{
			ZhongshuID:    z.ID,
			Symbol:        symbol,
			Market:        market,
			Timeframe:     timeframe,
			ZhongshuHigh:  z.High,
			ZhongshuLow:   z.Low,
			BreakoutTime:  bOut.EndFractal.TimeSec,
			BreakoutPrice: bOut.EndFractal.Price,
		}

		backID := bOut.ID + 1
		if backID >= len(bis) {
			base.ID = nextID
			nextID++
			base.Status = model.ThirdBuyCandidate
			out = append(out, base)
			continue
		}
		bBack := bis[backID]
		if bBack.Direction != model.DirDown {
			base.ID = nextID
			nextID++
			base.Status = model.ThirdBuyCandidate
			out = append(out, base)
			continue
		}

		pullbackLow := bBack.EndFractal.Price
		tolerance := params.PullbackToleranceATR * biSpanATR(bBack)
		if pullbackLow < z.High-tolerance {
			continue
		}

		candidate := base
		candidate.PullbackTime = ptrI64(bBack.EndFractal.TimeSec)
		candidate.PullbackLow = ptrF64(pullbackLow)

		confID := backID + 1
		if confID < len(bis) {
			bConf := bis[confID]
			if bConf.Direction == model.DirUp {
				confirmed := false
				switch params.ConfirmRule {
				case model.ConfirmRuleNewHigh:
					confirmed = bConf.EndFractal.Price > bOut.EndFractal.Price
				case model.ConfirmRuleBreakPullbackHigh:
					confirmed = bConf.EndFractal.Price > bBack.StartFractal.Price
				}
				if confirmed {
					candidate.Status = model.ThirdBuyCandidate
					candidate.ID = nextID
					nextID++
					out = append(out, candidate)

					confirmedSig := candidate
					confirmedSig.Status = model.ThirdBuyConfirmed
					confirmedSig.ConfirmTime = ptrI64(bConf.EndFractal.TimeSec)
					confirmedSig.ConfirmPrice = ptrF64(bConf.EndFractal.Price)
					confirmedSig.ID = nextID
					nextID++
					out = append(out, confirmedSig)
					continue
				}
			}
		}

		candidate.Status = model.ThirdBuyCandidate
		candidate.ID = nextID
		nextID++
		out = append(out, candidate)
	}
	return out
}

func ptrI64(v int64) *int64     { return &v }
func ptrF64(v float64) *float64 { return &v }
