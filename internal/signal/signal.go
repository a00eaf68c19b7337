// Package signal implements the independent detectors that turn bars plus
// indicator output into model.Signal records (§4.3). Each detector looks
// only at the tail of its input — at most the last 20 bars/indicator
// points — since the orchestrator re-runs detection on a growing prefix
// rather than maintaining streaming state itself.
package signal

import (
	"fmt"
	"math"

	"chanwatch/internal/kernel"
	"chanwatch/internal/model"

	"github.com/google/uuid"
)

// Input bundles everything a detector needs: the bar series and every
// indicator series the orchestrator already computed for this run.
type Input struct {
	Bars      []model.Bar
	Symbol    string
	Market    model.Market
	Timeframe model.Timeframe
	NowMS     int64

	MACD      []kernel.MACDPoint
	RSI       []float64
	Bollinger kernel.BollingerBands
	ATR       []float64
}

// Detectors is the fixed set of bar/indicator detectors run every pass, in
// no particular priority order — the deduper, not ordering, arbitrates
// repeats.
var Detectors = []func(Input) *model.Signal{
	BollingerBreakout,
	MACDCross,
	RSIReversal,
	VolatilitySurge,
	LargeBodyCandle,
	KeyLevelBreakout,
}

// Run executes every detector against in and returns the signals produced,
// skipping nils.
func Run(in Input) []model.Signal {
	var out []model.Signal
	for _, d := range Detectors {
		if sig := d(in); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

func newSignal(in Input, kind model.SignalKind, strength, price float64, description string) *model.Signal {
	return &model.Signal{
		ID:          uuid.New().String(),
		Symbol:      in.Symbol,
		Market:      in.Market,
		Timeframe:   in.Timeframe,
		Kind:        kind,
		Strength:    model.ClampStrength(strength),
		Price:       price,
		TimeMS:      in.NowMS,
		Description: description,
	}
}

// BollingerBreakout triggers on the last-two-bar transition of close across
// a band (§4.3). Strength = 40 + 15*w(tf).
func BollingerBreakout(in Input) *model.Signal {
	n := len(in.Bars)
	if n < 2 {
		return nil
	}
	last, prev := n-1, n-2
	if math.IsNaN(in.Bollinger.Upper[last]) || math.IsNaN(in.Bollinger.Upper[prev]) {
		return nil
	}
	strength := 40 + 15*in.Timeframe.Weight()

	prevClose, lastClose := in.Bars[prev].Close, in.Bars[last].Close
	if prevClose <= in.Bollinger.Upper[prev] && lastClose > in.Bollinger.Upper[last] {
		return newSignal(in, model.KindBollingerBreakoutUp, strength, lastClose,
			fmt.Sprintf("close %.4f broke above upper Bollinger band %.4f", lastClose, in.Bollinger.Upper[last]))
	}
	if prevClose >= in.Bollinger.Lower[prev] && lastClose < in.Bollinger.Lower[last] {
		return newSignal(in, model.KindBollingerBreakoutDown, strength, lastClose,
			fmt.Sprintf("close %.4f broke below lower Bollinger band %.4f", lastClose, in.Bollinger.Lower[last]))
	}
	return nil
}

// MACDCross triggers on a sign change of DIF-DEA (§4.3). The "DIF near zero
// axis" bonus is preserved as dead code: the source's check is a tautology
// (|x| < |x|*0.1 is never true for nonzero x), so it never adds strength.
func MACDCross(in Input) *model.Signal {
	if len(in.MACD) < 2 {
		return nil
	}
	last := in.MACD[len(in.MACD)-1]
	prev := in.MACD[len(in.MACD)-2]

	prevHist := prev.DIF - prev.DEA
	lastHist := last.DIF - last.DEA

	strength := 30 + 12*in.Timeframe.Weight()
	if nearZeroAxisBonus(last.DIF) {
		strength += 10
	}

	price := in.Bars[len(in.Bars)-1].Close
	if prevHist <= 0 && lastHist > 0 {
		return newSignal(in, model.KindMACDGoldenCross, strength, price,
			fmt.Sprintf("MACD golden cross: DIF %.4f crossed above DEA %.4f", last.DIF, last.DEA))
	}
	if prevHist >= 0 && lastHist < 0 {
		return newSignal(in, model.KindMACDDeathCross, strength, price,
			fmt.Sprintf("MACD death cross: DIF %.4f crossed below DEA %.4f", last.DIF, last.DEA))
	}
	return nil
}

// nearZeroAxisBonus is always false — |x| < |x|*0.1 only holds for x == 0,
// and reserved for future use the way the source leaves it (§9, §4.3).
func nearZeroAxisBonus(dif float64) bool {
	return math.Abs(dif) < math.Abs(dif)*0.1
}

// RSIReversal triggers crossing 30 upward (oversold) or 70 downward
// (overbought). Strength = 35 + 15*w(tf).
func RSIReversal(in Input) *model.Signal {
	n := len(in.RSI)
	if n < 2 {
		return nil
	}
	last, prev := in.RSI[n-1], in.RSI[n-2]
	if math.IsNaN(last) || math.IsNaN(prev) {
		return nil
	}
	strength := 35 + 15*in.Timeframe.Weight()
	price := in.Bars[len(in.Bars)-1].Close

	if prev <= 30 && last > 30 {
		return newSignal(in, model.KindRSIOversoldReversal, strength, price,
			fmt.Sprintf("RSI crossed above 30 from %.2f to %.2f", prev, last))
	}
	if prev >= 70 && last < 70 {
		return newSignal(in, model.KindRSIOverboughtReversal, strength, price,
			fmt.Sprintf("RSI crossed below 70 from %.2f to %.2f", prev, last))
	}
	return nil
}

// VolatilitySurge requires >=20 bars; triggers when
// (ATR_last - ATR_last-5)/ATR_last-5 > 0.3. Strength = 25 + 50*deltaATR.
func VolatilitySurge(in Input) *model.Signal {
	n := len(in.Bars)
	if n < 20 {
		return nil
	}
	last := in.ATR[n-1]
	prior := in.ATR[n-6]
	if math.IsNaN(last) || math.IsNaN(prior) || prior == 0 {
		return nil
	}
	deltaATR := (last - prior) / prior
	if deltaATR <= 0.3 {
		return nil
	}
	strength := 25 + 50*deltaATR
	price := in.Bars[n-1].Close
	return newSignal(in, model.KindVolatilitySurge, strength, price,
		fmt.Sprintf("ATR surged %.1f%% over the last 5 bars", deltaATR*100))
}

// LargeBodyCandle triggers when the last bar's body exceeds 2.5x the mean
// body size of the last 20 bars. Strength = 20 + 10*w(tf).
func LargeBodyCandle(in Input) *model.Signal {
	n := len(in.Bars)
	if n < 20 {
		return nil
	}
	sum := 0.0
	for i := n - 20; i < n; i++ {
		sum += math.Abs(in.Bars[i].Close - in.Bars[i].Open)
	}
	meanBody := sum / 20
	lastBody := math.Abs(in.Bars[n-1].Close - in.Bars[n-1].Open)
	if meanBody == 0 || lastBody <= 2.5*meanBody {
		return nil
	}
	strength := 20 + 10*in.Timeframe.Weight()
	return newSignal(in, model.KindLargeBodyCandle, strength, in.Bars[n-1].Close,
		fmt.Sprintf("candle body %.4f exceeds 2.5x the 20-bar mean body %.4f", lastBody, meanBody))
}

// KeyLevelBreakout: lookback = min(20, len-1); prevHigh = max(high over the
// last lookback bars excluding current). Triggers when the prior bar's
// close <= prevHigh and the last bar's close > prevHigh. Strength =
// 45 + 15*w(tf).
func KeyLevelBreakout(in Input) *model.Signal {
	n := len(in.Bars)
	if n < 2 {
		return nil
	}
	lookback := 20
	if n-1 < lookback {
		lookback = n - 1
	}
	if lookback < 1 {
		return nil
	}
	prevHigh := math.Inf(-1)
	for i := n - 1 - lookback; i < n-1; i++ {
		if in.Bars[i].High > prevHigh {
			prevHigh = in.Bars[i].High
		}
	}

	priorClose := in.Bars[n-2].Close
	lastClose := in.Bars[n-1].Close
	if priorClose <= prevHigh && lastClose > prevHigh {
		strength := 45 + 15*in.Timeframe.Weight()
		return newSignal(in, model.KindKeyLevelBreakout, strength, lastClose,
			fmt.Sprintf("close %.4f broke above %d-bar high %.4f", lastClose, lookback, prevHigh))
	}
	return nil
}

// ThirdBuysToSignals converts ThirdBuySignal records into Signal records
// (§4.3's third-buy conversion: confirmed -> strength 85, candidate -> 55).
func ThirdBuysToSignals(tbs []model.ThirdBuySignal, nowMS int64) []model.Signal {
	out := make([]model.Signal, 0, len(tbs))
	for _, tb := range tbs {
		kind := model.KindThirdBuyCandidate
		strength := 55.0
		price := tb.BreakoutPrice
		desc := fmt.Sprintf("third-buy candidate off zhongshu %d at breakout %.4f", tb.ZhongshuID, tb.BreakoutPrice)

		if tb.Status == model.ThirdBuyConfirmed {
			kind = model.KindThirdBuyConfirmed
			strength = 85.0
			if tb.ConfirmPrice != nil {
				price = *tb.ConfirmPrice
			}
			desc = fmt.Sprintf("third-buy confirmed off zhongshu %d at %.4f", tb.ZhongshuID, price)
		}

		out = append(out, model.Signal{
			ID:          uuid.New().String(),
			Symbol:      tb.Symbol,
			Market:      tb.Market,
			Timeframe:   tb.Timeframe,
			Kind:        kind,
			Strength:    model.ClampStrength(strength),
			Price:       price,
			TimeMS:      nowMS,
			Description: desc,
			KeyLevels: &model.KeyLevels{
				ZhongshuHigh: ptrF64(tb.ZhongshuHigh),
				ZhongshuLow:  ptrF64(tb.ZhongshuLow),
				PullbackLow:  tb.PullbackLow,
				ConfirmPrice: tb.ConfirmPrice,
			},
		})
	}
	return out
}

func ptrF64(v float64) *float64 { return &v }
