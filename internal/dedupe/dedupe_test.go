package dedupe

import (
	"testing"
	"time"

	"chanwatch/internal/model"
)

// S7: two successive runs produce a MACD golden cross at t=0ms and
// t=60000ms; only the first is emitted (window is 5 minutes).
func TestS7_SecondEmissionWithinWindowSuppressed(t *testing.T) {
	d := New(5 * time.Minute)
	key := Key{Symbol: "BTCUSD", Timeframe: model.Timeframe1H, Kind: model.KindMACDGoldenCross}

	if !d.ShouldEmit(key, 0) {
		t.Fatal("first emission should be allowed")
	}
	d.Record(key, 0)

	if d.ShouldEmit(key, 60_000) {
		t.Error("second emission at t=60s should be suppressed within a 5 minute window")
	}
}

func TestShouldEmit_AfterWindowElapses(t *testing.T) {
	d := New(5 * time.Minute)
	key := Key{Symbol: "X", Timeframe: model.Timeframe1H, Kind: model.KindRSIOversoldReversal}
	d.Record(key, 0)

	if d.ShouldEmit(key, 5*60*1000-1) {
		t.Error("should still be suppressed 1ms before the window elapses")
	}
	if !d.ShouldEmit(key, 5*60*1000) {
		t.Error("should be allowed exactly at the window boundary")
	}
}

func TestFilter_PreservesOrderAndDropsDuplicates(t *testing.T) {
	d := New(5 * time.Minute)
	sigs := []model.Signal{
		{Symbol: "A", Timeframe: model.Timeframe1H, Kind: model.KindMACDGoldenCross, TimeMS: 0},
		{Symbol: "A", Timeframe: model.Timeframe1H, Kind: model.KindMACDGoldenCross, TimeMS: 1000},
		{Symbol: "B", Timeframe: model.Timeframe1H, Kind: model.KindMACDGoldenCross, TimeMS: 1000},
	}
	out := d.Filter(sigs)
	if len(out) != 2 {
		t.Fatalf("expected 2 signals to survive dedup, got %d", len(out))
	}
	if out[0].Symbol != "A" || out[1].Symbol != "B" {
		t.Errorf("expected order A, B; got %v, %v", out[0].Symbol, out[1].Symbol)
	}
}

func TestDifferentKinds_AreIndependentKeys(t *testing.T) {
	d := New(5 * time.Minute)
	sigs := []model.Signal{
		{Symbol: "A", Timeframe: model.Timeframe1H, Kind: model.KindMACDGoldenCross, TimeMS: 0},
		{Symbol: "A", Timeframe: model.Timeframe1H, Kind: model.KindRSIOversoldReversal, TimeMS: 0},
	}
	out := d.Filter(sigs)
	if len(out) != 2 {
		t.Errorf("expected both kinds to pass independently, got %d", len(out))
	}
}
