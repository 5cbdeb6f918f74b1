package generator_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/generator/internal/generator"
	"github.com/shubham-shewale/stock-tracker/cmd/generator/internal/testutils"
)

func TestGenerator_Logic(t *testing.T) {
	// 0.5 -> zero move: close equals open
	mockRand := &testutils.MockRand{ValInt: 7, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.UnixMilli(1_700_000_000_000)}

	gen := generator.NewStockGenerator(zap.NewNop(), map[string]float64{"AAPL": 100.0}, mockRand, mockClock)

	bar, ok := gen.Next("AAPL")
	if !ok {
		t.Fatal("Expected a bar for AAPL")
	}
	if bar.Ticker != "AAPL" {
		t.Errorf("Expected AAPL, got %s", bar.Ticker)
	}
	if bar.Open != 100.0 || bar.Close != 100.0 {
		t.Errorf("Expected flat bar at 100, got o=%f c=%f", bar.Open, bar.Close)
	}
	if bar.High != 100.25 || bar.Low != 99.75 {
		t.Errorf("Expected h=100.25 l=99.75, got h=%f l=%f", bar.High, bar.Low)
	}
	if bar.Volume != 1_000_007 {
		t.Errorf("Expected volume 1000007, got %f", bar.Volume)
	}
	if bar.Timestamp != 1_700_000_000_000 {
		t.Errorf("Timestamp should come from the clock, got %d", bar.Timestamp)
	}
}

func TestGenerator_RandomWalkOpensAtLastClose(t *testing.T) {
	mockRand := &testutils.MockRand{ValFloat: 1.0} // max upward move
	gen := generator.NewStockGenerator(zap.NewNop(), map[string]float64{"TSLA": 700.0}, mockRand, &testutils.MockClock{})

	first, _ := gen.Next("TSLA")
	second, _ := gen.Next("TSLA")

	if first.Close != 707.0 {
		t.Errorf("Expected close 707, got %f", first.Close)
	}
	if second.Open != first.Close {
		t.Errorf("Second bar should open at %f, got %f", first.Close, second.Open)
	}
	if second.Low < 0 || second.High < second.Close {
		t.Errorf("Inconsistent bar %+v", second)
	}
}

func TestGenerator_UnknownTickerHasStableBase(t *testing.T) {
	mockRand := &testutils.MockRand{ValFloat: 0.5}
	a := generator.NewStockGenerator(zap.NewNop(), nil, mockRand, &testutils.MockClock{})
	b := generator.NewStockGenerator(zap.NewNop(), nil, mockRand, &testutils.MockClock{})

	barA, _ := a.Next("ZZZZ")
	barB, _ := b.Next("ZZZZ")

	if barA.Open != barB.Open {
		t.Errorf("Base price should be deterministic, got %f and %f", barA.Open, barB.Open)
	}
	if barA.Open < 10 || barA.Open >= 1010 {
		t.Errorf("Base price out of range: %f", barA.Open)
	}
}

func TestGenerator_EmptySymbol(t *testing.T) {
	gen := generator.NewStockGenerator(zap.NewNop(), nil, &testutils.MockRand{}, &testutils.MockClock{})
	gen.SetEmpty("DELISTED", true)

	if _, ok := gen.Next("DELISTED"); ok {
		t.Error("Expected no bar for an empty symbol")
	}
}
