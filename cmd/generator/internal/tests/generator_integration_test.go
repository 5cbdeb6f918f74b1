package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/generator/internal/generator"
	"github.com/shubham-shewale/stock-tracker/cmd/generator/internal/testutils"
)

func startServer(t *testing.T, apiKey string) (*httptest.Server, *generator.StockGenerator) {
	mockClock := &testutils.MockClock{CurrentTime: time.Now()}
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.9}
	basePrices := map[string]float64{"MSFT": 300.0, "GOOG": 2000.0}

	gen := generator.NewStockGenerator(zap.NewNop(), basePrices, mockRand, mockClock)
	srv := httptest.NewServer(generator.NewServer(gen, apiKey, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, gen
}

func TestGenerator_ServesPrevClose(t *testing.T) {
	srv, _ := startServer(t, "secret")

	resp, err := http.Get(srv.URL + "/v2/aggs/ticker/msft/prev?apiKey=secret")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body generator.AggregateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Status != "OK" || body.ResultsCount != 1 || len(body.Results) != 1 {
		t.Fatalf("Unexpected payload %+v", body)
	}
	if body.Results[0].Ticker != "MSFT" || body.Results[0].Open != 300.0 {
		t.Errorf("Expected MSFT opening at 300, got %+v", body.Results[0])
	}
	if body.RequestID == "" {
		t.Error("Expected a request id")
	}
}

func TestGenerator_RejectsWrongKey(t *testing.T) {
	srv, _ := startServer(t, "secret")

	resp, err := http.Get(srv.URL + "/v2/aggs/ticker/MSFT/prev?apiKey=nope")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestGenerator_EmptyResults(t *testing.T) {
	srv, gen := startServer(t, "")
	gen.SetEmpty("GONE", true)

	resp, err := http.Get(srv.URL + "/v2/aggs/ticker/GONE/prev")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var body generator.AggregateResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.ResultsCount != 0 || len(body.Results) != 0 {
		t.Errorf("Expected no results, got %+v", body)
	}
}
