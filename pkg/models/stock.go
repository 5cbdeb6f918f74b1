package models

import (
	"fmt"
	"strings"
	"time"
)

const maxSymbolLen = 10

// ValidationError reports client input that was rejected before any work started.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Quote is one poll result for a symbol. Prices are never negative.
type Quote struct {
	Symbol     string  `json:"symbol"`
	OpenPrice  float64 `json:"openPrice"`
	ClosePrice float64 `json:"closePrice"`
	HighPrice  float64 `json:"highPrice"`
	LowPrice   float64 `json:"lowPrice"`
	Volume     float64 `json:"volume"`
	Timestamp  int64   `json:"timestamp"` // unix milli
}

// Alert is a user-declared target price for a symbol.
type Alert struct {
	Symbol      string  `json:"symbol"`
	TargetPrice float64 `json:"targetPrice"`
}

// AlertEvent is emitted once per matched alert per tick.
type AlertEvent struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Symbol       string    `json:"symbol"`
	TargetPrice  float64   `json:"targetPrice"`
	Quote        Quote     `json:"quote"`
	SeqID        int64     `json:"seqId"` // monotonic per symbol
	TriggeredAt  time.Time `json:"triggeredAt"`
}

// Holding is one portfolio purchase.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// NormalizeSymbol trims and upper-cases a ticker and rejects malformed ones.
func NormalizeSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if len(sym) > maxSymbolLen {
		return "", &ValidationError{Field: "symbol", Reason: fmt.Sprintf("longer than %d characters", maxSymbolLen)}
	}
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return "", &ValidationError{Field: "symbol", Reason: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return sym, nil
}

// NewAlert validates and normalizes an alert.
func NewAlert(symbol string, targetPrice float64) (Alert, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Alert{}, err
	}
	if !(targetPrice > 0) {
		return Alert{}, &ValidationError{Field: "targetPrice", Reason: "must be greater than zero"}
	}
	return Alert{Symbol: sym, TargetPrice: targetPrice}, nil
}

// NewHolding validates a portfolio purchase.
func NewHolding(symbol string, quantity int64, price float64) (Holding, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Holding{}, err
	}
	if quantity <= 0 {
		return Holding{}, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if price < 0 {
		return Holding{}, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return Holding{Symbol: sym, Quantity: quantity, Price: price}, nil
}

// AlertHistoryKey is the Redis list holding recent alert events for a symbol, newest first.
func AlertHistoryKey(symbol string) string { return "alerts:history:" + symbol }

// AlertChannel is the Redis pub/sub channel alert events are re-published on.
func AlertChannel(symbol string) string { return "alerts." + symbol }
