package generator

import (
	"hash/fnv"
	"math"
	"sync"

	"go.uber.org/zap"
)

const (
	// maxMove is the largest close-to-close move per bar, as a fraction.
	maxMove  = 0.01
	minPrice = 0.01
)

// StockGenerator random-walks a close price per symbol. Each call to Next
// opens at the previous close.
type StockGenerator struct {
	logger     *zap.Logger
	basePrices map[string]float64
	rand       Rand
	clock      Clock

	mu    sync.Mutex
	last  map[string]float64
	empty map[string]bool
}

func NewStockGenerator(
	logger *zap.Logger,
	basePrices map[string]float64,
	rnd Rand,
	clock Clock,
) *StockGenerator {
	return &StockGenerator{
		logger:     logger,
		basePrices: basePrices,
		rand:       rnd,
		clock:      clock,
		last:       make(map[string]float64),
		empty:      make(map[string]bool),
	}
}

// SetEmpty makes symbol answer with no results, like an unknown ticker upstream.
func (sg *StockGenerator) SetEmpty(symbol string, empty bool) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.empty[symbol] = empty
}

// Next returns the next bar for symbol, or false when the symbol has no data.
func (sg *StockGenerator) Next(symbol string) (Bar, bool) {
	sg.mu.Lock()
	defer sg.mu.Unlock()

	if sg.empty[symbol] {
		return Bar{}, false
	}

	open, ok := sg.last[symbol]
	if !ok {
		open = sg.basePrice(symbol)
	}

	move := (sg.rand.Float64()*2 - 1) * maxMove
	closePrice := round2(math.Max(minPrice, open*(1+move)))
	spread := open * maxMove * sg.rand.Float64() / 2

	bar := Bar{
		Ticker:    symbol,
		Open:      open,
		Close:     closePrice,
		High:      round2(math.Max(open, closePrice) + spread),
		Low:       round2(math.Max(minPrice, math.Min(open, closePrice)-spread)),
		Volume:    float64(1_000_000 + sg.rand.Intn(9_000_000)),
		Trades:    10_000 + sg.rand.Intn(90_000),
		Timestamp: sg.clock.Now().UnixMilli(),
	}
	bar.VWAP = round2((bar.High + bar.Low + bar.Close) / 3)

	sg.last[symbol] = closePrice
	sg.logger.Debug("Generated bar", zap.String("symbol", symbol), zap.Float64("close", closePrice))
	return bar, true
}

// basePrice falls back to a stable hash-derived price in [10, 1010) for unlisted symbols.
func (sg *StockGenerator) basePrice(symbol string) float64 {
	if p, ok := sg.basePrices[symbol]; ok {
		return p
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return float64(10 + h.Sum32()%1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
