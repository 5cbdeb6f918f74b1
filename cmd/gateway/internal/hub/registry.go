package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/alert"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/stream"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const defaultPublishTimeout = 250 * time.Millisecond

// ErrConnectionClosed rejects subscriptions for a connection that is being torn down.
var ErrConnectionClosed = errors.New("connection closed")

// Subscriber is the connection side a stream pushes to.
// SendJSON must not block. IsClosed must report true before the
// connection is released.
type Subscriber interface {
	ID() string
	SendJSON(v interface{})
	AlertSet() *alert.Set
	IsClosed() bool
}

// AlertPublisher fans matched alerts out beyond the connection.
type AlertPublisher interface {
	Publish(ctx context.Context, ev models.AlertEvent) error
}

// Registry owns every polling stream, at most one per (connection, symbol).
type Registry struct {
	fetcher    stream.Fetcher
	publisher  AlertPublisher
	pubTimeout time.Duration
	logger     *zap.Logger
	maxPerConn int
	now        func() time.Time

	mu      sync.Mutex
	streams map[string]map[string]*stream.Stream // connID -> symbol -> stream

	seqMu sync.Mutex
	seq   map[string]int64
}

type RegistryOption func(*Registry)

func WithPublisher(p AlertPublisher) RegistryOption {
	return func(r *Registry) { r.publisher = p }
}

// WithMaxPerConnection caps the streams a single connection may own. 0 means no cap.
func WithMaxPerConnection(n int) RegistryOption {
	return func(r *Registry) { r.maxPerConn = n }
}

// WithPublishTimeout bounds each Publish call made from a stream callback.
func WithPublishTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.pubTimeout = d }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(fetcher stream.Fetcher, logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		fetcher:    fetcher,
		logger:     logger,
		pubTimeout: defaultPublishTimeout,
		now:        time.Now,
		streams:    make(map[string]map[string]*stream.Stream),
		seq:        make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe starts polling symbol for sub. It reports false, without error,
// when the connection already tracks the symbol.
func (r *Registry) Subscribe(sub Subscriber, symbol string, interval time.Duration) (bool, error) {
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	if interval <= 0 {
		return false, &models.ValidationError{Field: "interval", Reason: "must be positive"}
	}

	connID := sub.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under r.mu: a release that already ran cannot see this stream.
	if sub.IsClosed() {
		return false, ErrConnectionClosed
	}

	subs := r.streams[connID]
	if _, ok := subs[sym]; ok {
		return false, nil
	}
	if r.maxPerConn > 0 && len(subs) >= r.maxPerConn {
		return false, &models.ValidationError{
			Field:  "symbol",
			Reason: fmt.Sprintf("connection already tracks %d symbols", r.maxPerConn),
		}
	}
	if subs == nil {
		subs = make(map[string]*stream.Stream)
		r.streams[connID] = subs
	}

	subs[sym] = stream.Start(sym, interval, r.fetcher,
		r.onQuote(sub), r.onError(sub, sym),
		r.logger.With(zap.String("conn", connID)))

	metrics.ActiveStreams.Inc()
	metrics.SubOpsTotal.WithLabelValues("track").Inc()
	r.logger.Debug("Stream started", zap.String("conn", connID), zap.String("symbol", sym), zap.Duration("interval", interval))
	return true, nil
}

// Unsubscribe stops and removes one stream. It reports whether one existed.
func (r *Registry) Unsubscribe(connID, symbol string) bool {
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.streams[connID]
	st, ok := subs[sym]
	if !ok {
		return false
	}
	st.Stop()
	delete(subs, sym)
	if len(subs) == 0 {
		delete(r.streams, connID)
	}

	metrics.ActiveStreams.Dec()
	metrics.SubOpsTotal.WithLabelValues("untrack").Inc()
	return true
}

// UnsubscribeAll stops every stream of a connection that stays open.
func (r *Registry) UnsubscribeAll(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.releaseLocked(connID)
	metrics.SubOpsTotal.WithLabelValues("untrack").Add(float64(n))
	return n
}

// ReleaseConnection stops and removes every stream owned by connID. It is called
// once per connection, on disconnect, and is safe when the connection owns nothing.
func (r *Registry) ReleaseConnection(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.releaseLocked(connID)
	metrics.SubOpsTotal.WithLabelValues("release").Inc()
	if n > 0 {
		r.logger.Debug("Connection released", zap.String("conn", connID), zap.Int("streams", n))
	}
	return n
}

// Shutdown releases every connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.streams {
		r.releaseLocked(connID)
	}
}

func (r *Registry) releaseLocked(connID string) int {
	subs := r.streams[connID]
	for _, st := range subs {
		st.Stop()
	}
	delete(r.streams, connID)
	metrics.ActiveStreams.Sub(float64(len(subs)))
	return len(subs)
}

// Symbols lists the symbols connID tracks, sorted.
func (r *Registry) Symbols(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	symbols := make([]string, 0, len(r.streams[connID]))
	for sym := range r.streams[connID] {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

func (r *Registry) LastQuote(connID, symbol string) (models.Quote, bool) {
	sym, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return models.Quote{}, false
	}

	r.mu.Lock()
	st, ok := r.streams[connID][sym]
	r.mu.Unlock()
	if !ok {
		return models.Quote{}, false
	}
	return st.LastQuote()
}

func (r *Registry) ActiveStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, subs := range r.streams {
		n += len(subs)
	}
	return n
}

func (r *Registry) onQuote(sub Subscriber) func(models.Quote) {
	return func(q models.Quote) {
		metrics.TicksTotal.WithLabelValues("ok").Inc()
		sub.SendJSON(protocol.StockUpdate(q))

		for _, a := range alert.Evaluate(sub.AlertSet().Snapshot(), q) {
			ev := models.AlertEvent{
				ID:           uuid.NewString(),
				ConnectionID: sub.ID(),
				Symbol:       a.Symbol,
				TargetPrice:  a.TargetPrice,
				Quote:        q,
				SeqID:        r.nextSeq(a.Symbol),
				TriggeredAt:  r.now().UTC(),
			}
			sub.SendJSON(protocol.AlertTriggered(ev))
			metrics.AlertsTriggeredTotal.Inc()

			r.publish(ev)
		}
	}
}

// publish runs under the stream lock, so it must return promptly.
func (r *Registry) publish(ev models.AlertEvent) {
	if r.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.pubTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, ev); err != nil {
		metrics.DroppedTotal.WithLabelValues("publish").Inc()
		r.logger.Warn("Failed to publish alert", zap.String("symbol", ev.Symbol), zap.Error(err))
	}
}

func (r *Registry) onError(sub Subscriber, symbol string) func(error) {
	return func(err error) {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		sub.SendJSON(protocol.StreamFailure(symbol, err))
	}
}

func (r *Registry) nextSeq(symbol string) int64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.seq[symbol]++
	return r.seq[symbol]
}
