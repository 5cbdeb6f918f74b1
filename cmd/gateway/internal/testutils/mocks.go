package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/alert"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	OwnerVal string
	Messages []protocol.WSResponse
	Closed   bool
	Mu       sync.Mutex

	alerts alert.Set
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string           { return m.IDVal }
func (m *MockClient) Owner() string        { return m.OwnerVal }
func (m *MockClient) AlertSet() *alert.Set { return &m.alerts }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) LastMsg() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) LastMsgType() string { return m.LastMsg().Type }

// Count returns how many messages of the given type were received.
func (m *MockClient) Count(msgType string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, msg := range m.Messages {
		if msg.Type == msgType {
			n++
		}
	}
	return n
}

// OfType returns copies of the messages of the given type.
func (m *MockClient) OfType(msgType string) []protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []protocol.WSResponse
	for _, msg := range m.Messages {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

// MockFetcher serves quotes per symbol, optionally failing or blocking.
type MockFetcher struct {
	Mu     sync.Mutex
	Quotes map[string]models.Quote
	// Failures makes the next N fetches for a symbol fail.
	Failures map[string]int
	// Block, when set, holds every fetch until it is closed or the context ends.
	Block chan struct{}
	Calls map[string]int
}

var ErrSimulatedTimeout = errors.New("simulated upstream timeout")

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Quotes:   make(map[string]models.Quote),
		Failures: make(map[string]int),
		Calls:    make(map[string]int),
	}
}

func (m *MockFetcher) SetQuote(q models.Quote) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Quotes[q.Symbol] = q
}

func (m *MockFetcher) FailNext(symbol string, n int) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Failures[symbol] = n
}

func (m *MockFetcher) CallCount(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls[symbol]
}

func (m *MockFetcher) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	m.Mu.Lock()
	m.Calls[symbol]++
	block := m.Block
	m.Mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		}
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Failures[symbol] > 0 {
		m.Failures[symbol]--
		return models.Quote{}, ErrSimulatedTimeout
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return models.Quote{}, errors.New("no snapshot for " + symbol)
	}
	return q, nil
}

// MockStateStore keeps state in memory
type MockStateStore struct {
	Mu        sync.Mutex
	Alerts    map[string][]models.Alert
	Watchlist map[string][]string
	Portfolio map[string][]models.Holding
	History   map[string][]models.AlertEvent
	Saves     int
}

var _ repository.StateStore = (*MockStateStore)(nil)

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		Alerts:    make(map[string][]models.Alert),
		Watchlist: make(map[string][]string),
		Portfolio: make(map[string][]models.Holding),
		History:   make(map[string][]models.AlertEvent),
	}
}

func (m *MockStateStore) LoadAlerts(ctx context.Context, owner string) ([]models.Alert, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.Alert(nil), m.Alerts[owner]...), nil
}

func (m *MockStateStore) SaveAlerts(ctx context.Context, owner string, alerts []models.Alert) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Saves++
	m.Alerts[owner] = append([]models.Alert(nil), alerts...)
	return nil
}

func (m *MockStateStore) LoadWatchlist(ctx context.Context, owner string) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.Watchlist[owner]...), nil
}

func (m *MockStateStore) SaveWatchlist(ctx context.Context, owner string, symbols []string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Saves++
	m.Watchlist[owner] = append([]string(nil), symbols...)
	return nil
}

func (m *MockStateStore) LoadPortfolio(ctx context.Context, owner string) ([]models.Holding, error) {
	if owner == "" {
		return nil, repository.ErrNoOwner
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.Holding(nil), m.Portfolio[owner]...), nil
}

func (m *MockStateStore) AddHolding(ctx context.Context, owner string, h models.Holding) error {
	if owner == "" {
		return repository.ErrNoOwner
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Portfolio[owner] = append(m.Portfolio[owner], h)
	return nil
}

func (m *MockStateStore) AlertHistory(ctx context.Context, symbol string, limit int) ([]models.AlertEvent, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	events := m.History[symbol]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return append([]models.AlertEvent(nil), events...), nil
}

func (m *MockStateStore) Close() error { return nil }

// MockPublisher records published alert events. With Block set it holds
// every call until ctx ends, like a stalled broker.
type MockPublisher struct {
	Mu     sync.Mutex
	Events []models.AlertEvent
	Block  bool
	Calls  int
}

func (m *MockPublisher) Publish(ctx context.Context, ev models.AlertEvent) error {
	m.Mu.Lock()
	m.Calls++
	block := m.Block
	m.Mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockPublisher) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Calls
}

func (m *MockPublisher) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Events)
}
