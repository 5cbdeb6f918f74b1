package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

// Fetcher returns the latest quote for a symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (models.Quote, error)
}

type State int

const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var ErrAlreadyStarted = errors.New("stream already started")

// Stream polls one symbol on a self-rescheduling timer. The next tick is armed
// only after the previous fetch settles, so at most one fetch is in flight.
//
// Callbacks run on the stream's goroutine while it holds the stream lock, and
// must not call Stop on the same stream.
type Stream struct {
	symbol   string
	interval time.Duration
	fetcher  Fetcher
	onQuote  func(models.Quote)
	onError  func(error)
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	lastQuote *models.Quote

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Idle stream.
func New(symbol string, interval time.Duration, fetcher Fetcher,
	onQuote func(models.Quote), onError func(error), logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		symbol:   symbol,
		interval: interval,
		fetcher:  fetcher,
		onQuote:  onQuote,
		onError:  onError,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start creates a stream and moves it to Polling.
func Start(symbol string, interval time.Duration, fetcher Fetcher,
	onQuote func(models.Quote), onError func(error), logger *zap.Logger) *Stream {
	s := New(symbol, interval, fetcher, onQuote, onError, logger)
	_ = s.Start()
	return s
}

// Start arms the first tick one interval from now.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrAlreadyStarted
	}
	s.state = Polling
	go s.run()
	return nil
}

// Stop cancels the pending tick and any in-flight fetch. No callback runs after
// Stop returns. Calling Stop more than once is a no-op.
func (s *Stream) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = Stopped
	s.mu.Unlock()

	if prev == Stopped {
		return
	}
	s.cancel()
	if prev == Idle {
		close(s.done)
	}
}

// Done is closed once the polling goroutine has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Symbol() string { return s.symbol }

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastQuote returns the most recent successful quote.
func (s *Stream) LastQuote() (models.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastQuote == nil {
		return models.Quote{}, false
	}
	return *s.lastQuote, true
}

func (s *Stream) run() {
	defer close(s.done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		q, err := s.fetcher.Fetch(s.ctx, s.symbol)
		if !s.deliver(q, err) {
			return
		}
		timer.Reset(s.interval)
	}
}

// deliver reports false once the stream has been stopped.
func (s *Stream) deliver(q models.Quote, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Polling {
		return false
	}

	if err != nil {
		s.logger.Debug("Tick failed", zap.String("symbol", s.symbol), zap.Error(err))
		if s.onError != nil {
			s.onError(err)
		}
		return true
	}

	s.lastQuote = &q
	if s.onQuote != nil {
		s.onQuote(q)
	}
	return true
}
