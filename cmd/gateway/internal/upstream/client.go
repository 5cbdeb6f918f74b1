package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubham-shewale/stock-tracker/pkg/config"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const maxBodySize = 1 << 20

// FetchError is the only error type Fetch returns.
type FetchError struct {
	Symbol     string
	StatusCode int // 0 when no response was received
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: upstream status %d: %v", e.Symbol, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

var (
	ErrNoSnapshot = errors.New("no snapshot record in response")
	errBadStatus  = errors.New("non-success status")
)

// aggregateResponse is the previous-day aggregate payload.
type aggregateResponse struct {
	Ticker  string            `json:"ticker"`
	Status  string            `json:"status"`
	Results []aggregateRecord `json:"results"`
}

type aggregateRecord struct {
	Ticker    string  `json:"T"`
	Open      float64 `json:"o"`
	Close     float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

// Client fetches the latest snapshot for one symbol per call. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[models.Quote]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new upstream client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewFromConfig wires limiter and breaker from the upstream section.
func NewFromConfig(cfg config.UpstreamConfig, logger *zap.Logger) *Client {
	opts := []ClientOption{WithLogger(logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, WithBreaker(cfg.BreakerFailures, cfg.BreakerTimeout))
	}
	return NewClient(cfg.BaseURL, cfg.APIKey, opts...)
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit bounds the aggregate call rate of this client.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker opens a circuit after consecutive failures and rejects calls until timeout elapses.
func WithBreaker(consecutiveFailures uint32, timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[models.Quote](gobreaker.Settings{
			Name:        "upstream",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= consecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				// Unknown tickers and stopped streams say nothing about provider health.
				return err == nil || errors.Is(err, ErrNoSnapshot) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Upstream breaker state changed",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
}

// Fetch returns the latest snapshot for symbol, or a *FetchError.
func (c *Client) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	if c.apiKey == "" {
		return models.Quote{}, &FetchError{Symbol: symbol, Cause: config.ErrMissingAPIKey}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.Quote{}, &FetchError{Symbol: symbol, Cause: fmt.Errorf("rate limit: %w", err)}
		}
	}

	if c.breaker == nil {
		return c.fetch(ctx, symbol)
	}

	q, err := c.breaker.Execute(func() (models.Quote, error) {
		return c.fetch(ctx, symbol)
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return models.Quote{}, fe
		}
		// ErrOpenState / ErrTooManyRequests
		return models.Quote{}, &FetchError{Symbol: symbol, Cause: err}
	}
	return q, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (models.Quote, error) {
	fullURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?%s", c.baseURL, url.PathEscape(symbol),
		url.Values{"apiKey": {c.apiKey}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return models.Quote{}, &FetchError{Symbol: symbol, Cause: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, api key included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return models.Quote{}, &FetchError{Symbol: symbol, Cause: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Quote{}, &FetchError{Symbol: symbol, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Upstream returned error status",
			zap.String("symbol", symbol), zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return models.Quote{}, &FetchError{Symbol: symbol, StatusCode: resp.StatusCode, Cause: errBadStatus}
	}

	quote, err := parseSnapshot(symbol, body)
	if err != nil {
		return models.Quote{}, &FetchError{Symbol: symbol, StatusCode: resp.StatusCode, Cause: err}
	}
	return quote, nil
}

func parseSnapshot(symbol string, body []byte) (models.Quote, error) {
	var payload aggregateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Quote{}, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Results) == 0 {
		return models.Quote{}, ErrNoSnapshot
	}

	r := payload.Results[0]
	if r.Open < 0 || r.Close < 0 || r.High < 0 || r.Low < 0 || r.Volume < 0 || r.Timestamp < 0 {
		return models.Quote{}, fmt.Errorf("negative field in snapshot record")
	}

	return models.Quote{
		Symbol:     symbol,
		OpenPrice:  r.Open,
		ClosePrice: r.Close,
		HighPrice:  r.High,
		LowPrice:   r.Low,
		Volume:     r.Volume,
		Timestamp:  r.Timestamp,
	}, nil
}
