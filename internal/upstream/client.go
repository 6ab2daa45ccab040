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
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
)

const (
	HeaderAPIKey = "X-Api-Key"
	maxBodyBytes = 4 << 20
)

var ErrCircuitOpen = errors.New("upstream circuit open")

// StatusError is returned for responses the client cannot use.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
}

type Options struct {
	BaseURL      string
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the reservation platform REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewClient(opts Options, log logger.Logger, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	// Client credentials take precedence over a static API key.
	if opts.ClientID != "" && opts.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		oauthClient := cc.Client(tokenCtx)
		oauthClient.Timeout = httpClient.Timeout
		httpClient = oauthClient
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		apiKey:  opts.APIKey,
		http:    httpClient,
		breaker: newBreaker("upstream", log),
		log:     log,
		metrics: m,
	}, nil
}

func newBreaker(name string, log logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// GetBooking fetches the full booking. A 404 yields (nil, nil).
func (c *Client) GetBooking(ctx context.Context, reference string) (*Booking, error) {
	status, body, err := c.do(ctx, "get_booking", http.MethodGet, "/bookings/"+url.PathEscape(reference))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Op: "get_booking", StatusCode: status, Body: truncate(body)}
	}
	if len(strings.TrimSpace(string(body))) == 0 || strings.TrimSpace(string(body)) == "null" {
		return nil, nil
	}

	var wrapped struct {
		Data *Booking `json:"data"`
		Booking
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", reference, err)
	}
	b := &wrapped.Booking
	if wrapped.Data != nil {
		b = wrapped.Data
	}
	c.logUnparsedTimes(b)
	return b, nil
}

func (c *Client) logUnparsedTimes(b *Booking) {
	for _, svc := range b.Services {
		if svc.TravelDate.Unparsed != "" {
			c.log.Warn("unreadable travel date ignored", "bookingReference", b.Reference,
				"serviceId", svc.ID.String(), "value", svc.TravelDate.Unparsed)
		}
		for i, seg := range svc.Segments {
			if seg.DepartureAt.Unparsed != "" {
				c.log.Warn("unreadable segment departure ignored", "bookingReference", b.Reference,
					"serviceId", svc.ID.String(), "segment", i, "value", seg.DepartureAt.Unparsed)
			}
		}
	}
}

// DeleteTransport asks the platform to deactivate a transport.
// Non-2xx answers below 500 come back as an unsuccessful result, not an error.
func (c *Client) DeleteTransport(ctx context.Context, transportID string) (DeleteResult, error) {
	status, body, err := c.do(ctx, "delete_transport", http.MethodDelete, "/transports/"+url.PathEscape(transportID))
	if err != nil {
		return DeleteResult{}, err
	}
	if status < 200 || status > 299 {
		return DeleteResult{Success: false, Error: fmt.Sprintf("status %d: %s", status, truncate(body))}, nil
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return DeleteResult{Success: true}, nil
	}
	var res DeleteResult
	if err := json.Unmarshal(body, &res); err != nil {
		return DeleteResult{}, fmt.Errorf("decode delete transport %s: %w", transportID, err)
	}
	return res, nil
}

func (c *Client) GetTransport(ctx context.Context, transportID string) (*Transport, error) {
	status, body, err := c.do(ctx, "get_transport", http.MethodGet, "/transports/"+url.PathEscape(transportID))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Op: "get_transport", StatusCode: status, Body: truncate(body)}
	}
	var wrapped struct {
		Data *Transport `json:"data"`
		Transport
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode transport %s: %w", transportID, err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	t := wrapped.Transport
	return &t, nil
}

// ValidateTransportPrice compares the per-passenger price we were paid with the current
// transport price upstream. A difference above tolerancePercent is reported as invalid.
func (c *Client) ValidateTransportPrice(ctx context.Context, transportID string, expected decimal.Decimal, tolerancePercent float64) (PriceCheck, error) {
	t, err := c.GetTransport(ctx, transportID)
	if err != nil {
		return PriceCheck{}, err
	}
	if t == nil {
		return PriceCheck{ExpectedPrice: expected, TransportFound: false}, nil
	}
	return comparePrices(expected, t.Price, tolerancePercent), nil
}

func comparePrices(expected, actual decimal.Decimal, tolerancePercent float64) PriceCheck {
	var diff decimal.Decimal
	switch {
	case expected.IsZero() && actual.IsZero():
		diff = decimal.Zero
	case expected.IsZero():
		diff = decimal.NewFromInt(100)
	default:
		diff = actual.Sub(expected).Abs().Div(expected.Abs()).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return PriceCheck{
		IsValid:        diff.LessThanOrEqual(decimal.NewFromFloat(tolerancePercent)),
		ExpectedPrice:  expected,
		ActualPrice:    actual,
		PercentDiff:    diff,
		TransportFound: true,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string) (int, []byte, error) {
	type response struct {
		status int
		body   []byte
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(HeaderAPIKey, c.apiKey)
		}
		if cid := middleware.GetCorrelationID(ctx); cid != "" {
			req.Header.Set(middleware.HeaderCorrelationID, cid)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
		}
		return response{status: resp.StatusCode, body: body}, nil
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.UpstreamCallLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}
	r := out.(response)
	return r.status, r.body, nil
}

// truncate keeps at most 512 bytes of a response body, cut on a rune boundary and
// with invalid sequences replaced so the text is safe for a TEXT column.
func truncate(b []byte) string {
	const limit = 512
	s := strings.ToValidUTF8(strings.TrimSpace(string(b)), "\uFFFD")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
