package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Endpoint paths on the ingestion server.
const (
	PathPageview = "/api/track/pageview"
	PathEvent    = "/api/track/event"
	PathBeacon   = "/api/track/beacon"
)

// Transport delivers one signal to path.
type Transport interface {
	Send(ctx context.Context, path string, payload interface{}) error
}

// BeaconTransport delivers a signal without waiting for or reporting the
// outcome, like navigator.sendBeacon during unload.
type BeaconTransport interface {
	Beacon(path string, payload interface{})
}

// HTTPTransport posts JSON signals to an ingestion server.
type HTTPTransport struct {
	endpoint  string
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker[interface{}]
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithRequestUserAgent sets the User-Agent header of every request.
func WithRequestUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// WithCircuitBreaker stops sending after threshold consecutive failures and
// retries the server once cooldown has passed. Sends rejected by an open
// breaker fail with gobreaker.ErrOpenState.
func WithCircuitBreaker(threshold uint32, cooldown time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
			Name:        "sitetrack-transport",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if t.logger != nil {
					t.logger.Warn("Transport circuit breaker changed state",
						slog.String("name", name),
						slog.String("from", from.String()),
						slog.String("to", to.String()))
				}
			},
		})
	}
}

// NewHTTPTransport targets endpoint, e.g. "https://stats.example.com".
func NewHTTPTransport(endpoint string, logger *slog.Logger, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts payload and fails on any non-2xx answer.
func (t *HTTPTransport) Send(ctx context.Context, path string, payload interface{}) error {
	if t.breaker == nil {
		return t.post(ctx, path, "application/json", payload)
	}
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.post(ctx, path, "application/json", payload)
	})
	return err
}

// Beacon posts payload as text/plain in the background and drops the result.
func (t *HTTPTransport) Beacon(path string, payload interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.post(ctx, path, "text/plain;charset=UTF-8", payload); err != nil && t.logger != nil {
			t.logger.Debug("Beacon delivery failed", slog.String("path", path), slog.Any("error", err))
		}
	}()
}

func (t *HTTPTransport) post(ctx context.Context, path, contentType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
