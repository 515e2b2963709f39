// Package exchange implements the connectivity core for a single venue:
// signed REST access, the streaming market data session and order management.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"exchange_connector/internal/core"
	apperrors "exchange_connector/pkg/errors"
	"exchange_connector/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// APIError represents a non-2xx response from the exchange
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// GatewayConfig configures the REST gateway
type GatewayConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimit    float64
	RetryEnabled bool
}

// Gateway is the REST transport to the exchange. It attaches the API key
// header and preserves parameter order on the wire, which signed requests
// depend on. It never computes timestamps or signatures itself.
type Gateway struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	limiter  *rate.Limiter
	pipeline failsafe.Executor[*http.Response]
	logger   core.ILogger

	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewGateway creates a REST gateway. When retries are enabled the gateway
// wraps requests in a retry policy and circuit breaker tuned for transient
// server errors.
func NewGateway(cfg GatewayConfig, logger core.ILogger) *Gateway {
	var pipeline failsafe.Executor[*http.Response]
	if cfg.RetryEnabled {
		retryPolicy := retrypolicy.NewBuilder[*http.Response]().
			HandleIf(func(resp *http.Response, err error) bool {
				if err != nil {
					return true
				}
				return resp.StatusCode >= 500 || resp.StatusCode == 429
			}).
			WithBackoff(100*time.Millisecond, 2*time.Second).
			WithMaxRetries(3).
			Build()

		breaker := circuitbreaker.NewBuilder[*http.Response]().
			HandleIf(func(resp *http.Response, err error) bool {
				if err != nil {
					return true
				}
				return resp.StatusCode >= 500
			}).
			WithFailureThresholdRatio(5, 10).
			WithDelay(10 * time.Second).
			Build()

		pipeline = failsafe.With[*http.Response](retryPolicy, breaker)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}

	tracer := telemetry.GetTracer("rest-gateway")
	meter := telemetry.GetMeter("rest-gateway")

	reqCounter, _ := meter.Int64Counter("rest_requests_total",
		metric.WithDescription("Total number of REST requests"))
	errCounter, _ := meter.Int64Counter("rest_errors_total",
		metric.WithDescription("Total number of REST request errors"))
	latencyHist, _ := meter.Float64Histogram("rest_request_duration_seconds",
		metric.WithDescription("REST request latency in seconds"))

	return &Gateway{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		limiter:     limiter,
		pipeline:    pipeline,
		logger:      logger,
		tracer:      tracer,
		reqCounter:  reqCounter,
		errCounter:  errCounter,
		latencyHist: latencyHist,
	}
}

// Get sends a GET request
func (g *Gateway) Get(ctx context.Context, path string, params Params) ([]byte, error) {
	return g.request(ctx, http.MethodGet, path, params)
}

// Post sends a POST request
func (g *Gateway) Post(ctx context.Context, path string, params Params) ([]byte, error) {
	return g.request(ctx, http.MethodPost, path, params)
}

// Delete sends a DELETE request
func (g *Gateway) Delete(ctx context.Context, path string, params Params) ([]byte, error) {
	return g.request(ctx, http.MethodDelete, path, params)
}

func (g *Gateway) request(ctx context.Context, method, path string, params Params) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set the raw query directly so the wire order matches the signed order
	req.URL.RawQuery = params.Encode()

	if g.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", g.apiKey)
	}

	return g.do(req)
}

func (g *Gateway) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := g.tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Path),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.Path),
		),
	)
	defer span.End()

	req = req.WithContext(ctx)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var resp *http.Response
	var err error
	if g.pipeline != nil {
		resp, err = g.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
			return g.client.Do(req)
		})
	} else {
		resp, err = g.client.Do(req)
	}

	duration := time.Since(start).Seconds()
	g.reqCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("path", req.URL.Path),
	))
	g.latencyHist.Record(ctx, duration, metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("path", req.URL.Path),
	))

	if err != nil {
		span.RecordError(err)
		g.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.String("error", "transport"),
		))
		g.logger.Error("REST request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		g.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.Int("status", resp.StatusCode),
		))
		g.logger.Error("REST request rejected",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"body", string(body))
		return nil, classifyError(resp.StatusCode, body)
	}

	return body, nil
}

// classifyError maps exchange error codes to sentinel errors where known,
// falling back to a generic APIError otherwise
func classifyError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Body: body}

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	switch payload.Code {
	case -1003:
		return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, payload.Msg)
	case -1021:
		return fmt.Errorf("%w: %s", apperrors.ErrTimestampOutOfBounds, payload.Msg)
	case -1121:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, payload.Msg)
	case -2010:
		return fmt.Errorf("%w: %s", apperrors.ErrInsufficientFunds, payload.Msg)
	case -2013:
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, payload.Msg)
	case -2015:
		return fmt.Errorf("%w: %s", apperrors.ErrAuthenticationFailed, payload.Msg)
	}
	return apiErr
}

// IsAPIError reports whether err carries an exchange API error and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
