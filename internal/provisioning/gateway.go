// Package provisioning talks to the cloud provider API to tear down
// servers and volumes the billing loop decided to remove.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/jmehdipour/vps-billing/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrCircuitOpen = errors.New("provider circuit open")
)

// StatusError is a non-2xx, non-404 provider response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s: status=%d body=%q", e.Op, e.Status, e.Body)
}

// Retryable reports whether the provider may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

const (
	opDeleteCompute = "delete_compute"
	opDeleteVolume  = "delete_volume"
)

// HTTPGateway deletes droplets and volumes through a DigitalOcean-style
// REST API. A 404 means the resource is already gone and counts as success.
type HTTPGateway struct {
	name        string
	baseURL     string
	token       string
	client      *http.Client
	br          *MicroBreaker
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

var _ billing.Gateway = (*HTTPGateway)(nil)

func NewHTTPGateway(cfg config.ProviderConfig, log *zap.Logger) *HTTPGateway {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	openForMs := cfg.Breaker.OpenForMs
	if openForMs <= 0 {
		openForMs = 30000
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &HTTPGateway{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		client:      &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:          NewMicroBreaker(cfg.Breaker.FailThreshold, time.Duration(openForMs)*time.Millisecond),
		maxAttempts: attempts,
		backoff:     250 * time.Millisecond,
		log:         log.With(zap.String("provider", cfg.Name)),
	}
}

func (g *HTTPGateway) Name() string { return g.name }

func (g *HTTPGateway) DeleteCompute(ctx context.Context, providerID string) error {
	return g.delete(ctx, opDeleteCompute, "/v2/droplets/", providerID)
}

func (g *HTTPGateway) DeleteVolume(ctx context.Context, providerID string) error {
	return g.delete(ctx, opDeleteVolume, "/v2/volumes/", providerID)
}

func (g *HTTPGateway) delete(ctx context.Context, op, prefix, providerID string) error {
	// never provisioned upstream, nothing to remove
	if providerID == "" {
		return nil
	}

	var last error
	for i := 0; i < g.maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * g.backoff):
			}
		}

		err := g.tryOnce(ctx, op, prefix+url.PathEscape(providerID))
		if err == nil {
			return nil
		}
		last = err

		var se *StatusError
		if errors.Is(err, ErrCircuitOpen) || (errors.As(err, &se) && !se.Retryable()) {
			break
		}
		g.log.Warn("provider call failed",
			zap.String("op", op),
			zap.String("provider_id", providerID),
			zap.Int("attempt", i+1),
			zap.Error(err))
	}

	return fmt.Errorf("%s %s: %w", op, providerID, last)
}

func (g *HTTPGateway) tryOnce(ctx context.Context, op, path string) error {
	if !g.br.TryAcquire() {
		metrics.GatewayRequestsTotal.WithLabelValues(op, "circuit_open").Inc()
		return ErrCircuitOpen
	}

	status, err := g.do(ctx, op, path)
	switch {
	case err != nil:
		g.br.OnFailure()
		metrics.GatewayRequestsTotal.WithLabelValues(op, "error").Inc()
		return err
	case status == http.StatusNotFound:
		g.br.OnSuccess()
		metrics.GatewayRequestsTotal.WithLabelValues(op, "not_found").Inc()
		return nil
	default:
		g.br.OnSuccess()
		metrics.GatewayRequestsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
}

// do returns the status for 2xx and 404 responses and an error otherwise.
func (g *HTTPGateway) do(ctx context.Context, op, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("Accept", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 == 2 || res.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, res.Body)
		return res.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return res.StatusCode, &StatusError{Op: op, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}
