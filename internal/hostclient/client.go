// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hostclient talks to the device host API that owns the stream encoders:
// restart commands, readiness probes and teardown reverts.
package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/resilience"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// HeaderRequestID carries the correlation ID on outbound requests.
const HeaderRequestID = "X-Request-ID"

const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimit        float64 // requests per second, 0 disables limiting
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration
	HTTPClient       *http.Client // optional override (tests)
	Logger           zerolog.Logger
}

// Client is the device host API client.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	probes  singleflight.Group
	logger  zerolog.Logger
}

// New creates a host API client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid host api base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		base:    strings.TrimRight(u.String(), "/"),
		http:    hc,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker("host_api", cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailurePredicate(IsTransient),
			resilience.WithIgnorePredicate(func(err error) bool { return errors.Is(err, ErrCanceled) })),
		logger: cfg.Logger,
	}, nil
}

// BreakerState reports the host API circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) streamPath(host, device, leaf string) string {
	return fmt.Sprintf("%s/api/v1/hosts/%s/devices/%s/stream/%s",
		c.base, url.PathEscape(host), url.PathEscape(device), leaf)
}

// Restart asks the host to restart the encoder at req.Quality. A nil error means
// the host accepted the restart, not that the new stream is servable yet.
func (c *Client) Restart(ctx context.Context, req RestartRequest) error {
	if !req.Quality.Valid() {
		return fmt.Errorf("restart: %w: %q", streamprofile.ErrUnknownQuality, req.Quality)
	}
	payload, err := json.Marshal(restartBody{
		Quality: req.Quality,
		Profile: streamprofile.DefaultProfile(req.Quality),
		Reason:  req.Reason,
	})
	if err != nil {
		return fmt.Errorf("encode restart body: %w", err)
	}

	const op = "restart"
	start := time.Now()
	err = c.breaker.Execute(func() error {
		res, err := c.do(ctx, op, http.MethodPost, c.streamPath(req.Host, req.Device, "restart"), payload)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return classifyStatus(op, res.StatusCode, readErrorBody(res.Body))
		}
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &Error{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}
	metrics.ObserveHostRequest(op, Class(err), time.Since(start))

	logger := xglog.WithContext(ctx, c.logger)
	if errors.Is(err, ErrCanceled) {
		logger.Debug().
			Str(xglog.FieldEvent, "host.restart_canceled").
			Str(xglog.FieldHost, req.Host).
			Str(xglog.FieldDevice, req.Device).
			Str(xglog.FieldQuality, req.Quality.String()).
			Str("reason", req.Reason).
			Msg("restart command canceled by caller")
		return err
	}
	if err != nil {
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "host.restart_failed").
			Str(xglog.FieldHost, req.Host).
			Str(xglog.FieldDevice, req.Device).
			Str(xglog.FieldQuality, req.Quality.String()).
			Str("reason", req.Reason).
			Msg("restart command failed")
		return err
	}
	logger.Debug().
		Str(xglog.FieldEvent, "host.restart_accepted").
		Str(xglog.FieldHost, req.Host).
		Str(xglog.FieldDevice, req.Device).
		Str(xglog.FieldQuality, req.Quality.String()).
		Str("reason", req.Reason).
		Msg("restart command accepted")
	return nil
}

// Revert restarts the stream at the baseline quality; used at viewer teardown.
func (c *Client) Revert(ctx context.Context, host, device string, baseline streamprofile.Quality) error {
	return c.Restart(ctx, RestartRequest{Host: host, Device: device, Quality: baseline, Reason: ReasonRevert})
}

// Probe reports whether a fresh stream artifact exists for (host, device).
// Concurrent probes for the same pair share one request.
func (c *Client) Probe(ctx context.Context, host, device string) (ProbeResult, error) {
	ch := c.probes.DoChan(host+"\x00"+device, func() (interface{}, error) {
		// The shared probe must not die with whichever caller happened to start it.
		sharedCtx := context.WithoutCancel(ctx)
		if dl, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			sharedCtx, cancel = context.WithDeadline(sharedCtx, dl)
			defer cancel()
		}
		return c.probe(sharedCtx, host, device)
	})

	select {
	case <-ctx.Done():
		return ProbeResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ProbeResult{}, r.Err
		}
		return r.Val.(ProbeResult), nil
	}
}

func (c *Client) probe(ctx context.Context, host, device string) (ProbeResult, error) {
	const op = "probe"
	start := time.Now()
	result, err := func() (ProbeResult, error) {
		res, err := c.do(ctx, op, http.MethodGet, c.streamPath(host, device, "status"), nil)
		if err != nil {
			return ProbeResult{}, err
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusNotFound:
			// No artifact yet: the encoder is still coming up.
			_, _ = io.Copy(io.Discard, res.Body)
			return ProbeResult{}, nil
		case res.StatusCode != http.StatusOK:
			return ProbeResult{}, classifyStatus(op, res.StatusCode, readErrorBody(res.Body))
		}

		var p ProbeResult
		if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
			return ProbeResult{}, &Error{Sentinel: ErrUpstreamBadResponse, Operation: op, Status: res.StatusCode, Err: err}
		}
		return p, nil
	}()
	metrics.ObserveHostRequest(op, Class(err), time.Since(start))
	return result, err
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(op, err)
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, &Error{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	reqID := xglog.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	req.Header.Set(HeaderRequestID, reqID)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	return res, nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
