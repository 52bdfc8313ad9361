package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Outcome summarizes how far down the fallback chain a delivery had to go.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeDegraded     Outcome = "degraded"
	OutcomeNotDelivered Outcome = "not_delivered"
)

// Channel names a delivery mechanism in the fallback chain.
type Channel string

const (
	ChannelClient    Channel = "client"
	ChannelTransport Channel = "transport"
	ChannelBeacon    Channel = "beacon"
)

// TransportState is reported by the transport channel as a request progresses.
type TransportState string

const (
	StateOpened  TransportState = "opened"
	StateHeaders TransportState = "headers"
	StateDone    TransportState = "done"
)

// Request is a single delivery. Body is the encoded payload; for GET it is
// appended to Endpoint as the query string, for POST it is sent as a form body.
type Request struct {
	Endpoint string
	Method   string
	Body     string
}

// Attempt records one channel try.
type Attempt struct {
	Channel  Channel          `json:"channel"`
	Status   int              `json:"status,omitempty"`
	Err      string           `json:"error,omitempty"`
	States   []TransportState `json:"states,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Result is returned by Deliver. It is only ever logged.
type Result struct {
	Outcome  Outcome   `json:"outcome"`
	Channel  Channel   `json:"channel,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds every observed attempt. Zero means 5s.
	Timeout time.Duration
	// DisableBeacon removes the last-resort channel.
	DisableBeacon bool
	Client        *http.Client
	Transport     http.RoundTripper
	Logger        *slog.Logger
	// OnTransportState observes the transport channel, mostly for tests.
	OnTransportState func(TransportState)
}

// Dispatcher delivers webhook requests through client, transport and beacon
// channels in order, stopping at the first one that succeeds.
type Dispatcher struct {
	timeout      time.Duration
	beacon       bool
	client       *http.Client
	transport    http.RoundTripper
	beaconClient *http.Client
	logger       *slog.Logger
	onState      func(TransportState)
	inflight     sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: timeout,
			DisableKeepAlives:   true,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		timeout:      timeout,
		beacon:       !cfg.DisableBeacon,
		client:       client,
		transport:    transport,
		beaconClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:       logger,
		onState:      cfg.OnTransportState,
	}
}

// Deliver never returns an error. Failures are logged and reflected in the Result.
func (d *Dispatcher) Deliver(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("webhook_delivery_panic", "panic", fmt.Sprint(r))
			res.Outcome = OutcomeNotDelivered
		}
	}()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	req.Method = method

	a := d.tryClient(ctx, req)
	res.Attempts = append(res.Attempts, a)
	if a.Err == "" {
		res.Outcome, res.Channel = OutcomeDelivered, ChannelClient
		return res
	}
	d.logger.Warn("webhook_channel_failed", "channel", a.Channel, "status", a.Status, "error", a.Err)

	a = d.tryTransport(ctx, req)
	res.Attempts = append(res.Attempts, a)
	if a.Err == "" {
		res.Outcome, res.Channel = OutcomeDegraded, ChannelTransport
		return res
	}
	d.logger.Warn("webhook_channel_failed", "channel", a.Channel, "status", a.Status, "error", a.Err)

	a = d.fireBeacon(ctx, req)
	res.Attempts = append(res.Attempts, a)
	if a.Err == "" {
		res.Outcome, res.Channel = OutcomeDegraded, ChannelBeacon
		return res
	}
	d.logger.Warn("webhook_channel_failed", "channel", a.Channel, "error", a.Err)
	res.Outcome = OutcomeNotDelivered
	return res
}

// Wait blocks until every fired beacon has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) tryClient(ctx context.Context, req Request) Attempt {
	start := time.Now()
	at := Attempt{Channel: ChannelClient}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	httpReq, err := buildRequest(ctx, req)
	if err != nil {
		at.Err = err.Error()
		at.Duration = time.Since(start)
		return at
	}
	resp, err := d.client.Do(httpReq)
	at.Duration = time.Since(start)
	if err != nil {
		at.Err = err.Error()
		return at
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	at.Status = resp.StatusCode
	if !isSuccess(resp.StatusCode) {
		at.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return at
}

func (d *Dispatcher) tryTransport(ctx context.Context, req Request) Attempt {
	start := time.Now()
	at := Attempt{Channel: ChannelTransport}
	var mu sync.Mutex
	record := func(s TransportState) {
		mu.Lock()
		at.States = append(at.States, s)
		mu.Unlock()
		if d.onState != nil {
			d.onState(s)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	trace := &httptrace.ClientTrace{
		GotConn:              func(httptrace.GotConnInfo) { record(StateOpened) },
		GotFirstResponseByte: func() { record(StateHeaders) },
	}
	httpReq, err := buildRequest(httptrace.WithClientTrace(ctx, trace), req)
	if err != nil {
		at.Err = err.Error()
		at.Duration = time.Since(start)
		return at
	}
	resp, err := d.transport.RoundTrip(httpReq)
	if err != nil {
		record(StateDone)
		mu.Lock()
		at.Err = err.Error()
		mu.Unlock()
		at.Duration = time.Since(start)
		return at
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	record(StateDone)

	mu.Lock()
	defer mu.Unlock()
	at.Duration = time.Since(start)
	at.Status = resp.StatusCode
	if !isSuccess(resp.StatusCode) {
		at.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return at
}

// fireBeacon issues a detached GET carrying the payload in the query string.
// Its result is never observed.
func (d *Dispatcher) fireBeacon(ctx context.Context, req Request) Attempt {
	at := Attempt{Channel: ChannelBeacon}
	if !d.beacon {
		at.Err = "beacon disabled"
		return at
	}
	if err := ctx.Err(); err != nil {
		at.Err = err.Error()
		return at
	}
	target, err := joinQuery(req.Endpoint, req.Body)
	if err != nil {
		at.Err = err.Error()
		return at
	}
	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, target, nil)
	if err != nil {
		at.Err = err.Error()
		return at
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		resp, err := d.beaconClient.Do(httpReq)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()
	return at
}

func buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	switch req.Method {
	case http.MethodGet:
		target, err := joinQuery(req.Endpoint, req.Body)
		if err != nil {
			return nil, err
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	case http.MethodPost:
		if _, err := parseEndpoint(req.Endpoint); err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(req.Body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return httpReq, nil
	default:
		return nil, fmt.Errorf("unsupported webhook method %q", req.Method)
	}
}

func joinQuery(endpoint, query string) (string, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	switch {
	case query == "":
	case u.RawQuery == "":
		u.RawQuery = query
	default:
		u.RawQuery = u.RawQuery + "&" + query
	}
	return u.String(), nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse webhook endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("webhook endpoint must be http or https")
	}
	if u.Host == "" {
		return nil, errors.New("webhook endpoint host is required")
	}
	return u, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
