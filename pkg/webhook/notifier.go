package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier binds the dispatcher to the configured automation endpoint.
type Notifier struct {
	endpoint   string
	method     string
	dispatcher *Dispatcher
	now        func() time.Time
	logger     *slog.Logger
}

// NotifierConfig configures a Notifier. Method is GET (payload in the query
// string) or POST (form body); anything else falls back to GET.
type NotifierConfig struct {
	Endpoint   string
	Method     string
	Dispatcher *Dispatcher
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method != http.MethodPost {
		method = http.MethodGet
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(DispatcherConfig{Logger: logger})
	}
	return &Notifier{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		method:     method,
		dispatcher: dispatcher,
		now:        now,
		logger:     logger,
	}
}

// Notify encodes ev with the current time and source and delivers it.
// A notifier with no endpoint reports not_delivered without touching the network.
func (n *Notifier) Notify(ctx context.Context, ev Event, source string) Result {
	if n == nil || n.endpoint == "" {
		return Result{Outcome: OutcomeNotDelivered}
	}
	body := Encode(ev, Enrichment{Timestamp: n.now(), Source: source})
	res := n.dispatcher.Deliver(ctx, Request{Endpoint: n.endpoint, Method: n.method, Body: body})

	level := slog.LevelInfo
	if res.Outcome != OutcomeDelivered {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "webhook_delivery",
		"event", ev.Kind,
		"outcome", res.Outcome,
		"channel", res.Channel,
		"attempts", len(res.Attempts),
	)
	return res
}

// Wait drains beacons fired by the underlying dispatcher.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.dispatcher.Wait()
}
