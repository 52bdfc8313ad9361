package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverClientSuccess(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: time.Second, Logger: quietLogger()})
	res := d.Deliver(context.Background(), Request{Endpoint: srv.URL + "/hook", Body: "a=1&b=2"})
	if res.Outcome != OutcomeDelivered || res.Channel != ChannelClient {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Status != http.StatusOK {
		t.Fatalf("unexpected attempts: %+v", res.Attempts)
	}
	if got.Get("a") != "1" || got.Get("b") != "2" {
		t.Fatalf("query not delivered: %v", got)
	}
}

func TestDeliverFallsBackToTransport(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var states []TransportState
	d := NewDispatcher(DispatcherConfig{
		Timeout: time.Second,
		Logger:  quietLogger(),
		OnTransportState: func(s TransportState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	res := d.Deliver(context.Background(), Request{Endpoint: srv.URL, Body: "x=1"})
	if res.Outcome != OutcomeDegraded || res.Channel != ChannelTransport {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Status != http.StatusBadGateway {
		t.Fatalf("unexpected attempts: %+v", res.Attempts)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []TransportState{StateOpened, StateHeaders, StateDone}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestDeliverEndpointDownFiresBeacon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: 500 * time.Millisecond, Logger: quietLogger()})
	start := time.Now()
	res := d.Deliver(context.Background(), Request{Endpoint: endpoint, Body: "x=1"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("delivery took %v", elapsed)
	}
	if res.Outcome != OutcomeDegraded || res.Channel != ChannelBeacon {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("expected three attempts, got %+v", res.Attempts)
	}
	d.Wait()
}

func TestDeliverNotDeliveredWithoutBeacon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: 500 * time.Millisecond, DisableBeacon: true, Logger: quietLogger()})
	res := d.Deliver(context.Background(), Request{Endpoint: endpoint, Body: "x=1"})
	if res.Outcome != OutcomeNotDelivered {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDeliverMalformedEndpoint(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Timeout: 200 * time.Millisecond, Logger: quietLogger()})
	for _, endpoint := range []string{"", "::not a url", "ftp://example.com/hook"} {
		res := d.Deliver(context.Background(), Request{Endpoint: endpoint, Body: "x=1"})
		if res.Outcome != OutcomeNotDelivered {
			t.Fatalf("endpoint %q: unexpected result %+v", endpoint, res)
		}
	}
}

func TestDeliverPostFallsBackToBeaconGet(t *testing.T) {
	beacon := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil || r.PostForm.Get("x") != "1" {
				t.Errorf("form body not sent: %v %v", err, r.PostForm)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		beacon <- r.URL.Query()
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: time.Second, Logger: quietLogger()})
	res := d.Deliver(context.Background(), Request{Endpoint: srv.URL, Method: "post", Body: "x=1"})
	if res.Outcome != OutcomeDegraded || res.Channel != ChannelBeacon {
		t.Fatalf("unexpected result: %+v", res)
	}
	d.Wait()
	select {
	case q := <-beacon:
		if q.Get("x") != "1" {
			t.Fatalf("beacon query = %v", q)
		}
	default:
		t.Fatal("beacon request not received")
	}
}

func TestDeliverBoundedOnSlowEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	timeout := 150 * time.Millisecond
	d := NewDispatcher(DispatcherConfig{Timeout: timeout, Logger: quietLogger()})
	start := time.Now()
	res := d.Deliver(context.Background(), Request{Endpoint: srv.URL, Body: "x=1"})
	if elapsed := time.Since(start); elapsed > 2*timeout+time.Second {
		t.Fatalf("delivery not bounded: %v", elapsed)
	}
	if res.Outcome != OutcomeDegraded || res.Channel != ChannelBeacon {
		t.Fatalf("unexpected result: %+v", res)
	}
	d.Wait()
}

func TestDeliverCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDispatcher(DispatcherConfig{Timeout: 200 * time.Millisecond, Logger: quietLogger()})
	res := d.Deliver(ctx, Request{Endpoint: "http://127.0.0.1:1/hook", Body: "x=1"})
	if res.Outcome != OutcomeNotDelivered {
		t.Fatalf("unexpected result: %+v", res)
	}
}
