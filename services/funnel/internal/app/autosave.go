package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"pillarfunnel/pkg/domain"
)

type pendingSave struct {
	timer *time.Timer
	seq   uint64
	draft domain.Qualification
}

// runningSaves counts the saves currently executing for one key.
type runningSaves struct {
	n  int
	wg sync.WaitGroup
}

// Autosaver debounces draft saves per visitor. Each Schedule call replaces the
// pending timer for its key, so a burst of edits produces one save carrying the
// last draft. Saves that already started are left to finish.
type Autosaver struct {
	delay time.Duration
	save  func(context.Context, domain.Qualification)

	mu       sync.Mutex
	pending  map[string]*pendingSave
	running  map[string]*runningSaves
	seq      uint64
	closed   bool
	inflight sync.WaitGroup
}

func NewAutosaver(delay time.Duration, save func(context.Context, domain.Qualification)) *Autosaver {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Autosaver{
		delay:   delay,
		save:    save,
		pending: make(map[string]*pendingSave),
		running: make(map[string]*runningSaves),
	}
}

func autosaveKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Schedule (re)arms the save timer for key. It returns false after Shutdown.
func (a *Autosaver) Schedule(key string, draft domain.Qualification) bool {
	key = autosaveKey(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if p, ok := a.pending[key]; ok {
		p.timer.Stop()
	}
	a.seq++
	seq := a.seq
	p := &pendingSave{seq: seq, draft: draft}
	p.timer = time.AfterFunc(a.delay, func() { a.fire(key, seq) })
	a.pending[key] = p
	return true
}

// Cancel drops the pending save for key and reports whether one was pending.
func (a *Autosaver) Cancel(key string) bool {
	key = autosaveKey(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(a.pending, key)
	return true
}

// Settle cancels the pending save for key and waits until every save already
// running for key has returned, or until ctx is done.
func (a *Autosaver) Settle(ctx context.Context, key string) error {
	key = autosaveKey(key)
	a.mu.Lock()
	if p, ok := a.pending[key]; ok {
		p.timer.Stop()
		delete(a.pending, key)
	}
	r := a.running[key]
	a.mu.Unlock()
	if r == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin marks a save for key as running. Callers hold a.mu.
func (a *Autosaver) begin(key string) {
	r, ok := a.running[key]
	if !ok {
		r = &runningSaves{}
		a.running[key] = r
	}
	r.n++
	r.wg.Add(1)
	a.inflight.Add(1)
}

func (a *Autosaver) end(key string) {
	a.mu.Lock()
	r := a.running[key]
	r.n--
	if r.n == 0 {
		delete(a.running, key)
	}
	a.mu.Unlock()
	r.wg.Done()
	a.inflight.Done()
}

// Pending returns the number of armed timers.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Autosaver) fire(key string, seq uint64) {
	a.mu.Lock()
	p, ok := a.pending[key]
	if !ok || p.seq != seq {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.begin(key)
	a.mu.Unlock()

	defer a.end(key)
	a.save(context.Background(), p.draft)
}

// Shutdown stops accepting edits, runs every pending save immediately and
// waits for in-flight saves or ctx, whichever comes first.
func (a *Autosaver) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	flush := make(map[string]domain.Qualification, len(a.pending))
	for key, p := range a.pending {
		p.timer.Stop()
		flush[key] = p.draft
		delete(a.pending, key)
		a.begin(key)
	}
	a.mu.Unlock()

	for key, draft := range flush {
		go func(key string, d domain.Qualification) {
			defer a.end(key)
			a.save(ctx, d)
		}(key, draft)
	}

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
