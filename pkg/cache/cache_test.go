package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingObserver struct {
	mu        sync.Mutex
	fresh     int
	stale     int
	misses    int
	evictions int
}

func (o *countingObserver) ObserveCacheHit(capability string, fresh bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if fresh {
		o.fresh++
	} else {
		o.stale++
	}
}

func (o *countingObserver) ObserveCacheMiss(capability string) {
	o.mu.Lock()
	o.misses++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveCacheEviction(n int) {
	o.mu.Lock()
	o.evictions += n
	o.mu.Unlock()
}

func newTestCache(clock *fakeNow, obs Observer) *Cache {
	return New(NewMemoryStore(), Options{
		DefaultTTL:  time.Minute,
		TTLs:        map[string]time.Duration{"filings": time.Hour},
		MaxStaleAge: 10 * time.Minute,
		Now:         clock.Now,
		Observer:    obs,
	})
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("quote", map[string]string{"symbol": "AAPL", "from": "2024-01-01"})
	b := Fingerprint("quote", map[string]string{" From ": "2024-01-01", "SYMBOL": " AAPL"})
	if a != b {
		t.Errorf("order, case and whitespace changed the fingerprint: %s != %s", a, b)
	}

	if c := Fingerprint("quote", map[string]string{"symbol": "aapl", "from": "2024-01-01"}); c == a {
		t.Error("values must stay case-sensitive")
	}
	if d := Fingerprint("news", map[string]string{"symbol": "AAPL", "from": "2024-01-01"}); d == a {
		t.Error("capability must be part of the fingerprint")
	}
	if e := Fingerprint("quote", map[string]string{"symbol": "AAPL", "from": "2024-01-01", "to": ""}); e != a {
		t.Error("empty values should be ignored")
	}
}

func TestCache_FreshThenStaleThenGone(t *testing.T) {
	clock := newFakeNow()
	obs := &countingObserver{}
	c := newTestCache(clock, obs)
	ctx := context.Background()
	key := Fingerprint("quote", map[string]string{"symbol": "AAPL"})

	if _, err := c.Set(ctx, key, "quote", "finnhub", json.RawMessage(`{"c":1}`), time.Time{}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	l, ok := c.Get(ctx, key)
	if !ok || !l.Fresh || l.Age != 0 {
		t.Fatalf("Get() = %+v, %v, want fresh hit", l, ok)
	}
	if l.Entry.Source != "finnhub" || l.Entry.TTL != time.Minute {
		t.Errorf("entry = %+v", l.Entry)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.GetFresh(ctx, "quote", key); ok {
		t.Error("GetFresh() returned a stale entry")
	}
	e, ok := c.GetStale(ctx, "quote", key)
	if !ok || string(e.Payload) != `{"c":1}` {
		t.Fatalf("GetStale() = %v, %v, want stale hit", e, ok)
	}

	clock.Advance(9 * time.Minute)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry past max stale age should be purged on read")
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Errorf("Len() = %d, want 0 after lazy purge", n)
	}
	if obs.fresh != 0 || obs.stale != 1 || obs.misses != 1 || obs.evictions != 1 {
		t.Errorf("observer = fresh %d stale %d misses %d evictions %d", obs.fresh, obs.stale, obs.misses, obs.evictions)
	}
}

func TestCache_PerCapabilityTTL(t *testing.T) {
	c := newTestCache(newFakeNow(), nil)
	if got := c.TTL("filings"); got != time.Hour {
		t.Errorf("TTL(filings) = %v, want 1h", got)
	}
	if got := c.TTL("quote"); got != time.Minute {
		t.Errorf("TTL(quote) = %v, want 1m", got)
	}

	c.SetPolicy(0, map[string]time.Duration{"quote": 15 * time.Second}, time.Hour)
	if got := c.TTL("quote"); got != 15*time.Second {
		t.Errorf("TTL(quote) after SetPolicy = %v, want 15s", got)
	}
	if got := c.TTL("filings"); got != DefaultTTL {
		t.Errorf("TTL(filings) after SetPolicy = %v, want %v", got, DefaultTTL)
	}
}

func TestCache_RetentionCoversLongTTL(t *testing.T) {
	clock := newFakeNow()
	c := newTestCache(clock, nil)
	ctx := context.Background()

	e, err := c.Set(ctx, "filings:x", "filings", "sec", json.RawMessage(`{}`), time.Time{})
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if want := clock.Now().Add(time.Hour); !e.RetainUntil.Equal(want) {
		t.Errorf("RetainUntil = %v, want %v", e.RetainUntil, want)
	}

	clock.Advance(30 * time.Minute)
	if l, ok := c.Get(ctx, "filings:x"); !ok || !l.Fresh {
		t.Error("entry within a TTL longer than max stale age should stay fresh")
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeNow()
	obs := &countingObserver{}
	c := newTestCache(clock, obs)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := Fingerprint("quote", map[string]string{"symbol": string(rune('A' + i))})
		if _, err := c.Set(ctx, key, "quote", "p", json.RawMessage(`{}`), time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(time.Hour)

	n, err := c.Sweep(ctx, 3)
	if err != nil || n != 3 {
		t.Fatalf("Sweep(3) = %d, %v, want 3", n, err)
	}
	n, _ = c.Sweep(ctx, 10)
	if n != 2 {
		t.Errorf("second Sweep = %d, want 2", n)
	}
	if obs.evictions != 5 {
		t.Errorf("evictions = %d, want 5", obs.evictions)
	}
}

func TestCache_FetchOrLoadSingleFlight(t *testing.T) {
	c := newTestCache(newFakeNow(), nil)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		<-release
		return Result{Entry: &Entry{Payload: json.RawMessage(`{"v":1}`), Source: "finnhub"}}, nil
	}

	const callers = 20
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		shared  atomic.Int32
		errs    = make(chan error, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			res, err := c.FetchOrLoad(context.Background(), "quote:k", load)
			if err != nil {
				errs <- err
				return
			}
			if string(res.Entry.Payload) != `{"v":1}` || res.Entry.Source != "finnhub" {
				errs <- errors.New("unexpected result " + string(res.Entry.Payload))
			}
			if res.Shared {
				shared.Add(1)
			}
		}()
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("loader calls = %d, want 1", got)
	}
	if shared.Load() == 0 {
		t.Error("expected callers to report a shared result")
	}
}

func TestCache_FetchOrLoadErrorShared(t *testing.T) {
	c := newTestCache(newFakeNow(), nil)
	boom := errors.New("all providers down")

	_, err := c.FetchOrLoad(context.Background(), "k", func(ctx context.Context) (Result, error) {
		return Result{}, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestCache_FetchOrLoadSurvivesLeaderCancel(t *testing.T) {
	c := newTestCache(newFakeNow(), nil)

	var calls atomic.Int32
	leaderIn := make(chan struct{})
	load := func(ctx context.Context) (Result, error) {
		if calls.Add(1) == 1 {
			close(leaderIn)
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		return Result{Entry: &Entry{Payload: json.RawMessage(`{"ok":true}`)}}, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.FetchOrLoad(leaderCtx, "k", load)
		leaderErr <- err
	}()
	<-leaderIn

	waiterDone := make(chan Result, 1)
	go func() {
		res, err := c.FetchOrLoad(context.Background(), "k", load)
		if err != nil {
			t.Errorf("waiter error: %v", err)
		}
		waiterDone <- res
	}()

	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	select {
	case res := <-waiterDone:
		if res.Entry == nil || string(res.Entry.Payload) != `{"ok":true}` {
			t.Errorf("waiter result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not complete")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader calls = %d, want 2", got)
	}
}

func TestCache_FetchOrLoadWaiterDeadline(t *testing.T) {
	c := newTestCache(newFakeNow(), nil)
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.FetchOrLoad(context.Background(), "k", func(ctx context.Context) (Result, error) {
			<-release
			return Result{}, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.FetchOrLoad(ctx, "k", func(ctx context.Context) (Result, error) {
		t.Error("waiter should not start its own load")
		return Result{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
