package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// fakeStore é um CounterStore em memória com relógio controlado pelo teste.
type fakeStore struct {
	mu      sync.Mutex
	now     time.Time
	counts  map[string]int64
	expires map[string]time.Time

	failOn   string // "incr", "expire" ou "ttl"
	expireN  int
	blockFor time.Duration
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{
		now:     now,
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

var errBoom = errors.New("connection refused")

func (f *fakeStore) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeStore) evict(key string) {
	if exp, ok := f.expires[key]; ok && !f.now.Before(exp) {
		delete(f.counts, key)
		delete(f.expires, key)
	}
}

func (f *fakeStore) Increment(ctx context.Context, key string) (int64, error) {
	if f.blockFor > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(f.blockFor):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "incr" {
		return 0, errBoom
	}
	f.evict(key)
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeStore) ExpireIfNew(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "expire" {
		return errBoom
	}
	f.expireN++
	if _, ok := f.expires[key]; ok {
		return nil
	}
	if _, ok := f.counts[key]; !ok {
		return nil
	}
	f.expires[key] = f.now.Add(ttl)
	return nil
}

func (f *fakeStore) TTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "ttl" {
		return 0, errBoom
	}
	f.evict(key)
	exp, ok := f.expires[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(f.now), nil
}

func (f *fakeStore) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func newTestService(t *testing.T, store domain.CounterStore, limit int64, window time.Duration) *Service {
	t.Helper()
	svc, err := NewService(store, Config{Limit: limit, Window: window})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func TestNewService_ValidatesConfig(t *testing.T) {
	store := newFakeStore(time.Now())
	cases := []struct {
		name  string
		store domain.CounterStore
		cfg   Config
	}{
		{"nil store", nil, Config{Limit: 1, Window: time.Second}},
		{"zero limit", store, Config{Limit: 0, Window: time.Second}},
		{"negative window", store, Config{Limit: 1, Window: -time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewService(tc.store, tc.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestService_Key_UsesPrefixAndAnonymousFallback(t *testing.T) {
	svc := newTestService(t, newFakeStore(time.Now()), 1, time.Second)

	if got := svc.Key("alice"); got != "rate:user:alice" {
		t.Fatalf("expected default prefix key, got %q", got)
	}
	if got := svc.Key("  "); got != "rate:user:anonymous" {
		t.Fatalf("expected anonymous key, got %q", got)
	}
}

func TestService_Decide_FixedWindowScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(start)
	svc := newTestService(t, store, 3, 60*time.Second)
	ctx := context.Background()

	for i, want := range []int64{2, 1, 0} {
		store.advance(time.Second)
		dec, err := svc.Decide(ctx, "alice", store.clock())
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if dec.Count != int64(i+1) {
			t.Fatalf("request %d: expected count %d, got %d", i+1, i+1, dec.Count)
		}
		if dec.Remaining != want {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, want, dec.Remaining)
		}
	}

	// janela criada em start+1s; quarta request em start+5s
	store.advance(2 * time.Second)
	dec, err := svc.Decide(ctx, "alice", store.clock())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected 4th request to be rejected")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining clamped to 0, got %d", dec.Remaining)
	}
	if dec.RetryAfter != 56*time.Second {
		t.Fatalf("expected RetryAfter=56s, got %s", dec.RetryAfter)
	}
	if want := start.Add(61 * time.Second); !dec.ResetAt.Equal(want) {
		t.Fatalf("expected ResetAt=%s, got %s", want, dec.ResetAt)
	}

	store.advance(61 * time.Second)
	dec, err = svc.Decide(ctx, "alice", store.clock())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed || dec.Count != 1 || dec.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", dec)
	}
}

func TestService_Decide_LimitBoundary(t *testing.T) {
	store := newFakeStore(time.Now())
	svc := newTestService(t, store, 5, time.Minute)
	ctx := context.Background()

	var dec domain.Decision
	for i := 0; i < 5; i++ {
		var err error
		dec, err = svc.Decide(ctx, "k", store.clock())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !dec.Allowed || dec.Count != 5 {
		t.Fatalf("expected limit-th request admitted, got %+v", dec)
	}

	dec, _ = svc.Decide(ctx, "k", store.clock())
	if dec.Allowed || dec.Count != 6 {
		t.Fatalf("expected (limit+1)-th request rejected, got %+v", dec)
	}
}

func TestService_Decide_ExpiresOnlyOnFirstIncrement(t *testing.T) {
	store := newFakeStore(time.Now())
	svc := newTestService(t, store, 10, time.Minute)

	for i := 0; i < 4; i++ {
		if _, err := svc.Decide(context.Background(), "alice", store.clock()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.expireN != 1 {
		t.Fatalf("expected ExpireIfNew to be called once, got %d", store.expireN)
	}
}

func TestService_Decide_MissingExpiryIsDegradedNotFatal(t *testing.T) {
	now := time.Now()
	store := newFakeStore(now)
	// contador órfão: existe sem TTL
	store.counts["rate:user:alice"] = 7
	svc := newTestService(t, store, 10, time.Minute)

	dec, err := svc.Decide(context.Background(), "alice", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Count != 8 || !dec.Allowed {
		t.Fatalf("unexpected decision %+v", dec)
	}
	if !dec.ResetAt.Equal(now) || dec.RetryAfter != 0 {
		t.Fatalf("expected ResetAt=now and RetryAfter=0, got %s %s", dec.ResetAt, dec.RetryAfter)
	}
	if store.expireN != 0 {
		t.Fatalf("expected no retroactive expire, got %d calls", store.expireN)
	}
}

func TestService_Decide_FailedExpireLeavesCounterWithoutReset(t *testing.T) {
	now := time.Now()
	store := newFakeStore(now)
	svc := newTestService(t, store, 10, time.Minute)

	store.failOn = "expire"
	if _, err := svc.Decide(context.Background(), "alice", now); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	store.failOn = ""

	dec, err := svc.Decide(context.Background(), "alice", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Count != 2 || !dec.Allowed {
		t.Fatalf("unexpected decision %+v", dec)
	}
	if !dec.ResetAt.Equal(now) || dec.RetryAfter != 0 {
		t.Fatalf("expected ResetAt=now and RetryAfter=0, got %s %s", dec.ResetAt, dec.RetryAfter)
	}
}

func TestService_Decide_StoreFailuresAreUnavailable(t *testing.T) {
	for _, op := range []string{"incr", "expire", "ttl"} {
		t.Run(op, func(t *testing.T) {
			store := newFakeStore(time.Now())
			store.failOn = op
			svc := newTestService(t, store, 1, time.Minute)

			_, err := svc.Decide(context.Background(), "alice", time.Now())
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				t.Fatalf("expected ErrStoreUnavailable, got %v", err)
			}
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected cause to be wrapped, got %v", err)
			}
		})
	}
}

func TestService_Decide_TimeoutIsUnavailable(t *testing.T) {
	store := newFakeStore(time.Now())
	store.blockFor = time.Second
	svc, err := NewService(store, Config{Limit: 1, Window: time.Minute, OpTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	_, err = svc.Decide(context.Background(), "alice", time.Now())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected decision bounded by op timeout, took %s", elapsed)
	}
}

func TestService_Decide_ConcurrentIncrementsHaveNoGaps(t *testing.T) {
	const n = 200
	store := newFakeStore(time.Now())
	svc := newTestService(t, store, n, time.Minute)

	counts := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := svc.Decide(context.Background(), "alice", time.Now())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			counts <- dec.Count
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int64]bool, n)
	for c := range counts {
		if seen[c] {
			t.Fatalf("count %d observed twice", c)
		}
		seen[c] = true
	}
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Fatalf("count %d never observed", i)
		}
	}
}

func TestService_Decide_IdentitiesAreIndependent(t *testing.T) {
	const limit = 50
	store := newFakeStore(time.Now())
	svc := newTestService(t, store, limit, time.Minute)

	var wg sync.WaitGroup
	for _, id := range []domain.Identity{"alice", "bob"} {
		for i := 0; i < limit; i++ {
			wg.Add(1)
			go func(id domain.Identity) {
				defer wg.Done()
				dec, err := svc.Decide(context.Background(), id, time.Now())
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if !dec.Allowed {
					t.Errorf("expected %s request to be allowed, got %+v", id, dec)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, key := range []string{"rate:user:alice", "rate:user:bob"} {
		if got := store.counts[key]; got != limit {
			t.Fatalf("expected %s count %d, got %d", key, limit, got)
		}
	}
}
