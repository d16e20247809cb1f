package infra

import (
	"context"
	"sync"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore implementa domain.CounterStore em memória, com expiração
// por chave e limpeza periódica.
//
// O estado é local ao processo: não serve para limitar entre instâncias.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	count     int64
	expiresAt time.Time // zero: sem TTL
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock troca o relógio usado para expiração.
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]*counterEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// live retorna a entrada de key, descartando-a se já expirou. Chamar com mu.
func (s *MemoryCounterStore) live(key string, now time.Time) (*counterEntry, bool) {
	ent, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !ent.expiresAt.IsZero() && !now.Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return ent, true
}

func (s *MemoryCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key, s.now())
	if !ok {
		ent = &counterEntry{}
		s.entries[key] = ent
	}
	ent.count++
	return ent.count, nil
}

func (s *MemoryCounterStore) ExpireIfNew(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key, now)
	if !ok || !ent.expiresAt.IsZero() {
		return nil
	}
	ent.expiresAt = now.Add(ttl)
	return nil
}

func (s *MemoryCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key, now)
	if !ok {
		return -2, nil
	}
	if ent.expiresAt.IsZero() {
		return -1, nil
	}
	return ent.expiresAt.Sub(now), nil
}

// Len retorna quantas chaves estão guardadas (inclusive expiradas ainda não limpas).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove as janelas expiradas.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !ent.expiresAt.IsZero() && !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
