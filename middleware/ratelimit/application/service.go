package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

const (
	DefaultKeyPrefix = "rate:user:"
	DefaultOpTimeout = 100 * time.Millisecond
)

// Config agrega os parâmetros estáticos do gate.
type Config struct {
	// Limit é o máximo de requisições admitidas por janela.
	Limit int64
	// Window é a duração fixa de cada janela, contada a partir da primeira
	// requisição que a cria.
	Window time.Duration
	// KeyPrefix namespaceia as chaves no store. Default: DefaultKeyPrefix.
	KeyPrefix string
	// OpTimeout limita cada chamada ao store. Default: DefaultOpTimeout.
	OpTimeout time.Duration
}

// Service decide admitir ou rejeitar por identidade, usando um contador
// compartilhado no CounterStore.
//
// Não guarda estado mutável: pode ser usado por qualquer número de goroutines.
type Service struct {
	store domain.CounterStore
	cfg   Config
}

func NewService(store domain.CounterStore, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", cfg.Limit)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be > 0, got %s", cfg.Window)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Service{store: store, cfg: cfg}, nil
}

func (s *Service) Limit() int64          { return s.cfg.Limit }
func (s *Service) Window() time.Duration { return s.cfg.Window }

// Key devolve a chave do store para a identidade.
func (s *Service) Key(id domain.Identity) string {
	return s.cfg.KeyPrefix + string(id.Normalize())
}

// Decide incrementa o contador da janela atual da identidade e avalia o limite.
//
// Passos: INCR; se o valor for 1, define o TTL da janela; consulta o TTL para
// os metadados. Cada passo é uma única tentativa limitada por OpTimeout.
// Qualquer falha do store retorna um erro que satisfaz
// errors.Is(err, domain.ErrStoreUnavailable); a política (fail-open) é de quem chama.
//
// Um crash entre o INCR e o EXPIRE deixa um contador sem TTL. Esse caso não é
// corrigido aqui: a decisão segue com ResetAt = now.
func (s *Service) Decide(ctx context.Context, id domain.Identity, now time.Time) (domain.Decision, error) {
	id = id.Normalize()
	key := s.Key(id)

	count, err := s.increment(ctx, key)
	if err != nil {
		return domain.Decision{}, err
	}

	if count == 1 {
		if err := s.expireIfNew(ctx, key); err != nil {
			return domain.Decision{}, err
		}
	}

	ttl, err := s.ttl(ctx, key)
	if err != nil {
		return domain.Decision{}, err
	}

	return s.decision(id, count, ttl, now), nil
}

func (s *Service) decision(id domain.Identity, count int64, ttl time.Duration, now time.Time) domain.Decision {
	dec := domain.Decision{
		Identity:  id,
		Limit:     s.cfg.Limit,
		Count:     count,
		Remaining: max(0, s.cfg.Limit-count),
		ResetAt:   now,
		Allowed:   count <= s.cfg.Limit,
	}
	if ttl > 0 {
		dec.ResetAt = now.Add(ttl)
		dec.RetryAfter = ceilSeconds(ttl)
	}
	return dec
}

func (s *Service) increment(ctx context.Context, key string) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	n, err := s.store.Increment(opCtx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return n, nil
}

func (s *Service) expireIfNew(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	if err := s.store.ExpireIfNew(opCtx, key, s.cfg.Window); err != nil {
		return fmt.Errorf("%w: expire %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *Service) ttl(ctx context.Context, key string) (time.Duration, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	d, err := s.store.TTL(opCtx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: ttl %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return d, nil
}

func ceilSeconds(d time.Duration) time.Duration {
	return (d + time.Second - 1) / time.Second * time.Second
}
