package application

import (
	"context"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService aplica o limite de requisições em voo, sem saber nada
// sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	// now é substituível em testes.
	now func() time.Time
}

// Acquire tenta adquirir uma vaga e informa quanto tempo esperou.
//   - AcquireTimeout <= 0: espera até o ctx encerrar.
//   - AcquireTimeout > 0: desiste após o timeout.
//
// Sem Pool, sempre admite.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), waited time.Duration, ok bool) {
	if s.Pool == nil {
		return func() {}, 0, true
	}

	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	start := clock()

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok = s.Pool.Acquire(ctx)
	return release, clock().Sub(start), ok
}

// InFlight retorna quantas vagas estão ocupadas agora.
func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}
