package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// Decider é o motor de decisão consumido pelo middleware
// (implementado por application.Service).
type Decider interface {
	Decide(ctx context.Context, id domain.Identity, now time.Time) (domain.Decision, error)
}

type Options struct {
	Decider            Decider
	Stats              domain.StatsStore
	Logger             *slog.Logger
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// FailOpenLogEvery limita os logs de store indisponível a um por intervalo.
	// Default 5s.
	FailOpenLogEvery time.Duration

	// StatsTimeout limita cada Record. Default 50ms.
	StatsTimeout time.Duration

	// Now é substituível em testes. Default time.Now.
	Now func() time.Time
}

// Middleware aplica o gate antes do próximo handler.
//
// Admitida: headers X-RateLimit-* e next. Rejeitada: 429 JSON com Retry-After.
// Erro do Decider: fail-open, next sem headers de rate limit. O gate nunca
// responde 5xx. Se o erro vier do cancelamento do request, nada é servido nem
// contabilizado.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Decider == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyHeader == "" {
		opts.KeyHeader = DefaultKeyHeader
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FailOpenLogEvery <= 0 {
		opts.FailOpenLogEvery = 5 * time.Second
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = 50 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	failOpenLog := newThrottledLogger(opts.Logger, opts.FailOpenLogEvery)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := opts.KeyFn(r).Normalize()
			now := opts.Now()

			dec, err := opts.Decider.Decide(ctx, id, now)
			if err != nil && ctx.Err() != nil {
				// cliente desconectou: não é falha do store
				opts.Logger.DebugContext(ctx, "rate limiter: request canceled",
					slog.String("identity", string(id)),
					slog.Any("error", ctx.Err()),
				)
				return
			}
			if err != nil {
				failOpenLog.Warn(ctx, "rate limiter: store unavailable, failing open",
					slog.String("identity", string(id)),
					slog.Any("error", err),
				)
				record(ctx, opts, r, id, domain.OutcomeFailOpen, now)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w.Header(), dec)

			if !dec.Allowed {
				record(ctx, opts, r, id, domain.OutcomeDenied, now)
				opts.Logger.DebugContext(ctx, "rate limiter: request rejected",
					slog.String("identity", string(id)),
					slog.Int64("count", dec.Count),
					slog.Int64("limit", dec.Limit),
				)
				writeTooManyRequests(w, dec)
				return
			}

			record(ctx, opts, r, id, domain.OutcomeAllowed, now)
			next.ServeHTTP(w, r)
		})
	}
}

func record(ctx context.Context, opts Options, r *http.Request, id domain.Identity, o domain.Outcome, at time.Time) {
	if opts.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opts.StatsTimeout)
	defer cancel()
	err := opts.Stats.Record(ctx, domain.StatsEvent{
		Identity: id,
		Outcome:  o,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       at,
	})
	if err != nil {
		opts.Logger.DebugContext(ctx, "rate limiter: stats record failed", slog.Any("error", err))
	}
}

// throttledLogger emite no máximo um log por intervalo e informa quantos
// foram suprimidos desde o último.
type throttledLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func newThrottledLogger(logger *slog.Logger, every time.Duration) *throttledLogger {
	return &throttledLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

func (l *throttledLogger) Warn(ctx context.Context, msg string, attrs ...any) {
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	if n := l.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, slog.Int64("suppressed", n))
	}
	l.logger.WarnContext(ctx, msg, attrs...)
}
