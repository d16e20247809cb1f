package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
	// Registerer recebe o gauge de requisições em voo e o histograma de espera.
	// Opcional.
	Registerer prometheus.Registerer
}

// ConcurrencyMiddleware limita requisições simultâneas. Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) (func(next http.Handler) http.Handler, error) {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	wait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ratelimit",
		Name:      "concurrency_wait_seconds",
		Help:      "Time spent waiting for an in-flight slot.",
		Buckets:   prometheus.DefBuckets,
	})
	if opts.Registerer != nil {
		inflight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ratelimit",
			Name:      "inflight_requests",
			Help:      "Requests currently holding a concurrency slot.",
		}, func() float64 { return float64(svc.InFlight()) })
		for _, c := range []prometheus.Collector{inflight, wait} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, waited, ok := svc.Acquire(r.Context())
			wait.Observe(waited.Seconds())
			if !ok {
				opts.Logger.WarnContext(r.Context(), "concurrency limit reached",
					slog.Int("max", opts.Max),
					slog.Duration("waited", waited),
				)
				writeJSONError(w, opts.RejectStatus, errorBody{
					Error:   http.StatusText(opts.RejectStatus),
					Message: "Too many concurrent requests. Try again later.",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}, nil
}
