package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore exporta as decisões como counter por outcome e rota.
// A identidade não vira label: cardinalidade ilimitada.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by outcome.",
		},
		[]string{"outcome", "method"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(string(ev.Outcome), ev.Method).Inc()
	return nil
}

// MultiStatsStore repassa o evento para vários stores; o primeiro erro é
// retornado, mas todos recebem o evento.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
