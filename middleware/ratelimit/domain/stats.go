package domain

import (
	"context"
	"time"
)

// Outcome é o desfecho de uma requisição no gate.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	// OutcomeFailOpen: store indisponível, requisição admitida sem headers.
	OutcomeFailOpen Outcome = "fail_open"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Method/Path são strings genéricas; cuidado com cardinalidade ao persistir
// Identity/Path em Redis ou Prometheus.
type StatsEvent struct {
	Identity Identity
	Outcome  Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas do gate. O middleware trata erro como
// best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
