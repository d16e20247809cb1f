package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AnonymousIdentity é o placeholder compartilhado por todos os clientes sem
// identidade resolvida. Todos eles dividem o mesmo contador.
const AnonymousIdentity Identity = "anonymous"

// ErrStoreUnavailable indica falha ao falar com o counter store (timeout,
// conexão recusada, erro de protocolo). Quem chama aplica fail-open.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// Identity é o sujeito contra o qual o limite é contado (user id, IP, ...).
type Identity string

// Normalize devolve AnonymousIdentity para identidades vazias.
func (id Identity) Normalize() Identity {
	v := strings.TrimSpace(string(id))
	if v == "" {
		return AnonymousIdentity
	}
	return Identity(v)
}

// CounterStore é o adapter mínimo para um store externo de contadores atômicos.
//
// Implementações devem ser seguras para uso concorrente e Increment deve ser
// linearizável por chave.
type CounterStore interface {
	// Increment incrementa atomicamente o inteiro em key (criando com 0 se
	// ausente) e retorna o novo valor.
	Increment(ctx context.Context, key string) (int64, error)

	// ExpireIfNew define um TTL em key somente se ainda não houver um.
	// Chave já com TTL ou inexistente não é erro; apenas falhas de transporte.
	ExpireIfNew(ctx context.Context, key string, ttl time.Duration) error

	// TTL retorna o tempo restante de key. Valor negativo significa que não
	// há TTL (ou a chave sumiu).
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Decision é o resultado de uma avaliação. Não é armazenado: deriva do
// contador pós-incremento e do TTL da janela.
type Decision struct {
	Identity  Identity
	Limit     int64
	Count     int64
	Remaining int64
	// ResetAt é o instante em que a janela atual expira. Se o contador não
	// tem TTL (caso degradado), é o próprio now da decisão.
	ResetAt time.Time
	// RetryAfter é o TTL restante arredondado para cima em segundos.
	// 0 quando o TTL é desconhecido.
	RetryAfter time.Duration
	Allowed    bool
}
