package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// expireIfNewScript aplica PEXPIRE só quando a chave existe sem TTL.
// Equivale a PEXPIRE ... NX, mas roda em Redis anterior ao 7.0.
var expireIfNewScript = redis.NewScript(`
if redis.call("PTTL", KEYS[1]) == -1 then
  return redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return 0
`)

// RedisCounterStore implementa domain.CounterStore sobre Redis.
//
// INCR é atômico no servidor, o que garante contagens sem perda entre todas
// as instâncias do gateway. O cliente é de longa duração e compartilhado.
type RedisCounterStore struct {
	rdb redis.Cmdable
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

func NewRedisCounterStore(rdb redis.Cmdable) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

// ExpireIfNew não sobrescreve um TTL existente e não cria a chave se ela sumiu.
func (s *RedisCounterStore) ExpireIfNew(ctx context.Context, key string, ttl time.Duration) error {
	return expireIfNewScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Err()
}

// TTL usa PTTL. -1 (sem TTL) e -2 (chave inexistente) voltam como duração negativa.
func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return -1, nil
	}
	return d, nil
}
