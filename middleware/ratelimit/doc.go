// Package ratelimit fornece o gate de rate limit por janela fixa como middleware net/http,
// além do limite de concorrência.
//
// Camadas:
//
//   - domain: contratos e tipos (Identity, Decision, CounterStore), sem net/http
//   - application: decisão por janela fixa (Service.Decide) e aquisição de vagas
//   - infra: Redis/memória para contadores e estatísticas, semáforo
//   - ratelimit (este pacote): middlewares HTTP, extração de identidade, headers e 429
//
// Fluxo por requisição:
//
//  1. Resolve a identidade (header -> X-Forwarded-For -> RemoteAddr -> "anonymous")
//  2. Chama Service.Decide (INCR, EXPIRE na primeira, PTTL)
//  3. Admitida: seta X-RateLimit-* e chama o próximo handler
//  4. Rejeitada: 429 com Retry-After e corpo JSON
//  5. Store indisponível: fail-open, sem headers de rate limit, com log limitado
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_LIMIT, RATE_WINDOW, REDIS_ADDR e STORE_TIMEOUT.
package ratelimit
