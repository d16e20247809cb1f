// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - RedisCounterStore: contador compartilhado entre instâncias (go-redis)
//   - MemoryCounterStore: contador local com expiração e janitor (testes, instância única)
//   - RedisStatsStore / MemoryStatsStore / PrometheusStatsStore: estatísticas de decisão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
