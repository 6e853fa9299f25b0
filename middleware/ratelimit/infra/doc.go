// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: janela deslizante por log (ZSET + script Lua) no Redis
//   - MemoryWindowStore: mesma semântica, local ao processo (testes/embutido)
//   - LocalLimiter: token bucket por chave (x/time/rate) para o modo degradado
//   - ChanPool: semáforo simples para limite de concorrência
package infra
