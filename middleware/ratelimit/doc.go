// Package ratelimit fornece adapters HTTP (net/http) para o controle de
// admissão de requisições: quotas por janela deslizante e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (regras, decisão, store de janela; sem net/http)
//   - application: casos de uso (resolução de regras, avaliação com rollback, fallback) sem net/http
//   - infra: implementações concretas (janela deslizante no Redis via script Lua,
//     janela em memória, token bucket local, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + construção do RequestContext +
//     tradução da Decision para status/headers/corpo 429 + métricas Prometheus
//
// Fluxo no gateway:
//
//  1. Constrói o RequestContext na borda (IP/usuário/tier/endpoint normalizado)
//  2. Chama a camada application para obter a Decision sob o snapshot de regras vigente
//  3. Carimba os headers X-RateLimit-*; se bloqueado, responde 429 (quota) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// O binário gateway (cmd/gateway) lê o arquivo de regras (CONFIG_PATH) com hot
// reload e variáveis de ambiente para o resto, como LISTEN_ADDR, UPSTREAM_URL,
// CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
