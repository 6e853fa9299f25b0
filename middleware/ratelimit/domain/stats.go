package domain

import (
	"context"
	"time"
)

// Key identifica o cliente nas estatísticas (IP, usuário, API key).
type Key string

// StatsEvent representa uma decisão de admissão para fins de estatística.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool

	// Degraded distingue "limitado de verdade" de "limiter operando sem o
	// store compartilhado"; operadores precisam separar as duas coisas.
	Degraded bool

	// RuleID é a regra violada; vazio quando a requisição foi admitida.
	RuleID string

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
