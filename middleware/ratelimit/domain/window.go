package domain

import (
	"context"
	"time"
)

// WindowResult é o resultado do check-and-record atômico para uma chave.
type WindowResult struct {
	// Admitted indica se esta chamada registrou uma entrada nova.
	Admitted bool

	// Count é o número de entradas vivas na janela após a chamada
	// (incluindo a entrada recém registrada, quando admitida).
	Count int64

	// Earliest é a entrada viva mais antiga; zero quando a série está vazia.
	// O reset da janela é Earliest + window (quando a entrada mais antiga
	// expira, uma vaga abre), nunca uma borda de relógio alinhada.
	Earliest time.Time

	// Member identifica a entrada registrada por esta chamada, para permitir
	// rollback exato via Remove. Vazio quando não admitida.
	Member string

	// StoreNow é o "agora" segundo o store (quando ele é a autoridade de
	// tempo); usado para detectar desvio de relógio.
	StoreNow time.Time
}

// WindowStore mantém, por chave, um log ordenado de timestamps de requisições
// admitidas (janela deslizante por log).
//
// CheckAndRecord poda as entradas com timestamp <= now-window, lê a contagem
// e, se ainda houver vaga, registra a entrada — tudo como uma única operação
// indivisível em relação a chamadores concorrentes da mesma chave, inclusive
// de outros processos. É proibido reproduzir essa sequência com
// read-modify-write no código de aplicação.
type WindowStore interface {
	CheckAndRecord(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (WindowResult, error)

	// Remove desfaz um registro feito por CheckAndRecord (rollback quando
	// outra regra da mesma requisição é violada em seguida).
	Remove(ctx context.Context, key, member string) error
}

// LocalAdmitter é o contador local aproximado usado quando o store
// compartilhado está inacessível (modo degradado). Não é compartilhado entre
// instâncias e não promete exatidão, apenas proteção grosseira.
type LocalAdmitter interface {
	Admit(key string, limit int64, window time.Duration, now time.Time) (allowed bool, remaining int64)
}
