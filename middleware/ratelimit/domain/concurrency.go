package domain

import "context"

// SlotPool limita quantas requisições o gateway mantém em voo ao mesmo tempo.
// É o irmão do controle de quota: a janela deslizante limita chegada, o pool
// limita ocupação simultânea do upstream.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Ao adquirir,
// retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
