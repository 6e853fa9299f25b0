package domain

import "errors"

var (
	// ErrStoreUnavailable sinaliza falha de infraestrutura no store
	// compartilhado. Nunca deve ser reinterpretado como violação de quota:
	// ele alimenta a política de fallback e aparece só como flag Degraded
	// e logs, jamais como 429 disfarçado.
	ErrStoreUnavailable = errors.New("window store unavailable")

	// ErrEmptyKey indica chave de janela vazia (erro de programação).
	ErrEmptyKey = errors.New("empty window key")

	// ErrInvalidRule indica regra malformada. Fatal apenas na carga da
	// configuração; um reload inválido é rejeitado e o snapshot anterior
	// permanece ativo.
	ErrInvalidRule = errors.New("invalid rate limit rule")
)
