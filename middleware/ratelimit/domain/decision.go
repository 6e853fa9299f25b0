package domain

import "time"

// Decision é o único resultado de uma avaliação de admissão.
//
// Violação de regra não é erro: é uma Decision com Allowed=false. Produzida
// por requisição e nunca modificada depois de construída.
type Decision struct {
	Allowed bool

	// Limited indica se alguma regra se aplicou. Quando falso os demais
	// campos de quota não têm significado (nenhuma regra configurada casa
	// com a requisição).
	Limited bool

	// Campos da regra vinculante: na admissão, a regra com menor folga
	// (mais restritiva); na rejeição, a primeira regra violada na ordem
	// de avaliação.
	Limit      int64
	Remaining  int64 // nunca negativo
	ResetAt    time.Time
	ResetAfter time.Duration
	Scope      RuleScope
	Window     WindowKind
	LimitType  string // rótulo configurado na regra, se houver

	// RetryAfter só é preenchido quando Allowed=false.
	RetryAfter time.Duration

	// ViolatedRuleID identifica a regra violada, para diagnóstico.
	ViolatedRuleID string

	// Degraded marca decisões produzidas sem o store compartilhado
	// (contagem local aproximada ou fail-open/fail-closed).
	Degraded bool
}
