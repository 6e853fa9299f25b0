package application

import (
	"context"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Evaluator orquestra resolução de regras + WindowStore para produzir uma
// única Decision por requisição.
//
// "Checar" e "registrar" nunca são chamadas separadas: cada regra passa pelo
// check-and-record atômico do store, e a composição multi-regra segue a
// disciplina de curto-circuito sem consumo parcial — na primeira violação a
// avaliação para, as regras restantes não são consultadas e os registros já
// feitos para esta requisição são desfeitos. Uma requisição rejeitada nunca
// consome quota de regra nenhuma.
type Evaluator struct {
	Store    domain.WindowStore
	Fallback *FallbackPolicy // opcional; nil = fail-open puro sem contador local
	Clock    domain.Clock    // opcional
	Logger   *zap.Logger     // opcional
}

type recordedEntry struct {
	key    string
	member string
}

// Evaluate decide a admissão da requisição sob o snapshot de regras dado.
//
// Violação de quota é retorno normal (Allowed=false), nunca erro. Falha do
// store vira transição da política de fallback e decisão degradada, nunca um
// 429 disfarçado.
//
// O store é tentado a cada requisição, inclusive em modo degradado: a primeira
// chamada boa devolve a política a Normal e a própria requisição já segue o
// caminho normal. Não existe janela half-open separada.
func (e Evaluator) Evaluate(ctx context.Context, rc domain.RequestContext, rs *domain.RuleSet) domain.Decision {
	now := rc.At
	if now.IsZero() {
		now = e.clock().Now()
	}

	bound := Resolve(rc, rs)
	if len(bound) == 0 {
		return domain.Decision{Allowed: true}
	}

	// O cancelamento do caller não entra no meio da sequência atômica:
	// uma operação emitida corre até o fim ou é desfeita por inteiro.
	opCtx := context.WithoutCancel(ctx)

	recorded := make([]recordedEntry, 0, len(bound))
	bindingIdx := -1
	var bindingRemaining int64
	var bindingReset time.Time

	for i, br := range bound {
		res, err := e.Store.CheckAndRecord(opCtx, br.Key, br.Rule.Limit, br.Rule.Window.Duration(), now)
		if err != nil {
			e.logger().Warn("window store failure",
				zap.String("rule", br.Rule.ID),
				zap.Error(err))
			e.Fallback.RecordFailure()
			e.rollback(opCtx, recorded)
			return e.degradedDecision(bound, now)
		}
		e.Fallback.RecordSuccess()

		if !res.Admitted {
			e.rollback(opCtx, recorded)
			return rejection(br, res, now, false)
		}
		recorded = append(recorded, recordedEntry{key: br.Key, member: res.Member})

		remaining := br.Rule.Limit - res.Count
		if remaining < 0 {
			remaining = 0
		}
		if bindingIdx == -1 || remaining < bindingRemaining {
			bindingIdx = i
			bindingRemaining = remaining
			bindingReset = windowReset(res.Earliest, br.Rule.Window.Duration(), now)
		}
	}

	// Todas passaram: reportamos a regra mais restritiva (menor folga),
	// para o cliente enxergar a restrição vinculante e não uma média.
	br := bound[bindingIdx]
	return domain.Decision{
		Allowed:    true,
		Limited:    true,
		Limit:      br.Rule.Limit,
		Remaining:  bindingRemaining,
		ResetAt:    bindingReset,
		ResetAfter: bindingReset.Sub(now),
		Scope:      br.Rule.Scope,
		Window:     br.Rule.Window,
		LimitType:  br.Rule.LimitType,
	}
}

// rollback devolve os registros já feitos para esta requisição.
func (e Evaluator) rollback(ctx context.Context, recorded []recordedEntry) {
	for _, r := range recorded {
		if err := e.Store.Remove(ctx, r.key, r.member); err != nil {
			// best-effort: a entrada órfã expira junto com a janela
			e.logger().Warn("window rollback failure",
				zap.String("key", r.key),
				zap.Error(err))
		}
	}
}

func (e Evaluator) degradedDecision(bound []BoundRule, now time.Time) domain.Decision {
	if e.Fallback == nil {
		return domain.Decision{Allowed: true, Degraded: true}
	}
	return e.Fallback.Decide(bound, now)
}

func (e Evaluator) clock() domain.Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return domain.SystemClock()
}

func (e Evaluator) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func rejection(br BoundRule, res domain.WindowResult, now time.Time, degraded bool) domain.Decision {
	reset := windowReset(res.Earliest, br.Rule.Window.Duration(), now)
	remaining := br.Rule.Limit - res.Count
	if remaining < 0 {
		remaining = 0
	}
	retry := reset.Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return domain.Decision{
		Allowed:        false,
		Limited:        true,
		Limit:          br.Rule.Limit,
		Remaining:      remaining,
		ResetAt:        reset,
		ResetAfter:     reset.Sub(now),
		RetryAfter:     retry,
		Scope:          br.Rule.Scope,
		Window:         br.Rule.Window,
		LimitType:      br.Rule.LimitType,
		ViolatedRuleID: br.Rule.ID,
		Degraded:       degraded,
	}
}

// windowReset deriva o reset da entrada viva mais antiga: quando ela expira,
// uma vaga abre. Nunca uma borda de relógio alinhada, e nunca no passado.
func windowReset(earliest time.Time, window time.Duration, now time.Time) time.Time {
	if earliest.IsZero() {
		return now.Add(window)
	}
	reset := earliest.Add(window)
	if !reset.After(now) {
		reset = now.Add(time.Second)
	}
	return reset
}
