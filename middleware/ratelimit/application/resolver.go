package application

import (
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
)

// BoundRule é uma regra aplicável já ligada à chave da sua série de janela.
type BoundRule struct {
	Rule domain.RateLimitRule
	Key  string
}

// Resolve monta a lista ordenada de regras aplicáveis ao contexto.
//
// Regras são aditivas, não substituições mutuamente exclusivas: toda
// requisição carrega as regras globais por IP, mais as do tier do usuário,
// mais as do endpoint, mais as extras quando o endpoint é sensível. A ordem
// (GlobalIP → User/UserTier → Endpoint → SensitiveEndpoint) vem pronta do
// RuleSet e é determinística: ela define qual violação é reportada primeiro,
// e operadores dependem de ver a de escopo mais amplo antes.
//
// Tier desconhecido cai no tier mais restritivo conhecido; regras de
// usuário/tier não se aplicam a requisições anônimas (as regras por IP
// continuam protegendo).
func Resolve(rc domain.RequestContext, rs *domain.RuleSet) []BoundRule {
	if rs == nil {
		return nil
	}

	tier := rc.Tier
	if rc.Authenticated() && !rs.KnownTier(tier) {
		tier = rs.StrictestTier()
	}

	// Contexto efetivo com o tier normalizado, usado na expansão das chaves.
	eff := rc
	eff.Tier = tier

	out := make([]BoundRule, 0, 4)
	for _, r := range rs.Rules() {
		switch r.Scope {
		case domain.ScopeGlobalIP:
			// sempre se aplica
		case domain.ScopeUser:
			if !rc.Authenticated() {
				continue
			}
		case domain.ScopeUserTier:
			if !rc.Authenticated() || r.Tier != tier {
				continue
			}
		case domain.ScopeEndpoint:
			if r.Endpoint != rc.EndpointKey {
				continue
			}
		case domain.ScopeSensitiveEndpoint:
			if !rs.IsSensitive(rc.EndpointKey) {
				continue
			}
			if r.Endpoint != "" && r.Endpoint != rc.EndpointKey {
				continue
			}
		}
		out = append(out, BoundRule{Rule: r, Key: r.WindowKey(eff)})
	}
	return out
}
