package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RuleScope identifica o alcance de uma regra de quota.
//
// Escopos são aditivos: uma requisição está sempre sujeita às regras globais
// por IP, mais as regras do tier do usuário, mais as regras do endpoint, mais
// as regras extras quando o endpoint é sensível (login, reset de senha, IA).
type RuleScope int

const (
	ScopeGlobalIP RuleScope = iota
	ScopeUser
	ScopeUserTier
	ScopeEndpoint
	ScopeSensitiveEndpoint
)

var scopeNames = map[RuleScope]string{
	ScopeGlobalIP:          "global_ip",
	ScopeUser:              "user",
	ScopeUserTier:          "user_tier",
	ScopeEndpoint:          "endpoint",
	ScopeSensitiveEndpoint: "sensitive_endpoint",
}

func (s RuleScope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParseRuleScope converte o nome usado na configuração para o enum.
func ParseRuleScope(name string) (RuleScope, error) {
	for scope, n := range scopeNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown scope %q", ErrInvalidRule, name)
}

// WindowKind é o tamanho da janela deslizante de uma regra.
type WindowKind int

const (
	WindowMinute WindowKind = iota
	WindowHour
	WindowDay
)

var windowNames = map[WindowKind]string{
	WindowMinute: "minute",
	WindowHour:   "hour",
	WindowDay:    "day",
}

var windowDurations = map[WindowKind]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

func (w WindowKind) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// Duration retorna o tamanho da janela.
func (w WindowKind) Duration() time.Duration { return windowDurations[w] }

// ParseWindowKind converte o nome usado na configuração para o enum.
func ParseWindowKind(name string) (WindowKind, error) {
	for kind, n := range windowNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown window %q", ErrInvalidRule, name)
}

// Tier é a classe de assinatura do usuário (ex: free, premium).
// Os nomes válidos são definidos pela configuração, não pelo código.
type Tier string

// TierAnonymous é o tier implícito de requisições sem usuário autenticado.
const TierAnonymous Tier = "anonymous"

// RateLimitRule é uma regra de quota imutável.
//
// Regras nascem na carga da configuração, são substituídas em bloco no reload
// e nunca alteradas no lugar, para que avaliações em andamento jamais observem
// uma regra pela metade.
type RateLimitRule struct {
	ID          string
	Scope       RuleScope
	Tier        Tier   // obrigatório para ScopeUserTier
	Endpoint    string // obrigatório para ScopeEndpoint; opcional para ScopeSensitiveEndpoint
	KeyTemplate string // placeholders: {ip} {user} {tier} {endpoint}
	Window      WindowKind
	Limit       int64
	Priority    int
	LimitType   string // rótulo opcional para X-RateLimit-Limit-Type (ex: "ai-quota")
}

// Validate verifica a regra na carga da configuração.
// Erros aqui são fatais no load e rejeitam o reload; nunca acontecem por requisição.
func (r RateLimitRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule without id", ErrInvalidRule)
	}
	if _, ok := scopeNames[r.Scope]; !ok {
		return fmt.Errorf("%w: rule %q has unknown scope", ErrInvalidRule, r.ID)
	}
	if _, ok := windowNames[r.Window]; !ok {
		return fmt.Errorf("%w: rule %q has unknown window", ErrInvalidRule, r.ID)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: rule %q must have limit > 0", ErrInvalidRule, r.ID)
	}
	if r.Scope == ScopeUserTier && strings.TrimSpace(string(r.Tier)) == "" {
		return fmt.Errorf("%w: rule %q requires a tier", ErrInvalidRule, r.ID)
	}
	if r.Scope == ScopeEndpoint && strings.TrimSpace(r.Endpoint) == "" {
		return fmt.Errorf("%w: rule %q requires an endpoint", ErrInvalidRule, r.ID)
	}
	return nil
}

var defaultKeyTemplates = map[RuleScope]string{
	ScopeGlobalIP:          "ip:{ip}",
	ScopeUser:              "user:{user}",
	ScopeUserTier:          "tier:{tier}:user:{user}",
	ScopeEndpoint:          "endpoint:{endpoint}:ip:{ip}",
	ScopeSensitiveEndpoint: "sensitive:{endpoint}:ip:{ip}",
}

// WindowKey deriva a chave da série de contadores desta regra para um contexto.
// O ID da regra prefixa a chave para que duas regras nunca compartilhem série.
func (r RateLimitRule) WindowKey(rc RequestContext) string {
	tpl := r.KeyTemplate
	if tpl == "" {
		tpl = defaultKeyTemplates[r.Scope]
	}
	repl := strings.NewReplacer(
		"{ip}", rc.SourceIP,
		"{user}", rc.UserID,
		"{tier}", string(rc.Tier),
		"{endpoint}", rc.EndpointKey,
	)
	return "rl:" + r.ID + ":" + repl.Replace(tpl)
}

// scopeOrder define a ordem determinística de avaliação (e portanto qual
// violação é reportada primeiro quando várias regras estouram juntas).
var scopeOrder = map[RuleScope]int{
	ScopeGlobalIP:          0,
	ScopeUser:              1,
	ScopeUserTier:          1,
	ScopeEndpoint:          2,
	ScopeSensitiveEndpoint: 3,
}

// RuleSet é um snapshot imutável de regras.
//
// O reload da configuração constrói um RuleSet novo e troca uma única
// referência atômica; avaliações em andamento continuam vendo o snapshot
// antigo, consistente.
type RuleSet struct {
	id        string
	rules     []RateLimitRule
	sensitive map[string]struct{}
	tiers     map[Tier]struct{}
	strictest Tier
}

// NewRuleSet valida e ordena as regras e pré-calcula os índices de consulta.
func NewRuleSet(rules []RateLimitRule, sensitiveEndpoints []string) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicated rule id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	ordered := make([]RateLimitRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if scopeOrder[a.Scope] != scopeOrder[b.Scope] {
			return scopeOrder[a.Scope] < scopeOrder[b.Scope]
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	rs := &RuleSet{
		id:        uuid.NewString(),
		rules:     ordered,
		sensitive: make(map[string]struct{}, len(sensitiveEndpoints)),
		tiers:     make(map[Tier]struct{}),
	}
	for _, e := range sensitiveEndpoints {
		rs.sensitive[NormalizeEndpoint(e)] = struct{}{}
	}

	// O tier mais restritivo é o de menor vazão (limite normalizado por
	// segundo de janela); é o fallback para tiers desconhecidos.
	best := -1.0
	for _, r := range ordered {
		if r.Scope != ScopeUserTier {
			continue
		}
		rs.tiers[r.Tier] = struct{}{}
		perSecond := float64(r.Limit) / r.Window.Duration().Seconds()
		if best < 0 || perSecond < best {
			best = perSecond
			rs.strictest = r.Tier
		}
	}

	return rs, nil
}

// ID identifica o snapshot para diagnóstico (logs de reload).
func (rs *RuleSet) ID() string { return rs.id }

// Rules retorna as regras na ordem de avaliação. O slice é compartilhado e
// não deve ser modificado pelo chamador.
func (rs *RuleSet) Rules() []RateLimitRule { return rs.rules }

// Len retorna o número de regras do snapshot.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// IsSensitive informa se o endpoint normalizado está na lista de sensíveis.
func (rs *RuleSet) IsSensitive(endpoint string) bool {
	_, ok := rs.sensitive[endpoint]
	return ok
}

// KnownTier informa se existe alguma regra para o tier.
func (rs *RuleSet) KnownTier(t Tier) bool {
	_, ok := rs.tiers[t]
	return ok
}

// StrictestTier é o tier de menor vazão conhecido; usado quando o tier da
// requisição não é reconhecido (a requisição nunca falha por isso).
func (rs *RuleSet) StrictestTier() Tier { return rs.strictest }
