package application

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// FallbackMode define o comportamento do modo degradado.
//
// FailOpen é o padrão recomendado: uma queda do limiter não pode virar uma
// queda da API inteira. FailClosed protege mais, ao custo de falsos positivos.
type FallbackMode int

const (
	FailOpen FallbackMode = iota
	FailClosed
)

func (m FallbackMode) String() string {
	if m == FailClosed {
		return "closed"
	}
	return "open"
}

// ParseFallbackMode converte o nome usado na configuração ("open"/"closed").
func ParseFallbackMode(name string) (FallbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return 0, fmt.Errorf("unknown fallback mode %q", name)
	}
}

// FallbackState é o estado da máquina Normal/Degraded.
type FallbackState int

const (
	StateNormal FallbackState = iota
	StateDegraded
)

func (s FallbackState) String() string {
	if s == StateDegraded {
		return "degraded"
	}
	return "normal"
}

// FallbackPolicy é a máquina de dois estados que decide o comportamento
// quando o WindowStore compartilhado está inacessível.
//
// N falhas consecutivas levam Normal→Degraded; um único sucesso devolve
// Degraded→Normal (não precisa de janela half-open: as chamadas ao store já
// acontecem a cada requisição). Em Degraded, a avaliação usa um contador
// local aproximado e toda Decision sai com Degraded=true, para o operador
// distinguir "limitado" de "limiter sem confiança agora".
type FallbackPolicy struct {
	mode      FallbackMode
	threshold int
	local     domain.LocalAdmitter
	logger    *zap.Logger

	mu          sync.Mutex
	state       FallbackState
	consecutive int
}

func NewFallbackPolicy(mode FallbackMode, threshold int, local domain.LocalAdmitter, logger *zap.Logger) *FallbackPolicy {
	if threshold <= 0 {
		threshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackPolicy{
		mode:      mode,
		threshold: threshold,
		local:     local,
		logger:    logger,
	}
}

// State retorna o estado atual. Seguro em ponteiro nil (Normal).
func (f *FallbackPolicy) State() FallbackState {
	if f == nil {
		return StateNormal
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// InDegraded informa se a política está servindo do contador local.
func (f *FallbackPolicy) InDegraded() bool { return f.State() == StateDegraded }

// RecordFailure registra uma falha do store; ao atingir o limiar de falhas
// consecutivas a política entra em Degraded.
func (f *FallbackPolicy) RecordFailure() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consecutive++
	if f.state == StateNormal && f.consecutive >= f.threshold {
		f.state = StateDegraded
		f.logger.Error("window store unreachable, entering degraded mode",
			zap.Int("consecutive_failures", f.consecutive),
			zap.String("mode", f.mode.String()))
	}
}

// RecordSuccess registra um sucesso do store; uma chamada boa basta para
// voltar a Normal.
func (f *FallbackPolicy) RecordSuccess() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consecutive = 0
	if f.state == StateDegraded {
		f.state = StateNormal
		f.logger.Info("window store recovered, leaving degraded mode")
	}
}

// Decide produz a decisão do modo degradado para a lista de regras aplicáveis.
// Os campos de quota são aproximados (não há log de timestamps local).
func (f *FallbackPolicy) Decide(bound []BoundRule, now time.Time) domain.Decision {
	if len(bound) == 0 {
		return domain.Decision{Allowed: true, Degraded: true}
	}

	if f.mode == FailClosed {
		br := bound[0]
		window := br.Rule.Window.Duration()
		return domain.Decision{
			Allowed:        false,
			Limited:        true,
			Degraded:       true,
			Limit:          br.Rule.Limit,
			Remaining:      0,
			ResetAt:        now.Add(window),
			ResetAfter:     window,
			RetryAfter:     window,
			Scope:          br.Rule.Scope,
			Window:         br.Rule.Window,
			LimitType:      br.Rule.LimitType,
			ViolatedRuleID: br.Rule.ID,
		}
	}

	if f.local == nil {
		return domain.Decision{Allowed: true, Degraded: true}
	}

	bindingIdx := -1
	var bindingRemaining int64
	for i, br := range bound {
		window := br.Rule.Window.Duration()
		allowed, remaining := f.local.Admit(br.Key, br.Rule.Limit, window, now)
		if !allowed {
			// um token volta em window/limit; nunca menos que 1s
			retry := window / time.Duration(br.Rule.Limit)
			if retry < time.Second {
				retry = time.Second
			}
			return domain.Decision{
				Allowed:        false,
				Limited:        true,
				Degraded:       true,
				Limit:          br.Rule.Limit,
				Remaining:      0,
				ResetAt:        now.Add(window),
				ResetAfter:     window,
				RetryAfter:     retry,
				Scope:          br.Rule.Scope,
				Window:         br.Rule.Window,
				LimitType:      br.Rule.LimitType,
				ViolatedRuleID: br.Rule.ID,
			}
		}
		if bindingIdx == -1 || remaining < bindingRemaining {
			bindingIdx = i
			bindingRemaining = remaining
		}
	}

	br := bound[bindingIdx]
	window := br.Rule.Window.Duration()
	return domain.Decision{
		Allowed:    true,
		Limited:    true,
		Degraded:   true,
		Limit:      br.Rule.Limit,
		Remaining:  bindingRemaining,
		ResetAt:    now.Add(window),
		ResetAfter: window,
		Scope:      br.Rule.Scope,
		Window:     br.Rule.Window,
		LimitType:  br.Rule.LimitType,
	}
}
