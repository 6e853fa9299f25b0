package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/application"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

// RuleSetProvider entrega o snapshot de regras vigente. Quem faz hot reload
// (config.Manager) troca o snapshot por baixo; o middleware sempre lê a
// referência atual e cada requisição avalia um snapshot consistente.
type RuleSetProvider func() *domain.RuleSet

type Options struct {
	Evaluator application.Evaluator
	Rules     RuleSetProvider

	Stats   domain.StatsStore
	Metrics *Metrics
	Clock   domain.Clock
	Logger  *zap.Logger

	// Identificação do cliente (IP de origem).
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// Headers confiáveis preenchidos pela camada de autenticação a montante.
	UserIDHeader string // padrão: X-User-Id
	TierHeader   string // padrão: X-User-Tier
}

// Middleware aplica o controle de admissão a cada requisição:
// constrói o RequestContext na borda (uma vez, por valor), avalia sob o
// snapshot de regras vigente, carimba os headers X-RateLimit-* e segue para
// o próximo handler ou responde 429 com o corpo estruturado.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.UserIDHeader == "" {
		opts.UserIDHeader = "X-User-Id"
	}
	if opts.TierHeader == "" {
		opts.TierHeader = "X-User-Tier"
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Rules == nil {
		opts.Rules = func() *domain.RuleSet { return nil }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := requestContext(r, opts)

			start := time.Now()
			dec := opts.Evaluator.Evaluate(r.Context(), rc, opts.Rules())
			opts.Metrics.ObserveDecision(dec, time.Since(start))

			ann := Annotate(dec)
			for k, v := range ann.Headers {
				w.Header().Set(k, v)
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:      domain.Key(rc.SourceIP),
					Allowed:  dec.Allowed,
					Degraded: dec.Degraded,
					RuleID:   dec.ViolatedRuleID,
					Method:   rc.Method,
					Path:     rc.EndpointKey,
					At:       rc.At,
				})
			}

			if !dec.Allowed {
				opts.Logger.Info("request rejected by rate limit",
					zap.String("rule", dec.ViolatedRuleID),
					zap.String("ip", rc.SourceIP),
					zap.String("endpoint", rc.EndpointKey),
					zap.Bool("degraded", dec.Degraded))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(ann.Body)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestContext recorta da requisição só o que o motor precisa.
func requestContext(r *http.Request, opts Options) domain.RequestContext {
	return domain.RequestContext{
		UserID:      strings.TrimSpace(r.Header.Get(opts.UserIDHeader)),
		Tier:        domain.Tier(strings.ToLower(strings.TrimSpace(r.Header.Get(opts.TierHeader)))),
		EndpointKey: domain.NormalizeEndpoint(r.URL.Path),
		Method:      r.Method,
		SourceIP:    opts.KeyFn(r),
		At:          opts.Clock.Now(),
	}
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
