package ratelimit

import (
	"fmt"
	"math"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
)

// Annotation é o contrato de fio de uma Decision: headers sempre presentes
// (quando alguma regra se aplicou) e corpo estruturado só na rejeição.
type Annotation struct {
	Headers map[string]string
	Body    *RejectionBody
}

// RejectionBody é o corpo JSON do 429. Os nomes dos campos são contrato com
// os SDKs clientes; não renomear.
type RejectionBody struct {
	Error         RejectionError `json:"error"`
	RateLimitInfo RateLimitInfo  `json:"rateLimitInfo"`
}

type RejectionError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"`
	Limit      int64  `json:"limit"`
}

type RateLimitInfo struct {
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	Reset      int64  `json:"reset"`
	ResetAfter int64  `json:"resetAfter"`
	LimitType  string `json:"limitType"`
	Degraded   bool   `json:"degraded,omitempty"`
}

// Tabelas de tradução (escopo/janela → rótulo e mensagem). Acrescentar um
// escopo novo é acrescentar uma linha aqui; o compilador cobra o enum, não
// uma cascata de ifs.
var limitTypeByScope = map[domain.RuleScope]string{
	domain.ScopeUserTier: "tier-quota",
}

var limitTypeByWindow = map[domain.WindowKind]string{
	domain.WindowMinute: "per-minute",
	domain.WindowHour:   "per-hour",
	domain.WindowDay:    "per-day",
}

var messageByScope = map[domain.RuleScope]string{
	domain.ScopeUserTier: "Request quota for your plan has been exhausted. Retry after %d seconds or upgrade your plan.",
}

var messageByWindow = map[domain.WindowKind]string{
	domain.WindowMinute: "Too many requests: per-minute limit of %d exceeded. Retry after %d seconds.",
	domain.WindowHour:   "Too many requests: hourly limit of %d exceeded. Retry after %d seconds.",
	domain.WindowDay:    "Too many requests: daily limit of %d exceeded. Retry after %d seconds.",
}

// Annotate é um mapeamento puro Decision → headers/corpo; sem efeitos
// colaterais, sempre o mesmo resultado para a mesma Decision.
func Annotate(dec domain.Decision) Annotation {
	headers := make(map[string]string, 6)

	if dec.Limited {
		remaining := dec.Remaining
		if remaining < 0 {
			remaining = 0
		}
		headers["X-RateLimit-Limit"] = formatInt64(dec.Limit)
		headers["X-RateLimit-Remaining"] = formatInt64(remaining)
		headers["X-RateLimit-Reset"] = formatInt64(dec.ResetAt.Unix())
		headers["X-RateLimit-Reset-After"] = formatInt64(ceilSeconds(dec.ResetAfter))
		headers["X-RateLimit-Limit-Type"] = limitType(dec)
	}

	ann := Annotation{Headers: headers}
	if dec.Allowed {
		return ann
	}

	retry := ceilSeconds(dec.RetryAfter)
	if retry < 1 {
		retry = 1
	}
	headers["Retry-After"] = formatInt64(retry)

	ann.Body = &RejectionBody{
		Error: RejectionError{
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    rejectionMessage(dec, retry),
			RetryAfter: retry,
			Limit:      dec.Limit,
		},
		RateLimitInfo: RateLimitInfo{
			Limit:      dec.Limit,
			Remaining:  dec.Remaining,
			Reset:      dec.ResetAt.Unix(),
			ResetAfter: ceilSeconds(dec.ResetAfter),
			LimitType:  limitType(dec),
			Degraded:   dec.Degraded,
		},
	}
	return ann
}

func limitType(dec domain.Decision) string {
	if dec.LimitType != "" {
		return dec.LimitType
	}
	if t, ok := limitTypeByScope[dec.Scope]; ok {
		return t
	}
	return limitTypeByWindow[dec.Window]
}

func rejectionMessage(dec domain.Decision, retry int64) string {
	if msg, ok := messageByScope[dec.Scope]; ok {
		return fmt.Sprintf(msg, retry)
	}
	return fmt.Sprintf(messageByWindow[dec.Window], dec.Limit, retry)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
