package application

import (
	"testing"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
)

// fakeAdmitter responde sempre igual e grava as chaves consultadas.
type fakeAdmitter struct {
	allow     bool
	remaining int64
	keys      []string
}

func (f *fakeAdmitter) Admit(key string, _ int64, _ time.Duration, _ time.Time) (bool, int64) {
	f.keys = append(f.keys, key)
	return f.allow, f.remaining
}

func boundRules() []BoundRule {
	return []BoundRule{
		{Rule: domain.RateLimitRule{ID: "ip-minute", Scope: domain.ScopeGlobalIP, Window: domain.WindowMinute, Limit: 60}, Key: "rl:ip-minute:ip:1.2.3.4"},
		{Rule: domain.RateLimitRule{ID: "free-hour", Scope: domain.ScopeUserTier, Tier: "free", Window: domain.WindowHour, Limit: 100}, Key: "rl:free-hour:tier:free:user:u1"},
	}
}

func TestParseFallbackMode(t *testing.T) {
	if m, err := ParseFallbackMode(""); err != nil || m != FailOpen {
		t.Fatalf("empty mode must default to open, got %v (%v)", m, err)
	}
	if m, err := ParseFallbackMode(" Closed "); err != nil || m != FailClosed {
		t.Fatalf("expected closed, got %v (%v)", m, err)
	}
	if _, err := ParseFallbackMode("maybe"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestFallbackPolicy_ThresholdTransitions(t *testing.T) {
	p := NewFallbackPolicy(FailOpen, 3, nil, nil)

	p.RecordFailure()
	p.RecordFailure()
	if p.State() != StateNormal {
		t.Fatalf("two failures must not degrade with threshold 3")
	}

	p.RecordFailure()
	if p.State() != StateDegraded {
		t.Fatalf("expected degraded after third consecutive failure")
	}

	p.RecordSuccess()
	if p.State() != StateNormal {
		t.Fatalf("one success must restore normal state")
	}
}

func TestFallbackPolicy_SuccessResetsConsecutiveCount(t *testing.T) {
	p := NewFallbackPolicy(FailOpen, 3, nil, nil)

	// falhas intercaladas com sucesso nunca degradam
	for i := 0; i < 5; i++ {
		p.RecordFailure()
		p.RecordFailure()
		p.RecordSuccess()
	}
	if p.InDegraded() {
		t.Fatalf("interleaved successes must prevent degradation")
	}
}

func TestFallbackPolicy_NilPointerIsNormal(t *testing.T) {
	var p *FallbackPolicy
	if p.InDegraded() {
		t.Fatalf("nil policy must report normal state")
	}
	// não pode entrar em pânico
	p.RecordFailure()
	p.RecordSuccess()
}

func TestDecide_FailOpenUsesLocalCounter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	admitter := &fakeAdmitter{allow: true, remaining: 7}
	p := NewFallbackPolicy(FailOpen, 3, admitter, nil)

	dec := p.Decide(boundRules(), now)

	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("expected degraded allow, got %+v", dec)
	}
	if len(admitter.keys) != 2 {
		t.Fatalf("expected both rules consulted locally, got %v", admitter.keys)
	}
	if dec.Remaining != 7 {
		t.Fatalf("expected remaining from local counter, got %d", dec.Remaining)
	}
}

func TestDecide_FailOpenLocalDenial(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	admitter := &fakeAdmitter{allow: false}
	p := NewFallbackPolicy(FailOpen, 3, admitter, nil)

	dec := p.Decide(boundRules(), now)

	if dec.Allowed {
		t.Fatalf("local denial must reject, got %+v", dec)
	}
	if !dec.Degraded {
		t.Fatalf("degraded rejection must be flagged")
	}
	if dec.ViolatedRuleID != "ip-minute" {
		t.Fatalf("expected first rule reported, got %q", dec.ViolatedRuleID)
	}
	// 60/min → um token por segundo
	if dec.RetryAfter != time.Second {
		t.Fatalf("expected retry 1s, got %v", dec.RetryAfter)
	}
}

func TestDecide_FailOpenWithoutLocalCounterAllows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := NewFallbackPolicy(FailOpen, 3, nil, nil)

	dec := p.Decide(boundRules(), now)
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("expected pure fail-open allow, got %+v", dec)
	}
}

func TestDecide_FailClosedRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	admitter := &fakeAdmitter{allow: true, remaining: 50}
	p := NewFallbackPolicy(FailClosed, 3, admitter, nil)

	dec := p.Decide(boundRules(), now)

	if dec.Allowed {
		t.Fatalf("fail-closed must reject, got %+v", dec)
	}
	if len(admitter.keys) != 0 {
		t.Fatalf("fail-closed must not consult the local counter")
	}
	if dec.ViolatedRuleID != "ip-minute" {
		t.Fatalf("expected first rule reported, got %q", dec.ViolatedRuleID)
	}
}

func TestDecide_EmptyBoundAllows(t *testing.T) {
	p := NewFallbackPolicy(FailClosed, 3, nil, nil)
	dec := p.Decide(nil, time.Now())
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("no applicable rules must allow even fail-closed, got %+v", dec)
	}
}
