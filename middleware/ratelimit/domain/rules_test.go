package domain

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimitRule_Validate(t *testing.T) {
	cases := []struct {
		name string
		rule RateLimitRule
		ok   bool
	}{
		{"valid global ip", RateLimitRule{ID: "ip", Scope: ScopeGlobalIP, Window: WindowMinute, Limit: 100}, true},
		{"missing id", RateLimitRule{Scope: ScopeGlobalIP, Window: WindowMinute, Limit: 100}, false},
		{"zero limit", RateLimitRule{ID: "z", Scope: ScopeGlobalIP, Window: WindowMinute}, false},
		{"negative limit", RateLimitRule{ID: "n", Scope: ScopeGlobalIP, Window: WindowMinute, Limit: -1}, false},
		{"tier scope without tier", RateLimitRule{ID: "t", Scope: ScopeUserTier, Window: WindowHour, Limit: 10}, false},
		{"tier scope with tier", RateLimitRule{ID: "t", Scope: ScopeUserTier, Tier: "free", Window: WindowHour, Limit: 10}, true},
		{"endpoint scope without endpoint", RateLimitRule{ID: "e", Scope: ScopeEndpoint, Window: WindowMinute, Limit: 10}, false},
		{"endpoint scope with endpoint", RateLimitRule{ID: "e", Scope: ScopeEndpoint, Endpoint: "/api/x", Window: WindowMinute, Limit: 10}, true},
		{"sensitive without endpoint is fine", RateLimitRule{ID: "s", Scope: ScopeSensitiveEndpoint, Window: WindowMinute, Limit: 5}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !errors.Is(err, ErrInvalidRule) {
					t.Fatalf("expected ErrInvalidRule, got %v", err)
				}
			}
		})
	}
}

func TestNewRuleSet_RejectsDuplicatedIDs(t *testing.T) {
	_, err := NewRuleSet([]RateLimitRule{
		{ID: "dup", Scope: ScopeGlobalIP, Window: WindowMinute, Limit: 1},
		{ID: "dup", Scope: ScopeGlobalIP, Window: WindowHour, Limit: 2},
	}, nil)
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for duplicated ids, got %v", err)
	}
}

func TestNewRuleSet_OrdersByScopeThenPriorityThenID(t *testing.T) {
	rs, err := NewRuleSet([]RateLimitRule{
		{ID: "sensitive", Scope: ScopeSensitiveEndpoint, Window: WindowMinute, Limit: 5},
		{ID: "endpoint", Scope: ScopeEndpoint, Endpoint: "/api/x", Window: WindowMinute, Limit: 10},
		{ID: "tier-free", Scope: ScopeUserTier, Tier: "free", Window: WindowHour, Limit: 100},
		{ID: "ip-b", Scope: ScopeGlobalIP, Window: WindowMinute, Limit: 60, Priority: 2},
		{ID: "ip-a", Scope: ScopeGlobalIP, Window: WindowHour, Limit: 1000, Priority: 1},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make([]string, 0, rs.Len())
	for _, r := range rs.Rules() {
		got = append(got, r.ID)
	}
	want := []string{"ip-a", "ip-b", "tier-free", "endpoint", "sensitive"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRuleSet_StrictestTierIsLowestThroughput(t *testing.T) {
	rs, err := NewRuleSet([]RateLimitRule{
		// 100/hora é mais restritivo que 5/minuto (300/hora)
		{ID: "free-hour", Scope: ScopeUserTier, Tier: "free", Window: WindowHour, Limit: 100},
		{ID: "premium-minute", Scope: ScopeUserTier, Tier: "premium", Window: WindowMinute, Limit: 5},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rs.StrictestTier(); got != "free" {
		t.Fatalf("expected strictest tier free, got %q", got)
	}
	if !rs.KnownTier("premium") || !rs.KnownTier("free") {
		t.Fatalf("expected both tiers to be known")
	}
	if rs.KnownTier("gold") {
		t.Fatalf("tier gold should be unknown")
	}
}

func TestRuleSet_SensitiveEndpointsAreNormalized(t *testing.T) {
	rs, err := NewRuleSet([]RateLimitRule{
		{ID: "ip", Scope: ScopeGlobalIP, Window: WindowMinute, Limit: 10},
	}, []string{"/Auth/Login/", "api/ai/suggest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rs.IsSensitive("/auth/login") {
		t.Fatalf("expected /auth/login to be sensitive")
	}
	if !rs.IsSensitive("/api/ai/suggest") {
		t.Fatalf("expected /api/ai/suggest to be sensitive")
	}
	if rs.IsSensitive("/api/items") {
		t.Fatalf("expected /api/items to not be sensitive")
	}
}

func TestWindowKey_DefaultTemplates(t *testing.T) {
	rc := RequestContext{
		UserID:      "u42",
		Tier:        "premium",
		EndpointKey: "/api/items",
		SourceIP:    "1.2.3.4",
	}

	cases := []struct {
		rule RateLimitRule
		want string
	}{
		{RateLimitRule{ID: "r1", Scope: ScopeGlobalIP}, "rl:r1:ip:1.2.3.4"},
		{RateLimitRule{ID: "r2", Scope: ScopeUser}, "rl:r2:user:u42"},
		{RateLimitRule{ID: "r3", Scope: ScopeUserTier}, "rl:r3:tier:premium:user:u42"},
		{RateLimitRule{ID: "r4", Scope: ScopeEndpoint}, "rl:r4:endpoint:/api/items:ip:1.2.3.4"},
		{RateLimitRule{ID: "r5", Scope: ScopeSensitiveEndpoint}, "rl:r5:sensitive:/api/items:ip:1.2.3.4"},
	}
	for _, tc := range cases {
		if got := tc.rule.WindowKey(rc); got != tc.want {
			t.Fatalf("scope %s: expected key %q, got %q", tc.rule.Scope, tc.want, got)
		}
	}
}

func TestWindowKey_CustomTemplate(t *testing.T) {
	rule := RateLimitRule{ID: "ai", Scope: ScopeEndpoint, KeyTemplate: "ai:{user}:{endpoint}"}
	rc := RequestContext{UserID: "u1", EndpointKey: "/api/ai/suggest"}

	if got := rule.WindowKey(rc); got != "rl:ai:ai:u1:/api/ai/suggest" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestWindowKey_DistinctRulesNeverShareSeries(t *testing.T) {
	rc := RequestContext{SourceIP: "1.2.3.4"}
	a := RateLimitRule{ID: "ip-minute", Scope: ScopeGlobalIP}
	b := RateLimitRule{ID: "ip-hour", Scope: ScopeGlobalIP}

	if a.WindowKey(rc) == b.WindowKey(rc) {
		t.Fatalf("rules with different ids must not share a window key")
	}
}

func TestParseRuleScopeAndWindow(t *testing.T) {
	if s, err := ParseRuleScope(" Global_IP "); err != nil || s != ScopeGlobalIP {
		t.Fatalf("expected global_ip, got %v (%v)", s, err)
	}
	if _, err := ParseRuleScope("galaxy"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for unknown scope, got %v", err)
	}

	if w, err := ParseWindowKind("day"); err != nil || w != WindowDay {
		t.Fatalf("expected day, got %v (%v)", w, err)
	}
	if _, err := ParseWindowKind("fortnight"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for unknown window, got %v", err)
	}
}

func TestWindowKindDuration(t *testing.T) {
	if WindowMinute.Duration() != time.Minute {
		t.Fatalf("minute window should be 1m")
	}
	if WindowHour.Duration() != time.Hour {
		t.Fatalf("hour window should be 1h")
	}
	if WindowDay.Duration() != 24*time.Hour {
		t.Fatalf("day window should be 24h")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":                "/",
		"/API/Items/":     "/api/items",
		"api/items":       "/api/items",
		"/api//items":     "/api/items",
		"/api/items/../x": "/api/x",
	}
	for in, want := range cases {
		if got := NormalizeEndpoint(in); got != want {
			t.Fatalf("NormalizeEndpoint(%q): expected %q, got %q", in, want, got)
		}
	}
}
