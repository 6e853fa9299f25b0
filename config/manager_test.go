package config

import (
	"os"
	"testing"
	"time"
)

const managerYAML = `
rules:
  - id: ip-minute
    scope: global_ip
    window: minute
    limit: 100
`

const managerYAMLv2 = `
rules:
  - id: ip-minute
    scope: global_ip
    window: minute
    limit: 200
`

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestManager_InitialLoadFailureIsFatal(t *testing.T) {
	if _, err := NewManager("does-not-exist.yaml", nil); err == nil {
		t.Fatalf("expected error for missing initial config")
	}

	path := writeConfig(t, "rules: [")
	if _, err := NewManager(path, nil); err == nil {
		t.Fatalf("expected error for invalid initial config")
	}
}

func TestManager_ReloadSwapsSnapshot(t *testing.T) {
	path := writeConfig(t, managerYAML)

	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = m.Close() }()

	first := m.RuleSet()
	if first.Rules()[0].Limit != 100 {
		t.Fatalf("expected initial limit 100, got %d", first.Rules()[0].Limit)
	}

	if err := os.WriteFile(path, []byte(managerYAMLv2), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	waitFor(t, func() bool {
		rs := m.RuleSet()
		return rs.ID() != first.ID() && rs.Rules()[0].Limit == 200
	})

	// o snapshot antigo permanece intacto para avaliações em andamento
	if first.Rules()[0].Limit != 100 {
		t.Fatalf("old snapshot must not be mutated")
	}
}

func TestManager_BadReloadKeepsPreviousSnapshot(t *testing.T) {
	path := writeConfig(t, managerYAML)

	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = m.Close() }()

	first := m.RuleSet()

	if err := os.WriteFile(path, []byte("rules: ["), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	waitFor(t, func() bool { return m.LastError() != nil })

	if got := m.RuleSet(); got.ID() != first.ID() {
		t.Fatalf("bad reload must keep the previous snapshot")
	}

	// um arquivo bom em seguida recupera
	if err := os.WriteFile(path, []byte(managerYAMLv2), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}
	waitFor(t, func() bool {
		return m.LastError() == nil && m.RuleSet().Rules()[0].Limit == 200
	})
}
