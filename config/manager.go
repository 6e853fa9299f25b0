package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager mantém o snapshot de regras vigente e faz hot reload do arquivo.
//
// Um reload bem-sucedido constrói um domain.RuleSet novo e troca uma única
// referência atômica — avaliações em andamento seguem com o snapshot antigo,
// consistente. Um reload inválido é rejeitado: o snapshot anterior permanece
// ativo e o erro fica registrado.
type Manager struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	config atomic.Pointer[Config]
	rules  atomic.Pointer[domain.RuleSet]

	mu      sync.Mutex
	lastErr error
}

// NewManager carrega a configuração inicial (falha aqui é fatal) e começa a
// observar o arquivo.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	m := &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
	}

	if err := m.load(); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	go m.watch()

	return m, nil
}

// RuleSet retorna o snapshot vigente; é o provider usado pelo middleware.
func (m *Manager) RuleSet() *domain.RuleSet { return m.rules.Load() }

// Config retorna a configuração vigente.
func (m *Manager) Config() *Config { return m.config.Load() }

// LastError retorna o erro do último reload rejeitado (nil após um reload bom).
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close para o watcher.
func (m *Manager) Close() error { return m.watcher.Close() }

func (m *Manager) load() error {
	cfg, err := LoadFromFile(m.path)
	if err != nil {
		m.setErr(err)
		return err
	}

	rs, err := cfg.RuleSet()
	if err != nil {
		m.setErr(err)
		return err
	}

	m.config.Store(cfg)
	m.rules.Store(rs)
	m.setErr(nil)

	m.logger.Info("rule set loaded",
		zap.String("snapshot", rs.ID()),
		zap.Int("rules", rs.Len()))
	return nil
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) watch() {
	// Debounce para eventos múltiplos de um mesmo save.
	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.load(); err != nil {
						m.logger.Error("config reload rejected, keeping previous snapshot",
							zap.Error(err))
					}
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.setErr(fmt.Errorf("watcher error: %w", err))
			m.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
