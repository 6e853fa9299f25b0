package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter é o contador local do modo degradado: um token-bucket
// (x/time/rate) por chave, com cache e limpeza periódica.
//
// É deliberadamente mais grosseiro que a janela deslizante e não é
// compartilhado entre instâncias; quando o store compartilhado volta, a
// política de fallback para de consultá-lo.
type LocalLimiter struct {
	mu           sync.Mutex
	entries      map[string]*localEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LocalLimiterOption func(*LocalLimiter)

func WithLocalIdleTTL(d time.Duration) LocalLimiterOption {
	return func(l *LocalLimiter) { l.idleTTL = d }
}

func WithLocalCleanupEvery(d time.Duration) LocalLimiterOption {
	return func(l *LocalLimiter) { l.cleanupEvery = d }
}

func NewLocalLimiter(opts ...LocalLimiterOption) *LocalLimiter {
	l := &LocalLimiter{
		entries:      make(map[string]*localEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit implementa domain.LocalAdmitter. A vazão do bucket aproxima a regra:
// limit tokens repostos ao longo da janela, rajada máxima igual ao limite.
func (l *LocalLimiter) Admit(key string, limit int64, window time.Duration, now time.Time) (bool, int64) {
	lim := l.get(key, limit, window, now)

	allowed := lim.AllowN(now, 1)
	remaining := int64(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

func (l *LocalLimiter) get(key string, limit int64, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), int(limit))
	l.entries[key] = &localEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove buckets sem uso há mais que idleTTL.
func (l *LocalLimiter) Cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (l *LocalLimiter) StartJanitor(ctx DoneContext) {
	if l.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
