package infra

import (
	"context"
	"sync"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

// MemoryWindowStore é um domain.WindowStore em memória.
//
// Mesma semântica de janela deslizante por log do store Redis, mas local ao
// processo: serve para testes determinísticos e para embutir o middleware sem
// Redis (uma instância só). Um mutex único cobre a sequência
// poda-conta-registra, então a atomicidade por chave vale dentro do processo.
type MemoryWindowStore struct {
	mu           sync.Mutex
	series       map[string]*memorySeries
	clock        domain.Clock
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type memorySeries struct {
	entries  []memoryEntry // ordenadas por tempo de chegada
	lastSeen time.Time
}

type memoryEntry struct {
	at     time.Time
	member string
}

type MemoryWindowOption func(*MemoryWindowStore)

func WithMemoryClock(c domain.Clock) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.clock = c }
}

func WithMemoryIdleTTL(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.idleTTL = d }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		series:       make(map[string]*memorySeries),
		clock:        domain.SystemClock(),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndRecord implementa domain.WindowStore. O `now` recebido é a
// autoridade de tempo (store local = mesmo relógio do chamador), o que torna
// os testes de janela determinísticos.
func (s *MemoryWindowStore) CheckAndRecord(_ context.Context, key string, limit int64, window time.Duration, now time.Time) (domain.WindowResult, error) {
	if key == "" {
		return domain.WindowResult{}, domain.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[key]
	if !ok {
		ser = &memorySeries{}
		s.series[key] = ser
	}
	ser.lastSeen = now

	// Poda preguiçosa: entradas com timestamp <= now-window saem a cada acesso.
	cutoff := now.Add(-window)
	live := ser.entries[:0]
	for _, e := range ser.entries {
		if e.at.After(cutoff) {
			live = append(live, e)
		}
	}
	ser.entries = live

	res := domain.WindowResult{
		Count:    int64(len(ser.entries)),
		StoreNow: now,
	}

	if res.Count < limit {
		member := uuid.NewString()
		ser.entries = append(ser.entries, memoryEntry{at: now, member: member})
		res.Admitted = true
		res.Member = member
		res.Count++
	}

	if len(ser.entries) > 0 {
		res.Earliest = ser.entries[0].at
	}

	return res, nil
}

// Remove implementa o rollback de um registro.
func (s *MemoryWindowStore) Remove(_ context.Context, key, member string) error {
	if key == "" {
		return domain.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[key]
	if !ok {
		return nil
	}
	for i, e := range ser.entries {
		if e.member == member {
			ser.entries = append(ser.entries[:i], ser.entries[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup descarta séries sem acesso há mais que idleTTL.
func (s *MemoryWindowStore) Cleanup() {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ser := range s.series {
		if ser.lastSeen.Before(cutoff) {
			delete(s.series, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa séries inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
