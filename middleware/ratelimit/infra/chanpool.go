package infra

import (
	"context"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria o semáforo de admissão: um channel com capacidade `max`
// onde cada requisição em voo ocupa uma posição. Sem contadores, sem mutex;
// o release devolve a vaga lendo do channel.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
