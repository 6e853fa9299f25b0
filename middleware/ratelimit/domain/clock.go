package domain

import "time"

// Clock abstrai a fonte de tempo.
//
// O motor inteiro recebe o relógio por injeção para que os testes de janela
// deslizante sejam determinísticos (sem time.Sleep).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock retorna o relógio de parede do sistema.
func SystemClock() Clock { return systemClock{} }
