package domain

import (
	"path"
	"strings"
	"time"
)

// RequestContext é o recorte da requisição que o motor de admissão enxerga.
//
// Ele é construído uma única vez na borda HTTP e passado por valor, mantendo
// o motor livre de qualquer tipo de framework.
type RequestContext struct {
	UserID      string // vazio = anônimo
	Tier        Tier
	EndpointKey string // caminho normalizado (ver NormalizeEndpoint)
	Method      string
	SourceIP    string
	At          time.Time
}

// Authenticated informa se a requisição tem um usuário identificado.
func (rc RequestContext) Authenticated() bool { return rc.UserID != "" }

// NormalizeEndpoint padroniza o caminho usado como chave de endpoint:
// minúsculas, sem barra final e sem segmentos vazios. A mesma normalização
// vale para a configuração e para a borda HTTP, senão as regras não casam.
func NormalizeEndpoint(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	return p
}
