// Package domain define contratos e tipos de domínio para o controle de admissão
// de requisições (regras de quota, janela deslizante, fallback e concorrência).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, relógio do sistema, etc).
package domain
