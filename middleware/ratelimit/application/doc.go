// Package application contém os casos de uso do controle de admissão:
// resolução de regras, avaliação em duas fases com rollback, política de
// fallback e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Evaluator.Evaluate(ctx, requestContext, ruleSet) retorna uma Decision.
package application
