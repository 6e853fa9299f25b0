// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers/logs.
//    Evita puxar fmt (que é mais “pesado” e genérico) só para formatação simples
// 	  Padroniza a formatação numérica (strconv), mantendo o código consistente

package ratelimit

import "strconv"

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
