package main

import (
	"fmt"
	"net/http"
)

// Upstream de validação manual: suba este servidor, aponte o gateway para ele
// (UPSTREAM_URL=http://localhost:8081) e martele os endpoints com curl para
// ver os headers X-RateLimit-* e o 429 aparecendo.
func main() {
	http.HandleFunc("/api/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":["arroz","feijao","farofa"]}`)
		fmt.Println("Log: alguém acessou /api/items")
	})
	http.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":"fake-token"}`)
		fmt.Println("Log: tentativa de login em /auth/login")
	})
	fmt.Println("Servidor rodando em http://localhost:8081")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
