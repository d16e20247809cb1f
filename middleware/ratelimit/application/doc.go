// Package application contém os casos de uso do gate: a decisão por janela fixa
// (Service.Decide) e a aquisição de vagas de concorrência com timeout.
//
// Depende apenas do pacote domain e não conhece net/http nem Redis.
package application
