// Package domain define os contratos e tipos do gate de rate limit por janela fixa.
//
// Este pacote não depende de net/http nem de um store concreto. O contador
// compartilhado entre instâncias é acessado apenas pela interface CounterStore,
// e toda a coordenação entre requisições concorrentes fica a cargo do
// incremento atômico do store.
package domain
