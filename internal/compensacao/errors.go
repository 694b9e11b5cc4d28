package compensacao

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound é retornado quando a requisição não existe.
	ErrNotFound = errors.New("compensação não encontrada")

	// ErrValidacao é fatal na criação: referência inexistente, valor malformado
	// ou requisição vazia. A requisição nunca é persistida nesses casos.
	ErrValidacao = errors.New("requisição inválida")

	// ErrTransicaoInvalida é retornado quando a máquina de estados seria violada.
	ErrTransicaoInvalida = errors.New("transição de status inválida")

	// ErrAlocacaoVazia força REJEITADA: o otimizador não produziu nenhum par válido.
	ErrAlocacaoVazia = errors.New("nenhuma alocação possível com os itens validados")

	// ErrPoolExcedido é fatal: o tamanho do pool ultrapassa o limite de segurança
	// de iteração. Falha rápido em vez de degradar silenciosamente.
	ErrPoolExcedido = errors.New("pool de créditos/débitos excede o limite de processamento")
)

// ConflitoSaldo registra uma alocação descartada no commit porque outra
// requisição consumiu o saldo antes. Não é fatal: dispara a redução graciosa.
type ConflitoSaldo struct {
	ItemID    string
	Lado      string // "credito" ou "debito"
	Planejado decimal.Decimal
}

func (e *ConflitoSaldo) Error() string {
	return fmt.Sprintf("saldo consumido concorrentemente: %s %s (planejado %s)", e.Lado, e.ItemID, e.Planejado)
}
