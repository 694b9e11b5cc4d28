package titulo

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Categoria identifica a natureza legal de um título de crédito.
// O conjunto é fechado: categorias desconhecidas nunca são compensáveis.
type Categoria string

const (
	CategoriaTributario Categoria = "TRIBUTARIO"
	CategoriaJudicial   Categoria = "JUDICIAL"
	CategoriaComercial  Categoria = "COMERCIAL"
	CategoriaRural      Categoria = "RURAL"
	CategoriaAmbiental  Categoria = "AMBIENTAL"
)

// Valida indica se a categoria pertence ao conjunto conhecido.
func (c Categoria) Valida() bool {
	switch c {
	case CategoriaTributario, CategoriaJudicial, CategoriaComercial, CategoriaRural, CategoriaAmbiental:
		return true
	default:
		return false
	}
}

// Status representa o ciclo de vida de um título.
type Status string

const (
	StatusIdentificado  Status = "IDENTIFICADO"
	StatusValidado      Status = "VALIDADO"
	StatusTokenizado    Status = "TOKENIZADO"
	StatusEmCompensacao Status = "EM_COMPENSACAO"
	StatusUtilizado     Status = "UTILIZADO"
	StatusEsgotado      Status = "ESGOTADO"
	StatusRejeitado     Status = "REJEITADO"
	StatusCancelado     Status = "CANCELADO"
)

var ordemStatus = map[Status]int{
	StatusIdentificado:  0,
	StatusValidado:      1,
	StatusTokenizado:    2,
	StatusEmCompensacao: 3,
	StatusUtilizado:     4,
	StatusEsgotado:      5,
}

// Terminal indica se o status encerra o ciclo de vida do título.
func (s Status) Terminal() bool {
	switch s {
	case StatusEsgotado, StatusRejeitado, StatusCancelado:
		return true
	default:
		return false
	}
}

// PodeTransitar aplica a regra de monotonicidade do ciclo de vida:
// o status só avança, exceto CANCELADO e REJEITADO, alcançáveis de
// qualquer estado não terminal.
func PodeTransitar(de, para Status) bool {
	if de.Terminal() {
		return false
	}
	if para == StatusCancelado || para == StatusRejeitado {
		return true
	}
	ordemDe, okDe := ordemStatus[de]
	ordemPara, okPara := ordemStatus[para]
	if !okDe || !okPara {
		return false
	}
	// UTILIZADO volta a EM_COMPENSACAO quando entra em nova compensação.
	if de == StatusUtilizado && para == StatusEmCompensacao {
		return true
	}
	return ordemPara > ordemDe
}

// Titulo representa um título de crédito fiscal.
type Titulo struct {
	ID              uuid.UUID       `json:"id"`
	EmpresaID       uuid.UUID       `json:"empresa_id"`
	Categoria       Categoria       `json:"categoria"`
	Subtipo         string          `json:"subtipo"`
	Jurisdicao      string          `json:"jurisdicao"`
	Moeda           string          `json:"moeda"`
	ValorNominal    decimal.Decimal `json:"valor_nominal"`
	ValorDisponivel decimal.Decimal `json:"valor_disponivel"`
	Emissao         time.Time       `json:"emissao"`
	Vencimento      *time.Time      `json:"vencimento,omitempty"`
	Status          Status          `json:"status"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	CriadoEm        time.Time       `json:"criado_em"`
	AtualizadoEm    time.Time       `json:"atualizado_em"`
}

// Vencido indica se o título expirou em relação à data de referência.
// Títulos sem vencimento nunca expiram.
func (t *Titulo) Vencido(ref time.Time) bool {
	return t.Vencimento != nil && t.Vencimento.Before(ref)
}

// Disponivel indica se o título pode participar de compensações.
func (t *Titulo) Disponivel(ref time.Time) bool {
	switch t.Status {
	case StatusTokenizado, StatusEmCompensacao, StatusUtilizado:
	default:
		return false
	}
	return !t.Vencido(ref) && t.ValorDisponivel.IsPositive()
}
