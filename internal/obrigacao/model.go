package obrigacao

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Esfera indica o nível federativo do tributo devido.
type Esfera string

const (
	EsferaFederal   Esfera = "FEDERAL"
	EsferaEstadual  Esfera = "ESTADUAL"
	EsferaMunicipal Esfera = "MUNICIPAL"
)

// Status é sempre derivado do saldo e do vencimento, nunca gravado à mão.
type Status string

const (
	StatusPendente   Status = "PENDENTE"
	StatusParcial    Status = "PARCIALMENTE_COMPENSADO"
	StatusCompensado Status = "COMPENSADO"
	StatusVencido    Status = "VENCIDO"
)

// Obrigacao representa uma obrigação fiscal em aberto.
type Obrigacao struct {
	ID            uuid.UUID       `json:"id"`
	EmpresaID     uuid.UUID       `json:"empresa_id"`
	Tributo       string          `json:"tributo"`
	Esfera        Esfera          `json:"esfera"`
	UF            string          `json:"uf,omitempty"`
	Moeda         string          `json:"moeda"`
	ValorOriginal decimal.Decimal `json:"valor_original"`
	ValorRestante decimal.Decimal `json:"valor_restante"`
	// Juros e Multa são taxas mensais equivalentes usadas pelo peso econômico.
	Juros      decimal.Decimal `json:"juros"`
	Multa      decimal.Decimal `json:"multa"`
	Vencimento time.Time       `json:"vencimento"`
	CriadoEm   time.Time       `json:"criado_em"`
}

// Jurisdicao devolve a chave de jurisdição comparável com a de um título:
// UF para tributos estaduais, o nome da esfera nos demais casos.
func (o *Obrigacao) Jurisdicao() string {
	if o.Esfera == EsferaEstadual && o.UF != "" {
		return o.UF
	}
	return string(o.Esfera)
}

// DeriveStatus calcula o status determinístico da obrigação.
func DeriveStatus(original, restante decimal.Decimal, vencimento, ref time.Time) Status {
	if restante.IsZero() {
		return StatusCompensado
	}
	if vencimento.Before(ref) {
		return StatusVencido
	}
	if restante.LessThan(original) {
		return StatusParcial
	}
	return StatusPendente
}

// Status calcula o estado atual em relação à data de referência.
func (o *Obrigacao) Status(ref time.Time) Status {
	return DeriveStatus(o.ValorOriginal, o.ValorRestante, o.Vencimento, ref)
}

// PesoEconomico mede quanto a obrigação acumula de juros e multa; é a chave
// de ordenação da política ECONOMIA. Taxas ausentes pesam zero.
func (o *Obrigacao) PesoEconomico() decimal.Decimal {
	return o.ValorRestante.Mul(o.Juros.Add(o.Multa))
}
