package obrigacao

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	futuro := ref.AddDate(0, 1, 0)
	passado := ref.AddDate(0, -1, 0)

	original := decimal.NewFromInt(100)

	assert.Equal(t, StatusPendente, DeriveStatus(original, original, futuro, ref))
	assert.Equal(t, StatusParcial, DeriveStatus(original, decimal.NewFromInt(40), futuro, ref))
	assert.Equal(t, StatusCompensado, DeriveStatus(original, decimal.Zero, futuro, ref))
	assert.Equal(t, StatusVencido, DeriveStatus(original, original, passado, ref))

	// Quitação integral vence o vencimento: obrigação zerada nunca é VENCIDO.
	assert.Equal(t, StatusCompensado, DeriveStatus(original, decimal.Zero, passado, ref))
}

func TestJurisdicao(t *testing.T) {
	estadual := Obrigacao{Esfera: EsferaEstadual, UF: "SP"}
	assert.Equal(t, "SP", estadual.Jurisdicao())

	federal := Obrigacao{Esfera: EsferaFederal}
	assert.Equal(t, "FEDERAL", federal.Jurisdicao())

	// Estadual sem UF cai na esfera para não comparar com vazio.
	semUF := Obrigacao{Esfera: EsferaEstadual}
	assert.Equal(t, "ESTADUAL", semUF.Jurisdicao())
}

func TestPesoEconomico(t *testing.T) {
	o := Obrigacao{
		ValorRestante: decimal.NewFromInt(200),
		Juros:         decimal.RequireFromString("0.03"),
		Multa:         decimal.RequireFromString("0.02"),
	}
	assert.True(t, o.PesoEconomico().Equal(decimal.NewFromInt(10)))

	semEncargos := Obrigacao{ValorRestante: decimal.NewFromInt(200)}
	assert.True(t, semEncargos.PesoEconomico().IsZero())
}
