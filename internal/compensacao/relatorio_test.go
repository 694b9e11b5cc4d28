package compensacao

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadotc/api/internal/titulo"
)

func TestGerarRelatorioBasico(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	c1 := creditoFlex("c1", 100)
	c1.Categoria = titulo.CategoriaTributario
	c2 := creditoFlex("c2", 50)
	c2.Categoria = titulo.CategoriaJudicial

	d1 := debitoSimples("d1", 60, dataUTC(2026, 9, 1))
	d1.Juros = decimal.RequireFromString("0.10")
	d2 := debitoSimples("d2", 140, dataUTC(2026, 10, 1))
	d2.Jurisdicao = "RJ"
	d2.Multa = decimal.RequireFromString("0.05")

	alocacoes := []Alocacao{
		{CreditoID: "c1", DebitoID: "d1", Valor: decimal.NewFromInt(60)},
		{CreditoID: "c1", DebitoID: "d2", Valor: decimal.NewFromInt(40)},
		{CreditoID: "c2", DebitoID: "d2", Valor: decimal.NewFromInt(50)},
	}

	rel := GerarRelatorio(id, []Credito{c1, c2}, []Debito{d1, d2}, alocacoes,
		decimal.NewFromInt(150), 30*24*time.Hour, ref)

	assert.Equal(t, id, rel.RequestID)
	assert.Equal(t, ref, rel.GeradoEm)

	// 150 compensados de 200 em débitos.
	assert.True(t, rel.Eficiencia.Equal(decimal.RequireFromString("0.75")), "eficiência %s", rel.Eficiencia)

	// d1: 60 × 0.10 = 6; d2: 90 × 0.05 = 4.50.
	assert.True(t, rel.Economia.Equal(decimal.RequireFromString("10.50")), "economia %s", rel.Economia)

	require.Len(t, rel.PorCategoria, 2)
	assert.Equal(t, "JUDICIAL", rel.PorCategoria[0].Chave)
	assert.True(t, rel.PorCategoria[0].Valor.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "TRIBUTARIO", rel.PorCategoria[1].Chave)
	assert.True(t, rel.PorCategoria[1].Valor.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, rel.PorCategoria[1].Itens)

	require.Len(t, rel.PorJurisdicao, 2)
	assert.Equal(t, "RJ", rel.PorJurisdicao[0].Chave)
	assert.True(t, rel.PorJurisdicao[0].Valor.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, "SP", rel.PorJurisdicao[1].Chave)

	assert.Equal(t, 2, rel.Estatisticas.CreditosUtilizados)
	assert.Equal(t, 2, rel.Estatisticas.DebitosAbatidos)
	assert.Equal(t, 1, rel.Estatisticas.DebitosQuitados)
	assert.True(t, rel.Estatisticas.TicketMedio.Equal(decimal.NewFromInt(50)))

	// Plano integralmente alcançado, nenhum crédito vencendo: sem alertas.
	assert.Empty(t, rel.Alertas)
}

func TestGerarRelatorioVazio(t *testing.T) {
	rel := GerarRelatorio(uuid.New(), nil, nil, nil, decimal.Zero, 0, time.Now())

	assert.True(t, rel.Eficiencia.IsZero())
	assert.True(t, rel.Economia.IsZero())
	assert.Empty(t, rel.PorCategoria)
	assert.Empty(t, rel.PorJurisdicao)
	assert.Zero(t, rel.Estatisticas.CreditosUtilizados)
	assert.True(t, rel.Estatisticas.TicketMedio.IsZero())
	assert.Empty(t, rel.Alertas)
}

func TestGerarRelatorioAlertaPrazo(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	venceDentro := ref.AddDate(0, 0, 10)
	venceFora := ref.AddDate(0, 6, 0)

	sobrando := creditoFlex("c-sobra", 100)
	sobrando.Vencimento = &venceDentro
	esgotado := creditoFlex("c-esgotado", 40)
	esgotado.Vencimento = &venceDentro
	folgado := creditoFlex("c-folgado", 100)
	folgado.Vencimento = &venceFora

	d := debitoSimples("d1", 70, dataUTC(2026, 7, 1))
	alocacoes := []Alocacao{
		{CreditoID: "c-sobra", DebitoID: "d1", Valor: decimal.NewFromInt(30)},
		{CreditoID: "c-esgotado", DebitoID: "d1", Valor: decimal.NewFromInt(40)},
	}

	rel := GerarRelatorio(uuid.New(), []Credito{sobrando, esgotado, folgado}, []Debito{d},
		alocacoes, decimal.NewFromInt(70), 30*24*time.Hour, ref)

	require.Len(t, rel.Alertas, 1)
	alerta := rel.Alertas[0]
	assert.Equal(t, AlertaPrazo, alerta.Tipo)
	assert.Equal(t, "AVISO", alerta.Severidade)
	assert.Equal(t, "c-sobra", alerta.ItemID)
	assert.Contains(t, alerta.Mensagem, "70.00")
}

func TestGerarRelatorioAlertaValor(t *testing.T) {
	ref := time.Now()
	d := debitoSimples("d1", 100, ref.AddDate(0, 1, 0))
	aloc := []Alocacao{{CreditoID: "c1", DebitoID: "d1", Valor: decimal.NewFromInt(60)}}

	rel := GerarRelatorio(uuid.New(), []Credito{creditoFlex("c1", 60)}, []Debito{d},
		aloc, decimal.NewFromInt(100), 0, ref)
	require.Len(t, rel.Alertas, 1)
	assert.Equal(t, AlertaValor, rel.Alertas[0].Tipo)
	assert.Equal(t, "AVISO", rel.Alertas[0].Severidade)

	// Abaixo de metade do planejado a severidade sobe.
	aloc[0].Valor = decimal.NewFromInt(40)
	rel = GerarRelatorio(uuid.New(), []Credito{creditoFlex("c1", 60)}, []Debito{d},
		aloc, decimal.NewFromInt(100), 0, ref)
	require.Len(t, rel.Alertas, 1)
	assert.Equal(t, "CRITICO", rel.Alertas[0].Severidade)
	assert.Contains(t, rel.Alertas[0].Mensagem, "40%")
}

func TestEconomiaEstimadaSemEncargos(t *testing.T) {
	d := debitoSimples("d1", 100, time.Now())
	aloc := []Alocacao{{CreditoID: "c1", DebitoID: "d1", Valor: decimal.NewFromInt(100)}}
	assert.True(t, EconomiaEstimada([]Debito{d}, aloc).IsZero())
}
