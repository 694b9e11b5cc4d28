package compensacao

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var cem = decimal.NewFromInt(100)

// GerarRelatorio monta o relatório analítico de uma compensação a partir dos
// pools e das alocações. Função pura: não consulta banco nem relógio além do
// ref recebido.
func GerarRelatorio(requestID uuid.UUID, creditos []Credito, debitos []Debito, alocacoes []Alocacao, valorPlanejado decimal.Decimal, janelaAlerta time.Duration, ref time.Time) *RelatorioCompensacao {
	valorCompensado := decimal.Zero
	for _, a := range alocacoes {
		valorCompensado = valorCompensado.Add(a.Valor)
	}

	totalDebitos := decimal.Zero
	for _, d := range debitos {
		totalDebitos = totalDebitos.Add(d.Saldo)
	}

	eficiencia := decimal.Zero
	if totalDebitos.IsPositive() {
		eficiencia = valorCompensado.Div(totalDebitos).Round(4)
	}

	rel := &RelatorioCompensacao{
		RequestID:     requestID,
		Eficiencia:    eficiencia,
		Economia:      EconomiaEstimada(debitos, alocacoes),
		PorCategoria:  agregarPorCategoria(creditos, alocacoes),
		PorJurisdicao: agregarPorJurisdicao(debitos, alocacoes),
		Estatisticas:  calcularEstatisticas(debitos, alocacoes, valorCompensado),
		GeradoEm:      ref,
	}
	rel.Alertas = append(rel.Alertas, alertasDePrazo(creditos, alocacoes, janelaAlerta, ref)...)
	rel.Alertas = append(rel.Alertas, alertasDeValor(valorPlanejado, valorCompensado)...)
	return rel
}

// EconomiaEstimada projeta juros e multa evitados: cada real abatido deixa de
// acumular os encargos do débito correspondente.
func EconomiaEstimada(debitos []Debito, alocacoes []Alocacao) decimal.Decimal {
	encargos := make(map[string]decimal.Decimal, len(debitos))
	for _, d := range debitos {
		encargos[d.ID] = d.Juros.Add(d.Multa)
	}
	economia := decimal.Zero
	for _, a := range alocacoes {
		economia = economia.Add(a.Valor.Mul(encargos[a.DebitoID]))
	}
	return economia.Round(2)
}

func agregarPorCategoria(creditos []Credito, alocacoes []Alocacao) []AgregadoCompensacao {
	categoria := make(map[string]string, len(creditos))
	for _, c := range creditos {
		categoria[c.ID] = string(c.Categoria)
	}
	return agregar(alocacoes, func(a Alocacao) string { return categoria[a.CreditoID] })
}

func agregarPorJurisdicao(debitos []Debito, alocacoes []Alocacao) []AgregadoCompensacao {
	jurisdicao := make(map[string]string, len(debitos))
	for _, d := range debitos {
		jurisdicao[d.ID] = d.Jurisdicao
	}
	return agregar(alocacoes, func(a Alocacao) string { return jurisdicao[a.DebitoID] })
}

func agregar(alocacoes []Alocacao, chaveDe func(Alocacao) string) []AgregadoCompensacao {
	porChave := make(map[string]*AgregadoCompensacao)
	for _, a := range alocacoes {
		chave := chaveDe(a)
		agg, ok := porChave[chave]
		if !ok {
			agg = &AgregadoCompensacao{Chave: chave, Valor: decimal.Zero}
			porChave[chave] = agg
		}
		agg.Valor = agg.Valor.Add(a.Valor)
		agg.Itens++
	}

	out := make([]AgregadoCompensacao, 0, len(porChave))
	for _, agg := range porChave {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chave < out[j].Chave })
	return out
}

func calcularEstatisticas(debitos []Debito, alocacoes []Alocacao, valorCompensado decimal.Decimal) EstatisticasCompensacao {
	creditosUsados := make(map[string]bool)
	abatidoPorDebito := make(map[string]decimal.Decimal)
	for _, a := range alocacoes {
		creditosUsados[a.CreditoID] = true
		abatidoPorDebito[a.DebitoID] = abatidoPorDebito[a.DebitoID].Add(a.Valor)
	}

	quitados := 0
	for _, d := range debitos {
		if abatido, ok := abatidoPorDebito[d.ID]; ok && abatido.GreaterThanOrEqual(d.Saldo) {
			quitados++
		}
	}

	est := EstatisticasCompensacao{
		CreditosUtilizados: len(creditosUsados),
		DebitosAbatidos:    len(abatidoPorDebito),
		DebitosQuitados:    quitados,
		TicketMedio:        decimal.Zero,
	}
	if len(alocacoes) > 0 {
		est.TicketMedio = valorCompensado.Div(decimal.NewFromInt(int64(len(alocacoes)))).Round(2)
	}
	return est
}

// alertasDePrazo aponta créditos com saldo remanescente e vencimento dentro
// da janela configurada. Crédito que sobra e vence é dinheiro perdido.
func alertasDePrazo(creditos []Credito, alocacoes []Alocacao, janela time.Duration, ref time.Time) []AlertaCompensacao {
	usado := make(map[string]decimal.Decimal, len(creditos))
	for _, a := range alocacoes {
		usado[a.CreditoID] = usado[a.CreditoID].Add(a.Valor)
	}

	limite := ref.Add(janela)
	var alertas []AlertaCompensacao
	for _, c := range creditos {
		if c.Vencimento == nil || c.Vencimento.After(limite) || c.Vencimento.Before(ref) {
			continue
		}
		sobra := c.Saldo.Sub(usado[c.ID])
		if !sobra.IsPositive() {
			continue
		}
		alertas = append(alertas, AlertaCompensacao{
			Tipo:       AlertaPrazo,
			Severidade: "AVISO",
			Mensagem: fmt.Sprintf("crédito com saldo de %s vence em %s",
				sobra.StringFixed(2), c.Vencimento.Format("2006-01-02")),
			ItemID: c.ID,
		})
	}
	return alertas
}

// alertasDeValor sinaliza quando o valor alcançado fica abaixo do planejado.
// Abaixo de metade do plano a severidade sobe para CRITICO.
func alertasDeValor(planejado, compensado decimal.Decimal) []AlertaCompensacao {
	if !planejado.IsPositive() || compensado.GreaterThanOrEqual(planejado) {
		return nil
	}
	percentual := compensado.Div(planejado).Mul(cem).Round(1)
	severidade := "AVISO"
	if percentual.LessThan(decimal.NewFromInt(50)) {
		severidade = "CRITICO"
	}
	return []AlertaCompensacao{{
		Tipo:       AlertaValor,
		Severidade: severidade,
		Mensagem: fmt.Sprintf("compensado %s de %s planejado (%s%%)",
			compensado.StringFixed(2), planejado.StringFixed(2), percentual.String()),
	}}
}
