package compensacao

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/titulo"
)

// Restricoes filtra o pool antes da alocação. Restrições que esvaziam um
// dos lados são respeitadas: o otimizador devolve alocação vazia.
type Restricoes struct {
	CreditosPermitidos []string           `json:"creditos_permitidos,omitempty"`
	DebitosPermitidos  []string           `json:"debitos_permitidos,omitempty"`
	ValorMinimo        *decimal.Decimal   `json:"valor_minimo,omitempty"`
	ValorMaximo        *decimal.Decimal   `json:"valor_maximo,omitempty"`
	Categorias         []titulo.Categoria `json:"categorias,omitempty"`
	Jurisdicoes        []string           `json:"jurisdicoes,omitempty"`
}

// ResultadoOtimizacao carrega as alocações e a visão derivada dos saldos
// pós-alocação. Os pools de entrada nunca são mutados; o chamador decide
// quando (e se) efetivar.
type ResultadoOtimizacao struct {
	Alocacoes      []Alocacao
	SaldosCreditos map[string]decimal.Decimal
	SaldosDebitos  map[string]decimal.Decimal
}

// ValorAlocado soma o total das alocações produzidas.
func (r *ResultadoOtimizacao) ValorAlocado() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Alocacoes {
		total = total.Add(a.Valor)
	}
	return total
}

// Otimizar produz alocações (crédito, débito, valor) sob a política pedida.
// Determinístico: entrada idêntica e mesma política produzem a mesma lista,
// byte a byte. Termina mesmo sem nenhum par compatível (lista vazia).
func Otimizar(creditos []Credito, debitos []Debito, politica Politica, restr Restricoes, ref time.Time, limitePool int) (*ResultadoOtimizacao, error) {
	if !politica.Valida() {
		return nil, fmt.Errorf("%w: política desconhecida %q", ErrValidacao, politica)
	}
	if limitePool > 0 && (len(creditos) > limitePool || len(debitos) > limitePool) {
		return nil, fmt.Errorf("%w: %d créditos × %d débitos (limite %d)",
			ErrPoolExcedido, len(creditos), len(debitos), limitePool)
	}

	poolC := filtrarCreditos(creditos, restr)
	poolD := filtrarDebitos(debitos, restr)

	resultado := &ResultadoOtimizacao{
		Alocacoes:      []Alocacao{},
		SaldosCreditos: make(map[string]decimal.Decimal, len(poolC)),
		SaldosDebitos:  make(map[string]decimal.Decimal, len(poolD)),
	}
	for _, c := range poolC {
		resultado.SaldosCreditos[c.ID] = c.Saldo
	}
	for _, d := range poolD {
		resultado.SaldosDebitos[d.ID] = d.Saldo
	}

	// Compatibilidade é avaliada uma vez por par; saldo corrente é
	// acompanhado à parte nos mapas de trabalho.
	compat, err := matrizCompatibilidade(poolC, poolD, ref)
	if err != nil {
		return nil, err
	}

	if politica == PoliticaPrazo {
		alocarPorPrazo(poolC, poolD, compat, restr, resultado)
		return resultado, nil
	}

	ordenarDebitos(poolD, politica)
	ordenarCreditosPorSaldo(poolC)

	for _, d := range poolD {
		for _, c := range poolC {
			if !compat[c.ID+"|"+d.ID] {
				continue
			}
			alocar(c.ID, d.ID, restr, resultado)
			if !resultado.SaldosDebitos[d.ID].IsPositive() {
				break
			}
		}
	}

	return resultado, nil
}

// alocarPorPrazo percorre créditos por vencimento crescente (sem vencimento
// por último) e, para cada um, abate débitos por vencimento crescente.
func alocarPorPrazo(poolC []Credito, poolD []Debito, compat map[string]bool, restr Restricoes, resultado *ResultadoOtimizacao) {
	sort.SliceStable(poolC, func(i, j int) bool {
		vi, vj := poolC[i].Vencimento, poolC[j].Vencimento
		switch {
		case vi == nil && vj == nil:
			return poolC[i].ID < poolC[j].ID
		case vi == nil:
			return false
		case vj == nil:
			return true
		case !vi.Equal(*vj):
			return vi.Before(*vj)
		default:
			return poolC[i].ID < poolC[j].ID
		}
	})
	sort.SliceStable(poolD, func(i, j int) bool {
		if !poolD[i].Vencimento.Equal(poolD[j].Vencimento) {
			return poolD[i].Vencimento.Before(poolD[j].Vencimento)
		}
		return poolD[i].ID < poolD[j].ID
	})

	for _, c := range poolC {
		for _, d := range poolD {
			if !compat[c.ID+"|"+d.ID] {
				continue
			}
			alocar(c.ID, d.ID, restr, resultado)
			if !resultado.SaldosCreditos[c.ID].IsPositive() {
				break
			}
		}
	}
}

// alocar consome o máximo possível do par, respeitando limites por alocação
// e a precisão mais grossa entre os dois saldos (nunca inventa centavos).
func alocar(creditoID, debitoID string, restr Restricoes, resultado *ResultadoOtimizacao) {
	saldoC := resultado.SaldosCreditos[creditoID]
	saldoD := resultado.SaldosDebitos[debitoID]
	if !saldoC.IsPositive() || !saldoD.IsPositive() {
		return
	}

	valor := decimal.Min(saldoC, saldoD)
	if restr.ValorMaximo != nil && valor.GreaterThan(*restr.ValorMaximo) {
		valor = *restr.ValorMaximo
	}
	valor = truncarPrecisao(valor, saldoC, saldoD)
	if !valor.IsPositive() {
		return
	}
	if restr.ValorMinimo != nil && valor.LessThan(*restr.ValorMinimo) {
		return
	}

	resultado.Alocacoes = append(resultado.Alocacoes, Alocacao{
		CreditoID: creditoID,
		DebitoID:  debitoID,
		Valor:     valor,
	})
	resultado.SaldosCreditos[creditoID] = saldoC.Sub(valor)
	resultado.SaldosDebitos[debitoID] = saldoD.Sub(valor)
}

func matrizCompatibilidade(poolC []Credito, poolD []Debito, ref time.Time) (map[string]bool, error) {
	compat := make(map[string]bool, len(poolC)*len(poolD))
	for _, c := range poolC {
		for _, d := range poolD {
			res, err := VerificarCompatibilidade(c, d, ref)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidacao, err)
			}
			compat[c.ID+"|"+d.ID] = res.Compativel
		}
	}
	return compat, nil
}

// ordenarDebitos aplica a chave de ordenação da política. Empates sempre
// quebram por vencimento mais próximo e depois por id, para determinismo.
func ordenarDebitos(poolD []Debito, politica Politica) {
	var menos func(i, j int) bool
	switch politica {
	case PoliticaQuantidade:
		// Quita débitos pequenos primeiro para maximizar a contagem.
		menos = func(i, j int) bool {
			if !poolD[i].Saldo.Equal(poolD[j].Saldo) {
				return poolD[i].Saldo.LessThan(poolD[j].Saldo)
			}
			return desempateDebito(poolD[i], poolD[j])
		}
	case PoliticaEconomia:
		// Débitos que mais acumulam juros/multa saem primeiro.
		menos = func(i, j int) bool {
			pi, pj := poolD[i].PesoEconomico(), poolD[j].PesoEconomico()
			if !pi.Equal(pj) {
				return pi.GreaterThan(pj)
			}
			if !poolD[i].Saldo.Equal(poolD[j].Saldo) {
				return poolD[i].Saldo.GreaterThan(poolD[j].Saldo)
			}
			return desempateDebito(poolD[i], poolD[j])
		}
	default: // VALOR
		menos = func(i, j int) bool {
			if !poolD[i].Saldo.Equal(poolD[j].Saldo) {
				return poolD[i].Saldo.GreaterThan(poolD[j].Saldo)
			}
			return desempateDebito(poolD[i], poolD[j])
		}
	}
	sort.SliceStable(poolD, menos)
}

func desempateDebito(a, b Debito) bool {
	if !a.Vencimento.Equal(b.Vencimento) {
		return a.Vencimento.Before(b.Vencimento)
	}
	return a.ID < b.ID
}

// ordenarCreditosPorSaldo é a seleção gulosa interna comum às políticas
// VALOR, QUANTIDADE e ECONOMIA: maior saldo primeiro.
func ordenarCreditosPorSaldo(poolC []Credito) {
	sort.SliceStable(poolC, func(i, j int) bool {
		if !poolC[i].Saldo.Equal(poolC[j].Saldo) {
			return poolC[i].Saldo.GreaterThan(poolC[j].Saldo)
		}
		vi, vj := poolC[i].Vencimento, poolC[j].Vencimento
		switch {
		case vi == nil && vj == nil:
		case vi == nil:
			return false
		case vj == nil:
			return true
		case !vi.Equal(*vj):
			return vi.Before(*vj)
		}
		return poolC[i].ID < poolC[j].ID
	})
}

// truncarPrecisao limita o valor à escala mais grossa entre os dois saldos.
func truncarPrecisao(valor, a, b decimal.Decimal) decimal.Decimal {
	exp := a.Exponent()
	if b.Exponent() > exp {
		exp = b.Exponent()
	}
	casas := -exp
	if casas < 0 {
		casas = 0
	}
	return valor.Truncate(casas)
}

func filtrarCreditos(creditos []Credito, restr Restricoes) []Credito {
	permitidos := conjuntoStr(restr.CreditosPermitidos)
	categorias := make(map[titulo.Categoria]bool, len(restr.Categorias))
	for _, c := range restr.Categorias {
		categorias[c] = true
	}
	jurisdicoes := conjuntoStr(restr.Jurisdicoes)

	out := make([]Credito, 0, len(creditos))
	for _, c := range creditos {
		if permitidos != nil && !permitidos[c.ID] {
			continue
		}
		if len(categorias) > 0 && !categorias[c.Categoria] {
			continue
		}
		if jurisdicoes != nil && !jurisdicoes[c.Jurisdicao] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func filtrarDebitos(debitos []Debito, restr Restricoes) []Debito {
	permitidos := conjuntoStr(restr.DebitosPermitidos)
	jurisdicoes := conjuntoStr(restr.Jurisdicoes)

	out := make([]Debito, 0, len(debitos))
	for _, d := range debitos {
		if permitidos != nil && !permitidos[d.ID] {
			continue
		}
		if jurisdicoes != nil && !jurisdicoes[d.Jurisdicao] {
			continue
		}
		out = append(out, d)
	}
	return out
}

func conjuntoStr(itens []string) map[string]bool {
	if len(itens) == 0 {
		return nil
	}
	set := make(map[string]bool, len(itens))
	for _, item := range itens {
		set[item] = true
	}
	return set
}
