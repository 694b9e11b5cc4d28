package compensacao

import (
	"errors"
	"strings"
	"time"

	"github.com/mercadotc/api/internal/titulo"
)

// Motivo enumera as razões de incompatibilidade entre crédito e débito.
type Motivo string

const (
	MotivoCategoria  Motivo = "CATEGORIA_INCOMPATIVEL"
	MotivoJurisdicao Motivo = "JURISDICAO_DIVERGENTE"
	MotivoVencido    Motivo = "CREDITO_VENCIDO"
	MotivoSaldoZero  Motivo = "SALDO_ZERADO"
	MotivoMoeda      Motivo = "MOEDA_DIVERGENTE"
)

// Compatibilidade é o resultado etiquetado da verificação. Incompatibilidade
// normal nunca vira erro; erro só existe para entrada malformada.
type Compatibilidade struct {
	Compativel bool
	Motivo     Motivo
	Descricao  string
}

func compativel() Compatibilidade {
	return Compatibilidade{Compativel: true}
}

func incompativel(motivo Motivo, descricao string) Compatibilidade {
	return Compatibilidade{Compativel: false, Motivo: motivo, Descricao: descricao}
}

// tributosFederais são intercompensáveis entre si: um crédito de PIS pode
// abater COFINS, IRPJ ou CSLL, e vice-versa.
var tributosFederais = map[string]bool{
	"PIS":    true,
	"COFINS": true,
	"IRPJ":   true,
	"CSLL":   true,
}

// VerificarCompatibilidade decide se um crédito pode legalmente abater um
// débito. A regra de categoria vem primeiro; restrições universais
// (vencimento, moeda, saldo) vêm depois.
func VerificarCompatibilidade(c Credito, d Debito, ref time.Time) (Compatibilidade, error) {
	if c.ID == "" || d.ID == "" {
		return Compatibilidade{}, errors.New("crédito e débito precisam de id")
	}
	if c.Categoria == "" {
		return Compatibilidade{}, errors.New("crédito sem categoria")
	}
	if strings.TrimSpace(d.Tributo) == "" {
		return Compatibilidade{}, errors.New("débito sem tributo")
	}

	subtipo := strings.ToUpper(strings.TrimSpace(c.Subtipo))
	tributo := strings.ToUpper(strings.TrimSpace(d.Tributo))

	var resultado Compatibilidade
	switch c.Categoria {
	case titulo.CategoriaTributario:
		resultado = compatTributario(c, d, subtipo, tributo)
	case titulo.CategoriaJudicial:
		// Precatórios são vinculados ao tribunal/jurisdição de origem:
		// exigem tributo e jurisdição exatamente iguais.
		if tributo != subtipo {
			resultado = incompativel(MotivoCategoria, "crédito judicial exige tributo idêntico ao subtipo")
		} else if !mesmaJurisdicao(c.Jurisdicao, d.Jurisdicao) {
			resultado = incompativel(MotivoJurisdicao, "crédito judicial restrito à jurisdição de origem")
		} else {
			resultado = compativel()
		}
	case titulo.CategoriaComercial, titulo.CategoriaRural, titulo.CategoriaAmbiental:
		// Créditos de uso flexível: qualquer débito, sujeitos só às
		// restrições universais abaixo.
		resultado = compativel()
	default:
		// Categoria desconhecida falha fechada: nunca permitida em silêncio.
		resultado = incompativel(MotivoCategoria, "categoria desconhecida: "+string(c.Categoria))
	}

	if !resultado.Compativel {
		return resultado, nil
	}

	if c.Vencimento != nil && c.Vencimento.Before(ref) {
		return incompativel(MotivoVencido, "crédito vencido não pode ser alocado"), nil
	}
	if !strings.EqualFold(c.Moeda, d.Moeda) {
		return incompativel(MotivoMoeda, "moedas divergentes"), nil
	}
	if !c.Saldo.IsPositive() || !d.Saldo.IsPositive() {
		return incompativel(MotivoSaldoZero, "saldo disponível esgotado"), nil
	}

	return compativel(), nil
}

func compatTributario(c Credito, d Debito, subtipo, tributo string) Compatibilidade {
	switch {
	case strings.Contains(subtipo, "ICMS"):
		// ICMS é estadual: não cruza fronteira de UF.
		if tributo != "ICMS" {
			return incompativel(MotivoCategoria, "crédito de ICMS só abate débitos de ICMS")
		}
		if !mesmaJurisdicao(c.Jurisdicao, d.Jurisdicao) {
			return incompativel(MotivoJurisdicao, "ICMS não compensa entre estados")
		}
		return compativel()
	case strings.Contains(subtipo, "PIS"), strings.Contains(subtipo, "COFINS"), strings.Contains(subtipo, "IRPJ"):
		// Créditos federais abatem qualquer tributo federal, não só o idêntico.
		if tributosFederais[tributo] {
			return compativel()
		}
		return incompativel(MotivoCategoria, "crédito federal só abate tributos federais")
	default:
		if subtipo == tributo {
			return compativel()
		}
		return incompativel(MotivoCategoria, "subtipo exige tributo idêntico")
	}
}

func mesmaJurisdicao(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
