// Comando simular roda o otimizador de alocação sobre um arquivo JSON, sem
// banco nem rede. Útil para conferir o plano de uma compensação antes de
// abrir a requisição.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/compensacao"
	"github.com/mercadotc/api/internal/titulo"
)

type creditoArquivo struct {
	ID         string `json:"id"`
	Categoria  string `json:"categoria"`
	Subtipo    string `json:"subtipo"`
	Jurisdicao string `json:"jurisdicao"`
	Moeda      string `json:"moeda"`
	Saldo      string `json:"saldo"`
	Vencimento string `json:"vencimento,omitempty"`
}

type debitoArquivo struct {
	ID         string `json:"id"`
	Tributo    string `json:"tributo"`
	Jurisdicao string `json:"jurisdicao"`
	Moeda      string `json:"moeda"`
	Saldo      string `json:"saldo"`
	Vencimento string `json:"vencimento"`
	Juros      string `json:"juros,omitempty"`
	Multa      string `json:"multa,omitempty"`
}

type entradaArquivo struct {
	Creditos []creditoArquivo `json:"creditos"`
	Debitos  []debitoArquivo  `json:"debitos"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		arquivo  = flag.String("arquivo", "", "arquivo JSON com créditos e débitos (obrigatório)")
		politica = flag.String("politica", "VALOR", "política de alocação: VALOR, QUANTIDADE, PRAZO ou ECONOMIA")
		janela   = flag.Duration("janela-alerta", 30*24*time.Hour, "antecedência do alerta de vencimento")
	)
	flag.Parse()

	if *arquivo == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*arquivo, compensacao.Politica(*politica), *janela); err != nil {
		log.Fatal().Err(err).Msg("simulação falhou")
	}
}

func run(arquivo string, politica compensacao.Politica, janela time.Duration) error {
	raw, err := os.ReadFile(arquivo)
	if err != nil {
		return err
	}

	var entrada entradaArquivo
	if err := json.Unmarshal(raw, &entrada); err != nil {
		return fmt.Errorf("decodificar %s: %w", arquivo, err)
	}

	creditos, err := converterCreditos(entrada.Creditos)
	if err != nil {
		return err
	}
	debitos, err := converterDebitos(entrada.Debitos)
	if err != nil {
		return err
	}

	agora := time.Now().UTC()
	resultado, err := compensacao.Otimizar(creditos, debitos, politica, compensacao.Restricoes{}, agora, 0)
	if err != nil {
		return err
	}

	relatorio := compensacao.GerarRelatorio(uuid.Nil, creditos, debitos, resultado.Alocacoes,
		resultado.ValorAlocado(), janela, agora)

	saida := map[string]any{
		"politica":        politica,
		"valor_alocado":   resultado.ValorAlocado(),
		"alocacoes":       resultado.Alocacoes,
		"saldos_creditos": resultado.SaldosCreditos,
		"saldos_debitos":  resultado.SaldosDebitos,
		"relatorio":       relatorio,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(saida)
}

func converterCreditos(itens []creditoArquivo) ([]compensacao.Credito, error) {
	creditos := make([]compensacao.Credito, 0, len(itens))
	for _, item := range itens {
		saldo, err := decimal.NewFromString(item.Saldo)
		if err != nil {
			return nil, fmt.Errorf("crédito %s: saldo inválido: %w", item.ID, err)
		}

		c := compensacao.Credito{
			ID:         item.ID,
			Categoria:  titulo.Categoria(item.Categoria),
			Subtipo:    item.Subtipo,
			Jurisdicao: item.Jurisdicao,
			Moeda:      moedaOuPadrao(item.Moeda),
			Saldo:      saldo,
		}
		if item.Vencimento != "" {
			venc, err := time.Parse("2006-01-02", item.Vencimento)
			if err != nil {
				return nil, fmt.Errorf("crédito %s: vencimento inválido: %w", item.ID, err)
			}
			c.Vencimento = &venc
		}
		creditos = append(creditos, c)
	}
	return creditos, nil
}

func converterDebitos(itens []debitoArquivo) ([]compensacao.Debito, error) {
	debitos := make([]compensacao.Debito, 0, len(itens))
	for _, item := range itens {
		saldo, err := decimal.NewFromString(item.Saldo)
		if err != nil {
			return nil, fmt.Errorf("débito %s: saldo inválido: %w", item.ID, err)
		}
		venc, err := time.Parse("2006-01-02", item.Vencimento)
		if err != nil {
			return nil, fmt.Errorf("débito %s: vencimento inválido: %w", item.ID, err)
		}

		d := compensacao.Debito{
			ID:         item.ID,
			Tributo:    item.Tributo,
			Jurisdicao: item.Jurisdicao,
			Moeda:      moedaOuPadrao(item.Moeda),
			Saldo:      saldo,
			Vencimento: venc,
			Juros:      decimal.Zero,
			Multa:      decimal.Zero,
		}
		if item.Juros != "" {
			if d.Juros, err = decimal.NewFromString(item.Juros); err != nil {
				return nil, fmt.Errorf("débito %s: juros inválidos: %w", item.ID, err)
			}
		}
		if item.Multa != "" {
			if d.Multa, err = decimal.NewFromString(item.Multa); err != nil {
				return nil, fmt.Errorf("débito %s: multa inválida: %w", item.ID, err)
			}
		}
		debitos = append(debitos, d)
	}
	return debitos, nil
}

func moedaOuPadrao(moeda string) string {
	if moeda == "" {
		return "BRL"
	}
	return moeda
}
