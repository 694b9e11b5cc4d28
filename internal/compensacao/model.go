package compensacao

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/titulo"
)

// StatusRequest é o ciclo de vida de uma requisição de compensação.
type StatusRequest string

const (
	StatusPendente    StatusRequest = "PENDENTE"
	StatusAnalisando  StatusRequest = "ANALISANDO"
	StatusAprovada    StatusRequest = "APROVADA"
	StatusRejeitada   StatusRequest = "REJEITADA"
	StatusProcessando StatusRequest = "PROCESSANDO"
	StatusConcluida   StatusRequest = "CONCLUIDA"
	StatusCancelada   StatusRequest = "CANCELADA"
)

// Terminal indica se o status encerra a requisição.
func (s StatusRequest) Terminal() bool {
	switch s {
	case StatusRejeitada, StatusConcluida, StatusCancelada:
		return true
	default:
		return false
	}
}

// Cancelavel indica se a requisição ainda pode ser cancelada. Uma requisição
// que começou a comprometer saldos (PROCESSANDO) precisa terminar explicitamente.
func (s StatusRequest) Cancelavel() bool {
	switch s {
	case StatusPendente, StatusAnalisando, StatusAprovada:
		return true
	default:
		return false
	}
}

// Politica seleciona a estratégia de alocação do otimizador.
type Politica string

const (
	PoliticaValor      Politica = "VALOR"
	PoliticaQuantidade Politica = "QUANTIDADE"
	PoliticaPrazo      Politica = "PRAZO"
	PoliticaEconomia   Politica = "ECONOMIA"
)

// Valida indica se a política pertence ao conjunto conhecido.
func (p Politica) Valida() bool {
	switch p {
	case PoliticaValor, PoliticaQuantidade, PoliticaPrazo, PoliticaEconomia:
		return true
	default:
		return false
	}
}

// StatusValidacao é o desfecho da análise de um item da requisição.
type StatusValidacao string

const (
	ValidacaoPendente  StatusValidacao = "PENDENTE"
	ValidacaoAprovada  StatusValidacao = "APROVADO"
	ValidacaoRejeitada StatusValidacao = "REJEITADO"
)

// Criterio é uma verificação individual da análise, com veredito.
type Criterio struct {
	Nome     string `json:"nome"`
	Aprovado bool   `json:"aprovado"`
	Detalhe  string `json:"detalhe,omitempty"`
}

// Validacao acumula o desfecho da análise de um item.
type Validacao struct {
	Status      StatusValidacao `json:"status"`
	Criterios   []Criterio      `json:"criterios,omitempty"`
	Observacoes []string        `json:"observacoes,omitempty"`
}

// CreditoCompensacao é um item de crédito da requisição.
type CreditoCompensacao struct {
	TituloID      uuid.UUID       `json:"titulo_id"`
	ValorProposto decimal.Decimal `json:"valor_proposto"`
	Validacao     Validacao       `json:"validacao"`
}

// DebitoCompensacao é um item de débito da requisição.
type DebitoCompensacao struct {
	ObrigacaoID   uuid.UUID       `json:"obrigacao_id"`
	ValorProposto decimal.Decimal `json:"valor_proposto"`
	Validacao     Validacao       `json:"validacao"`
}

// Documento é um anexo comprobatório da requisição.
type Documento struct {
	ID       uuid.UUID `json:"id"`
	Nome     string    `json:"nome"`
	URL      string    `json:"url"`
	EnvioEm  time.Time `json:"envio_em"`
	EnvioPor uuid.UUID `json:"envio_por"`
}

// CompensacaoRequest é a unidade atômica de trabalho que casa um conjunto
// de créditos contra um conjunto de débitos.
type CompensacaoRequest struct {
	ID         uuid.UUID     `json:"id"`
	EmpresaID  uuid.UUID     `json:"empresa_id"`
	Status     StatusRequest `json:"status"`
	Politica   Politica      `json:"politica"`
	Prioridade int           `json:"prioridade"`

	Creditos []CreditoCompensacao `json:"creditos"`
	Debitos  []DebitoCompensacao  `json:"debitos"`

	ValorTotalCreditos decimal.Decimal `json:"valor_total_creditos"`
	ValorTotalDebitos  decimal.Decimal `json:"valor_total_debitos"`
	// ValorPlanejado é a soma das alocações calculadas na aprovação;
	// sucesso no processamento significa alcançá-la integralmente.
	ValorPlanejado decimal.Decimal `json:"valor_planejado"`

	CriadoPor     uuid.UUID  `json:"criado_por"`
	AprovadoPor   *uuid.UUID `json:"aprovado_por,omitempty"`
	ProcessadoPor *uuid.UUID `json:"processado_por,omitempty"`

	Documentos []Documento `json:"documentos,omitempty"`

	Resultado *ResultadoCompensacao `json:"resultado,omitempty"`
	Relatorio *RelatorioCompensacao `json:"relatorio,omitempty"`

	CriadoEm     time.Time `json:"criado_em"`
	AtualizadoEm time.Time `json:"atualizado_em"`
}

// CreditoProcessado registra o consumo efetivo de um crédito no commit.
type CreditoProcessado struct {
	TituloID       uuid.UUID       `json:"titulo_id"`
	ValorUtilizado decimal.Decimal `json:"valor_utilizado"`
	SaldoRestante  decimal.Decimal `json:"saldo_restante"`
}

// DebitoProcessado registra o abatimento efetivo de uma obrigação no commit.
type DebitoProcessado struct {
	ObrigacaoID   uuid.UUID       `json:"obrigacao_id"`
	ValorAbatido  decimal.Decimal `json:"valor_abatido"`
	SaldoRestante decimal.Decimal `json:"saldo_restante"`
}

// ResultadoCompensacao é o desfecho do processamento. Sucesso indica que o
// valor integralmente planejado na aprovação foi alcançado; degradação por
// concorrência produz CONCLUIDA com sucesso=false e valor reduzido.
type ResultadoCompensacao struct {
	Sucesso          bool                `json:"sucesso"`
	ValorCompensado  decimal.Decimal     `json:"valor_compensado"`
	ValorPlanejado   decimal.Decimal     `json:"valor_planejado"`
	EconomiaEstimada decimal.Decimal     `json:"economia_estimada"`
	Creditos         []CreditoProcessado `json:"creditos"`
	Debitos          []DebitoProcessado  `json:"debitos"`
	Alertas          []string            `json:"alertas,omitempty"`
	Erros            []string            `json:"erros,omitempty"`
	ProcessadoEm     time.Time           `json:"processado_em"`
}

// TipoAlerta classifica alertas do relatório.
type TipoAlerta string

const (
	AlertaPrazo TipoAlerta = "PRAZO"
	AlertaValor TipoAlerta = "VALOR"
)

// AlertaCompensacao sinaliza condições que merecem atenção do solicitante.
type AlertaCompensacao struct {
	Tipo       TipoAlerta `json:"tipo"`
	Severidade string     `json:"severidade"`
	Mensagem   string     `json:"mensagem"`
	ItemID     string     `json:"item_id,omitempty"`
}

// AgregadoCompensacao acumula valores por chave de agrupamento.
type AgregadoCompensacao struct {
	Chave string          `json:"chave"`
	Valor decimal.Decimal `json:"valor"`
	Itens int             `json:"itens"`
}

// EstatisticasCompensacao resume a execução para painéis e auditoria.
type EstatisticasCompensacao struct {
	CreditosUtilizados int             `json:"creditos_utilizados"`
	DebitosAbatidos    int             `json:"debitos_abatidos"`
	DebitosQuitados    int             `json:"debitos_quitados"`
	TicketMedio        decimal.Decimal `json:"ticket_medio"`
}

// RelatorioCompensacao é a visão final derivada de um resultado.
type RelatorioCompensacao struct {
	RequestID     uuid.UUID               `json:"request_id"`
	Eficiencia    decimal.Decimal         `json:"eficiencia"`
	Economia      decimal.Decimal         `json:"economia"`
	PorCategoria  []AgregadoCompensacao   `json:"por_categoria"`
	PorJurisdicao []AgregadoCompensacao   `json:"por_jurisdicao"`
	Estatisticas  EstatisticasCompensacao `json:"estatisticas"`
	Alertas       []AlertaCompensacao     `json:"alertas,omitempty"`
	GeradoEm      time.Time               `json:"gerado_em"`
}

// Credito é a visão pura de um título dentro do motor: sem persistência,
// só o necessário para compatibilidade e alocação.
type Credito struct {
	ID         string
	Categoria  titulo.Categoria
	Subtipo    string
	Jurisdicao string
	Moeda      string
	Saldo      decimal.Decimal
	Vencimento *time.Time
}

// Debito é a visão pura de uma obrigação dentro do motor.
type Debito struct {
	ID         string
	Tributo    string
	Jurisdicao string
	Moeda      string
	Saldo      decimal.Decimal
	Vencimento time.Time
	Juros      decimal.Decimal
	Multa      decimal.Decimal
}

// PesoEconomico é a chave de ordenação da política ECONOMIA.
func (d Debito) PesoEconomico() decimal.Decimal {
	return d.Saldo.Mul(d.Juros.Add(d.Multa))
}

// Alocacao é um par (crédito, débito, valor) produzido pelo otimizador.
type Alocacao struct {
	CreditoID string          `json:"credito_id"`
	DebitoID  string          `json:"debito_id"`
	Valor     decimal.Decimal `json:"valor"`
}

// Simulacao é a resposta do modo dry-run: nenhum saldo é alterado.
type Simulacao struct {
	Possivel        bool            `json:"possivel"`
	ValorDisponivel decimal.Decimal `json:"valor_disponivel"`
	Mensagem        string          `json:"mensagem,omitempty"`
}
