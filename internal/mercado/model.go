package mercado

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("anúncio não encontrado")
	// ErrValidacao é retornado quando os dados do anúncio ou da oferta são inválidos.
	ErrValidacao = errors.New("dados inválidos")
	// ErrAnuncioFechado é retornado quando o anúncio já saiu de ABERTO.
	ErrAnuncioFechado = errors.New("anúncio não está mais aberto")
	// ErrTituloIndisponivel é retornado quando o título não pode ser anunciado.
	ErrTituloIndisponivel = errors.New("título precisa estar TOKENIZADO com saldo íntegro")
	// ErrOfertaPropria é retornado quando a empresa oferta no próprio anúncio.
	ErrOfertaPropria = errors.New("empresa não pode ofertar no próprio anúncio")
)

// TipoAnuncio distingue as modalidades de negociação.
type TipoAnuncio string

const (
	AnuncioVenda  TipoAnuncio = "VENDA"
	AnuncioLeilao TipoAnuncio = "LEILAO"
	AnuncioOferta TipoAnuncio = "OFERTA"
)

func (t TipoAnuncio) Valido() bool {
	switch t {
	case AnuncioVenda, AnuncioLeilao, AnuncioOferta:
		return true
	}
	return false
}

// StatusAnuncio é o ciclo de vida do anúncio.
type StatusAnuncio string

const (
	AnuncioAberto    StatusAnuncio = "ABERTO"
	AnuncioNegociado StatusAnuncio = "NEGOCIADO"
	AnuncioCancelado StatusAnuncio = "CANCELADO"
)

// Anuncio publica um título tokenizado no mercado secundário.
type Anuncio struct {
	ID          uuid.UUID       `json:"id"`
	TituloID    uuid.UUID       `json:"titulo_id"`
	EmpresaID   uuid.UUID       `json:"empresa_id"`
	Tipo        TipoAnuncio     `json:"tipo"`
	PrecoPedido decimal.Decimal `json:"preco_pedido"`
	Desagio     decimal.Decimal `json:"desagio"`
	Status      StatusAnuncio   `json:"status"`
	CriadoEm    time.Time       `json:"criado_em"`
}

// StatusOferta é o ciclo de vida de uma oferta.
type StatusOferta string

const (
	OfertaPendente StatusOferta = "PENDENTE"
	OfertaAceita   StatusOferta = "ACEITA"
	OfertaRecusada StatusOferta = "RECUSADA"
)

// Oferta é o lance de uma empresa interessada num anúncio.
type Oferta struct {
	ID         uuid.UUID       `json:"id"`
	AnuncioID  uuid.UUID       `json:"anuncio_id"`
	EmpresaID  uuid.UUID       `json:"empresa_id"`
	Valor      decimal.Decimal `json:"valor"`
	Status     StatusOferta    `json:"status"`
	CriadoEm   time.Time       `json:"criado_em"`
	DecididoEm *time.Time      `json:"decidido_em,omitempty"`
}
