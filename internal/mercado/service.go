package mercado

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/ledger"
	"github.com/mercadotc/api/internal/titulo"
)

// TituloFonte é o recorte da persistência de títulos que o mercado consome.
type TituloFonte interface {
	GetByID(context.Context, uuid.UUID) (*titulo.Titulo, error)
	Transferir(ctx context.Context, id, novaEmpresa uuid.UUID) error
}

// Service contém as regras do mercado secundário de títulos tokenizados.
type Service struct {
	repo    *Repository
	titulos TituloFonte
	ledger  ledger.Registrador
}

func NewService(repo *Repository, titulos TituloFonte, registrador ledger.Registrador) *Service {
	return &Service{repo: repo, titulos: titulos, ledger: registrador}
}

// NovoAnuncioInput agrupa os dados de publicação de um anúncio.
type NovoAnuncioInput struct {
	EmpresaID   uuid.UUID
	TituloID    uuid.UUID
	Tipo        TipoAnuncio
	PrecoPedido decimal.Decimal
}

// Anunciar publica um título tokenizado com saldo íntegro. O deságio é
// derivado do preço pedido sobre o valor nominal.
func (s *Service) Anunciar(ctx context.Context, input NovoAnuncioInput) (*Anuncio, error) {
	if !input.Tipo.Valido() {
		return nil, fmt.Errorf("%w: tipo de anúncio desconhecido %q", ErrValidacao, input.Tipo)
	}
	if !input.PrecoPedido.IsPositive() {
		return nil, fmt.Errorf("%w: preço pedido deve ser positivo", ErrValidacao)
	}

	t, err := s.titulos.GetByID(ctx, input.TituloID)
	if err != nil {
		return nil, err
	}
	if t.EmpresaID != input.EmpresaID {
		return nil, titulo.ErrNotFound
	}
	if t.Status != titulo.StatusTokenizado || !t.ValorDisponivel.Equal(t.ValorNominal) {
		return nil, ErrTituloIndisponivel
	}

	desagio := decimal.Zero
	if input.PrecoPedido.LessThan(t.ValorNominal) {
		desagio = t.ValorNominal.Sub(input.PrecoPedido).Div(t.ValorNominal).Round(4)
	}

	a := &Anuncio{
		ID:          uuid.New(),
		TituloID:    t.ID,
		EmpresaID:   input.EmpresaID,
		Tipo:        input.Tipo,
		PrecoPedido: input.PrecoPedido,
		Desagio:     desagio,
		Status:      AnuncioAberto,
		CriadoEm:    time.Now().UTC(),
	}
	if err := s.repo.InsertAnuncio(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Vitrine lista os anúncios abertos.
func (s *Service) Vitrine(ctx context.Context) ([]Anuncio, error) {
	return s.repo.ListAnunciosAbertos(ctx)
}

// Ofertar registra o lance de uma empresa interessada.
func (s *Service) Ofertar(ctx context.Context, anuncioID, empresaID uuid.UUID, valor decimal.Decimal) (*Oferta, error) {
	if !valor.IsPositive() {
		return nil, fmt.Errorf("%w: valor da oferta deve ser positivo", ErrValidacao)
	}

	a, err := s.repo.GetAnuncio(ctx, anuncioID)
	if err != nil {
		return nil, err
	}
	if a.Status != AnuncioAberto {
		return nil, ErrAnuncioFechado
	}
	if a.EmpresaID == empresaID {
		return nil, ErrOfertaPropria
	}

	o := &Oferta{
		ID:        uuid.New(),
		AnuncioID: anuncioID,
		EmpresaID: empresaID,
		Valor:     valor,
		Status:    OfertaPendente,
		CriadoEm:  time.Now().UTC(),
	}
	if err := s.repo.InsertOferta(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Ofertas lista os lances de um anúncio da empresa vendedora.
func (s *Service) Ofertas(ctx context.Context, empresaID, anuncioID uuid.UUID) ([]Oferta, error) {
	a, err := s.repo.GetAnuncio(ctx, anuncioID)
	if err != nil {
		return nil, err
	}
	if a.EmpresaID != empresaID {
		return nil, ErrNotFound
	}
	return s.repo.ListOfertas(ctx, anuncioID)
}

// Aceitar fecha o negócio: transfere a titularidade do título, registra a
// transferência no ledger e recusa as demais ofertas. O fechamento do
// anúncio é o ponto de disputa; quem fechar primeiro leva.
func (s *Service) Aceitar(ctx context.Context, vendedorID, anuncioID, ofertaID uuid.UUID) (*Oferta, error) {
	a, err := s.repo.GetAnuncio(ctx, anuncioID)
	if err != nil {
		return nil, err
	}
	if a.EmpresaID != vendedorID {
		return nil, ErrNotFound
	}

	o, err := s.repo.GetOferta(ctx, ofertaID)
	if err != nil {
		return nil, err
	}
	if o.AnuncioID != anuncioID || o.Status != OfertaPendente {
		return nil, ErrNotFound
	}

	if err := s.repo.FecharAnuncio(ctx, anuncioID, AnuncioNegociado); err != nil {
		return nil, err
	}

	if err := s.titulos.Transferir(ctx, a.TituloID, o.EmpresaID); err != nil {
		// Título deixou de estar apto entre a publicação e o aceite.
		if reErr := s.repo.FecharAnuncio(ctx, anuncioID, AnuncioCancelado); reErr != nil && !errors.Is(reErr, ErrAnuncioFechado) {
			log.Error().Err(reErr).Str("anuncio", anuncioID.String()).Msg("cancelamento após falha de transferência falhou")
		}
		return nil, fmt.Errorf("%w: %v", ErrTituloIndisponivel, err)
	}

	if s.ledger != nil {
		registro, err := s.ledger.TransferToken(ctx, a.TituloID.String(), vendedorID.String(), o.EmpresaID.String())
		if err != nil || registro.Status != ledger.RegistroConfirmado {
			log.Warn().Err(err).Str("titulo", a.TituloID.String()).Msg("transferência no ledger não confirmada")
		}
	}

	if err := s.repo.ConcluirNegocio(ctx, anuncioID, ofertaID); err != nil {
		return nil, err
	}

	agora := time.Now().UTC()
	o.Status = OfertaAceita
	o.DecididoEm = &agora
	return o, nil
}

// CancelarAnuncio retira o anúncio da vitrine.
func (s *Service) CancelarAnuncio(ctx context.Context, empresaID, anuncioID uuid.UUID) error {
	a, err := s.repo.GetAnuncio(ctx, anuncioID)
	if err != nil {
		return err
	}
	if a.EmpresaID != empresaID {
		return ErrNotFound
	}
	return s.repo.FecharAnuncio(ctx, anuncioID, AnuncioCancelado)
}
