package titulo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/ledger"
	"github.com/mercadotc/api/internal/util"
)

var (
	// ErrTransicaoInvalida é retornado quando o ciclo de vida seria violado.
	ErrTransicaoInvalida = errors.New("transição de status inválida")
	// ErrNaoTokenizavel é retornado quando o título não está apto à tokenização.
	ErrNaoTokenizavel = errors.New("título precisa estar VALIDADO para tokenizar")
	// ErrLedgerRejeitou é retornado quando o ledger não confirma o registro.
	ErrLedgerRejeitou = errors.New("ledger não confirmou o registro do ativo")
)

// TituloRepository define a persistência consumida pelo serviço.
type TituloRepository interface {
	Insert(context.Context, *Titulo) error
	GetByID(context.Context, uuid.UUID) (*Titulo, error)
	GetMany(context.Context, []uuid.UUID) (map[uuid.UUID]*Titulo, error)
	ListByEmpresa(context.Context, uuid.UUID, Status) ([]Titulo, error)
	UpdateStatus(context.Context, uuid.UUID, Status) error
	MarcarTokenizado(context.Context, uuid.UUID, string) error
	TryDebitar(context.Context, uuid.UUID, decimal.Decimal) (decimal.Decimal, error)
	ListVencidos(context.Context, time.Time) ([]Titulo, error)
}

// Service contém as regras de ciclo de vida dos títulos.
type Service struct {
	repo   TituloRepository
	cache  *redis.Client
	ledger ledger.Registrador
}

func NewService(repo TituloRepository, cache *redis.Client, registrador ledger.Registrador) *Service {
	return &Service{repo: repo, cache: cache, ledger: registrador}
}

// NovoTituloInput agrupa os campos de identificação manual de um crédito.
type NovoTituloInput struct {
	EmpresaID    uuid.UUID
	Categoria    Categoria
	Subtipo      string
	Jurisdicao   string
	ValorNominal decimal.Decimal
	Emissao      time.Time
	Vencimento   *time.Time
}

// Criar registra um título recém-identificado com saldo igual ao nominal.
func (s *Service) Criar(ctx context.Context, input NovoTituloInput) (*Titulo, error) {
	if !input.Categoria.Valida() {
		return nil, fmt.Errorf("categoria desconhecida: %s", input.Categoria)
	}
	if err := util.RequireString(input.Subtipo, "subtipo"); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.Jurisdicao, "jurisdição"); err != nil {
		return nil, err
	}
	if !input.ValorNominal.IsPositive() {
		return nil, errors.New("valor nominal deve ser positivo")
	}
	if input.EmpresaID == uuid.Nil {
		return nil, errors.New("empresa obrigatória")
	}

	agora := time.Now().UTC()
	t := &Titulo{
		ID:              uuid.New(),
		EmpresaID:       input.EmpresaID,
		Categoria:       input.Categoria,
		Subtipo:         input.Subtipo,
		Jurisdicao:      input.Jurisdicao,
		Moeda:           "BRL",
		ValorNominal:    input.ValorNominal,
		ValorDisponivel: input.ValorNominal,
		Emissao:         input.Emissao,
		Vencimento:      input.Vencimento,
		Status:          StatusIdentificado,
		CriadoEm:        agora,
		AtualizadoEm:    agora,
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.invalidarCache(ctx, input.EmpresaID)
	return t, nil
}

// Get devolve o título da empresa informada.
func (s *Service) Get(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.EmpresaID != empresaID {
		return nil, ErrNotFound
	}
	return t, nil
}

// Listar devolve os títulos da empresa, com cache curto no Redis.
func (s *Service) Listar(ctx context.Context, empresaID uuid.UUID, status Status) ([]Titulo, error) {
	key := cacheKey(empresaID, status)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var titulos []Titulo
			if json.Unmarshal(data, &titulos) == nil {
				return titulos, nil
			}
		}
	}

	titulos, err := s.repo.ListByEmpresa(ctx, empresaID, status)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(titulos); err == nil {
			_ = s.cache.Set(ctx, key, payload, 30*time.Second).Err()
		}
	}

	return titulos, nil
}

// Validar avança IDENTIFICADO -> VALIDADO após a análise do crédito.
func (s *Service) Validar(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
	return s.transitar(ctx, empresaID, id, StatusValidado)
}

// Rejeitar encerra o título como inválido.
func (s *Service) Rejeitar(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
	return s.transitar(ctx, empresaID, id, StatusRejeitado)
}

// Cancelar encerra o título em qualquer estado não terminal.
func (s *Service) Cancelar(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
	return s.transitar(ctx, empresaID, id, StatusCancelado)
}

// Tokenizar registra o título no ledger e grava o hash devolvido.
func (s *Service) Tokenizar(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
	t, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusValidado {
		return nil, ErrNaoTokenizavel
	}

	registro, err := s.ledger.RegisterAsset(ctx, ledger.Asset{
		AssetID:   t.ID.String(),
		AssetType: "TITULO_CREDITO",
		Valor:     t.ValorNominal,
		Metadata: map[string]string{
			"categoria":  string(t.Categoria),
			"subtipo":    t.Subtipo,
			"jurisdicao": t.Jurisdicao,
			"empresa":    t.EmpresaID.String(),
		},
	})
	if err != nil {
		return nil, err
	}
	if registro.Status != ledger.RegistroConfirmado {
		return nil, fmt.Errorf("%w: %s", ErrLedgerRejeitou, registro.Status)
	}

	if err := s.repo.MarcarTokenizado(ctx, id, registro.TransactionHash); err != nil {
		return nil, err
	}

	s.invalidarCache(ctx, empresaID)

	t.Status = StatusTokenizado
	t.TransactionHash = &registro.TransactionHash
	return t, nil
}

func (s *Service) transitar(ctx context.Context, empresaID, id uuid.UUID, para Status) (*Titulo, error) {
	t, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if !PodeTransitar(t.Status, para) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTransicaoInvalida, t.Status, para)
	}
	if err := s.repo.UpdateStatus(ctx, id, para); err != nil {
		return nil, err
	}

	s.invalidarCache(ctx, empresaID)

	t.Status = para
	return t, nil
}

func (s *Service) invalidarCache(ctx context.Context, empresaID uuid.UUID) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, cacheKey(empresaID, "")+"*", 50).Iterator()
	for iter.Next(ctx) {
		_ = s.cache.Del(ctx, iter.Val()).Err()
	}
}

func cacheKey(empresaID uuid.UUID, status Status) string {
	return fmt.Sprintf("titulos:%s:%s", empresaID, status)
}
