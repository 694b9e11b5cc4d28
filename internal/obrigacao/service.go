package obrigacao

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/util"
)

// ObrigacaoRepository define a persistência consumida pelo serviço.
type ObrigacaoRepository interface {
	Insert(context.Context, *Obrigacao) error
	GetByID(context.Context, uuid.UUID) (*Obrigacao, error)
	GetMany(context.Context, []uuid.UUID) (map[uuid.UUID]*Obrigacao, error)
	ListByEmpresa(context.Context, uuid.UUID) ([]Obrigacao, error)
	TryAbater(context.Context, uuid.UUID, decimal.Decimal) (decimal.Decimal, error)
	ListVencidas(context.Context, time.Time) ([]Obrigacao, error)
}

// Service contém as regras das obrigações fiscais.
type Service struct {
	repo ObrigacaoRepository
}

func NewService(repo ObrigacaoRepository) *Service {
	return &Service{repo: repo}
}

// NovaObrigacaoInput agrupa os campos de cadastro de um débito fiscal.
type NovaObrigacaoInput struct {
	EmpresaID  uuid.UUID
	Tributo    string
	Esfera     Esfera
	UF         string
	Valor      decimal.Decimal
	Juros      decimal.Decimal
	Multa      decimal.Decimal
	Vencimento time.Time
}

// Criar registra uma obrigação com valor restante igual ao original.
func (s *Service) Criar(ctx context.Context, input NovaObrigacaoInput) (*Obrigacao, error) {
	if input.EmpresaID == uuid.Nil {
		return nil, errors.New("empresa obrigatória")
	}
	if err := util.RequireString(input.Tributo, "tributo"); err != nil {
		return nil, err
	}
	switch input.Esfera {
	case EsferaFederal, EsferaMunicipal:
	case EsferaEstadual:
		if strings.TrimSpace(input.UF) == "" {
			return nil, errors.New("UF obrigatória para tributos estaduais")
		}
	default:
		return nil, errors.New("esfera desconhecida")
	}
	if !input.Valor.IsPositive() {
		return nil, errors.New("valor deve ser positivo")
	}
	if input.Juros.IsNegative() || input.Multa.IsNegative() {
		return nil, errors.New("juros e multa não podem ser negativos")
	}

	o := &Obrigacao{
		ID:            uuid.New(),
		EmpresaID:     input.EmpresaID,
		Tributo:       strings.ToUpper(strings.TrimSpace(input.Tributo)),
		Esfera:        input.Esfera,
		UF:            strings.ToUpper(strings.TrimSpace(input.UF)),
		Moeda:         "BRL",
		ValorOriginal: input.Valor,
		ValorRestante: input.Valor,
		Juros:         input.Juros,
		Multa:         input.Multa,
		Vencimento:    input.Vencimento,
		CriadoEm:      time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Get devolve a obrigação da empresa informada.
func (s *Service) Get(ctx context.Context, empresaID, id uuid.UUID) (*Obrigacao, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.EmpresaID != empresaID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Listar devolve as obrigações da empresa ordenadas por vencimento.
func (s *Service) Listar(ctx context.Context, empresaID uuid.UUID) ([]Obrigacao, error) {
	return s.repo.ListByEmpresa(ctx, empresaID)
}
