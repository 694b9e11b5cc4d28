package empresa

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mercadotc/api/internal/util"
)

// Service contém as regras de cadastro e resolução de empresas.
type Service struct {
	repo     *Repository
	cache    sync.Map
	cacheTTL time.Duration
}

// cachedEmpresa armazena dados no cache em memória.
type cachedEmpresa struct {
	empresa  Empresa
	expireAt time.Time
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo, cacheTTL: 2 * time.Minute}
}

// Criar registra uma nova empresa após validar o CNPJ.
func (s *Service) Criar(ctx context.Context, input NovaEmpresaInput) (*Empresa, error) {
	if err := util.ValidateCNPJ(input.CNPJ); err != nil {
		return nil, err
	}
	cnpj := util.NormalizeCNPJ(input.CNPJ)
	if err := util.RequireString(input.RazaoSocial, "razão social"); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.UF, "uf"); err != nil {
		return nil, err
	}

	agora := time.Now().UTC()
	e := &Empresa{
		ID:           uuid.New(),
		CNPJ:         cnpj,
		RazaoSocial:  strings.TrimSpace(input.RazaoSocial),
		NomeFantasia: strings.TrimSpace(input.NomeFantasia),
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		UF:           strings.ToUpper(strings.TrimSpace(input.UF)),
		Ativa:        true,
		CriadoEm:     agora,
		AtualizadoEm: agora,
	}

	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}

	s.cache.Store(cnpj, cachedEmpresa{empresa: *e, expireAt: time.Now().Add(s.cacheTTL)})
	return e, nil
}

// Resolver encontra a empresa pelo CNPJ, com cache em memória. É o caminho
// quente da autenticação de integrações, por isso não vai ao banco a cada chamada.
func (s *Service) Resolver(ctx context.Context, cnpjBruto string) (*Empresa, error) {
	if err := util.ValidateCNPJ(cnpjBruto); err != nil {
		return nil, ErrNotFound
	}
	cnpj := util.NormalizeCNPJ(cnpjBruto)

	if v, ok := s.cache.Load(cnpj); ok {
		entry := v.(cachedEmpresa)
		if time.Now().Before(entry.expireAt) {
			empresaCopy := entry.empresa
			return &empresaCopy, nil
		}
		s.cache.Delete(cnpj)
	}

	e, err := s.repo.GetByCNPJ(ctx, cnpj)
	if err != nil {
		return nil, err
	}

	s.cache.Store(cnpj, cachedEmpresa{empresa: *e, expireAt: time.Now().Add(s.cacheTTL)})

	empresaCopy := *e
	return &empresaCopy, nil
}

// Get busca a empresa pelo identificador.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Empresa, error) {
	return s.repo.GetByID(ctx, id)
}

// Listar devolve todas as empresas cadastradas.
func (s *Service) Listar(ctx context.Context) ([]Empresa, error) {
	return s.repo.List(ctx)
}

// Desativar remove a empresa da operação sem apagar o histórico.
func (s *Service) Desativar(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetAtiva(ctx, id, false); err != nil {
		return err
	}
	s.invalidar(id)
	return nil
}

// Reativar devolve a empresa à operação.
func (s *Service) Reativar(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetAtiva(ctx, id, true); err != nil {
		return err
	}
	s.invalidar(id)
	return nil
}

func (s *Service) invalidar(id uuid.UUID) {
	s.cache.Range(func(key, value any) bool {
		entry := value.(cachedEmpresa)
		if entry.empresa.ID == id {
			s.cache.Delete(key)
			return false
		}
		return true
	})
}
