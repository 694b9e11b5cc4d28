package compensacao

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadotc/api/internal/config"
	"github.com/mercadotc/api/internal/obrigacao"
	"github.com/mercadotc/api/internal/titulo"
)

type stubTitulos struct {
	mu          sync.Mutex
	itens       map[uuid.UUID]*titulo.Titulo
	falhaDebito map[uuid.UUID]bool
	erroGet     error
	debitos     int
}

func (s *stubTitulos) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*titulo.Titulo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.erroGet != nil {
		return nil, s.erroGet
	}
	out := make(map[uuid.UUID]*titulo.Titulo, len(ids))
	for _, id := range ids {
		if t, ok := s.itens[id]; ok {
			c := *t
			out[id] = &c
		}
	}
	return out, nil
}

func (s *stubTitulos) TryDebitar(ctx context.Context, id uuid.UUID, valor decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.itens[id]
	if !ok {
		return decimal.Zero, titulo.ErrNotFound
	}
	if s.falhaDebito[id] || t.ValorDisponivel.LessThan(valor) {
		return decimal.Zero, titulo.ErrSaldoInsuficiente
	}
	t.ValorDisponivel = t.ValorDisponivel.Sub(valor)
	s.debitos++
	return t.ValorDisponivel, nil
}

type stubObrigacoes struct {
	mu         sync.Mutex
	itens      map[uuid.UUID]*obrigacao.Obrigacao
	restituido map[uuid.UUID]decimal.Decimal
}

func (s *stubObrigacoes) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*obrigacao.Obrigacao, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*obrigacao.Obrigacao, len(ids))
	for _, id := range ids {
		if o, ok := s.itens[id]; ok {
			c := *o
			out[id] = &c
		}
	}
	return out, nil
}

func (s *stubObrigacoes) TryAbater(ctx context.Context, id uuid.UUID, valor decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.itens[id]
	if !ok {
		return decimal.Zero, obrigacao.ErrNotFound
	}
	if o.ValorRestante.LessThan(valor) {
		return decimal.Zero, obrigacao.ErrSaldoInsuficiente
	}
	o.ValorRestante = o.ValorRestante.Sub(valor)
	return o.ValorRestante, nil
}

func (s *stubObrigacoes) Restituir(ctx context.Context, id uuid.UUID, valor decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.itens[id]
	if !ok {
		return obrigacao.ErrNotFound
	}
	o.ValorRestante = o.ValorRestante.Add(valor)
	if s.restituido == nil {
		s.restituido = make(map[uuid.UUID]decimal.Decimal)
	}
	s.restituido[id] = s.restituido[id].Add(valor)
	return nil
}

type stubCompensacoes struct {
	mu      sync.Mutex
	reqs    map[uuid.UUID]*CompensacaoRequest
	alertas []AlertaCompensacao
}

func (s *stubCompensacoes) Insert(ctx context.Context, req *CompensacaoRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *req
	s.reqs[req.ID] = &c
	return nil
}

func (s *stubCompensacoes) GetByID(ctx context.Context, id uuid.UUID) (*CompensacaoRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *stubCompensacoes) ListByEmpresa(ctx context.Context, empresaID uuid.UUID, status StatusRequest) ([]CompensacaoRequest, error) {
	var out []CompensacaoRequest
	for _, r := range s.reqs {
		if r.EmpresaID == empresaID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubCompensacoes) ListByStatus(ctx context.Context, status StatusRequest, limite int) ([]CompensacaoRequest, error) {
	var out []CompensacaoRequest
	for _, r := range s.reqs {
		if r.Status == status && len(out) < limite {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubCompensacoes) UpdateStatus(ctx context.Context, id uuid.UUID, de, para StatusRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != de {
		return ErrConflitoStatus
	}
	r.Status = para
	return nil
}

func (s *stubCompensacoes) AtualizarAnalise(ctx context.Context, req *CompensacaoRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[req.ID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusAnalisando {
		return ErrConflitoStatus
	}
	r.Creditos = req.Creditos
	r.Debitos = req.Debitos
	r.ValorTotalCreditos = req.ValorTotalCreditos
	r.ValorTotalDebitos = req.ValorTotalDebitos
	r.ValorPlanejado = req.ValorPlanejado
	return nil
}

func (s *stubCompensacoes) Decidir(ctx context.Context, id uuid.UUID, para StatusRequest, decididoPor uuid.UUID, valorPlanejado decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusAnalisando {
		return ErrConflitoStatus
	}
	r.Status = para
	r.AprovadoPor = &decididoPor
	r.ValorPlanejado = valorPlanejado
	return nil
}

func (s *stubCompensacoes) IniciarProcessamento(ctx context.Context, id uuid.UUID, processadoPor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusAprovada {
		return ErrConflitoStatus
	}
	r.Status = StatusProcessando
	r.ProcessadoPor = &processadoPor
	return nil
}

func (s *stubCompensacoes) Concluir(ctx context.Context, id uuid.UUID, para StatusRequest, resultado *ResultadoCompensacao, relatorio *RelatorioCompensacao) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusProcessando {
		return ErrConflitoStatus
	}
	r.Status = para
	r.Resultado = resultado
	r.Relatorio = relatorio
	return nil
}

func (s *stubCompensacoes) AnexarDocumento(ctx context.Context, id uuid.UUID, doc Documento) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return ErrNotFound
	}
	r.Documentos = append(r.Documentos, doc)
	return nil
}

func (s *stubCompensacoes) InsertAlerta(ctx context.Context, empresaID uuid.UUID, alerta AlertaCompensacao) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertas = append(s.alertas, alerta)
	return nil
}

func novoTitulo(empresaID uuid.UUID, saldo int64) *titulo.Titulo {
	return &titulo.Titulo{
		ID:              uuid.New(),
		EmpresaID:       empresaID,
		Categoria:       titulo.CategoriaComercial,
		Subtipo:         "DUPLICATA",
		Jurisdicao:      "SP",
		Moeda:           "BRL",
		ValorNominal:    decimal.NewFromInt(saldo),
		ValorDisponivel: decimal.NewFromInt(saldo),
		Status:          titulo.StatusTokenizado,
	}
}

func novaObrigacao(empresaID uuid.UUID, saldo int64) *obrigacao.Obrigacao {
	return &obrigacao.Obrigacao{
		ID:            uuid.New(),
		EmpresaID:     empresaID,
		Tributo:       "ICMS",
		Esfera:        obrigacao.EsferaEstadual,
		UF:            "SP",
		Moeda:         "BRL",
		ValorOriginal: decimal.NewFromInt(saldo),
		ValorRestante: decimal.NewFromInt(saldo),
		Vencimento:    time.Now().UTC().AddDate(0, 2, 0),
	}
}

func ambienteTeste() (*Service, *stubCompensacoes, *stubTitulos, *stubObrigacoes) {
	repo := &stubCompensacoes{reqs: make(map[uuid.UUID]*CompensacaoRequest)}
	titulos := &stubTitulos{itens: make(map[uuid.UUID]*titulo.Titulo), falhaDebito: make(map[uuid.UUID]bool)}
	obrigacoes := &stubObrigacoes{itens: make(map[uuid.UUID]*obrigacao.Obrigacao)}
	svc := NewService(repo, titulos, obrigacoes, nil, nil, config.CompensacaoConfig{
		JanelaAlertaPrazo: 30 * 24 * time.Hour,
		LimitePool:        100,
		CacheSimulacaoTTL: time.Minute,
	})
	return svc, repo, titulos, obrigacoes
}

func requisicaoAprovada(t *testing.T, svc *Service, empresaID uuid.UUID, tituloID, obrigacaoID uuid.UUID) *CompensacaoRequest {
	t.Helper()
	ator := uuid.New()
	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresaID,
		CriadoPor: ator,
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tituloID}},
		Debitos:   []ItemCompensacaoInput{{ID: obrigacaoID}},
	})
	require.NoError(t, err)
	_, err = svc.SubmeterAnalise(context.Background(), empresaID, req.ID)
	require.NoError(t, err)
	req, err = svc.Decidir(context.Background(), empresaID, req.ID, ator, true)
	require.NoError(t, err)
	require.Equal(t, StatusAprovada, req.Status)
	return req
}

func TestCriarRequisicao(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPendente, req.Status)
	assert.Equal(t, ValidacaoAprovada, req.Creditos[0].Validacao.Status)
	assert.True(t, req.ValorTotalCreditos.Equal(decimal.NewFromInt(100)))
	assert.True(t, req.ValorTotalDebitos.Equal(decimal.NewFromInt(60)))
	assert.True(t, req.ValorPlanejado.Equal(decimal.NewFromInt(60)))
}

func TestCriarReferenciaInexistenteEFatal(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	_, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: uuid.New()}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	assert.ErrorIs(t, err, ErrValidacao)
	assert.Empty(t, repo.reqs)

	// Título de outra empresa conta como inexistente.
	alheio := novoTitulo(uuid.New(), 100)
	titulos.itens[alheio.ID] = alheio
	_, err = svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: alheio.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	assert.ErrorIs(t, err, ErrValidacao)
}

func TestCriarItemReprovadoNaoImpedeCriacao(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	bom := novoTitulo(empresa, 100)
	titulos.itens[bom.ID] = bom
	ruim := novoTitulo(empresa, 50)
	ruim.Status = titulo.StatusIdentificado
	titulos.itens[ruim.ID] = ruim
	obr := novaObrigacao(empresa, 200)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: bom.ID}, {ID: ruim.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)

	require.Len(t, req.Creditos, 2)
	assert.Equal(t, ValidacaoAprovada, req.Creditos[0].Validacao.Status)
	assert.Equal(t, ValidacaoRejeitada, req.Creditos[1].Validacao.Status)
	assert.NotEmpty(t, req.Creditos[1].Validacao.Observacoes)

	// Item reprovado fica fora dos totais.
	assert.True(t, req.ValorTotalCreditos.Equal(decimal.NewFromInt(100)))
}

func TestCriarValorPropostoAcimaDoSaldo(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 200)
	obrigacoes.itens[obr.ID] = obr

	demais := decimal.NewFromInt(150)
	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID, Valor: &demais}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, ValidacaoRejeitada, req.Creditos[0].Validacao.Status)
}

func TestGetDeOutraEmpresa(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), uuid.New(), req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaquinaDeEstados(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()
	ator := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: ator,
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)

	// Decisão antes da análise é transição inválida.
	_, err = svc.Decidir(context.Background(), empresa, req.ID, ator, true)
	assert.ErrorIs(t, err, ErrTransicaoInvalida)

	req, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAnalisando, req.Status)

	// Submeter de novo também.
	_, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	assert.ErrorIs(t, err, ErrTransicaoInvalida)

	req, err = svc.Decidir(context.Background(), empresa, req.ID, ator, true)
	require.NoError(t, err)
	assert.Equal(t, StatusAprovada, req.Status)
	require.NotNil(t, req.AprovadoPor)
	assert.Equal(t, ator, *req.AprovadoPor)
}

func TestDecidirReprovar(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	_, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)

	req, err = svc.Decidir(context.Background(), empresa, req.ID, uuid.New(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusRejeitada, req.Status)
}

func TestDecidirSemItensViaveis(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	ruim := novoTitulo(empresa, 100)
	ruim.Status = titulo.StatusIdentificado
	titulos.itens[ruim.ID] = ruim
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: ruim.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	_, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)

	// Aprovação pedida, mas sem item viável: rejeição forçada.
	req, err = svc.Decidir(context.Background(), empresa, req.ID, uuid.New(), true)
	assert.ErrorIs(t, err, ErrAlocacaoVazia)
	require.NotNil(t, req)
	assert.Equal(t, StatusRejeitada, req.Status)
}

func TestCancelar(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	cancelada, err := svc.Cancelar(context.Background(), empresa, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelada, cancelada.Status)

	_, err = svc.Cancelar(context.Background(), empresa, req.ID)
	assert.ErrorIs(t, err, ErrTransicaoInvalida)
	assert.Equal(t, StatusCancelada, repo.reqs[req.ID].Status)
}

func TestProcessar(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	processada, err := svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, StatusConcluida, processada.Status)
	require.NotNil(t, processada.Resultado)
	assert.True(t, processada.Resultado.Sucesso)
	assert.True(t, processada.Resultado.ValorCompensado.Equal(decimal.NewFromInt(60)))
	assert.Empty(t, processada.Resultado.Erros)

	require.Len(t, processada.Resultado.Creditos, 1)
	assert.True(t, processada.Resultado.Creditos[0].SaldoRestante.Equal(decimal.NewFromInt(40)))
	require.Len(t, processada.Resultado.Debitos, 1)
	assert.True(t, processada.Resultado.Debitos[0].SaldoRestante.IsZero())

	// Saldos realmente decrementados na persistência.
	assert.True(t, tit.ValorDisponivel.Equal(decimal.NewFromInt(40)))
	assert.True(t, obr.ValorRestante.IsZero())

	require.NotNil(t, processada.Relatorio)
	assert.True(t, processada.Relatorio.Eficiencia.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, StatusConcluida, repo.reqs[req.ID].Status)

	// Requisição encerrada não processa de novo.
	_, err = svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrTransicaoInvalida)
}

func TestProcessarReducaoGraciosa(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()
	ator := uuid.New()

	c1 := novoTitulo(empresa, 50)
	titulos.itens[c1.ID] = c1
	c2 := novoTitulo(empresa, 50)
	titulos.itens[c2.ID] = c2
	obr := novaObrigacao(empresa, 100)
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: ator,
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: c1.ID}, {ID: c2.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	_, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)
	_, err = svc.Decidir(context.Background(), empresa, req.ID, ator, true)
	require.NoError(t, err)

	// Simula outra requisição consumindo o segundo crédito no meio do commit.
	titulos.falhaDebito[c2.ID] = true

	processada, err := svc.Processar(context.Background(), empresa, req.ID, ator)
	require.NoError(t, err)

	// Conclui mesmo assim, com valor reduzido e conflito registrado; como o
	// planejado de 100 não foi alcançado, o resultado não é sucesso.
	assert.Equal(t, StatusConcluida, processada.Status)
	require.NotNil(t, processada.Resultado)
	assert.True(t, processada.Resultado.ValorCompensado.Equal(decimal.NewFromInt(50)))
	assert.False(t, processada.Resultado.Sucesso)
	require.Len(t, processada.Resultado.Erros, 1)
	assert.Contains(t, processada.Resultado.Erros[0], "saldo consumido concorrentemente")
	assert.NotEmpty(t, processada.Resultado.Alertas)

	// O abatimento do par que falhou foi restituído à obrigação.
	assert.True(t, obrigacoes.restituido[obr.ID].Equal(decimal.NewFromInt(50)))
	assert.True(t, obr.ValorRestante.Equal(decimal.NewFromInt(50)))

	// Alerta de valor persistido para a empresa.
	assert.NotEmpty(t, repo.alertas)
}

func TestProcessarDisputaDeClaim(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	// Outro processador reivindicou a requisição primeiro.
	require.NoError(t, repo.IniciarProcessamento(context.Background(), req.ID, uuid.New()))

	_, err := svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrTransicaoInvalida)
}

func TestSimularNaoTemEfeitosColaterais(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	res, err := svc.Simular(context.Background(), SimulacaoInput{
		EmpresaID:    empresa,
		TituloIDs:    []uuid.UUID{tit.ID},
		ObrigacaoIDs: []uuid.UUID{obr.ID},
		Politica:     PoliticaValor,
	})
	require.NoError(t, err)

	assert.True(t, res.Possivel)
	assert.True(t, res.ValorDisponivel.Equal(decimal.NewFromInt(60)))
	require.Len(t, res.Alocacoes, 1)
	require.NotNil(t, res.Relatorio)

	// Nada foi debitado nem persistido.
	assert.True(t, tit.ValorDisponivel.Equal(decimal.NewFromInt(100)))
	assert.True(t, obr.ValorRestante.Equal(decimal.NewFromInt(60)))
	assert.Empty(t, repo.reqs)
	assert.Zero(t, titulos.debitos)
}

func TestSimularSemParCompativel(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	tit.Categoria = titulo.CategoriaTributario
	tit.Subtipo = "ICMS"
	titulos.itens[tit.ID] = tit

	obr := novaObrigacao(empresa, 60)
	obr.UF = "RJ"
	obrigacoes.itens[obr.ID] = obr

	res, err := svc.Simular(context.Background(), SimulacaoInput{
		EmpresaID:    empresa,
		TituloIDs:    []uuid.UUID{tit.ID},
		ObrigacaoIDs: []uuid.UUID{obr.ID},
		Politica:     PoliticaValor,
	})
	require.NoError(t, err)
	assert.False(t, res.Possivel)
	assert.NotEmpty(t, res.Mensagem)
	assert.Empty(t, res.Alocacoes)
}

func TestSimularPar(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 250)
	obrigacoes.itens[obr.ID] = obr

	sim, err := svc.SimularPar(context.Background(), empresa, tit.ID, obr.ID)
	require.NoError(t, err)
	assert.True(t, sim.Possivel)
	assert.True(t, sim.ValorDisponivel.Equal(decimal.NewFromInt(100)))

	_, err = svc.SimularPar(context.Background(), empresa, uuid.New(), obr.ID)
	assert.ErrorIs(t, err, ErrValidacao)
}

func TestAnexarDocumento(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	doc, err := svc.AnexarDocumento(context.Background(), empresa, req.ID, "laudo.pdf", "https://cdn/l.pdf", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "laudo.pdf", doc.Nome)
	require.Len(t, repo.reqs[req.ID].Documentos, 1)

	// Requisição encerrada não aceita anexos.
	_, err = svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.AnexarDocumento(context.Background(), empresa, req.ID, "outro.pdf", "https://cdn/o.pdf", uuid.New())
	assert.ErrorIs(t, err, ErrTransicaoInvalida)
}

func TestListarAprovadas(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	aprovadas, err := svc.ListarAprovadas(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, aprovadas, 1)
	assert.Equal(t, req.ID, aprovadas[0].ID)
}

func TestSubmeterAnaliseRegistraCompatibilidade(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	tit.Categoria = titulo.CategoriaTributario
	tit.Subtipo = "ICMS"
	titulos.itens[tit.ID] = tit

	obr := novaObrigacao(empresa, 60)
	obr.UF = "RJ"
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: uuid.New(),
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, ValidacaoAprovada, req.Creditos[0].Validacao.Status)

	req, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)

	// ICMS-SP contra ICMS-RJ: a análise reprova os dois lados e o desfecho
	// fica registrado na validação de cada item.
	assert.Equal(t, ValidacaoRejeitada, req.Creditos[0].Validacao.Status)
	assert.NotEmpty(t, req.Creditos[0].Validacao.Observacoes)
	assert.Equal(t, ValidacaoRejeitada, req.Debitos[0].Validacao.Status)
	assert.True(t, req.ValorPlanejado.IsZero())

	// E persiste: a releitura traz a validação atualizada.
	salva, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, ValidacaoRejeitada, salva.Creditos[0].Validacao.Status)
}

func TestDecidirJurisdicaoIncompativel(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()
	ator := uuid.New()

	tit := novoTitulo(empresa, 100)
	tit.Categoria = titulo.CategoriaTributario
	tit.Subtipo = "ICMS"
	titulos.itens[tit.ID] = tit

	obr := novaObrigacao(empresa, 60)
	obr.UF = "RJ"
	obrigacoes.itens[obr.ID] = obr

	req, err := svc.Criar(context.Background(), NovaCompensacaoInput{
		EmpresaID: empresa,
		CriadoPor: ator,
		Politica:  PoliticaValor,
		Creditos:  []ItemCompensacaoInput{{ID: tit.ID}},
		Debitos:   []ItemCompensacaoInput{{ID: obr.ID}},
	})
	require.NoError(t, err)
	_, err = svc.SubmeterAnalise(context.Background(), empresa, req.ID)
	require.NoError(t, err)

	// Sem nenhum par compatível a aprovação é rejeição forçada.
	req, err = svc.Decidir(context.Background(), empresa, req.ID, ator, true)
	assert.ErrorIs(t, err, ErrAlocacaoVazia)
	require.NotNil(t, req)
	assert.Equal(t, StatusRejeitada, req.Status)
}

func TestProcessarSucessoExigePlanejadoIntegral(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 100)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)
	assert.True(t, req.ValorPlanejado.Equal(decimal.NewFromInt(100)))

	// Outro fluxo consumiu parte do crédito entre a aprovação e o
	// processamento.
	tit.ValorDisponivel = decimal.NewFromInt(40)

	processada, err := svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, StatusConcluida, processada.Status)
	require.NotNil(t, processada.Resultado)
	assert.True(t, processada.Resultado.ValorCompensado.Equal(decimal.NewFromInt(40)))
	assert.False(t, processada.Resultado.Sucesso)
	assert.NotEmpty(t, processada.Resultado.Alertas)
}

func TestProcessarFalhaTransitoriaDevolveParaFila(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	req := requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID)

	// Banco indisponível antes de qualquer decremento: a requisição volta
	// para APROVADA e pode ser tentada de novo.
	titulos.erroGet = errors.New("conexão recusada")
	_, err := svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, StatusAprovada, repo.reqs[req.ID].Status)

	titulos.erroGet = nil
	processada, err := svc.Processar(context.Background(), empresa, req.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusConcluida, processada.Status)
}

func TestProcessarConcorrenteNaoGastaAlemDoSaldo(t *testing.T) {
	svc, repo, titulos, obrigacoes := ambienteTeste()
	empresa := uuid.New()

	// Quatro requisições aprovadas disputando o mesmo crédito de 100, cada
	// uma com sua própria obrigação de 40.
	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit

	var reqs []*CompensacaoRequest
	for i := 0; i < 4; i++ {
		obr := novaObrigacao(empresa, 40)
		obrigacoes.itens[obr.ID] = obr
		reqs = append(reqs, requisicaoAprovada(t, svc, empresa, tit.ID, obr.ID))
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Processar(context.Background(), empresa, id, uuid.New())
			assert.NoError(t, err)
		}(req.ID)
	}
	wg.Wait()

	total := decimal.Zero
	for _, req := range reqs {
		final, err := repo.GetByID(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusConcluida, final.Status)
		require.NotNil(t, final.Resultado)
		total = total.Add(final.Resultado.ValorCompensado)
	}

	// A soma efetivada nunca ultrapassa o saldo do crédito, e bate com o
	// que de fato saiu dele.
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)),
		"total %s acima do saldo", total)
	assert.True(t, tit.ValorDisponivel.Equal(decimal.NewFromInt(100).Sub(total)))
}
