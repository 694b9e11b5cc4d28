package compensacao

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mercadotc/api/internal/config"
	"github.com/mercadotc/api/internal/ledger"
	"github.com/mercadotc/api/internal/obrigacao"
	"github.com/mercadotc/api/internal/titulo"
)

// TituloFonte é o recorte da persistência de títulos que o motor consome.
type TituloFonte interface {
	GetMany(context.Context, []uuid.UUID) (map[uuid.UUID]*titulo.Titulo, error)
	TryDebitar(context.Context, uuid.UUID, decimal.Decimal) (decimal.Decimal, error)
}

// ObrigacaoFonte é o recorte da persistência de obrigações que o motor consome.
type ObrigacaoFonte interface {
	GetMany(context.Context, []uuid.UUID) (map[uuid.UUID]*obrigacao.Obrigacao, error)
	TryAbater(context.Context, uuid.UUID, decimal.Decimal) (decimal.Decimal, error)
	Restituir(context.Context, uuid.UUID, decimal.Decimal) error
}

// CompensacaoRepository define a persistência das requisições e alertas.
type CompensacaoRepository interface {
	Insert(context.Context, *CompensacaoRequest) error
	GetByID(context.Context, uuid.UUID) (*CompensacaoRequest, error)
	ListByEmpresa(context.Context, uuid.UUID, StatusRequest) ([]CompensacaoRequest, error)
	ListByStatus(context.Context, StatusRequest, int) ([]CompensacaoRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, de, para StatusRequest) error
	AtualizarAnalise(ctx context.Context, req *CompensacaoRequest) error
	Decidir(ctx context.Context, id uuid.UUID, para StatusRequest, decididoPor uuid.UUID, valorPlanejado decimal.Decimal) error
	IniciarProcessamento(ctx context.Context, id uuid.UUID, processadoPor uuid.UUID) error
	Concluir(ctx context.Context, id uuid.UUID, para StatusRequest, resultado *ResultadoCompensacao, relatorio *RelatorioCompensacao) error
	AnexarDocumento(context.Context, uuid.UUID, Documento) error
	InsertAlerta(context.Context, uuid.UUID, AlertaCompensacao) error
}

// Service orquestra o ciclo de vida das requisições de compensação.
type Service struct {
	repo       CompensacaoRepository
	titulos    TituloFonte
	obrigacoes ObrigacaoFonte
	ledger     ledger.Registrador
	cache      *redis.Client
	cfg        config.CompensacaoConfig
}

func NewService(repo CompensacaoRepository, titulos TituloFonte, obrigacoes ObrigacaoFonte, registrador ledger.Registrador, cache *redis.Client, cfg config.CompensacaoConfig) *Service {
	return &Service{
		repo:       repo,
		titulos:    titulos,
		obrigacoes: obrigacoes,
		ledger:     registrador,
		cache:      cache,
		cfg:        cfg,
	}
}

// ItemCompensacaoInput referencia um título ou obrigação. Valor nulo propõe
// o saldo integral do item.
type ItemCompensacaoInput struct {
	ID    uuid.UUID
	Valor *decimal.Decimal
}

// NovaCompensacaoInput agrupa os dados de abertura de uma requisição.
type NovaCompensacaoInput struct {
	EmpresaID  uuid.UUID
	CriadoPor  uuid.UUID
	Politica   Politica
	Prioridade int
	Creditos   []ItemCompensacaoInput
	Debitos    []ItemCompensacaoInput
}

// Criar valida cada item e persiste a requisição em PENDENTE. Referência a
// item inexistente ou de outra empresa é fatal; item que apenas reprova nos
// critérios de negócio entra com validação REJEITADO e fica de fora da
// alocação, sem impedir a criação.
func (s *Service) Criar(ctx context.Context, input NovaCompensacaoInput) (*CompensacaoRequest, error) {
	if input.EmpresaID == uuid.Nil || input.CriadoPor == uuid.Nil {
		return nil, fmt.Errorf("%w: empresa e autor são obrigatórios", ErrValidacao)
	}
	if !input.Politica.Valida() {
		return nil, fmt.Errorf("%w: política desconhecida %q", ErrValidacao, input.Politica)
	}
	if len(input.Creditos) == 0 || len(input.Debitos) == 0 {
		return nil, fmt.Errorf("%w: ao menos um crédito e um débito", ErrValidacao)
	}

	agora := time.Now().UTC()

	titulos, err := s.titulos.GetMany(ctx, idsDe(input.Creditos))
	if err != nil {
		return nil, err
	}
	obrigacoes, err := s.obrigacoes.GetMany(ctx, idsDe(input.Debitos))
	if err != nil {
		return nil, err
	}

	req := &CompensacaoRequest{
		ID:                 uuid.New(),
		EmpresaID:          input.EmpresaID,
		Status:             StatusPendente,
		Politica:           input.Politica,
		Prioridade:         input.Prioridade,
		ValorTotalCreditos: decimal.Zero,
		ValorTotalDebitos:  decimal.Zero,
		CriadoPor:          input.CriadoPor,
		CriadoEm:           agora,
		AtualizadoEm:       agora,
	}

	for _, item := range input.Creditos {
		t, ok := titulos[item.ID]
		if !ok || t.EmpresaID != input.EmpresaID {
			return nil, fmt.Errorf("%w: título %s não encontrado", ErrValidacao, item.ID)
		}
		proposto, validacao := validarCredito(t, item.Valor, agora)
		req.Creditos = append(req.Creditos, CreditoCompensacao{
			TituloID:      t.ID,
			ValorProposto: proposto,
			Validacao:     validacao,
		})
		if validacao.Status == ValidacaoAprovada {
			req.ValorTotalCreditos = req.ValorTotalCreditos.Add(proposto)
		}
	}

	for _, item := range input.Debitos {
		o, ok := obrigacoes[item.ID]
		if !ok || o.EmpresaID != input.EmpresaID {
			return nil, fmt.Errorf("%w: obrigação %s não encontrada", ErrValidacao, item.ID)
		}
		proposto, validacao := validarDebito(o, item.Valor)
		req.Debitos = append(req.Debitos, DebitoCompensacao{
			ObrigacaoID:   o.ID,
			ValorProposto: proposto,
			Validacao:     validacao,
		})
		if validacao.Status == ValidacaoAprovada {
			req.ValorTotalDebitos = req.ValorTotalDebitos.Add(proposto)
		}
	}

	req.ValorPlanejado = decimal.Min(req.ValorTotalCreditos, req.ValorTotalDebitos)

	if err := s.repo.Insert(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get devolve a requisição da empresa informada.
func (s *Service) Get(ctx context.Context, empresaID, id uuid.UUID) (*CompensacaoRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.EmpresaID != empresaID {
		return nil, ErrNotFound
	}
	return req, nil
}

// Listar devolve as requisições da empresa, opcionalmente por status.
func (s *Service) Listar(ctx context.Context, empresaID uuid.UUID, status StatusRequest) ([]CompensacaoRequest, error) {
	return s.repo.ListByEmpresa(ctx, empresaID, status)
}

// ListarAprovadas alimenta o processamento em segundo plano.
func (s *Service) ListarAprovadas(ctx context.Context, limite int) ([]CompensacaoRequest, error) {
	return s.repo.ListByStatus(ctx, StatusAprovada, limite)
}

// SubmeterAnalise avança PENDENTE -> ANALISANDO e roda o motor de regras
// sobre os itens: cada crédito precisa de ao menos um débito compatível na
// requisição (e vice-versa), senão é rejeitado e fica fora da alocação.
func (s *Service) SubmeterAnalise(ctx context.Context, empresaID, id uuid.UUID) (*CompensacaoRequest, error) {
	req, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPendente {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTransicaoInvalida, req.Status, StatusAnalisando)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusPendente, StatusAnalisando); err != nil {
		return nil, err
	}
	req.Status = StatusAnalisando

	if err := s.analisarCompatibilidade(ctx, req, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.AtualizarAnalise(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// analisarCompatibilidade cruza créditos e débitos aprovados na validação de
// negócio e registra o desfecho da verificação em cada item. Os totais são
// recalculados porque itens incompatíveis saem da base do planejado.
func (s *Service) analisarCompatibilidade(ctx context.Context, req *CompensacaoRequest, ref time.Time) error {
	idsC := make([]uuid.UUID, 0, len(req.Creditos))
	for _, c := range req.Creditos {
		idsC = append(idsC, c.TituloID)
	}
	idsD := make([]uuid.UUID, 0, len(req.Debitos))
	for _, d := range req.Debitos {
		idsD = append(idsD, d.ObrigacaoID)
	}

	titulos, err := s.titulos.GetMany(ctx, idsC)
	if err != nil {
		return err
	}
	obrigacoes, err := s.obrigacoes.GetMany(ctx, idsD)
	if err != nil {
		return err
	}

	viewsC := make([]Credito, len(req.Creditos))
	for i, c := range req.Creditos {
		if t, ok := titulos[c.TituloID]; ok {
			viewsC[i] = creditoView(t, c.ValorProposto)
		}
	}
	viewsD := make([]Debito, len(req.Debitos))
	for i, d := range req.Debitos {
		if o, ok := obrigacoes[d.ObrigacaoID]; ok {
			viewsD[i] = debitoView(o, d.ValorProposto)
		}
	}

	for i := range req.Creditos {
		c := &req.Creditos[i]
		if c.Validacao.Status != ValidacaoAprovada {
			continue
		}
		if viewsC[i].ID == "" {
			registrarCompatibilidade(&c.Validacao, false, "título indisponível")
			continue
		}
		ok, detalhe := false, "nenhum débito compatível na requisição"
		for j := range req.Debitos {
			if req.Debitos[j].Validacao.Status != ValidacaoAprovada || viewsD[j].ID == "" {
				continue
			}
			compat, err := VerificarCompatibilidade(viewsC[i], viewsD[j], ref)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidacao, err)
			}
			if compat.Compativel {
				ok = true
				break
			}
			detalhe = compat.Descricao
		}
		registrarCompatibilidade(&c.Validacao, ok, detalhe)
	}

	for j := range req.Debitos {
		d := &req.Debitos[j]
		if d.Validacao.Status != ValidacaoAprovada {
			continue
		}
		if viewsD[j].ID == "" {
			registrarCompatibilidade(&d.Validacao, false, "obrigação indisponível")
			continue
		}
		ok, detalhe := false, "nenhum crédito compatível na requisição"
		for i := range req.Creditos {
			if req.Creditos[i].Validacao.Status != ValidacaoAprovada || viewsC[i].ID == "" {
				continue
			}
			compat, err := VerificarCompatibilidade(viewsC[i], viewsD[j], ref)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidacao, err)
			}
			if compat.Compativel {
				ok = true
				break
			}
			detalhe = compat.Descricao
		}
		registrarCompatibilidade(&d.Validacao, ok, detalhe)
	}

	totC := decimal.Zero
	for _, c := range req.Creditos {
		if c.Validacao.Status == ValidacaoAprovada {
			totC = totC.Add(c.ValorProposto)
		}
	}
	totD := decimal.Zero
	for _, d := range req.Debitos {
		if d.Validacao.Status == ValidacaoAprovada {
			totD = totD.Add(d.ValorProposto)
		}
	}
	req.ValorTotalCreditos = totC
	req.ValorTotalDebitos = totD
	req.ValorPlanejado = decimal.Min(totC, totD)
	return nil
}

func registrarCompatibilidade(v *Validacao, ok bool, detalhe string) {
	v.Criterios = append(v.Criterios, criterio("compatibilidade", ok, detalhe))
	if !ok {
		v.Status = ValidacaoRejeitada
		v.Observacoes = append(v.Observacoes, "compatibilidade: "+detalhe)
	}
}

// Decidir conclui a análise. A aprovação roda o otimizador em seco sobre os
// saldos correntes: se nenhuma alocação sai, a requisição é forçada para
// REJEITADA e o chamador recebe ErrAlocacaoVazia. Quando há alocação, o
// planejado passa a ser o total alocado na aprovação.
func (s *Service) Decidir(ctx context.Context, empresaID, id, decididoPor uuid.UUID, aprovar bool) (*CompensacaoRequest, error) {
	req, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusAnalisando {
		return nil, fmt.Errorf("%w: %s não está em análise", ErrTransicaoInvalida, req.Status)
	}

	para := StatusRejeitada
	var errDecisao error
	if aprovar {
		errDecisao = ErrAlocacaoVazia
		if temItensViaveis(req) {
			agora := time.Now().UTC()
			poolC, poolD, err := s.poolsAtuais(ctx, req, agora)
			if err != nil {
				return nil, err
			}
			otim, err := Otimizar(poolC, poolD, req.Politica, Restricoes{}, agora, s.cfg.LimitePool)
			if err != nil {
				return nil, err
			}
			if len(otim.Alocacoes) > 0 {
				para = StatusAprovada
				errDecisao = nil
				req.ValorPlanejado = otim.ValorAlocado()
			}
		}
	}

	if err := s.repo.Decidir(ctx, id, para, decididoPor, req.ValorPlanejado); err != nil {
		return nil, err
	}
	req.Status = para
	req.AprovadoPor = &decididoPor
	return req, errDecisao
}

// Cancelar encerra a requisição antes do processamento.
func (s *Service) Cancelar(ctx context.Context, empresaID, id uuid.UUID) (*CompensacaoRequest, error) {
	req, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.Cancelavel() {
		return nil, fmt.Errorf("%w: %s não pode ser cancelada", ErrTransicaoInvalida, req.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status, StatusCancelada); err != nil {
		return nil, err
	}
	req.Status = StatusCancelada
	return req, nil
}

// Processar executa uma requisição APROVADA. A alocação é recalculada sobre
// os saldos correntes e cada par é efetivado com decrementos atômicos no
// banco. Saldo consumido por outra requisição no meio do caminho não aborta
// o processamento: o par é descartado, o conflito registrado e o restante
// segue (redução graciosa).
func (s *Service) Processar(ctx context.Context, empresaID, id, processadoPor uuid.UUID) (*CompensacaoRequest, error) {
	req, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusAprovada {
		return nil, fmt.Errorf("%w: %s não está aprovada", ErrTransicaoInvalida, req.Status)
	}
	if err := s.repo.IniciarProcessamento(ctx, id, processadoPor); err != nil {
		return nil, err
	}
	req.Status = StatusProcessando
	req.ProcessadoPor = &processadoPor

	// Até aqui nenhum saldo foi tocado: falha transitória devolve a
	// requisição para a fila de APROVADAS em vez de deixá-la presa em
	// PROCESSANDO.
	agora := time.Now().UTC()
	poolC, poolD, err := s.poolsAtuais(ctx, req, agora)
	if err != nil {
		s.devolverClaim(ctx, id)
		return nil, err
	}

	otim, err := Otimizar(poolC, poolD, req.Politica, Restricoes{}, agora, s.cfg.LimitePool)
	if err != nil {
		s.devolverClaim(ctx, id)
		return nil, err
	}

	resultado := s.efetivar(ctx, req, poolC, poolD, otim.Alocacoes, agora)
	relatorio := GerarRelatorio(req.ID, poolC, poolD, alocacoesEfetivadas(resultado, otim.Alocacoes), req.ValorPlanejado, s.cfg.JanelaAlertaPrazo, agora)

	for _, alerta := range relatorio.Alertas {
		if err := s.repo.InsertAlerta(ctx, req.EmpresaID, alerta); err != nil {
			log.Warn().Err(err).Str("request", req.ID.String()).Msg("falha ao persistir alerta de compensação")
		}
	}

	if err := s.repo.Concluir(ctx, id, StatusConcluida, resultado, relatorio); err != nil {
		return nil, err
	}

	s.invalidarSimulacoes(ctx, req.EmpresaID)

	req.Status = StatusConcluida
	req.Resultado = resultado
	req.Relatorio = relatorio
	req.AtualizadoEm = agora
	return req, nil
}

// devolverClaim desfaz a reivindicação de processamento quando nada foi
// efetivado, liberando a requisição para nova tentativa.
func (s *Service) devolverClaim(ctx context.Context, id uuid.UUID) {
	if err := s.repo.UpdateStatus(ctx, id, StatusProcessando, StatusAprovada); err != nil {
		log.Error().Err(err).Str("request", id.String()).Msg("falha ao devolver compensação para a fila")
	}
}

// efetivar aplica as alocações: primeiro abate o débito, depois debita o
// crédito. O débito pertence à requisição, o crédito é disputado por todas;
// se o crédito falhar o abatimento é restituído e o par vira conflito.
func (s *Service) efetivar(ctx context.Context, req *CompensacaoRequest, poolC []Credito, poolD []Debito, alocacoes []Alocacao, agora time.Time) *ResultadoCompensacao {
	resultado := &ResultadoCompensacao{
		ValorCompensado: decimal.Zero,
		ValorPlanejado:  req.ValorPlanejado,
		ProcessadoEm:    agora,
	}

	if len(alocacoes) == 0 {
		resultado.Erros = append(resultado.Erros, ErrAlocacaoVazia.Error())
		return resultado
	}

	usoCredito := make(map[uuid.UUID]*CreditoProcessado)
	usoDebito := make(map[uuid.UUID]*DebitoProcessado)
	efetivadas := make([]Alocacao, 0, len(alocacoes))

	for _, a := range alocacoes {
		creditoID, err := uuid.Parse(a.CreditoID)
		if err != nil {
			resultado.Erros = append(resultado.Erros, fmt.Sprintf("alocação descartada: %v", err))
			continue
		}
		debitoID, err := uuid.Parse(a.DebitoID)
		if err != nil {
			resultado.Erros = append(resultado.Erros, fmt.Sprintf("alocação descartada: %v", err))
			continue
		}

		saldoD, err := s.obrigacoes.TryAbater(ctx, debitoID, a.Valor)
		if err != nil {
			conflito := &ConflitoSaldo{ItemID: a.DebitoID, Lado: "debito", Planejado: a.Valor}
			if !errors.Is(err, obrigacao.ErrSaldoInsuficiente) {
				log.Warn().Err(err).Str("obrigacao", a.DebitoID).Msg("abatimento falhou")
			}
			resultado.Erros = append(resultado.Erros, conflito.Error())
			continue
		}

		saldoC, err := s.titulos.TryDebitar(ctx, creditoID, a.Valor)
		if err != nil {
			if restErr := s.obrigacoes.Restituir(ctx, debitoID, a.Valor); restErr != nil {
				log.Error().Err(restErr).Str("obrigacao", a.DebitoID).Msg("restituição de abatimento falhou")
				resultado.Erros = append(resultado.Erros, fmt.Sprintf("restituição falhou: obrigação %s", a.DebitoID))
			}
			conflito := &ConflitoSaldo{ItemID: a.CreditoID, Lado: "credito", Planejado: a.Valor}
			resultado.Erros = append(resultado.Erros, conflito.Error())
			continue
		}

		efetivadas = append(efetivadas, a)
		resultado.ValorCompensado = resultado.ValorCompensado.Add(a.Valor)

		uc, ok := usoCredito[creditoID]
		if !ok {
			uc = &CreditoProcessado{TituloID: creditoID, ValorUtilizado: decimal.Zero}
			usoCredito[creditoID] = uc
		}
		uc.ValorUtilizado = uc.ValorUtilizado.Add(a.Valor)
		uc.SaldoRestante = saldoC

		ud, ok := usoDebito[debitoID]
		if !ok {
			ud = &DebitoProcessado{ObrigacaoID: debitoID, ValorAbatido: decimal.Zero}
			usoDebito[debitoID] = ud
		}
		ud.ValorAbatido = ud.ValorAbatido.Add(a.Valor)
		ud.SaldoRestante = saldoD
	}

	// Ordem dos itens segue a ordem das alocações efetivadas.
	vistosC := make(map[uuid.UUID]bool, len(usoCredito))
	vistosD := make(map[uuid.UUID]bool, len(usoDebito))
	for _, a := range efetivadas {
		cid, _ := uuid.Parse(a.CreditoID)
		did, _ := uuid.Parse(a.DebitoID)
		if !vistosC[cid] {
			vistosC[cid] = true
			resultado.Creditos = append(resultado.Creditos, *usoCredito[cid])
		}
		if !vistosD[did] {
			vistosD[did] = true
			resultado.Debitos = append(resultado.Debitos, *usoDebito[did])
		}
	}

	s.registrarNoLedger(ctx, req, resultado)

	resultado.EconomiaEstimada = EconomiaEstimada(poolD, efetivadas)
	// Sucesso só quando o valor planejado na aprovação foi alcançado por
	// inteiro; compensação reduzida por disputa de saldo conclui sem sucesso.
	resultado.Sucesso = resultado.ValorCompensado.IsPositive() &&
		resultado.ValorCompensado.GreaterThanOrEqual(req.ValorPlanejado)
	if !resultado.Sucesso && resultado.ValorCompensado.IsPositive() {
		resultado.Alertas = append(resultado.Alertas,
			fmt.Sprintf("compensação parcial: %s de %s planejado",
				resultado.ValorCompensado.StringFixed(2), req.ValorPlanejado.StringFixed(2)))
	}
	return resultado
}

// registrarNoLedger transfere os tokens utilizados para o fisco. Falha aqui
// não desfaz a compensação: o banco é a fonte de verdade e a transferência
// fica registrada como alerta para reconciliação.
func (s *Service) registrarNoLedger(ctx context.Context, req *CompensacaoRequest, resultado *ResultadoCompensacao) {
	if s.ledger == nil {
		return
	}
	for _, c := range resultado.Creditos {
		registro, err := s.ledger.TransferToken(ctx, c.TituloID.String(), req.EmpresaID.String(), "FISCO")
		if err != nil || registro.Status != ledger.RegistroConfirmado {
			log.Warn().Err(err).Str("titulo", c.TituloID.String()).Msg("transferência no ledger não confirmada")
			resultado.Alertas = append(resultado.Alertas,
				fmt.Sprintf("transferência no ledger pendente: título %s", c.TituloID))
		}
	}
}

// SimulacaoInput parametriza uma simulação sem efeitos colaterais.
type SimulacaoInput struct {
	EmpresaID    uuid.UUID   `json:"-"`
	TituloIDs    []uuid.UUID `json:"titulos"`
	ObrigacaoIDs []uuid.UUID `json:"obrigacoes"`
	Politica     Politica    `json:"politica"`
	Restricoes   Restricoes  `json:"restricoes"`
}

// ResultadoSimulacao é a resposta de uma simulação: nenhum saldo é tocado.
type ResultadoSimulacao struct {
	Simulacao
	Alocacoes []Alocacao            `json:"alocacoes"`
	Relatorio *RelatorioCompensacao `json:"relatorio,omitempty"`
}

// Simular roda o otimizador sobre os saldos correntes sem efetivar nada.
// Resultados idênticos para entradas idênticas; cache curto no Redis porque
// simulação é a operação mais repetida da interface.
func (s *Service) Simular(ctx context.Context, input SimulacaoInput) (*ResultadoSimulacao, error) {
	if !input.Politica.Valida() {
		return nil, fmt.Errorf("%w: política desconhecida %q", ErrValidacao, input.Politica)
	}
	if len(input.TituloIDs) == 0 || len(input.ObrigacaoIDs) == 0 {
		return nil, fmt.Errorf("%w: ao menos um crédito e um débito", ErrValidacao)
	}

	key := s.chaveSimulacao(input)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached ResultadoSimulacao
			if json.Unmarshal(data, &cached) == nil {
				return &cached, nil
			}
		}
	}

	agora := time.Now().UTC()

	titulos, err := s.titulos.GetMany(ctx, input.TituloIDs)
	if err != nil {
		return nil, err
	}
	obrigacoes, err := s.obrigacoes.GetMany(ctx, input.ObrigacaoIDs)
	if err != nil {
		return nil, err
	}

	var poolC []Credito
	for _, id := range input.TituloIDs {
		t, ok := titulos[id]
		if !ok || t.EmpresaID != input.EmpresaID {
			return nil, fmt.Errorf("%w: título %s não encontrado", ErrValidacao, id)
		}
		if t.Disponivel(agora) {
			poolC = append(poolC, creditoView(t, t.ValorDisponivel))
		}
	}
	var poolD []Debito
	for _, id := range input.ObrigacaoIDs {
		o, ok := obrigacoes[id]
		if !ok || o.EmpresaID != input.EmpresaID {
			return nil, fmt.Errorf("%w: obrigação %s não encontrada", ErrValidacao, id)
		}
		if o.ValorRestante.IsPositive() {
			poolD = append(poolD, debitoView(o, o.ValorRestante))
		}
	}

	otim, err := Otimizar(poolC, poolD, input.Politica, input.Restricoes, agora, s.cfg.LimitePool)
	if err != nil {
		return nil, err
	}

	valor := otim.ValorAlocado()
	resultado := &ResultadoSimulacao{
		Simulacao: Simulacao{
			Possivel:        valor.IsPositive(),
			ValorDisponivel: valor,
		},
		Alocacoes: otim.Alocacoes,
	}
	if !resultado.Possivel {
		resultado.Mensagem = "nenhum par crédito/débito compatível com saldo"
	} else {
		resultado.Relatorio = GerarRelatorio(uuid.Nil, poolC, poolD, otim.Alocacoes, valor, s.cfg.JanelaAlertaPrazo, agora)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(resultado); err == nil {
			_ = s.cache.Set(ctx, key, payload, s.cfg.CacheSimulacaoTTL).Err()
		}
	}
	return resultado, nil
}

// SimularPar verifica a compatibilidade de um único par, para o fluxo de
// conferência manual antes de montar a requisição.
func (s *Service) SimularPar(ctx context.Context, empresaID, tituloID, obrigacaoID uuid.UUID) (*Simulacao, error) {
	titulos, err := s.titulos.GetMany(ctx, []uuid.UUID{tituloID})
	if err != nil {
		return nil, err
	}
	t, ok := titulos[tituloID]
	if !ok || t.EmpresaID != empresaID {
		return nil, fmt.Errorf("%w: título %s não encontrado", ErrValidacao, tituloID)
	}

	obrigacoes, err := s.obrigacoes.GetMany(ctx, []uuid.UUID{obrigacaoID})
	if err != nil {
		return nil, err
	}
	o, ok := obrigacoes[obrigacaoID]
	if !ok || o.EmpresaID != empresaID {
		return nil, fmt.Errorf("%w: obrigação %s não encontrada", ErrValidacao, obrigacaoID)
	}

	agora := time.Now().UTC()
	compat, err := VerificarCompatibilidade(creditoView(t, t.ValorDisponivel), debitoView(o, o.ValorRestante), agora)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidacao, err)
	}
	if !compat.Compativel {
		return &Simulacao{Possivel: false, ValorDisponivel: decimal.Zero, Mensagem: compat.Descricao}, nil
	}

	valor := decimal.Min(t.ValorDisponivel, o.ValorRestante)
	return &Simulacao{Possivel: true, ValorDisponivel: valor}, nil
}

// AnexarDocumento sobe a referência de um documento comprobatório.
func (s *Service) AnexarDocumento(ctx context.Context, empresaID, id uuid.UUID, nome, url string, enviadoPor uuid.UUID) (*Documento, error) {
	req, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: requisição %s já encerrada", ErrTransicaoInvalida, req.Status)
	}

	doc := Documento{
		ID:       uuid.New(),
		Nome:     nome,
		URL:      url,
		EnvioEm:  time.Now().UTC(),
		EnvioPor: enviadoPor,
	}
	if err := s.repo.AnexarDocumento(ctx, id, doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// poolsAtuais reconstrói os pools puros a partir dos saldos correntes,
// considerando apenas itens aprovados na validação e ainda disponíveis.
// O valor de cada item é limitado ao proposto na requisição.
func (s *Service) poolsAtuais(ctx context.Context, req *CompensacaoRequest, ref time.Time) ([]Credito, []Debito, error) {
	idsC := make([]uuid.UUID, 0, len(req.Creditos))
	for _, c := range req.Creditos {
		if c.Validacao.Status == ValidacaoAprovada {
			idsC = append(idsC, c.TituloID)
		}
	}
	idsD := make([]uuid.UUID, 0, len(req.Debitos))
	for _, d := range req.Debitos {
		if d.Validacao.Status == ValidacaoAprovada {
			idsD = append(idsD, d.ObrigacaoID)
		}
	}

	titulos, err := s.titulos.GetMany(ctx, idsC)
	if err != nil {
		return nil, nil, err
	}
	obrigacoes, err := s.obrigacoes.GetMany(ctx, idsD)
	if err != nil {
		return nil, nil, err
	}

	var poolC []Credito
	for _, c := range req.Creditos {
		if c.Validacao.Status != ValidacaoAprovada {
			continue
		}
		t, ok := titulos[c.TituloID]
		if !ok || !t.Disponivel(ref) {
			continue
		}
		poolC = append(poolC, creditoView(t, decimal.Min(c.ValorProposto, t.ValorDisponivel)))
	}

	var poolD []Debito
	for _, d := range req.Debitos {
		if d.Validacao.Status != ValidacaoAprovada {
			continue
		}
		o, ok := obrigacoes[d.ObrigacaoID]
		if !ok || !o.ValorRestante.IsPositive() {
			continue
		}
		poolD = append(poolD, debitoView(o, decimal.Min(d.ValorProposto, o.ValorRestante)))
	}
	return poolC, poolD, nil
}

func (s *Service) invalidarSimulacoes(ctx context.Context, empresaID uuid.UUID) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "simulacao:"+empresaID.String()+":*", 50).Iterator()
	for iter.Next(ctx) {
		_ = s.cache.Del(ctx, iter.Val()).Err()
	}
}

func (s *Service) chaveSimulacao(input SimulacaoInput) string {
	payload, _ := json.Marshal(input)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("simulacao:%s:%s", input.EmpresaID, hex.EncodeToString(sum[:8]))
}

func validarCredito(t *titulo.Titulo, valor *decimal.Decimal, ref time.Time) (decimal.Decimal, Validacao) {
	criterios := []Criterio{
		aprovado("existe"),
		criterio("disponivel", t.Disponivel(ref), fmt.Sprintf("status %s", t.Status)),
	}

	proposto := t.ValorDisponivel
	if valor != nil {
		proposto = *valor
		criterios = append(criterios, criterio("valor_proposto",
			valor.IsPositive() && !valor.GreaterThan(t.ValorDisponivel),
			fmt.Sprintf("proposto %s, disponível %s", valor.StringFixed(2), t.ValorDisponivel.StringFixed(2))))
	}

	return proposto, consolidar(criterios)
}

func validarDebito(o *obrigacao.Obrigacao, valor *decimal.Decimal) (decimal.Decimal, Validacao) {
	criterios := []Criterio{
		aprovado("existe"),
		criterio("saldo_restante", o.ValorRestante.IsPositive(), "obrigação já quitada"),
	}

	proposto := o.ValorRestante
	if valor != nil {
		proposto = *valor
		criterios = append(criterios, criterio("valor_proposto",
			valor.IsPositive() && !valor.GreaterThan(o.ValorRestante),
			fmt.Sprintf("proposto %s, restante %s", valor.StringFixed(2), o.ValorRestante.StringFixed(2))))
	}

	return proposto, consolidar(criterios)
}

func consolidar(criterios []Criterio) Validacao {
	v := Validacao{Status: ValidacaoAprovada, Criterios: criterios}
	for _, c := range criterios {
		if !c.Aprovado {
			v.Status = ValidacaoRejeitada
			v.Observacoes = append(v.Observacoes, c.Nome+": "+c.Detalhe)
		}
	}
	return v
}

func aprovado(nome string) Criterio {
	return Criterio{Nome: nome, Aprovado: true}
}

func criterio(nome string, ok bool, detalhe string) Criterio {
	c := Criterio{Nome: nome, Aprovado: ok}
	if !ok {
		c.Detalhe = detalhe
	}
	return c
}

func temItensViaveis(req *CompensacaoRequest) bool {
	temCredito := false
	for _, c := range req.Creditos {
		if c.Validacao.Status == ValidacaoAprovada {
			temCredito = true
			break
		}
	}
	if !temCredito {
		return false
	}
	for _, d := range req.Debitos {
		if d.Validacao.Status == ValidacaoAprovada {
			return true
		}
	}
	return false
}

func creditoView(t *titulo.Titulo, saldo decimal.Decimal) Credito {
	return Credito{
		ID:         t.ID.String(),
		Categoria:  t.Categoria,
		Subtipo:    t.Subtipo,
		Jurisdicao: t.Jurisdicao,
		Moeda:      t.Moeda,
		Saldo:      saldo,
		Vencimento: t.Vencimento,
	}
}

func debitoView(o *obrigacao.Obrigacao, saldo decimal.Decimal) Debito {
	return Debito{
		ID:         o.ID.String(),
		Tributo:    o.Tributo,
		Jurisdicao: o.Jurisdicao(),
		Moeda:      o.Moeda,
		Saldo:      saldo,
		Vencimento: o.Vencimento,
		Juros:      o.Juros,
		Multa:      o.Multa,
	}
}

func alocacoesEfetivadas(resultado *ResultadoCompensacao, planejadas []Alocacao) []Alocacao {
	if len(resultado.Erros) == 0 {
		return planejadas
	}
	// Reconstrói pelo uso por crédito/débito; suficiente para o relatório.
	efetivadas := make([]Alocacao, 0, len(planejadas))
	restoC := make(map[string]decimal.Decimal, len(resultado.Creditos))
	for _, c := range resultado.Creditos {
		restoC[c.TituloID.String()] = c.ValorUtilizado
	}
	restoD := make(map[string]decimal.Decimal, len(resultado.Debitos))
	for _, d := range resultado.Debitos {
		restoD[d.ObrigacaoID.String()] = d.ValorAbatido
	}
	for _, a := range planejadas {
		rc, okC := restoC[a.CreditoID]
		rd, okD := restoD[a.DebitoID]
		if !okC || !okD || !rc.GreaterThanOrEqual(a.Valor) || !rd.GreaterThanOrEqual(a.Valor) {
			continue
		}
		efetivadas = append(efetivadas, a)
		restoC[a.CreditoID] = rc.Sub(a.Valor)
		restoD[a.DebitoID] = rd.Sub(a.Valor)
	}
	return efetivadas
}

func idsDe(itens []ItemCompensacaoInput) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(itens))
	for _, item := range itens {
		ids = append(ids, item.ID)
	}
	return ids
}
