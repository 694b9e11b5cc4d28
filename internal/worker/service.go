// Package worker executa os loops de segundo plano da plataforma:
// processamento de compensações aprovadas e vigilância de vencimentos.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mercadotc/api/internal/compensacao"
	"github.com/mercadotc/api/internal/config"
	"github.com/mercadotc/api/internal/obrigacao"
	"github.com/mercadotc/api/internal/titulo"
)

// loteProcessamento limita quantas requisições cada ciclo assume.
const loteProcessamento = 10

// CompensacaoFonte é o recorte do motor de compensação usado pelo worker.
type CompensacaoFonte interface {
	ListarAprovadas(ctx context.Context, limite int) ([]compensacao.CompensacaoRequest, error)
	Processar(ctx context.Context, empresaID, id, processadoPor uuid.UUID) (*compensacao.CompensacaoRequest, error)
}

// TituloFonte lista os títulos que exigem vigilância de prazo.
type TituloFonte interface {
	ListVencidos(ctx context.Context, ref time.Time) ([]titulo.Titulo, error)
}

// ObrigacaoFonte lista as obrigações vencidas com saldo em aberto.
type ObrigacaoFonte interface {
	ListVencidas(ctx context.Context, ref time.Time) ([]obrigacao.Obrigacao, error)
}

// AlertaFonte persiste alertas com supressão de repetição.
type AlertaFonte interface {
	InsertAlerta(ctx context.Context, empresaID uuid.UUID, alerta compensacao.AlertaCompensacao) error
	ExisteAlertaRecente(ctx context.Context, tipo compensacao.TipoAlerta, itemID string, desde time.Time) (bool, error)
}

// Service executa verificações periódicas. O ator de sistema identifica os
// processamentos automáticos no histórico.
type Service struct {
	compensacoes CompensacaoFonte
	titulos      TituloFonte
	obrigacoes   ObrigacaoFonte
	alertas      AlertaFonte
	cfg          config.WorkerConfig
	janelaAlerta time.Duration
	logger       zerolog.Logger
	atorSistema  uuid.UUID

	once   sync.Once
	cancel context.CancelFunc
}

func NewService(compensacoes CompensacaoFonte, titulos TituloFonte, obrigacoes ObrigacaoFonte, alertas AlertaFonte, cfg config.WorkerConfig, janelaAlerta time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		compensacoes: compensacoes,
		titulos:      titulos,
		obrigacoes:   obrigacoes,
		alertas:      alertas,
		cfg:          cfg,
		janelaAlerta: janelaAlerta,
		logger:       logger,
		atorSistema:  uuid.NewSHA1(uuid.NameSpaceOID, []byte("worker")),
	}
}

// Start inicia os loops periódicos. Safe para chamar múltiplas vezes.
func (s *Service) Start(parent context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		go s.loopProcessamento(ctx)
		go s.loopVencimentos(ctx)
	})
}

// Stop encerra os loops periódicos.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) loopProcessamento(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("worker: processamento iniciado")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("worker: processamento encerrado")
			return
		case <-ticker.C:
			if err := s.ProcessarAprovadas(ctx); err != nil {
				s.logger.Error().Err(err).Msg("worker: ciclo de processamento falhou")
			}
		}
	}
}

func (s *Service) loopVencimentos(ctx context.Context) {
	interval := s.cfg.VencimentoInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("worker: vigilância de vencimentos iniciada")

	if err := s.VigiarVencimentos(ctx); err != nil {
		s.logger.Error().Err(err).Msg("worker: primeira vigilância falhou")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("worker: vigilância encerrada")
			return
		case <-ticker.C:
			if err := s.VigiarVencimentos(ctx); err != nil {
				s.logger.Error().Err(err).Msg("worker: vigilância periódica falhou")
			}
		}
	}
}

// ProcessarAprovadas assume um lote de requisições aprovadas. Conflito de
// status significa que outro processador chegou antes; não é erro do ciclo.
func (s *Service) ProcessarAprovadas(ctx context.Context) error {
	aprovadas, err := s.compensacoes.ListarAprovadas(ctx, loteProcessamento)
	if err != nil {
		return fmt.Errorf("listar aprovadas: %w", err)
	}

	for _, req := range aprovadas {
		resultado, err := s.compensacoes.Processar(ctx, req.EmpresaID, req.ID, s.atorSistema)
		if err != nil {
			if errors.Is(err, compensacao.ErrConflitoStatus) {
				continue
			}
			s.logger.Warn().Err(err).Str("request", req.ID.String()).Msg("worker: processamento falhou")
			continue
		}
		s.logger.Info().
			Str("request", req.ID.String()).
			Str("valor_compensado", resultado.Resultado.ValorCompensado.StringFixed(2)).
			Bool("sucesso", resultado.Resultado.Sucesso).
			Msg("worker: compensação processada")
	}
	return nil
}

// VigiarVencimentos emite alertas para créditos prestes a vencer com saldo e
// obrigações vencidas em aberto. A supressão evita repetir o mesmo alerta em
// ciclos consecutivos.
func (s *Service) VigiarVencimentos(ctx context.Context) error {
	agora := time.Now().UTC()
	corte := agora.Add(-s.supressao())

	titulos, err := s.titulos.ListVencidos(ctx, agora.Add(s.janelaAlerta))
	if err != nil {
		return fmt.Errorf("listar títulos a vencer: %w", err)
	}
	for _, t := range titulos {
		if !t.ValorDisponivel.IsPositive() || t.Vencimento == nil {
			continue
		}
		mensagem := fmt.Sprintf("crédito com saldo de %s vence em %s",
			t.ValorDisponivel.StringFixed(2), t.Vencimento.Format("2006-01-02"))
		if t.Vencido(agora) {
			mensagem = fmt.Sprintf("crédito vencido com saldo de %s", t.ValorDisponivel.StringFixed(2))
		}
		s.emitir(ctx, t.EmpresaID, compensacao.AlertaCompensacao{
			Tipo:       compensacao.AlertaPrazo,
			Severidade: "AVISO",
			Mensagem:   mensagem,
			ItemID:     t.ID.String(),
		}, corte)
	}

	obrigacoes, err := s.obrigacoes.ListVencidas(ctx, agora)
	if err != nil {
		return fmt.Errorf("listar obrigações vencidas: %w", err)
	}
	for _, o := range obrigacoes {
		s.emitir(ctx, o.EmpresaID, compensacao.AlertaCompensacao{
			Tipo:       compensacao.AlertaPrazo,
			Severidade: "CRITICO",
			Mensagem: fmt.Sprintf("obrigação %s vencida com %s em aberto",
				o.Tributo, o.ValorRestante.StringFixed(2)),
			ItemID: o.ID.String(),
		}, corte)
	}

	return nil
}

func (s *Service) emitir(ctx context.Context, empresaID uuid.UUID, alerta compensacao.AlertaCompensacao, corte time.Time) {
	recente, err := s.alertas.ExisteAlertaRecente(ctx, alerta.Tipo, alerta.ItemID, corte)
	if err != nil {
		s.logger.Warn().Err(err).Str("item", alerta.ItemID).Msg("worker: consulta de supressão falhou")
		return
	}
	if recente {
		return
	}
	if err := s.alertas.InsertAlerta(ctx, empresaID, alerta); err != nil {
		s.logger.Warn().Err(err).Str("item", alerta.ItemID).Msg("worker: persistência de alerta falhou")
	}
}

// supressao define o intervalo mínimo entre alertas iguais.
func (s *Service) supressao() time.Duration {
	interval := s.cfg.VencimentoInterval
	if interval <= 0 {
		interval = time.Hour
	}
	// Ao menos um ciclo inteiro entre repetições, nunca menos que 12h.
	if interval < 12*time.Hour {
		return 12 * time.Hour
	}
	return interval
}
