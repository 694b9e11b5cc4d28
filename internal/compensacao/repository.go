package compensacao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrConflitoStatus indica que outro ator mudou o status entre a leitura e a
// escrita. O update condicional no banco é quem decide quem ganhou.
var ErrConflitoStatus = errors.New("status da compensação mudou durante a operação")

// Repository encapsula o acesso às tabelas de compensações e alertas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const colunasRequest = `
    id, empresa_id, status, politica, prioridade,
    creditos, debitos, valor_total_creditos, valor_total_debitos, valor_planejado,
    criado_por, aprovado_por, processado_por, documentos, resultado, relatorio,
    criado_em, atualizado_em
`

func (r *Repository) Insert(ctx context.Context, req *CompensacaoRequest) error {
	const query = `
        INSERT INTO compensacoes (id, empresa_id, status, politica, prioridade,
            creditos, debitos, valor_total_creditos, valor_total_debitos, valor_planejado,
            criado_por, documentos)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `

	creditos, err := json.Marshal(req.Creditos)
	if err != nil {
		return fmt.Errorf("serializar créditos: %w", err)
	}
	debitos, err := json.Marshal(req.Debitos)
	if err != nil {
		return fmt.Errorf("serializar débitos: %w", err)
	}
	documentos, err := json.Marshal(req.Documentos)
	if err != nil {
		return fmt.Errorf("serializar documentos: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.EmpresaID,
		string(req.Status),
		string(req.Politica),
		req.Prioridade,
		creditos,
		debitos,
		req.ValorTotalCreditos,
		req.ValorTotalDebitos,
		req.ValorPlanejado,
		req.CriadoPor,
		documentos,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*CompensacaoRequest, error) {
	const query = `SELECT ` + colunasRequest + ` FROM compensacoes WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *Repository) ListByEmpresa(ctx context.Context, empresaID uuid.UUID, status StatusRequest) ([]CompensacaoRequest, error) {
	const query = `
        SELECT ` + colunasRequest + `
        FROM compensacoes
        WHERE empresa_id = $1
          AND ($2 = '' OR status = $2)
        ORDER BY criado_em DESC
    `

	rows, err := r.pool.Query(ctx, query, empresaID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListByStatus alimenta o worker: requisições num dado status, mais antigas
// e de maior prioridade primeiro.
func (r *Repository) ListByStatus(ctx context.Context, status StatusRequest, limite int) ([]CompensacaoRequest, error) {
	const query = `
        SELECT ` + colunasRequest + `
        FROM compensacoes
        WHERE status = $1
        ORDER BY prioridade DESC, criado_em
        LIMIT $2
    `

	rows, err := r.pool.Query(ctx, query, string(status), limite)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// UpdateStatus avança o status somente se o atual ainda for o esperado.
// Dois analistas decidindo a mesma requisição: um ganha, o outro recebe
// ErrConflitoStatus.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, de, para StatusRequest) error {
	const query = `
        UPDATE compensacoes
        SET status = $3, atualizado_em = now()
        WHERE id = $1 AND status = $2
    `

	tag, err := r.pool.Exec(ctx, query, id, string(de), string(para))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflitoOuAusente(ctx, id)
	}
	return nil
}

// AtualizarAnalise persiste o desfecho da análise de compatibilidade: itens
// com a validação atualizada e os totais recalculados sobre o que sobrou.
// Só enquanto a requisição estiver em ANALISANDO.
func (r *Repository) AtualizarAnalise(ctx context.Context, req *CompensacaoRequest) error {
	const query = `
        UPDATE compensacoes
        SET creditos = $2, debitos = $3,
            valor_total_creditos = $4, valor_total_debitos = $5, valor_planejado = $6,
            atualizado_em = now()
        WHERE id = $1 AND status = 'ANALISANDO'
    `

	creditos, err := json.Marshal(req.Creditos)
	if err != nil {
		return fmt.Errorf("serializar créditos: %w", err)
	}
	debitos, err := json.Marshal(req.Debitos)
	if err != nil {
		return fmt.Errorf("serializar débitos: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, req.ID, creditos, debitos,
		req.ValorTotalCreditos, req.ValorTotalDebitos, req.ValorPlanejado)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflitoOuAusente(ctx, req.ID)
	}
	return nil
}

// Decidir registra aprovação ou rejeição junto com o ator responsável e o
// valor planejado calculado na decisão.
func (r *Repository) Decidir(ctx context.Context, id uuid.UUID, para StatusRequest, decididoPor uuid.UUID, valorPlanejado decimal.Decimal) error {
	const query = `
        UPDATE compensacoes
        SET status = $2, aprovado_por = $3, valor_planejado = $4, atualizado_em = now()
        WHERE id = $1 AND status = 'ANALISANDO'
    `

	tag, err := r.pool.Exec(ctx, query, id, string(para), decididoPor, valorPlanejado)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflitoOuAusente(ctx, id)
	}
	return nil
}

// IniciarProcessamento reivindica a requisição para processamento. O update
// condicional garante que só um processador assume cada requisição.
func (r *Repository) IniciarProcessamento(ctx context.Context, id uuid.UUID, processadoPor uuid.UUID) error {
	const query = `
        UPDATE compensacoes
        SET status = 'PROCESSANDO', processado_por = $2, atualizado_em = now()
        WHERE id = $1 AND status = 'APROVADA'
    `

	tag, err := r.pool.Exec(ctx, query, id, processadoPor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflitoOuAusente(ctx, id)
	}
	return nil
}

// Concluir grava resultado e relatório e fecha a requisição.
func (r *Repository) Concluir(ctx context.Context, id uuid.UUID, para StatusRequest, resultado *ResultadoCompensacao, relatorio *RelatorioCompensacao) error {
	const query = `
        UPDATE compensacoes
        SET status = $2, resultado = $3, relatorio = $4, atualizado_em = now()
        WHERE id = $1 AND status = 'PROCESSANDO'
    `

	res, err := json.Marshal(resultado)
	if err != nil {
		return fmt.Errorf("serializar resultado: %w", err)
	}
	rel, err := json.Marshal(relatorio)
	if err != nil {
		return fmt.Errorf("serializar relatório: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, id, string(para), res, rel)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflitoOuAusente(ctx, id)
	}
	return nil
}

// AnexarDocumento agrega o documento ao array jsonb da requisição.
func (r *Repository) AnexarDocumento(ctx context.Context, id uuid.UUID, doc Documento) error {
	const query = `
        UPDATE compensacoes
        SET documentos = COALESCE(documentos, '[]'::jsonb) || $2::jsonb,
            atualizado_em = now()
        WHERE id = $1
    `

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serializar documento: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlerta persiste um alerta emitido pelo worker ou pelo relatório.
func (r *Repository) InsertAlerta(ctx context.Context, empresaID uuid.UUID, alerta AlertaCompensacao) error {
	const query = `
        INSERT INTO compensacao_alertas (id, empresa_id, tipo, severidade, mensagem, item_id, criado_em)
        VALUES ($1, $2, $3, $4, $5, $6, now())
    `

	_, err := r.pool.Exec(ctx, query,
		uuid.New(),
		empresaID,
		string(alerta.Tipo),
		alerta.Severidade,
		alerta.Mensagem,
		alerta.ItemID,
	)
	return err
}

// ExisteAlertaRecente diz se já houve alerta igual para o item desde o corte.
// É o mecanismo de supressão que evita martelar a mesma pendência a cada ciclo.
func (r *Repository) ExisteAlertaRecente(ctx context.Context, tipo TipoAlerta, itemID string, desde time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM compensacao_alertas
            WHERE tipo = $1 AND item_id = $2 AND criado_em >= $3
        )
    `

	var existe bool
	if err := r.pool.QueryRow(ctx, query, string(tipo), itemID, desde).Scan(&existe); err != nil {
		return false, err
	}
	return existe, nil
}

func (r *Repository) conflitoOuAusente(ctx context.Context, id uuid.UUID) error {
	const query = `SELECT 1 FROM compensacoes WHERE id = $1`
	var um int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&um); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflitoStatus
}

func collectRequests(rows pgx.Rows) ([]CompensacaoRequest, error) {
	var requests []CompensacaoRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

func scanRequest(row pgx.Row) (*CompensacaoRequest, error) {
	var req CompensacaoRequest
	var status, politica string
	var creditos, debitos, documentos []byte
	var resultado, relatorio []byte

	if err := row.Scan(
		&req.ID,
		&req.EmpresaID,
		&status,
		&politica,
		&req.Prioridade,
		&creditos,
		&debitos,
		&req.ValorTotalCreditos,
		&req.ValorTotalDebitos,
		&req.ValorPlanejado,
		&req.CriadoPor,
		&req.AprovadoPor,
		&req.ProcessadoPor,
		&documentos,
		&resultado,
		&relatorio,
		&req.CriadoEm,
		&req.AtualizadoEm,
	); err != nil {
		return nil, err
	}

	req.Status = StatusRequest(status)
	req.Politica = Politica(politica)
	if err := json.Unmarshal(creditos, &req.Creditos); err != nil {
		return nil, fmt.Errorf("decodificar créditos: %w", err)
	}
	if err := json.Unmarshal(debitos, &req.Debitos); err != nil {
		return nil, fmt.Errorf("decodificar débitos: %w", err)
	}
	if len(documentos) > 0 {
		if err := json.Unmarshal(documentos, &req.Documentos); err != nil {
			return nil, fmt.Errorf("decodificar documentos: %w", err)
		}
	}
	if len(resultado) > 0 {
		if err := json.Unmarshal(resultado, &req.Resultado); err != nil {
			return nil, fmt.Errorf("decodificar resultado: %w", err)
		}
	}
	if len(relatorio) > 0 {
		if err := json.Unmarshal(relatorio, &req.Relatorio); err != nil {
			return nil, fmt.Errorf("decodificar relatório: %w", err)
		}
	}
	return &req, nil
}
