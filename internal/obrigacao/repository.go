package obrigacao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound é retornado quando a obrigação não existe.
	ErrNotFound = errors.New("obrigação não encontrada")
	// ErrSaldoInsuficiente é retornado quando o abatimento atômico falha.
	ErrSaldoInsuficiente = errors.New("valor restante insuficiente")
)

// Repository encapsula o acesso à tabela de obrigações fiscais.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const colunas = `
    id, empresa_id, tributo, esfera, uf, moeda,
    valor_original, valor_restante, juros, multa, vencimento, criado_em
`

func (r *Repository) Insert(ctx context.Context, o *Obrigacao) error {
	const query = `
        INSERT INTO obrigacoes (id, empresa_id, tributo, esfera, uf, moeda,
            valor_original, valor_restante, juros, multa, vencimento)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `

	_, err := r.pool.Exec(ctx, query,
		o.ID,
		o.EmpresaID,
		o.Tributo,
		string(o.Esfera),
		o.UF,
		o.Moeda,
		o.ValorOriginal,
		o.ValorRestante,
		o.Juros,
		o.Multa,
		o.Vencimento,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Obrigacao, error) {
	const query = `SELECT ` + colunas + ` FROM obrigacoes WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	o, err := scanObrigacao(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// GetMany devolve as obrigações pedidas, indexadas por id.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Obrigacao, error) {
	const query = `SELECT ` + colunas + ` FROM obrigacoes WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*Obrigacao, len(ids))
	for rows.Next() {
		o, err := scanObrigacao(rows)
		if err != nil {
			return nil, err
		}
		result[o.ID] = o
	}
	return result, rows.Err()
}

func (r *Repository) ListByEmpresa(ctx context.Context, empresaID uuid.UUID) ([]Obrigacao, error) {
	const query = `
        SELECT ` + colunas + `
        FROM obrigacoes
        WHERE empresa_id = $1
        ORDER BY vencimento
    `

	rows, err := r.pool.Query(ctx, query, empresaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obrigacoes []Obrigacao
	for rows.Next() {
		o, err := scanObrigacao(rows)
		if err != nil {
			return nil, err
		}
		obrigacoes = append(obrigacoes, *o)
	}
	return obrigacoes, rows.Err()
}

// TryAbater decrementa o valor restante de forma atômica, espelhando
// titulo.Repository.TryDebitar. Devolve o saldo remanescente.
func (r *Repository) TryAbater(ctx context.Context, id uuid.UUID, valor decimal.Decimal) (decimal.Decimal, error) {
	const query = `
        UPDATE obrigacoes
        SET valor_restante = valor_restante - $2
        WHERE id = $1
          AND valor_restante >= $2
        RETURNING valor_restante
    `

	var saldo decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, id, valor).Scan(&saldo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrSaldoInsuficiente
		}
		return decimal.Zero, err
	}
	return saldo, nil
}

// Restituir devolve valor ao saldo restante. É a ação compensatória usada
// quando o abatimento foi feito mas o débito do crédito correspondente falhou.
func (r *Repository) Restituir(ctx context.Context, id uuid.UUID, valor decimal.Decimal) error {
	const query = `
        UPDATE obrigacoes
        SET valor_restante = valor_restante + $2
        WHERE id = $1
    `

	tag, err := r.pool.Exec(ctx, query, id, valor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVencidas devolve obrigações com saldo e vencimento anterior à referência.
func (r *Repository) ListVencidas(ctx context.Context, ref time.Time) ([]Obrigacao, error) {
	const query = `
        SELECT ` + colunas + `
        FROM obrigacoes
        WHERE valor_restante > 0
          AND vencimento < $1
        ORDER BY vencimento
    `

	rows, err := r.pool.Query(ctx, query, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obrigacoes []Obrigacao
	for rows.Next() {
		o, err := scanObrigacao(rows)
		if err != nil {
			return nil, err
		}
		obrigacoes = append(obrigacoes, *o)
	}
	return obrigacoes, rows.Err()
}

func scanObrigacao(row pgx.Row) (*Obrigacao, error) {
	var o Obrigacao
	var esfera string
	if err := row.Scan(
		&o.ID,
		&o.EmpresaID,
		&o.Tributo,
		&esfera,
		&o.UF,
		&o.Moeda,
		&o.ValorOriginal,
		&o.ValorRestante,
		&o.Juros,
		&o.Multa,
		&o.Vencimento,
		&o.CriadoEm,
	); err != nil {
		return nil, err
	}
	o.Esfera = Esfera(esfera)
	return &o, nil
}
