package empresa

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provê acesso ao armazenamento de empresas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const colunas = `
    id, cnpj, razao_social, nome_fantasia, email, uf, ativa, criado_em, atualizado_em
`

func (r *Repository) Insert(ctx context.Context, e *Empresa) error {
	const query = `
        INSERT INTO empresas (id, cnpj, razao_social, nome_fantasia, email, uf, ativa)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.CNPJ,
		e.RazaoSocial,
		e.NomeFantasia,
		e.Email,
		e.UF,
		e.Ativa,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Empresa, error) {
	const query = `SELECT ` + colunas + ` FROM empresas WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	e, err := scanEmpresa(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// GetByCNPJ busca a empresa pelo CNPJ já normalizado (somente dígitos).
func (r *Repository) GetByCNPJ(ctx context.Context, cnpj string) (*Empresa, error) {
	const query = `SELECT ` + colunas + ` FROM empresas WHERE cnpj = $1`

	row := r.pool.QueryRow(ctx, query, cnpj)
	e, err := scanEmpresa(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *Repository) List(ctx context.Context) ([]Empresa, error) {
	const query = `SELECT ` + colunas + ` FROM empresas ORDER BY criado_em DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var empresas []Empresa
	for rows.Next() {
		e, err := scanEmpresa(rows)
		if err != nil {
			return nil, err
		}
		empresas = append(empresas, *e)
	}
	return empresas, rows.Err()
}

// SetAtiva liga ou desliga a participação da empresa na plataforma.
func (r *Repository) SetAtiva(ctx context.Context, id uuid.UUID, ativa bool) error {
	const query = `
        UPDATE empresas
        SET ativa = $2, atualizado_em = now()
        WHERE id = $1
    `

	tag, err := r.pool.Exec(ctx, query, id, ativa)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEmpresa(row pgx.Row) (*Empresa, error) {
	var e Empresa
	if err := row.Scan(
		&e.ID,
		&e.CNPJ,
		&e.RazaoSocial,
		&e.NomeFantasia,
		&e.Email,
		&e.UF,
		&e.Ativa,
		&e.CriadoEm,
		&e.AtualizadoEm,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
