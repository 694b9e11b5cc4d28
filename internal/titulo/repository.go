package titulo

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
	// ErrNotFound é retornado quando o título não existe.
	ErrNotFound = errors.New("título não encontrado")
	// ErrSaldoInsuficiente é retornado quando o débito atômico não encontra saldo.
	ErrSaldoInsuficiente = errors.New("saldo disponível insuficiente")
)

// Repository encapsula o acesso à tabela de títulos.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const colunas = `
    id, empresa_id, categoria, subtipo, jurisdicao, moeda,
    valor_nominal, valor_disponivel, emissao, vencimento, status,
    transaction_hash, criado_em, atualizado_em
`

func (r *Repository) Insert(ctx context.Context, t *Titulo) error {
	const query = `
        INSERT INTO titulos (id, empresa_id, categoria, subtipo, jurisdicao, moeda,
            valor_nominal, valor_disponivel, emissao, vencimento, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `

	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.EmpresaID,
		string(t.Categoria),
		t.Subtipo,
		t.Jurisdicao,
		t.Moeda,
		t.ValorNominal,
		t.ValorDisponivel,
		t.Emissao,
		t.Vencimento,
		string(t.Status),
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Titulo, error) {
	const query = `SELECT ` + colunas + ` FROM titulos WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	t, err := scanTitulo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetMany devolve os títulos pedidos, indexados por id. IDs ausentes não geram erro.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Titulo, error) {
	const query = `SELECT ` + colunas + ` FROM titulos WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*Titulo, len(ids))
	for rows.Next() {
		t, err := scanTitulo(rows)
		if err != nil {
			return nil, err
		}
		result[t.ID] = t
	}
	return result, rows.Err()
}

func (r *Repository) ListByEmpresa(ctx context.Context, empresaID uuid.UUID, status Status) ([]Titulo, error) {
	const query = `
        SELECT ` + colunas + `
        FROM titulos
        WHERE empresa_id = $1
          AND ($2 = '' OR status = $2)
        ORDER BY criado_em DESC
    `

	rows, err := r.pool.Query(ctx, query, empresaID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titulos []Titulo
	for rows.Next() {
		t, err := scanTitulo(rows)
		if err != nil {
			return nil, err
		}
		titulos = append(titulos, *t)
	}
	return titulos, rows.Err()
}

// UpdateStatus grava novo status respeitando a transição no banco.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	const query = `
        UPDATE titulos
        SET status = $2, atualizado_em = now()
        WHERE id = $1
    `

	tag, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarcarTokenizado registra o hash devolvido pelo ledger.
func (r *Repository) MarcarTokenizado(ctx context.Context, id uuid.UUID, txHash string) error {
	const query = `
        UPDATE titulos
        SET status = $2, transaction_hash = $3, atualizado_em = now()
        WHERE id = $1
    `

	tag, err := r.pool.Exec(ctx, query, id, string(StatusTokenizado), txHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TryDebitar decrementa o saldo disponível de forma atômica. A condição
// valor_disponivel >= valor na própria cláusula WHERE é o que impede
// gasto duplo entre requisições concorrentes: nunca há janela entre
// leitura e escrita. Devolve o saldo remanescente.
func (r *Repository) TryDebitar(ctx context.Context, id uuid.UUID, valor decimal.Decimal) (decimal.Decimal, error) {
	const query = `
        UPDATE titulos
        SET valor_disponivel = valor_disponivel - $2,
            status = CASE WHEN valor_disponivel - $2 = 0 THEN 'ESGOTADO' ELSE 'UTILIZADO' END,
            atualizado_em = now()
        WHERE id = $1
          AND valor_disponivel >= $2
        RETURNING valor_disponivel
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

// Transferir muda a titularidade do título para a empresa compradora.
// Só títulos tokenizados com saldo íntegro trocam de dono.
func (r *Repository) Transferir(ctx context.Context, id, novaEmpresa uuid.UUID) error {
	const query = `
        UPDATE titulos
        SET empresa_id = $2, atualizado_em = now()
        WHERE id = $1
          AND status = 'TOKENIZADO'
          AND valor_disponivel = valor_nominal
    `

	tag, err := r.pool.Exec(ctx, query, id, novaEmpresa)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVencidos devolve títulos não terminais com vencimento anterior à referência.
func (r *Repository) ListVencidos(ctx context.Context, ref time.Time) ([]Titulo, error) {
	const query = `
        SELECT ` + colunas + `
        FROM titulos
        WHERE vencimento IS NOT NULL
          AND vencimento < $1
          AND status NOT IN ('ESGOTADO', 'REJEITADO', 'CANCELADO')
        ORDER BY vencimento
    `

	rows, err := r.pool.Query(ctx, query, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titulos []Titulo
	for rows.Next() {
		t, err := scanTitulo(rows)
		if err != nil {
			return nil, err
		}
		titulos = append(titulos, *t)
	}
	return titulos, rows.Err()
}

func scanTitulo(row pgx.Row) (*Titulo, error) {
	var t Titulo
	var categoria, status string
	if err := row.Scan(
		&t.ID,
		&t.EmpresaID,
		&categoria,
		&t.Subtipo,
		&t.Jurisdicao,
		&t.Moeda,
		&t.ValorNominal,
		&t.ValorDisponivel,
		&t.Emissao,
		&t.Vencimento,
		&status,
		&t.TransactionHash,
		&t.CriadoEm,
		&t.AtualizadoEm,
	); err != nil {
		return nil, err
	}
	t.Categoria = Categoria(categoria)
	t.Status = Status(status)
	return &t, nil
}
