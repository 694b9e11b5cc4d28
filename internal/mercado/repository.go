package mercado

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercadotc/api/internal/db"
)

// Repository provê acesso às tabelas de anúncios e ofertas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const colunasAnuncio = `
    id, titulo_id, empresa_id, tipo, preco_pedido, desagio, status, criado_em
`

const colunasOferta = `
    id, anuncio_id, empresa_id, valor, status, criado_em, decidido_em
`

func (r *Repository) InsertAnuncio(ctx context.Context, a *Anuncio) error {
	const query = `
        INSERT INTO anuncios (id, titulo_id, empresa_id, tipo, preco_pedido, desagio, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.TituloID,
		a.EmpresaID,
		string(a.Tipo),
		a.PrecoPedido,
		a.Desagio,
		string(a.Status),
	)
	return err
}

func (r *Repository) GetAnuncio(ctx context.Context, id uuid.UUID) (*Anuncio, error) {
	const query = `SELECT ` + colunasAnuncio + ` FROM anuncios WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	a, err := scanAnuncio(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListAnunciosAbertos devolve a vitrine do mercado, mais recentes primeiro.
func (r *Repository) ListAnunciosAbertos(ctx context.Context) ([]Anuncio, error) {
	const query = `
        SELECT ` + colunasAnuncio + `
        FROM anuncios
        WHERE status = 'ABERTO'
        ORDER BY criado_em DESC
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anuncios []Anuncio
	for rows.Next() {
		a, err := scanAnuncio(rows)
		if err != nil {
			return nil, err
		}
		anuncios = append(anuncios, *a)
	}
	return anuncios, rows.Err()
}

// FecharAnuncio muda o status somente se o anúncio ainda estiver aberto.
func (r *Repository) FecharAnuncio(ctx context.Context, id uuid.UUID, para StatusAnuncio) error {
	const query = `
        UPDATE anuncios
        SET status = $2
        WHERE id = $1 AND status = 'ABERTO'
    `

	tag, err := r.pool.Exec(ctx, query, id, string(para))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAnuncioFechado
	}
	return nil
}

func (r *Repository) InsertOferta(ctx context.Context, o *Oferta) error {
	const query = `
        INSERT INTO ofertas (id, anuncio_id, empresa_id, valor, status)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := r.pool.Exec(ctx, query,
		o.ID,
		o.AnuncioID,
		o.EmpresaID,
		o.Valor,
		string(o.Status),
	)
	return err
}

func (r *Repository) GetOferta(ctx context.Context, id uuid.UUID) (*Oferta, error) {
	const query = `SELECT ` + colunasOferta + ` FROM ofertas WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	o, err := scanOferta(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) ListOfertas(ctx context.Context, anuncioID uuid.UUID) ([]Oferta, error) {
	const query = `
        SELECT ` + colunasOferta + `
        FROM ofertas
        WHERE anuncio_id = $1
        ORDER BY valor DESC, criado_em
    `

	rows, err := r.pool.Query(ctx, query, anuncioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ofertas []Oferta
	for rows.Next() {
		o, err := scanOferta(rows)
		if err != nil {
			return nil, err
		}
		ofertas = append(ofertas, *o)
	}
	return ofertas, rows.Err()
}

// ConcluirNegocio aceita a oferta vencedora e recusa as demais numa única
// transação: nenhum estado intermediário fica visível.
func (r *Repository) ConcluirNegocio(ctx context.Context, anuncioID, aceitaID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const aceitar = `
            UPDATE ofertas
            SET status = 'ACEITA', decidido_em = now()
            WHERE id = $1 AND status = 'PENDENTE'
        `
		tag, err := tx.Exec(ctx, aceitar, aceitaID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		const recusar = `
            UPDATE ofertas
            SET status = 'RECUSADA', decidido_em = now()
            WHERE anuncio_id = $1 AND id <> $2 AND status = 'PENDENTE'
        `
		_, err = tx.Exec(ctx, recusar, anuncioID, aceitaID)
		return err
	})
}

func scanAnuncio(row pgx.Row) (*Anuncio, error) {
	var a Anuncio
	var tipo, status string
	if err := row.Scan(
		&a.ID,
		&a.TituloID,
		&a.EmpresaID,
		&tipo,
		&a.PrecoPedido,
		&a.Desagio,
		&status,
		&a.CriadoEm,
	); err != nil {
		return nil, err
	}
	a.Tipo = TipoAnuncio(tipo)
	a.Status = StatusAnuncio(status)
	return &a, nil
}

func scanOferta(row pgx.Row) (*Oferta, error) {
	var o Oferta
	var status string
	if err := row.Scan(
		&o.ID,
		&o.AnuncioID,
		&o.EmpresaID,
		&o.Valor,
		&status,
		&o.CriadoEm,
		&o.DecididoEm,
	); err != nil {
		return nil, err
	}
	o.Status = StatusOferta(status)
	return &o, nil
}
