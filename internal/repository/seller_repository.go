package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/license-service/internal/domain"
)

// SellerRepository defines persistence access for seller accounts.
type SellerRepository interface {
	Create(ctx context.Context, seller *domain.Seller) error
	Update(ctx context.Context, seller *domain.Seller) error
	GetByID(ctx context.Context, id string) (*domain.Seller, error)
	GetByEmail(ctx context.Context, email string) (*domain.Seller, error)
}

type sellerRepository struct {
	pool *pgxpool.Pool
}

// NewSellerRepository returns a Postgres-backed implementation.
func NewSellerRepository(pool *pgxpool.Pool) SellerRepository {
	return &sellerRepository{pool: pool}
}

func (r *sellerRepository) Create(ctx context.Context, seller *domain.Seller) error {
	const query = `
        INSERT INTO sellers (email, password_hash, status)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		seller.Email,
		seller.PasswordHash,
		seller.Status,
	).Scan(&seller.ID, &seller.CreatedAt, &seller.UpdatedAt)
}

func (r *sellerRepository) Update(ctx context.Context, seller *domain.Seller) error {
	const query = `
        UPDATE sellers SET email=$1, password_hash=$2, status=$3, updated_at=NOW()
        WHERE id=$4`

	cmd, err := r.pool.Exec(ctx, query,
		seller.Email,
		seller.PasswordHash,
		seller.Status,
		seller.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sellerRepository) GetByID(ctx context.Context, id string) (*domain.Seller, error) {
	const query = `
        SELECT id, email, password_hash, status, created_at, updated_at
        FROM sellers WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *sellerRepository) GetByEmail(ctx context.Context, email string) (*domain.Seller, error) {
	const query = `
        SELECT id, email, password_hash, status, created_at, updated_at
        FROM sellers WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *sellerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Seller, error) {
	var seller domain.Seller
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&seller.ID,
		&seller.Email,
		&seller.PasswordHash,
		&seller.Status,
		&seller.CreatedAt,
		&seller.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &seller, nil
}
