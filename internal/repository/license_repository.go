package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/license-service/internal/domain"
)

// ErrDuplicateKey is returned when an insert collides with an existing
// license key string.
var ErrDuplicateKey = errors.New("license key already exists")

// ErrUsageConflict is returned when the conditional usage increment observes
// a concurrent write and affects no rows.
var ErrUsageConflict = errors.New("concurrent usage update")

const uniqueViolationCode = "23505"

// LicenseRepository encapsulates license key persistence.
type LicenseRepository interface {
	Create(ctx context.Context, license *domain.LicenseKey) error
	Update(ctx context.Context, license *domain.LicenseKey) error
	GetByID(ctx context.Context, id string) (*domain.LicenseKey, error)
	GetByKey(ctx context.Context, key string) (*domain.LicenseKey, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]domain.LicenseKey, error)
	IncrementUsage(ctx context.Context, id string, expectedCount int, nextStatus *domain.LicenseStatus, userEmail *string) error
	Delete(ctx context.Context, id string) error
}

type licenseRepository struct {
	pool *pgxpool.Pool
}

// NewLicenseRepository returns a Postgres-backed implementation.
func NewLicenseRepository(pool *pgxpool.Pool) LicenseRepository {
	return &licenseRepository{pool: pool}
}

func (r *licenseRepository) Create(ctx context.Context, license *domain.LicenseKey) error {
	const query = `
        INSERT INTO license_keys (key, product_name, seller_id, status, user_email, usage_count, max_usage, expires_at, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		license.Key,
		license.ProductName,
		license.SellerID,
		license.Status,
		license.UserEmail,
		license.UsageCount,
		license.MaxUsage,
		license.ExpiresAt,
		license.Notes,
	).Scan(&license.ID, &license.CreatedAt, &license.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *licenseRepository) Update(ctx context.Context, license *domain.LicenseKey) error {
	const query = `
        UPDATE license_keys SET status=$1, user_email=$2, usage_count=$3, max_usage=$4,
            expires_at=$5, notes=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		license.Status,
		license.UserEmail,
		license.UsageCount,
		license.MaxUsage,
		license.ExpiresAt,
		license.Notes,
		license.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *licenseRepository) GetByID(ctx context.Context, id string) (*domain.LicenseKey, error) {
	const query = selectColumns + ` WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *licenseRepository) GetByKey(ctx context.Context, key string) (*domain.LicenseKey, error) {
	const query = selectColumns + ` WHERE key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *licenseRepository) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]domain.LicenseKey, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = selectColumns + ` WHERE seller_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, sellerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLicenses(rows)
}

// IncrementUsage applies a compare-and-set increment: the row is updated only
// when usage_count still matches the value observed by the caller. The stored
// status flip for an exhausted quota rides in the same statement so no second
// writer can slip between increment and transition. Zero rows affected means
// a concurrent writer won the race.
func (r *licenseRepository) IncrementUsage(ctx context.Context, id string, expectedCount int, nextStatus *domain.LicenseStatus, userEmail *string) error {
	const query = `
        UPDATE license_keys
        SET usage_count = usage_count + 1,
            status = COALESCE($1, status),
            user_email = COALESCE(user_email, $2),
            updated_at = NOW()
        WHERE id = $3 AND usage_count = $4`
	cmd, err := r.pool.Exec(ctx, query, nextStatus, userEmail, id, expectedCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUsageConflict
	}
	return nil
}

func (r *licenseRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM license_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const selectColumns = `
        SELECT id, key, product_name, seller_id, status, user_email,
               usage_count, max_usage, expires_at, notes, created_at, updated_at
        FROM license_keys`

func (r *licenseRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.LicenseKey, error) {
	var license domain.LicenseKey
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&license.ID,
		&license.Key,
		&license.ProductName,
		&license.SellerID,
		&license.Status,
		&license.UserEmail,
		&license.UsageCount,
		&license.MaxUsage,
		&license.ExpiresAt,
		&license.Notes,
		&license.CreatedAt,
		&license.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &license, nil
}

func scanLicenses(rows pgx.Rows) ([]domain.LicenseKey, error) {
	var result []domain.LicenseKey
	for rows.Next() {
		var license domain.LicenseKey
		if err := rows.Scan(
			&license.ID,
			&license.Key,
			&license.ProductName,
			&license.SellerID,
			&license.Status,
			&license.UserEmail,
			&license.UsageCount,
			&license.MaxUsage,
			&license.ExpiresAt,
			&license.Notes,
			&license.CreatedAt,
			&license.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, license)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
