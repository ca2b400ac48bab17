package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/model"
)

// PostgresBrandRepo はPostgreSQLを使用したブランドリポジトリ。
type PostgresBrandRepo struct {
	db *sql.DB
}

// NewPostgresBrandRepo はPostgresBrandRepoを生成する。
func NewPostgresBrandRepo(db *sql.DB) *PostgresBrandRepo {
	return &PostgresBrandRepo{db: db}
}

// List は名前順に全ブランドを返す。
func (r *PostgresBrandRepo) List(ctx context.Context) ([]*model.Brand, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM brands ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", backend.FromDB(err))
	}
	defer rows.Close()

	var brands []*model.Brand
	for rows.Next() {
		b := &model.Brand{}
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", backend.FromDB(err))
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate brands: %w", backend.FromDB(err))
	}
	return brands, nil
}

// FindByID は指定IDのブランドを取得する。見つからない場合はnilを返す。
func (r *PostgresBrandRepo) FindByID(ctx context.Context, id string) (*model.Brand, error) {
	b := &model.Brand{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM brands WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find brand by ID: %w", backend.FromDB(err))
	}
	return b, nil
}

// Create はブランドを作成する。
func (r *PostgresBrandRepo) Create(ctx context.Context, brand *model.Brand) error {
	if brand.ID == "" {
		brand.ID = uuid.New().String()
	}
	now := time.Now()
	brand.CreatedAt = now
	brand.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO brands (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		brand.ID, brand.Name, brand.CreatedAt, brand.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert brand: %w", backend.FromDB(err))
	}
	return nil
}

// Rename はブランド名を変更する。
func (r *PostgresBrandRepo) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE brands SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("failed to rename brand: %w", backend.FromDB(err))
	}
	return requireAffected(result, "brand", id)
}

// Delete はブランドを削除する。
func (r *PostgresBrandRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete brand: %w", backend.FromDB(err))
	}
	return requireAffected(result, "brand", id)
}

// Count はブランド数を返す。
func (r *PostgresBrandRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "brands")
}

// requireAffected は更新対象が存在しない場合にKindNotFoundのエラーを返す。
func requireAffected(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &backend.Error{Kind: backend.KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
	}
	return nil
}

// compile-time interface check
var _ BrandRepository = (*PostgresBrandRepo)(nil)
