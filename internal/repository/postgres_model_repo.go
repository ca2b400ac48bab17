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

// PostgresModelRepo はPostgreSQLを使用したモデルリポジトリ。
type PostgresModelRepo struct {
	db *sql.DB
}

// NewPostgresModelRepo はPostgresModelRepoを生成する。
func NewPostgresModelRepo(db *sql.DB) *PostgresModelRepo {
	return &PostgresModelRepo{db: db}
}

// List はブランド名、モデル名の順に全モデルをブランド名付きで返す。
func (r *PostgresModelRepo) List(ctx context.Context) ([]*model.CarModel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.brand_id, b.name, m.name, m.created_at, m.updated_at
		 FROM models m
		 JOIN brands b ON b.id = m.brand_id
		 ORDER BY b.name, m.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", backend.FromDB(err))
	}
	defer rows.Close()
	return scanModels(rows)
}

// ListByBrand は指定ブランドのモデルを名前順に返す。
func (r *PostgresModelRepo) ListByBrand(ctx context.Context, brandID string) ([]*model.CarModel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.brand_id, b.name, m.name, m.created_at, m.updated_at
		 FROM models m
		 JOIN brands b ON b.id = m.brand_id
		 WHERE m.brand_id = $1
		 ORDER BY m.name`,
		brandID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list models by brand: %w", backend.FromDB(err))
	}
	defer rows.Close()
	return scanModels(rows)
}

func scanModels(rows *sql.Rows) ([]*model.CarModel, error) {
	var models []*model.CarModel
	for rows.Next() {
		m := &model.CarModel{}
		if err := rows.Scan(&m.ID, &m.BrandID, &m.BrandName, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", backend.FromDB(err))
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", backend.FromDB(err))
	}
	return models, nil
}

// Create はモデルを作成する。
func (r *PostgresModelRepo) Create(ctx context.Context, m *model.CarModel) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (id, brand_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.BrandID, m.Name, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", backend.FromDB(err))
	}
	return nil
}

// Update はモデルのブランドと名前を変更する。
func (r *PostgresModelRepo) Update(ctx context.Context, id, brandID, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE models SET brand_id = $2, name = $3, updated_at = now() WHERE id = $1`,
		id, brandID, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", backend.FromDB(err))
	}
	return requireAffected(result, "model", id)
}

// Delete はモデルを削除する。
func (r *PostgresModelRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", backend.FromDB(err))
	}
	return requireAffected(result, "model", id)
}

// Count はモデル数を返す。
func (r *PostgresModelRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "models")
}

// compile-time interface check
var _ ModelRepository = (*PostgresModelRepo)(nil)
