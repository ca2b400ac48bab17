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

// PostgresVehicleRepo はPostgreSQLを使用した車両リポジトリ。
type PostgresVehicleRepo struct {
	db *sql.DB
}

// NewPostgresVehicleRepo はPostgresVehicleRepoを生成する。
func NewPostgresVehicleRepo(db *sql.DB) *PostgresVehicleRepo {
	return &PostgresVehicleRepo{db: db}
}

// Create は車両を作成する。
func (r *PostgresVehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, owner_id, brand, model, plate, year, mileage, color, vin, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.OwnerID, v.Brand, v.Model, v.Plate, v.Year, v.Mileage,
		nullIfEmpty(v.Color), nullIfEmpty(v.VIN), v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", backend.FromDB(err))
	}
	return nil
}

// ListByOwner は所有者の車両を登録日時の新しい順に返す。
func (r *PostgresVehicleRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, brand, model, plate, year, mileage, color, vin, created_at
		 FROM vehicles
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", backend.FromDB(err))
	}
	defer rows.Close()

	var vehicles []*model.Vehicle
	for rows.Next() {
		v := &model.Vehicle{}
		var color, vin sql.NullString
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Brand, &v.Model, &v.Plate, &v.Year, &v.Mileage, &color, &vin, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", backend.FromDB(err))
		}
		v.Color = color.String
		v.VIN = vin.String
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vehicles: %w", backend.FromDB(err))
	}
	return vehicles, nil
}

// Count は全車両数を返す。
func (r *PostgresVehicleRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "vehicles")
}

// compile-time interface check
var _ VehicleRepository = (*PostgresVehicleRepo)(nil)
