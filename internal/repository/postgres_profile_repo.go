package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は認証ユーザーIDでプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.ProfileRow, error) {
	row := &model.ProfileRow{}
	var name, phone sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, role, name, phone, created_at, updated_at
		 FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&row.ID, &row.UserID, &row.Email, &row.Role, &name, &phone, &row.CreatedAt, &row.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by user ID: %w", backend.FromDB(err))
	}

	row.Name = name.String
	row.Phone = phone.String
	return row, nil
}

// InsertDefault はプロフィールを作成する。既に存在する場合は何もしない。
func (r *PostgresProfileRepo) InsertDefault(ctx context.Context, row *model.ProfileRow) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, user_id, email, role, name, phone)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO NOTHING`,
		row.ID, row.UserID, row.Email, row.Role, nullIfEmpty(row.Name), nullIfEmpty(row.Phone),
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", backend.FromDB(err))
	}
	return nil
}

// Upsert はプロフィールを作成し、既に存在する場合はemail、name、phoneを更新する。
// roleは既存の値を維持する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, row *model.ProfileRow) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, user_id, email, role, name, phone)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   name = EXCLUDED.name,
		   phone = EXCLUDED.phone,
		   updated_at = now()`,
		row.ID, row.UserID, row.Email, row.Role, nullIfEmpty(row.Name), nullIfEmpty(row.Phone),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", backend.FromDB(err))
	}
	return nil
}

// Count はプロフィール数を返す。
func (r *PostgresProfileRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "user_profiles")
}

// countRows はテーブルの行数を返す。tableは固定の識別子のみを渡すこと。
func countRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, backend.FromDB(err))
	}
	return n, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
