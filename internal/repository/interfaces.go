// Package repository はデータ永続化のインターフェースを定義する。
// 実装はホスト型バックエンドのPostgreSQLに対してequalityフィルタ付きのselect/insert/update/deleteを発行する。
// エラーはbackend.FromDBで種別付きに変換して返す。
package repository

import (
	"context"

	"github.com/hitoshi/autotrackr/internal/model"
)

// ProfileRepository はuser_profilesテーブルの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は認証ユーザーIDでプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.ProfileRow, error)

	// InsertDefault はプロフィールを作成する。既に存在する場合は何もしない。
	InsertDefault(ctx context.Context, row *model.ProfileRow) error

	// Upsert はプロフィールを作成し、既に存在する場合はemail、name、phoneを更新する。
	Upsert(ctx context.Context, row *model.ProfileRow) error

	// Count はプロフィール数を返す。
	Count(ctx context.Context) (int, error)
}

// BrandRepository はbrandsテーブルの永続化インターフェース。
type BrandRepository interface {
	// List は名前順に全ブランドを返す。
	List(ctx context.Context) ([]*model.Brand, error)

	// FindByID は指定IDのブランドを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Brand, error)

	// Create はブランドを作成する。名前が重複する場合はKindDuplicateのエラーを返す。
	Create(ctx context.Context, brand *model.Brand) error

	// Rename はブランド名を変更する。
	Rename(ctx context.Context, id, name string) error

	// Delete はブランドを削除する。モデルが参照している場合はKindForeignKeyのエラーを返す。
	Delete(ctx context.Context, id string) error

	// Count はブランド数を返す。
	Count(ctx context.Context) (int, error)
}

// ModelRepository はmodelsテーブルの永続化インターフェース。
type ModelRepository interface {
	// List はブランド名、モデル名の順に全モデルをブランド名付きで返す。
	List(ctx context.Context) ([]*model.CarModel, error)

	// ListByBrand は指定ブランドのモデルを名前順に返す。
	ListByBrand(ctx context.Context, brandID string) ([]*model.CarModel, error)

	// Create はモデルを作成する。同一ブランド内で名前が重複する場合はKindDuplicateのエラーを返す。
	Create(ctx context.Context, m *model.CarModel) error

	// Update はモデルのブランドと名前を変更する。
	Update(ctx context.Context, id, brandID, name string) error

	// Delete はモデルを削除する。
	Delete(ctx context.Context, id string) error

	// Count はモデル数を返す。
	Count(ctx context.Context) (int, error)
}

// VehicleRepository はvehiclesテーブルの永続化インターフェース。
type VehicleRepository interface {
	// Create は車両を作成する。
	Create(ctx context.Context, v *model.Vehicle) error

	// ListByOwner は所有者の車両を登録日時の新しい順に返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Vehicle, error)

	// Count は全車両数を返す。
	Count(ctx context.Context) (int, error)
}
