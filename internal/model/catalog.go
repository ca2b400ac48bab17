package model

import "time"

// Brand は管理者が管理するブランドカタログの1行。
type Brand struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CarModel はブランドに属するモデルカタログの1行。
type CarModel struct {
	ID        string
	BrandID   string
	BrandName string // 一覧表示時のみJOINで設定される
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CatalogStats は管理ダッシュボードに表示する件数。
type CatalogStats struct {
	Brands   int
	Models   int
	Vehicles int
	Profiles int
}

// ImportResult は標準データ取り込みの結果。
type ImportResult struct {
	Inserted int
	Failed   []string // 取り込みに失敗したブランド名
}
