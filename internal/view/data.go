package view

import (
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
)

// AuthFormData はログイン・登録画面の入力値。パスワードは再表示しない。
type AuthFormData struct {
	Email  string
	Name   string
	Phone  string
	Notice string // 情報バナー（リセット完了など）
}

// ResetPasswordData はパスワード再設定画面のデータ。
// Readyがfalseの場合はリンクが無効であることを表示する。
type ResetPasswordData struct {
	Ready bool
}

// DashboardData はダッシュボード画面のデータ。
type DashboardData struct {
	Vehicles    []*model.Vehicle
	Maintenance []model.MaintenanceItem
	Pending     int // 残り1000km未満の項目数
}

// VehicleForm は車両登録フォームの入力値。
type VehicleForm struct {
	Brand   string
	Model   string
	Year    string
	Plate   string
	Mileage string
	Color   string
	VIN     string
}

// VehicleFormData は車両登録画面のデータ。
// Manualの場合は参照データを使わず識別子を手入力させる。
type VehicleFormData struct {
	Brands []refdata.Option
	Manual bool
	Form   VehicleForm
}

// BrandsData はブランド管理画面のデータ。
type BrandsData struct {
	Brands []*model.Brand
}

// ModelsData はモデル管理画面のデータ。
type ModelsData struct {
	Models []*model.CarModel
	Brands []*model.Brand
}
