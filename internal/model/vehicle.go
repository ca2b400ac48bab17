package model

import "time"

// Vehicle はユーザーが所有する車両を表す。
// brand、modelは登録時に参照データAPIから解決した表示名を保持する。
type Vehicle struct {
	ID        string
	OwnerID   string
	Brand     string
	Model     string
	Plate     string
	Year      int
	Mileage   int
	Color     string
	VIN       string
	CreatedAt time.Time
}

// Label は画面表示用の車両名を返す。
func (v *Vehicle) Label() string {
	return v.Brand + " " + v.Model + " (" + v.Plate + ")"
}

// MaintenanceItem は車両ごとの次回メンテナンス予定を表す。永続化しない。
type MaintenanceItem struct {
	VehicleID    string
	VehicleLabel string
	Service      string
	DueAtMileage int
	RemainingKm  int
	Progress     int // 前回実施からの経過率（0-100）
}
