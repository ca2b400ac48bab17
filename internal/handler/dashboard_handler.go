package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/vehicle"
	"github.com/hitoshi/autotrackr/internal/view"
)

// pendingThresholdKm は残り距離がこれ未満のメンテナンスを「要対応」として数える。
const pendingThresholdKm = 1000

// VehicleServiceInterface は車両ハンドラーが必要とするサービスインターフェース。
type VehicleServiceInterface interface {
	AddVehicle(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error)
	Dashboard(ctx context.Context, ownerID string) (*vehicle.Dashboard, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service  VehicleServiceInterface
	renderer PageRenderer
	logger   *slog.Logger
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service VehicleServiceInterface, renderer PageRenderer, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{service: service, renderer: renderer, logger: logger}
}

// Show はユーザーの車両一覧と次回メンテナンス予定を表示する。
// 取得に失敗した場合も画面は表示し、バナーで通知する。
// GET /dashboard
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	page := view.Page{Title: "Dashboard"}
	dash, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.logger.Error("ダッシュボードの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		page.Error = "Não foi possível carregar seus veículos. Tente novamente."
		page.Data = view.DashboardData{}
		h.renderer.Render(w, r, http.StatusOK, view.PageDashboard, page)
		return
	}

	data := view.DashboardData{Vehicles: dash.Vehicles, Maintenance: dash.Maintenance}
	for _, item := range dash.Maintenance {
		if item.RemainingKm < pendingThresholdKm {
			data.Pending++
		}
	}
	page.Data = data
	h.renderer.Render(w, r, http.StatusOK, view.PageDashboard, page)
}
