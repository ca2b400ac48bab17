package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/vehicle"
)

func TestDashboard_ShowsVehiclesAndMaintenance(t *testing.T) {
	env := newTestEnv(t, "user")
	var gotOwner string
	env.vehicles.dashboardFn = func(ctx context.Context, ownerID string) (*vehicle.Dashboard, error) {
		gotOwner = ownerID
		return &vehicle.Dashboard{
			Vehicles: []*model.Vehicle{
				{ID: "v1", Brand: "Ford", Model: "Ka", Plate: "ABC1D23", Year: 2019, Mileage: 15000, Color: "Prata"},
			},
			Maintenance: []model.MaintenanceItem{
				{VehicleID: "v1", VehicleLabel: "Ford Ka (ABC1D23)", Service: "Troca de óleo", DueAtMileage: 15800, RemainingKm: 800, Progress: 84},
				{VehicleID: "v1", VehicleLabel: "Ford Ka (ABC1D23)", Service: "Rodízio de pneus", DueAtMileage: 15500, RemainingKm: 500, Progress: 95},
			},
		}, nil
	}

	w := env.do(http.MethodGet, "/dashboard", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotOwner != "user-user" {
		t.Errorf("owner = %q, want user-user", gotOwner)
	}
	assertBodyContains(t, w,
		"ABC1D23",
		"15.000 km",
		"Troca de óleo",
		`<strong>2</strong>`, // 残り1000km未満は2件
		`action="/logout"`,
	)
}

func TestDashboard_ServiceErrorShowsBanner(t *testing.T) {
	env := newTestEnv(t, "user")
	env.vehicles.dashboardFn = func(ctx context.Context, ownerID string) (*vehicle.Dashboard, error) {
		return nil, errors.New("connection reset")
	}

	w := env.do(http.MethodGet, "/dashboard", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, "Não foi possível carregar seus veículos.")
}

func TestDashboard_AdminLinkOnlyForAdmins(t *testing.T) {
	user := newTestEnv(t, "user").do(http.MethodGet, "/dashboard", nil)
	admin := newTestEnv(t, "admin").do(http.MethodGet, "/dashboard", nil)

	if got := user.Body.String(); strings.Contains(got, `href="/admin"`) {
		t.Error("admin link should be hidden for regular users")
	}
	assertBodyContains(t, admin, `href="/admin"`)
}

func TestDashboard_Guard(t *testing.T) {
	t.Run("未認証", func(t *testing.T) {
		assertRedirect(t, newTestEnv(t, "").do(http.MethodGet, "/dashboard", nil), "/login")
	})

	t.Run("初期化中", func(t *testing.T) {
		w := newTestEnv(t, "blocked").do(http.MethodGet, "/dashboard", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		assertBodyContains(t, w, "Carregando seus dados...")
	})

	t.Run("接続障害", func(t *testing.T) {
		w := newTestEnv(t, "failed").do(http.MethodGet, "/dashboard", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("Retry-After should be set")
		}
		assertBodyContains(t, w, "Tentativas realizadas: 1", `action="/session/retry"`)
	})
}
