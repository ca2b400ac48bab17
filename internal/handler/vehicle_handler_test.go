package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
	"github.com/hitoshi/autotrackr/internal/vehicle"
)

func vehicleForm() url.Values {
	return url.Values{
		"brand":   {"21"},
		"model":   {"5940"},
		"year":    {"2019-1"},
		"plate":   {"ABC1D23"},
		"mileage": {"15000"},
		"color":   {"Prata"},
		"vin":     {""},
	}
}

func TestVehicleNewPage_ListsBrands(t *testing.T) {
	env := newTestEnv(t, "user")

	w := env.do(http.MethodGet, "/vehicles/new", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, `<option value="21">Ford</option>`, `data-reference="/api/reference"`)
}

func TestVehicleNewPage_BrandsUnavailableFallsBackToManual(t *testing.T) {
	env := newTestEnv(t, "user")
	env.reference.brandsFn = func(ctx context.Context) ([]refdata.Option, error) {
		return nil, &refdata.StatusError{Endpoint: "brands", StatusCode: 503}
	}

	w := env.do(http.MethodGet, "/vehicles/new", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	assertBodyContains(t, w, "Erro ao buscar marcas. Digite os dados manualmente.", `name="manual" value="1"`)
}

func TestVehicleCreate_Success(t *testing.T) {
	env := newTestEnv(t, "user")
	var gotOwner string
	var gotInput vehicle.AddVehicleInput
	env.vehicles.addFn = func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
		gotOwner, gotInput = ownerID, in
		return &model.Vehicle{ID: "v1", OwnerID: ownerID}, nil
	}

	w := env.do(http.MethodPost, "/vehicles/new", vehicleForm())

	assertRedirect(t, w, "/dashboard")
	env.assertFlash(w, flashSuccess, "Veículo cadastrado com sucesso!")
	if gotOwner != "user-user" {
		t.Errorf("owner = %q", gotOwner)
	}
	want := vehicle.AddVehicleInput{
		BrandID: "21", ModelID: "5940", YearID: "2019-1",
		Plate: "ABC1D23", Mileage: "15000", Color: "Prata",
	}
	if gotInput != want {
		t.Errorf("input = %+v, want %+v", gotInput, want)
	}
}

func TestVehicleCreate_ValidationError(t *testing.T) {
	env := newTestEnv(t, "user")
	env.vehicles.addFn = func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
		return nil, model.NewInvalidVehicleError("placa", "obrigatória")
	}

	w := env.do(http.MethodPost, "/vehicles/new", vehicleForm())

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	assertBodyContains(t, w, "Campo inválido (placa): obrigatória", `value="ABC1D23"`)
}

func TestVehicleCreate_ManualModeIsPreserved(t *testing.T) {
	env := newTestEnv(t, "user")
	env.reference.brandsFn = func(ctx context.Context) ([]refdata.Option, error) {
		t.Error("brands should not be fetched in manual mode")
		return nil, nil
	}
	env.vehicles.addFn = func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
		return nil, model.NewInvalidVehicleError("ano", "inválido")
	}
	form := vehicleForm()
	form.Set("manual", "1")
	form.Set("brand", "Fiat")

	w := env.do(http.MethodPost, "/vehicles/new", form)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	assertBodyContains(t, w, `name="manual" value="1"`, `value="Fiat"`)
}

func TestVehicleCreate_InternalError(t *testing.T) {
	env := newTestEnv(t, "user")
	env.vehicles.addFn = func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
		return nil, errors.New("pq: connection refused")
	}

	w := env.do(http.MethodPost, "/vehicles/new", vehicleForm())

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	assertBodyContains(t, w, "Erro ao cadastrar veículo. Por favor, tente novamente.")
	if strings.Contains(w.Body.String(), "pq: connection refused") {
		t.Error("internal error detail should not be shown")
	}
}

func TestVehicleCreate_RequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t, "user")
	env.vehicles.addFn = func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
		t.Error("AddVehicle should not be called")
		return nil, nil
	}

	req := newFormRequest(http.MethodPost, "/vehicles/new", vehicleForm())
	req.Header.Del("Cookie")
	w := env.serve(req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
