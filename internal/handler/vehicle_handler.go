package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/refdata"
	"github.com/hitoshi/autotrackr/internal/vehicle"
	"github.com/hitoshi/autotrackr/internal/view"
)

// BrandLister は車両登録フォームのブランド選択肢を提供する。
type BrandLister interface {
	Brands(ctx context.Context) ([]refdata.Option, error)
}

// VehicleHandler は車両登録のHTTPハンドラー。
type VehicleHandler struct {
	service   VehicleServiceInterface
	reference BrandLister
	cookies   sessions.Store
	renderer  PageRenderer
	logger    *slog.Logger
}

// NewVehicleHandler はVehicleHandlerを生成する。
func NewVehicleHandler(service VehicleServiceInterface, reference BrandLister, cookies sessions.Store, renderer PageRenderer, logger *slog.Logger) *VehicleHandler {
	return &VehicleHandler{
		service:   service,
		reference: reference,
		cookies:   cookies,
		renderer:  renderer,
		logger:    logger,
	}
}

// NewPage は車両登録フォームを表示する。
// ブランド一覧を取得できない場合は手入力フォームに切り替える。
// GET /vehicles/new
func (h *VehicleHandler) NewPage(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "", view.VehicleForm{}, false)
}

// Create は車両を登録してダッシュボードに戻る。
// POST /vehicles/new
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	form := view.VehicleForm{
		Brand:   r.PostFormValue("brand"),
		Model:   r.PostFormValue("model"),
		Year:    r.PostFormValue("year"),
		Plate:   r.PostFormValue("plate"),
		Mileage: r.PostFormValue("mileage"),
		Color:   r.PostFormValue("color"),
		VIN:     r.PostFormValue("vin"),
	}
	manual := r.PostFormValue("manual") == "1"

	v, err := h.service.AddVehicle(r.Context(), userID, vehicle.AddVehicleInput{
		BrandID: form.Brand,
		ModelID: form.Model,
		YearID:  form.Year,
		Plate:   form.Plate,
		Mileage: form.Mileage,
		Color:   form.Color,
		VIN:     form.VIN,
	})
	if err != nil {
		if apiErr, ok := asAPIError(err); ok {
			h.renderForm(w, r, middleware.StatusForAPIError(apiErr), apiErr.Message, form, manual)
			return
		}
		h.logger.Error("車両の登録に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.renderForm(w, r, http.StatusInternalServerError, "Erro ao cadastrar veículo. Por favor, tente novamente.", form, manual)
		return
	}

	h.logger.Info("車両を登録しました",
		slog.String("user_id", userID),
		slog.String("vehicle_id", v.ID),
	)
	redirectWithFlash(h.cookies, w, r, "/dashboard", flashSuccess, "Veículo cadastrado com sucesso!")
}

func (h *VehicleHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, errMsg string, form view.VehicleForm, manual bool) {
	data := view.VehicleFormData{Form: form, Manual: manual}
	if !manual {
		brands, err := h.reference.Brands(r.Context())
		if err != nil {
			h.logger.Warn("ブランド一覧の取得に失敗したため手入力フォームを表示します", slog.String("error", err.Error()))
			data.Manual = true
			if errMsg == "" {
				errMsg = "Erro ao buscar marcas. Digite os dados manualmente."
			}
		}
		data.Brands = brands
	}

	h.renderer.Render(w, r, status, view.PageVehicleNew, view.Page{
		Title: "Adicionar veículo",
		Error: errMsg,
		Data:  data,
	})
}
