package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
)

// ReferenceServiceInterface は参照データハンドラーが必要とするインターフェース。
// *refdata.Clientが実装する。
type ReferenceServiceInterface interface {
	BrandLister
	Models(ctx context.Context, brandID string) ([]refdata.Option, error)
	Years(ctx context.Context, brandID, modelID string) ([]refdata.Option, error)
	VehicleInfo(ctx context.Context, brandID, modelID, yearID string) (*refdata.VehicleInfo, error)
}

// ReferenceHandler は車両登録フォームの連動選択用に参照データをJSONで中継する。
type ReferenceHandler struct {
	service ReferenceServiceInterface
	logger  *slog.Logger
}

// NewReferenceHandler はReferenceHandlerを生成する。
func NewReferenceHandler(service ReferenceServiceInterface, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{service: service, logger: logger}
}

// Brands はブランド一覧を返す。
// GET /api/reference/brands
func (h *ReferenceHandler) Brands(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Brands(r.Context())
	h.respond(w, "brands", opts, err)
}

// Models はブランドのモデル一覧を返す。
// GET /api/reference/brands/{brandID}/models
func (h *ReferenceHandler) Models(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Models(r.Context(), chi.URLParam(r, "brandID"))
	h.respond(w, "models", opts, err)
}

// Years はモデルの年式一覧を返す。
// GET /api/reference/brands/{brandID}/models/{modelID}/years
func (h *ReferenceHandler) Years(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Years(r.Context(), chi.URLParam(r, "brandID"), chi.URLParam(r, "modelID"))
	h.respond(w, "years", opts, err)
}

// VehicleInfo は年式指定の車両詳細（FIPE価格）を返す。
// GET /api/reference/brands/{brandID}/models/{modelID}/years/{yearID}
func (h *ReferenceHandler) VehicleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.VehicleInfo(r.Context(),
		chi.URLParam(r, "brandID"), chi.URLParam(r, "modelID"), chi.URLParam(r, "yearID"))
	h.respond(w, "vehicle_info", info, err)
}

func (h *ReferenceHandler) respond(w http.ResponseWriter, endpoint string, body any, err error) {
	if err != nil {
		h.logger.Warn("参照データの中継に失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		status, apiErr := referenceError(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

// referenceError は参照データAPIの失敗をHTTPステータスと統一エラーに変換する。
// 上流の404は存在しない識別子の指定として扱う。
func referenceError(err error) (int, *model.APIError) {
	var se *refdata.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, model.NewInvalidRequestError("Item não encontrado na tabela FIPE.")
	case errors.As(err, &se):
		return http.StatusBadGateway, model.NewReferenceDataError("status " + strconv.Itoa(se.StatusCode))
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, model.NewReferenceDataError("tempo esgotado")
	}
	return http.StatusBadGateway, model.NewReferenceDataError("serviço indisponível")
}
