package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/view"
)

// CatalogServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListBrands(ctx context.Context) ([]*model.Brand, error)
	CreateBrand(ctx context.Context, name string) (*model.Brand, error)
	RenameBrand(ctx context.Context, id, name string) error
	DeleteBrand(ctx context.Context, id string) error
	ListModels(ctx context.Context) ([]*model.CarModel, error)
	CreateModel(ctx context.Context, brandID, name string) (*model.CarModel, error)
	UpdateModel(ctx context.Context, id, brandID, name string) error
	DeleteModel(ctx context.Context, id string) error
	ImportStandardBrands(ctx context.Context) (*model.ImportResult, error)
	ImportStandardModels(ctx context.Context) (*model.ImportResult, error)
	Stats(ctx context.Context) (*model.CatalogStats, error)
}

// AdminHandler は管理画面（カタログ管理）のHTTPハンドラー。
// 更新系はPOST後に一覧へリダイレクトし、結果をバナーで表示する。
type AdminHandler struct {
	service  CatalogServiceInterface
	cookies  sessions.Store
	renderer PageRenderer
	logger   *slog.Logger
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service CatalogServiceInterface, cookies sessions.Store, renderer PageRenderer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:  service,
		cookies:  cookies,
		renderer: renderer,
		logger:   logger,
	}
}

// Index は件数の一覧を表示する。
// GET /admin
func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	page := view.Page{Title: "Administração"}
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("管理ダッシュボードの件数取得に失敗しました", slog.String("error", err.Error()))
		page.Error = "Não foi possível carregar as estatísticas."
		stats = &model.CatalogStats{}
	}
	page.Data = stats
	h.renderer.Render(w, r, http.StatusOK, view.PageAdminIndex, page)
}

// Brands はブランド一覧を表示する。
// GET /admin/brands
func (h *AdminHandler) Brands(w http.ResponseWriter, r *http.Request) {
	page := view.Page{Title: "Marcas"}
	brands, err := h.service.ListBrands(r.Context())
	if err != nil {
		h.logger.Error("ブランド一覧の取得に失敗しました", slog.String("error", err.Error()))
		page.Error = "Não foi possível carregar as marcas."
	}
	page.Data = view.BrandsData{Brands: brands}
	h.renderer.Render(w, r, http.StatusOK, view.PageAdminBrands, page)
}

// CreateBrand はブランドを作成する。
// POST /admin/brands
func (h *AdminHandler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	_, err := h.service.CreateBrand(r.Context(), r.PostFormValue("name"))
	h.finish(w, r, "/admin/brands", err, "Marca criada com sucesso.")
}

// RenameBrand はブランド名を変更する。
// POST /admin/brands/{id}/rename
func (h *AdminHandler) RenameBrand(w http.ResponseWriter, r *http.Request) {
	err := h.service.RenameBrand(r.Context(), chi.URLParam(r, "id"), r.PostFormValue("name"))
	h.finish(w, r, "/admin/brands", err, "Marca atualizada com sucesso.")
}

// DeleteBrand はブランドを削除する。モデルが紐づくブランドは削除できない。
// POST /admin/brands/{id}/delete
func (h *AdminHandler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteBrand(r.Context(), chi.URLParam(r, "id"))
	h.finish(w, r, "/admin/brands", err, "Marca excluída com sucesso.")
}

// ImportBrands は標準ブランドを取り込む。
// POST /admin/brands/import
func (h *AdminHandler) ImportBrands(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ImportStandardBrands(r.Context())
	h.finishImport(w, r, "/admin/brands", "marca(s)", result, err)
}

// Models はモデル一覧をブランド名付きで表示する。
// GET /admin/models
func (h *AdminHandler) Models(w http.ResponseWriter, r *http.Request) {
	page := view.Page{Title: "Modelos"}
	models, err := h.service.ListModels(r.Context())
	if err != nil {
		h.logger.Error("モデル一覧の取得に失敗しました", slog.String("error", err.Error()))
		page.Error = "Não foi possível carregar os modelos."
	}
	brands, err := h.service.ListBrands(r.Context())
	if err != nil {
		h.logger.Error("ブランド一覧の取得に失敗しました", slog.String("error", err.Error()))
		page.Error = "Não foi possível carregar as marcas."
	}
	page.Data = view.ModelsData{Models: models, Brands: brands}
	h.renderer.Render(w, r, http.StatusOK, view.PageAdminModels, page)
}

// CreateModel はモデルを作成する。
// POST /admin/models
func (h *AdminHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	_, err := h.service.CreateModel(r.Context(), r.PostFormValue("brand_id"), r.PostFormValue("name"))
	h.finish(w, r, "/admin/models", err, "Modelo criado com sucesso.")
}

// UpdateModel はモデル名と所属ブランドを変更する。
// POST /admin/models/{id}/update
func (h *AdminHandler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	err := h.service.UpdateModel(r.Context(), chi.URLParam(r, "id"), r.PostFormValue("brand_id"), r.PostFormValue("name"))
	h.finish(w, r, "/admin/models", err, "Modelo atualizado com sucesso.")
}

// DeleteModel はモデルを削除する。
// POST /admin/models/{id}/delete
func (h *AdminHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteModel(r.Context(), chi.URLParam(r, "id"))
	h.finish(w, r, "/admin/models", err, "Modelo excluído com sucesso.")
}

// ImportModels は標準モデルを取り込む。
// POST /admin/models/import
func (h *AdminHandler) ImportModels(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ImportStandardModels(r.Context())
	h.finishImport(w, r, "/admin/models", "modelo(s)", result, err)
}

// finish は更新操作の結果をバナーに設定してlocationにリダイレクトする。
// APIErrorはその文言を、それ以外のエラーは一般的な文言を表示する。
func (h *AdminHandler) finish(w http.ResponseWriter, r *http.Request, location string, err error, success string) {
	if err == nil {
		redirectWithFlash(h.cookies, w, r, location, flashSuccess, success)
		return
	}
	if apiErr, ok := asAPIError(err); ok {
		redirectWithFlash(h.cookies, w, r, location, flashError, apiErr.Message)
		return
	}
	h.logger.Error("カタログの更新に失敗しました",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	redirectWithFlash(h.cookies, w, r, location, flashError, "Ocorreu um erro interno. Tente novamente.")
}

func (h *AdminHandler) finishImport(w http.ResponseWriter, r *http.Request, location, noun string, result *model.ImportResult, err error) {
	if err != nil {
		h.finish(w, r, location, err, "")
		return
	}
	if len(result.Failed) > 0 {
		msg := fmt.Sprintf("%d %s importado(s). Falha ao importar: %s", result.Inserted, noun, strings.Join(result.Failed, ", "))
		redirectWithFlash(h.cookies, w, r, location, flashError, msg)
		return
	}
	redirectWithFlash(h.cookies, w, r, location, flashSuccess, fmt.Sprintf("%d %s importado(s).", result.Inserted, noun))
}
