// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/session"
	"github.com/hitoshi/autotrackr/internal/view"
)

// PageRenderer は画面描画のインターフェース。*view.Rendererが実装する。
type PageRenderer interface {
	middleware.GuardRenderer
	Render(w http.ResponseWriter, r *http.Request, status int, name string, page view.Page)
}

// バナーの種別
const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

// requireStore はリクエストのStoreを返す。
// ブラウザセッションミドルウェアを通っていない場合は500を書き込みnilを返す。
func requireStore(w http.ResponseWriter, r *http.Request) *session.Store {
	store := middleware.StoreFromContext(r.Context())
	if store == nil {
		slog.Error("ブラウザセッションのStoreがコンテキストにありません", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
	}
	return store
}

// redirectWithFlash はバナーを保存して303でリダイレクトする。
func redirectWithFlash(cookies sessions.Store, w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if message != "" {
		middleware.AddFlash(cookies, w, r, kind, message)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// backendMessage はバックエンドが返した文言を返す。文言がない場合はfallback。
func backendMessage(err error, fallback string) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

// statusForBackendError はバックエンドエラーの種別に対応するHTTPステータスを返す。
func statusForBackendError(err error) int {
	switch backend.KindOf(err) {
	case backend.KindInvalidCredentials, backend.KindUnauthorized:
		return http.StatusUnauthorized
	case backend.KindAlreadyRegistered, backend.KindDuplicate:
		return http.StatusConflict
	case backend.KindValidation:
		return http.StatusBadRequest
	case backend.KindRateLimited:
		return http.StatusTooManyRequests
	case backend.KindNetwork, backend.KindTimeout, backend.KindServer:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// asAPIError はerrに含まれる*model.APIErrorを返す。
func asAPIError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// sameOriginPath はRefererが同一ホストの場合にそのパスを返す。
// 取得できない場合はfallbackを返す。
func sameOriginPath(r *http.Request, fallback string) string {
	ref := r.Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) {
		return fallback
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return fallback
	}
	return u.RequestURI()
}
