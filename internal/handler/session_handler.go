package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/view"
)

// SessionHandler は接続の再試行と緊急リセットのHTTPハンドラー。
type SessionHandler struct {
	registry middleware.StoreRegistry
	cookies  sessions.Store
	renderer PageRenderer
	logger   *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(registry middleware.StoreRegistry, cookies sessions.Store, renderer PageRenderer, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		cookies:  cookies,
		renderer: renderer,
		logger:   logger,
	}
}

// Retry はTimedOut/Failedの初期化をやり直し、元の画面に戻る。
// POST /session/retry
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	restarted := store.RetryConnection()
	h.logger.Info("接続の再試行を受け付けました", slog.Bool("restarted", restarted))

	target := sameOriginPath(r, "/dashboard")
	if target == "/session/retry" {
		target = "/dashboard"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SystemErrorPage は緊急リセット画面を表示する。
// GET /system-error
func (h *SessionHandler) SystemErrorPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, view.PageSystemError, view.Page{Title: "Recuperação do sistema"})
}

// Reset はブラウザセッションのStoreとローカルストレージを破棄し、Cookieを削除する。
// POST /system/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sid, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	h.registry.Reset(sid)
	middleware.ClearBrowserSession(h.cookies, w, r)
	h.logger.Warn("ブラウザセッションを緊急リセットしました", slog.String("store", shortID(sid)))

	http.Redirect(w, r, "/login?reset=1", http.StatusSeeOther)
}

// shortID はログ出力用に識別子の先頭8文字を返す。
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
