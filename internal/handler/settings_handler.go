package handler

import (
	"net/http"

	"github.com/hitoshi/autotrackr/internal/view"
)

// themeCookieMaxAge はテーマCookieの有効期限（1年）。
const themeCookieMaxAge = 365 * 24 * 60 * 60

// SettingsHandler は表示設定のHTTPハンドラー。
type SettingsHandler struct {
	cookieSecure bool
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(cookieSecure bool) *SettingsHandler {
	return &SettingsHandler{cookieSecure: cookieSecure}
}

// Theme はライト・ダークのテーマを保存し、元の画面に戻る。
// POST /settings/theme
func (h *SettingsHandler) Theme(w http.ResponseWriter, r *http.Request) {
	theme := r.PostFormValue("theme")
	if theme != view.ThemeLight && theme != view.ThemeDark {
		http.Error(w, "tema inválido", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     view.ThemeCookieName,
		Value:    theme,
		Path:     "/",
		MaxAge:   themeCookieMaxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, sameOriginPath(r, "/dashboard"), http.StatusSeeOther)
}
