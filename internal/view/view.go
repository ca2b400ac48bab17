// Package view はサーバー描画の画面テンプレートとその描画処理を提供する。
// テンプレートと静的ファイルはバイナリに埋め込む。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 画面名。templates/<name>.html に対応する。
const (
	PageLogin           = "login"
	PageRegister        = "register"
	PageResetPassword   = "reset_password"
	PageDashboard       = "dashboard"
	PageVehicleNew      = "vehicle_new"
	PageAdminIndex      = "admin_index"
	PageAdminBrands     = "admin_brands"
	PageAdminModels     = "admin_models"
	PageLoading         = "loading"
	PageConnectionError = "connection_error"
	PageSystemError     = "system_error"
)

var pageNames = []string{
	PageLogin, PageRegister, PageResetPassword, PageDashboard, PageVehicleNew,
	PageAdminIndex, PageAdminBrands, PageAdminModels,
	PageLoading, PageConnectionError, PageSystemError,
}

// 表示テーマ。ThemeCookieNameのCookieに保存する。
const (
	ThemeLight      = "light"
	ThemeDark       = "dark"
	ThemeCookieName = "autotrackr_theme"
)

// Page はテンプレートに渡すデータ。
// Flashes、CSRFToken、Profile、IsAdmin、ThemeはRenderが設定する。
type Page struct {
	Title     string
	Error     string // フォーム上部に表示するエラーバナー
	Flashes   []middleware.Flash
	CSRFToken string
	Profile   *model.UserProfile
	IsAdmin   bool
	Theme     string
	Data      any
}

// LoadingData は初期化待ち画面のデータ。
type LoadingData struct {
	RefreshURL string
}

// ConnectionErrorData は接続障害画面のデータ。
// RefreshURLが空でない場合は画面を自動で再読み込みする。
type ConnectionErrorData struct {
	State      string
	Attempts   int
	RefreshURL string
}

// Renderer は埋め込みテンプレートで画面を描画する。
// middleware.GuardRendererを実装する。
type Renderer struct {
	pages   map[string]*template.Template
	cookies sessions.Store
	logger  *slog.Logger
}

var _ middleware.GuardRenderer = (*Renderer)(nil)

var funcs = template.FuncMap{
	"km":      FormatKm,
	"percent": clampPercent,
}

// New は全画面のテンプレートを解析してRendererを生成する。
// 各画面はlayout.htmlと組み合わせて個別に解析する。
func New(cookies sessions.Store, logger *slog.Logger) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages, cookies: cookies, logger: logger}, nil
}

// Render は画面を描画する。
// テンプレートの実行に失敗した場合は500の統一エラーを返す。
func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	t, ok := v.pages[name]
	if !ok {
		v.logger.Error("未定義の画面が指定されました", slog.String("page", name))
		middleware.WriteInternalServerError(w)
		return
	}

	page.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	page.Theme = ThemeFromRequest(r)
	if store := middleware.StoreFromContext(r.Context()); store != nil {
		snap := store.Snapshot()
		page.Profile = snap.Profile
		page.IsAdmin = snap.IsAdmin
	}
	if v.cookies != nil {
		page.Flashes = append(page.Flashes, middleware.PopFlashes(v.cookies, w, r)...)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		v.logger.Error("画面の描画に失敗しました",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderLoading は初期化中の待機画面を描画する。画面は一定間隔で再読み込みされる。
func (v *Renderer) RenderLoading(w http.ResponseWriter, r *http.Request) {
	target := "/dashboard"
	if r.Method == http.MethodGet {
		target = r.URL.RequestURI()
	}
	v.Render(w, r, http.StatusOK, PageLoading, Page{
		Title: "Carregando",
		Data:  LoadingData{RefreshURL: target},
	})
}

// RenderConnectionError は接続障害時の再試行画面を503で描画する。
// TimedOutの間はバックグラウンドの再試行が続くため、画面を自動で再読み込みする。
func (v *Renderer) RenderConnectionError(w http.ResponseWriter, r *http.Request, snap session.Snapshot) {
	data := ConnectionErrorData{State: snap.State.String(), Attempts: snap.Attempts}
	if snap.State == session.StateTimedOut && r.Method == http.MethodGet {
		data.RefreshURL = r.URL.RequestURI()
	}
	w.Header().Set("Retry-After", "5")
	v.Render(w, r, http.StatusServiceUnavailable, PageConnectionError, Page{
		Title: "Falha de conexão",
		Data:  data,
	})
}

// ThemeFromRequest はCookieに保存されたテーマを返す。未設定や不正な値はThemeLight。
func ThemeFromRequest(r *http.Request) string {
	if c, err := r.Cookie(ThemeCookieName); err == nil && c.Value == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// StaticHandler は埋め込み静的ファイルを/static/配下で配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// FormatKm は走行距離を3桁区切り（ピリオド）で表示する。例: 15000 → "15.000 km"
func FormatKm(n int) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + " km"
}

func clampPercent(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
