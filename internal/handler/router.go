package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Cookies     sessions.Store
	Registry    middleware.StoreRegistry
	Renderer    PageRenderer
	RateLimiter *middleware.RateLimiter
	CSRFConfig  middleware.CSRFConfig
	HSTS        bool

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthConfig AuthHandlerConfig

	// 車両・参照データ
	VehicleService   VehicleServiceInterface
	ReferenceService ReferenceServiceInterface

	// 管理
	CatalogService CatalogServiceInterface
}

// NewRouter は全画面のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → BrowserSession → Logging → RateLimit(General) → CSRF → Guard
//
// /health、/metrics、/static/* はブラウザセッションの外に配置する。
// 未定義のパスは/loginにリダイレクトする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	authHandler := NewAuthHandler(deps.Renderer, deps.Cookies, deps.AuthConfig, logger)
	sessionHandler := NewSessionHandler(deps.Registry, deps.Cookies, deps.Renderer, logger)
	dashboardHandler := NewDashboardHandler(deps.VehicleService, deps.Renderer, logger)
	vehicleHandler := NewVehicleHandler(deps.VehicleService, deps.ReferenceService, deps.Cookies, deps.Renderer, logger)
	referenceHandler := NewReferenceHandler(deps.ReferenceService, logger)
	adminHandler := NewAdminHandler(deps.CatalogService, deps.Cookies, deps.Renderer, logger)
	healthHandler := NewHealthHandler(deps.HealthChecker)
	settingsHandler := NewSettingsHandler(deps.CSRFConfig.CookieSecure)

	// --- ブラウザセッション不要のルート ---
	r.Get("/health", healthHandler.Check)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", view.StaticHandler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})

	// --- ブラウザセッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBrowserSessionMiddleware(deps.Cookies, deps.Registry))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		authForm := deps.RateLimiter.AuthFormMiddleware()

		// 未認証ユーザー向け
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(middleware.RequireGuest, deps.Renderer))

			r.Get("/login", authHandler.LoginPage)
			r.With(authForm).Post("/login", authHandler.Login)
			r.With(authForm).Post("/login/recover", authHandler.Recover)
			r.Get("/register", authHandler.RegisterPage)
			r.With(authForm).Post("/register", authHandler.Register)
			r.Get("/auth/oauth/{provider}", authHandler.OAuthStart)
		})

		// 認証状態を問わないルート
		r.Get("/auth/callback", authHandler.OAuthCallback)
		r.Get("/reset-password", authHandler.ResetPasswordPage)
		r.With(authForm).Post("/reset-password", authHandler.ResetPassword)
		r.Post("/session/retry", sessionHandler.Retry)
		r.Get("/system-error", sessionHandler.SystemErrorPage)
		r.Post("/system/reset", sessionHandler.Reset)
		r.Post("/settings/theme", settingsHandler.Theme)

		// 認証済みユーザー向け
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(middleware.RequireAuthenticated, deps.Renderer))

			r.Post("/logout", authHandler.Logout)
			r.Get("/dashboard", dashboardHandler.Show)
			r.Get("/vehicles/new", vehicleHandler.NewPage)
			r.Post("/vehicles/new", vehicleHandler.Create)

			// 連動選択用の参照データ（同一オリジンのみ）
			r.Route("/api/reference", func(r chi.Router) {
				r.Use(middleware.NewCORSMiddleware(deps.AuthConfig.BaseURL))
				r.Get("/brands", referenceHandler.Brands)
				r.Get("/brands/{brandID}/models", referenceHandler.Models)
				r.Get("/brands/{brandID}/models/{modelID}/years", referenceHandler.Years)
				r.Get("/brands/{brandID}/models/{modelID}/years/{yearID}", referenceHandler.VehicleInfo)
			})
		})

		// 管理者向け
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(middleware.RequireAdmin, deps.Renderer))

			r.Get("/", adminHandler.Index)

			r.Route("/brands", func(r chi.Router) {
				r.Get("/", adminHandler.Brands)
				r.Post("/", adminHandler.CreateBrand)
				r.Post("/import", adminHandler.ImportBrands)
				r.Post("/{id}/rename", adminHandler.RenameBrand)
				r.Post("/{id}/delete", adminHandler.DeleteBrand)
			})

			r.Route("/models", func(r chi.Router) {
				r.Get("/", adminHandler.Models)
				r.Post("/", adminHandler.CreateModel)
				r.Post("/import", adminHandler.ImportModels)
				r.Post("/{id}/update", adminHandler.UpdateModel)
				r.Post("/{id}/delete", adminHandler.DeleteModel)
			})
		})
	})

	return r
}
