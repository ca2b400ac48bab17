package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/catalog"
	"github.com/hitoshi/autotrackr/internal/config"
	"github.com/hitoshi/autotrackr/internal/database"
	"github.com/hitoshi/autotrackr/internal/handler"
	"github.com/hitoshi/autotrackr/internal/logger"
	"github.com/hitoshi/autotrackr/internal/metrics"
	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
	"github.com/hitoshi/autotrackr/internal/repository"
	"github.com/hitoshi/autotrackr/internal/security"
	"github.com/hitoshi/autotrackr/internal/session"
	"github.com/hitoshi/autotrackr/internal/vehicle"
	"github.com/hitoshi/autotrackr/internal/view"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込み、LOG_LEVELを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level.Set(logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// server はserveモードで起動する構成要素一式。
type server struct {
	handler  http.Handler
	registry *session.Registry
	limiter  *middleware.RateLimiter
}

// close はバックグラウンドで動くgoroutineを止める。
func (s *server) close() {
	s.registry.Close()
	s.limiter.Stop()
}

// newServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// dbへの接続確認は行わない。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry)

	// 2. リポジトリの初期化
	brandRepo := repository.NewPostgresBrandRepo(db)
	modelRepo := repository.NewPostgresModelRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	vehicleRepo := repository.NewPostgresVehicleRepo(db)

	sanitizer := security.NewTextSanitizer()

	// 3. 外部サービスのクライアント
	backendHTTP := backend.NewHTTPClient(cfg.BackendTimeout, cfg.BackendMaxRetries, func(req *http.Request, attempt int) {
		collector.RecordBackendRetry()
		log.Warn("バックエンドへのリクエストを再送します",
			slog.String("path", req.URL.Path),
			slog.Int("attempt", attempt),
		)
	})
	authClient := backend.NewAuthClient(backend.AuthConfig{
		BaseURL:    cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		HTTPClient: backendHTTP,
	})
	reference := refdata.NewClient(refdata.Config{
		BaseURL:    cfg.FipeBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.FipeTimeout},
		RateLimit:  cfg.FipeRateLimit,
		Metrics:    collector,
	}, log)

	// 4. ブラウザセッションごとのストア
	registryCfg := session.DefaultRegistryConfig()
	registryCfg.IdleTTL = cfg.StoreIdleTTL
	// ストレージはブラウザセッションCookieと同じ期間保持する
	registryCfg.StorageTTL = time.Duration(cfg.SessionMaxAge) * time.Second
	registryCfg.SweepInterval = cfg.StoreSweepInterval
	registryCfg.Store.InitTimeout = cfg.SessionInitTimeout
	registryCfg.Store.InitMaxRetries = cfg.SessionInitMaxRetries
	registry := session.NewRegistry(session.RegistryDeps{
		Auth:      authClient,
		Profiles:  profileRepo,
		Sanitizer: sanitizer,
		Logger:    log,
		Metrics:   collector,
	}, registryCfg)

	// 5. ドメインサービス
	catalogService := catalog.NewService(brandRepo, modelRepo, vehicleRepo, profileRepo, sanitizer, log)
	vehicleService := vehicle.NewService(vehicleRepo, reference, sanitizer, log)

	// 6. 画面とミドルウェア
	cookies := middleware.NewCookieStore([]byte(cfg.SessionSecret), middleware.BrowserSessionConfig{
		CookieSecure: cfg.CookieSecure,
		MaxAge:       cfg.SessionMaxAge,
	})
	renderer, err := view.New(cookies, log)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// configのレート制限はreq/min単位なのでreq/secに変換する
	limiterCfg := middleware.DefaultRateLimiterConfig()
	limiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	limiterCfg.GeneralBurst = cfg.RateLimitGeneral
	limiterCfg.AuthFormRate = rate.Limit(float64(cfg.RateLimitAuthForm) / 60.0)
	limiterCfg.AuthFormBurst = cfg.RateLimitAuthForm
	limiter := middleware.NewRateLimiter(limiterCfg)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = metrics.Handler(promRegistry)
	}

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      log,
		Cookies:     cookies,
		Registry:    registry,
		Renderer:    renderer,
		RateLimiter: limiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HSTS: cfg.CookieSecure,

		HealthChecker:  db,
		MetricsHandler: metricsHandler,

		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:   cfg.BaseURL,
			Providers: cfg.OAuthProviders,
		},

		VehicleService:   vehicleService,
		ReferenceService: reference,
		CatalogService:   catalogService,
	})

	return &server{handler: router, registry: registry, limiter: limiter}, nil
}

// runServe はWebサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := newServer(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.registry.Run(ctx)

	// 3. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Webサーバーを起動します", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSeed は標準のブランドとモデルをカタログに取り込む。
// 既存の名前はスキップするため、繰り返し実行できる。
func runSeed(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service := catalog.NewService(
		repository.NewPostgresBrandRepo(db),
		repository.NewPostgresModelRepo(db),
		repository.NewPostgresVehicleRepo(db),
		repository.NewPostgresProfileRepo(db),
		security.NewTextSanitizer(),
		slog.Default(),
	)
	return seedCatalog(context.Background(), service)
}

// catalogImporter は標準カタログの取り込み操作。
type catalogImporter interface {
	ImportStandardBrands(ctx context.Context) (*model.ImportResult, error)
	ImportStandardModels(ctx context.Context) (*model.ImportResult, error)
}

// seedCatalog はブランド、モデルの順に取り込む。
// モデルは既存のブランドにのみ紐づくため、順序を入れ替えてはならない。
func seedCatalog(ctx context.Context, importer catalogImporter) error {
	brands, err := importer.ImportStandardBrands(ctx)
	if err != nil {
		return fmt.Errorf("brand import failed: %w", err)
	}
	models, err := importer.ImportStandardModels(ctx)
	if err != nil {
		return fmt.Errorf("model import failed: %w", err)
	}

	slog.Info("標準カタログを取り込みました",
		slog.Int("brands_inserted", brands.Inserted),
		slog.Int("models_inserted", models.Inserted),
	)

	failed := append(append([]string{}, brands.Failed...), models.Failed...)
	if len(failed) > 0 {
		return fmt.Errorf("catalog import incomplete: %s", strings.Join(failed, ", "))
	}
	return nil
}

// openDatabase はコネクションプールを設定してDBに接続する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// healthcheckPort はPORT、SERVER_PORTの順に待ち受けポートを決める。
func healthcheckPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
