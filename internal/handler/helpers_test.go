package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/middleware"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/refdata"
	"github.com/hitoshi/autotrackr/internal/session"
	"github.com/hitoshi/autotrackr/internal/vehicle"
	"github.com/hitoshi/autotrackr/internal/view"
)

const (
	testCSRFToken   = "test-csrf-token"
	csrfCookie      = "csrf_token"
	testBaseURL     = "http://localhost:8080"
	testSessionName = "autotrackr_session"
)

// --- 認証クライアントのモック ---

// fakeAuth はテスト用の認証クライアント。
// サインイン系の操作が成功した場合はSIGNED_INを同期的に通知する。
type fakeAuth struct {
	mu            sync.Mutex
	user          *model.AuthUser
	getSessionErr error
	block         bool
	listener      backend.AuthStateListener

	signInFn   func(email, password string) (*model.AuthUser, error)
	signUpFn   func(email, password string, data map[string]string) (*backend.SignUpResult, error)
	oauthFn    func(provider, redirectTo string) (string, error)
	exchangeFn func(code string) (*model.AuthUser, error)
	resetFn    func(email, redirectTo string) error
	updateFn   func(attrs backend.UserAttributes) error
	signOutErr error
}

func (a *fakeAuth) setSessionErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getSessionErr = err
}

func (a *fakeAuth) GetSession(ctx context.Context) (*model.Session, error) {
	a.mu.Lock()
	block, err, user := a.block, a.getSessionErr, a.user
	a.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return &model.Session{AccessToken: "token", User: *user}, nil
}

func (a *fakeAuth) GetUser(ctx context.Context) (*model.AuthUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, nil
}

func (a *fakeAuth) OnAuthStateChange(l backend.AuthStateListener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = l
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.listener = nil
	}
}

// signedIn はユーザーを保存してSIGNED_INを通知する。
func (a *fakeAuth) signedIn(user *model.AuthUser) *model.Session {
	sess := &model.Session{AccessToken: "token", User: *user}
	a.mu.Lock()
	a.user = user
	l := a.listener
	a.mu.Unlock()
	if l != nil {
		l(backend.EventSignedIn, sess)
	}
	return sess
}

func (a *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if a.signInFn == nil {
		return nil, errors.New("signInFn not set")
	}
	user, err := a.signInFn(email, password)
	if err != nil {
		return nil, err
	}
	return a.signedIn(user), nil
}

func (a *fakeAuth) SignUp(ctx context.Context, email, password string, data map[string]string) (*backend.SignUpResult, error) {
	if a.signUpFn == nil {
		return nil, errors.New("signUpFn not set")
	}
	res, err := a.signUpFn(email, password, data)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		u := res.Session.User
		a.signedIn(&u)
	}
	return res, nil
}

func (a *fakeAuth) SignInWithOAuth(provider, redirectTo string) (string, error) {
	if a.oauthFn == nil {
		return "", errors.New("oauthFn not set")
	}
	return a.oauthFn(provider, redirectTo)
}

func (a *fakeAuth) ExchangeCodeForSession(ctx context.Context, authCode string) (*model.Session, error) {
	if a.exchangeFn == nil {
		return nil, errors.New("exchangeFn not set")
	}
	user, err := a.exchangeFn(authCode)
	if err != nil {
		return nil, err
	}
	return a.signedIn(user), nil
}

func (a *fakeAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	if a.resetFn == nil {
		return nil
	}
	return a.resetFn(email, redirectTo)
}

func (a *fakeAuth) UpdateUser(ctx context.Context, attrs backend.UserAttributes) (*model.AuthUser, error) {
	if a.updateFn != nil {
		if err := a.updateFn(attrs); err != nil {
			return nil, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	if a.signOutErr != nil {
		return a.signOutErr
	}
	a.mu.Lock()
	a.user = nil
	l := a.listener
	a.mu.Unlock()
	if l != nil {
		l(backend.EventSignedOut, nil)
	}
	return nil
}

// --- プロフィールリポジトリのモック ---

type stubProfileRepo struct {
	mu      sync.Mutex
	role    string
	upserts []*model.ProfileRow
}

func (r *stubProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.ProfileRow, error) {
	return &model.ProfileRow{UserID: userID, Email: userID + "@example.com", Role: r.role}, nil
}
func (r *stubProfileRepo) InsertDefault(ctx context.Context, row *model.ProfileRow) error { return nil }
func (r *stubProfileRepo) Count(ctx context.Context) (int, error)                         { return 0, nil }

func (r *stubProfileRepo) Upsert(ctx context.Context, row *model.ProfileRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, row)
	return nil
}

// --- サービスのモック ---

type mockVehicleService struct {
	addFn       func(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error)
	dashboardFn func(ctx context.Context, ownerID string) (*vehicle.Dashboard, error)
}

func (m *mockVehicleService) AddVehicle(ctx context.Context, ownerID string, in vehicle.AddVehicleInput) (*model.Vehicle, error) {
	if m.addFn != nil {
		return m.addFn(ctx, ownerID, in)
	}
	return &model.Vehicle{ID: "vehicle-1", OwnerID: ownerID}, nil
}

func (m *mockVehicleService) Dashboard(ctx context.Context, ownerID string) (*vehicle.Dashboard, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx, ownerID)
	}
	return &vehicle.Dashboard{}, nil
}

type mockReferenceService struct {
	brandsFn func(ctx context.Context) ([]refdata.Option, error)
	modelsFn func(ctx context.Context, brandID string) ([]refdata.Option, error)
	yearsFn  func(ctx context.Context, brandID, modelID string) ([]refdata.Option, error)
	infoFn   func(ctx context.Context, brandID, modelID, yearID string) (*refdata.VehicleInfo, error)
}

func (m *mockReferenceService) Brands(ctx context.Context) ([]refdata.Option, error) {
	if m.brandsFn != nil {
		return m.brandsFn(ctx)
	}
	return []refdata.Option{{ID: "21", Label: "Ford"}, {ID: "59", Label: "VW - VolksWagen"}}, nil
}

func (m *mockReferenceService) Models(ctx context.Context, brandID string) ([]refdata.Option, error) {
	if m.modelsFn != nil {
		return m.modelsFn(ctx, brandID)
	}
	return nil, nil
}

func (m *mockReferenceService) Years(ctx context.Context, brandID, modelID string) ([]refdata.Option, error) {
	if m.yearsFn != nil {
		return m.yearsFn(ctx, brandID, modelID)
	}
	return nil, nil
}

func (m *mockReferenceService) VehicleInfo(ctx context.Context, brandID, modelID, yearID string) (*refdata.VehicleInfo, error) {
	if m.infoFn != nil {
		return m.infoFn(ctx, brandID, modelID, yearID)
	}
	return &refdata.VehicleInfo{}, nil
}

type mockCatalogService struct {
	listBrandsFn   func(ctx context.Context) ([]*model.Brand, error)
	createBrandFn  func(ctx context.Context, name string) (*model.Brand, error)
	renameBrandFn  func(ctx context.Context, id, name string) error
	deleteBrandFn  func(ctx context.Context, id string) error
	listModelsFn   func(ctx context.Context) ([]*model.CarModel, error)
	createModelFn  func(ctx context.Context, brandID, name string) (*model.CarModel, error)
	updateModelFn  func(ctx context.Context, id, brandID, name string) error
	deleteModelFn  func(ctx context.Context, id string) error
	importBrandsFn func(ctx context.Context) (*model.ImportResult, error)
	importModelsFn func(ctx context.Context) (*model.ImportResult, error)
	statsFn        func(ctx context.Context) (*model.CatalogStats, error)
}

func (m *mockCatalogService) ListBrands(ctx context.Context) ([]*model.Brand, error) {
	if m.listBrandsFn != nil {
		return m.listBrandsFn(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) CreateBrand(ctx context.Context, name string) (*model.Brand, error) {
	if m.createBrandFn != nil {
		return m.createBrandFn(ctx, name)
	}
	return &model.Brand{ID: "brand-1", Name: name}, nil
}

func (m *mockCatalogService) RenameBrand(ctx context.Context, id, name string) error {
	if m.renameBrandFn != nil {
		return m.renameBrandFn(ctx, id, name)
	}
	return nil
}

func (m *mockCatalogService) DeleteBrand(ctx context.Context, id string) error {
	if m.deleteBrandFn != nil {
		return m.deleteBrandFn(ctx, id)
	}
	return nil
}

func (m *mockCatalogService) ListModels(ctx context.Context) ([]*model.CarModel, error) {
	if m.listModelsFn != nil {
		return m.listModelsFn(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) CreateModel(ctx context.Context, brandID, name string) (*model.CarModel, error) {
	if m.createModelFn != nil {
		return m.createModelFn(ctx, brandID, name)
	}
	return &model.CarModel{ID: "model-1", BrandID: brandID, Name: name}, nil
}

func (m *mockCatalogService) UpdateModel(ctx context.Context, id, brandID, name string) error {
	if m.updateModelFn != nil {
		return m.updateModelFn(ctx, id, brandID, name)
	}
	return nil
}

func (m *mockCatalogService) DeleteModel(ctx context.Context, id string) error {
	if m.deleteModelFn != nil {
		return m.deleteModelFn(ctx, id)
	}
	return nil
}

func (m *mockCatalogService) ImportStandardBrands(ctx context.Context) (*model.ImportResult, error) {
	if m.importBrandsFn != nil {
		return m.importBrandsFn(ctx)
	}
	return &model.ImportResult{}, nil
}

func (m *mockCatalogService) ImportStandardModels(ctx context.Context) (*model.ImportResult, error) {
	if m.importModelsFn != nil {
		return m.importModelsFn(ctx)
	}
	return &model.ImportResult{}, nil
}

func (m *mockCatalogService) Stats(ctx context.Context) (*model.CatalogStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.CatalogStats{}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- ブラウザセッションのモック ---

// fakeRegistry はどのsidに対しても同じStoreを返す。
type fakeRegistry struct {
	mu     sync.Mutex
	store  *session.Store
	gets   []string
	resets []string
}

func (r *fakeRegistry) Get(sid string) *session.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets = append(r.gets, sid)
	return r.store
}

func (r *fakeRegistry) Reset(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, sid)
}

func (r *fakeRegistry) lastSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.gets) == 0 {
		return ""
	}
	return r.gets[len(r.gets)-1]
}

// --- テスト環境 ---

// syncBuffer はStoreのゴルーチンとハンドラーが同時に書き込むログの受け皿。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv は本番と同じミドルウェアチェーンを持つルーターと、そのモック群。
type testEnv struct {
	t         *testing.T
	auth      *fakeAuth
	profiles  *stubProfileRepo
	store     *session.Store
	registry  *fakeRegistry
	cookies   *sessions.CookieStore
	vehicles  *mockVehicleService
	reference *mockReferenceService
	catalog   *mockCatalogService
	health    *mockHealthChecker
	metrics   http.Handler
	logs      *syncBuffer
	router    http.Handler
}

// newTestEnv はroleに応じた状態のStoreを持つテスト環境を返す。
//
//	""        未認証
//	"user"    一般ユーザーとして認証済み
//	"admin"   管理者として認証済み
//	"blocked" 初期化中のまま
//	"failed"  接続障害で初期化失敗
func newTestEnv(t *testing.T, role string) *testEnv {
	t.Helper()

	env := &testEnv{
		t:         t,
		auth:      &fakeAuth{},
		profiles:  &stubProfileRepo{role: role},
		vehicles:  &mockVehicleService{},
		reference: &mockReferenceService{},
		catalog:   &mockCatalogService{},
		health:    &mockHealthChecker{},
		logs:      &syncBuffer{},
	}

	want := session.StateUnauthenticated
	switch role {
	case "":
	case "blocked":
		env.auth.block = true
		want = session.StateInitializing
	case "failed":
		env.auth.getSessionErr = &backend.Error{Kind: backend.KindNetwork, Err: errors.New("connection refused")}
		want = session.StateFailed
	default:
		env.auth.user = &model.AuthUser{ID: "user-" + role, Email: role + "@example.com"}
		want = session.StateAuthenticated
	}

	logger := slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	env.store = session.NewStore(session.Deps{
		Auth:     env.auth,
		Profiles: env.profiles,
		Storage:  localstore.NewMemory(0),
		Logger:   logger,
	}, session.Config{
		InitTimeout:          time.Minute,
		InitMaxRetries:       0,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	})
	t.Cleanup(env.store.Close)
	env.store.Start()
	env.waitState(want)

	env.registry = &fakeRegistry{store: env.store}
	env.cookies = middleware.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), middleware.BrowserSessionConfig{MaxAge: 3600})

	renderer, err := view.New(env.cookies, logger)
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	limiter := newLimiter(t)

	env.metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	env.router = NewRouter(&RouterDeps{
		Logger:      logger,
		Cookies:     env.cookies,
		Registry:    env.registry,
		Renderer:    renderer,
		RateLimiter: limiter,
		AuthConfig: AuthHandlerConfig{
			BaseURL:   testBaseURL + "/",
			Providers: []string{"google", "facebook"},
		},
		HealthChecker:    env.health,
		MetricsHandler:   env.metrics,
		VehicleService:   env.vehicles,
		ReferenceService: env.reference,
		CatalogService:   env.catalog,
	})
	return env
}

func newLimiter(t *testing.T) *middleware.RateLimiter {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)
	return limiter
}

func mustRenderer(t *testing.T, env *testEnv) *view.Renderer {
	t.Helper()
	renderer, err := view.New(env.cookies, slog.New(slog.NewJSONHandler(env.logs, nil)))
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	return renderer
}

// waitState はStoreがwantに到達するまで待つ。
func (e *testEnv) waitState(want session.State) {
	e.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.store.Snapshot().State != want {
		if time.Now().After(deadline) {
			e.t.Fatalf("store state = %s, want %s", e.store.Snapshot().State, want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// do はリクエストを送る。POSTの場合は一致するCSRFトークンをCookieとフォームの両方に付与する。
func (e *testEnv) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	req := newFormRequest(method, target, form)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.serve(req)
}

// doWithHeader はヘッダーを1つ付けてリクエストを送る。valueが空の場合は付けない。
func (e *testEnv) doWithHeader(method, target, key, value string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := newFormRequest(method, target, nil)
	if value != "" {
		req.Header.Set(key, value)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func newFormRequest(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if method == http.MethodPost {
		if form == nil {
			form = url.Values{}
		}
		form.Set(middleware.CSRFFormField, testCSRFToken)
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: testCSRFToken})
	return req
}

// sessionCookie はレスポンスが最後に設定したブラウザセッションCookieを返す。
func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	var last *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testSessionName {
			last = c
		}
	}
	return last
}

// flashes はレスポンスのCookieに保存されたバナーを取り出す。
func (e *testEnv) flashes(w *httptest.ResponseRecorder) []middleware.Flash {
	e.t.Helper()
	c := sessionCookie(w)
	if c == nil {
		return nil
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	return middleware.PopFlashes(e.cookies, httptest.NewRecorder(), req)
}

// assertFlash はkindとmessageに一致するバナーが保存されていることを検証する。
func (e *testEnv) assertFlash(w *httptest.ResponseRecorder, kind, message string) {
	e.t.Helper()
	got := e.flashes(w)
	for _, f := range got {
		if f.Kind == kind && strings.Contains(f.Message, message) {
			return
		}
	}
	e.t.Errorf("flash (%s) %q not found in %+v", kind, message, got)
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body=%s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}

func assertBodyContains(t *testing.T, w *httptest.ResponseRecorder, substrings ...string) {
	t.Helper()
	body := w.Body.String()
	for _, s := range substrings {
		if !strings.Contains(body, s) {
			t.Errorf("body does not contain %q", s)
		}
	}
}
