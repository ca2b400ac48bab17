package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/metrics"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/repository"
	"github.com/hitoshi/autotrackr/internal/security"
)

// AuthSession はブラウザセッション単位の認証クライアント。*backend.SessionClientが実装する。
type AuthSession interface {
	GetSession(ctx context.Context) (*model.Session, error)
	GetUser(ctx context.Context) (*model.AuthUser, error)
	OnAuthStateChange(l backend.AuthStateListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, data map[string]string) (*backend.SignUpResult, error)
	SignInWithOAuth(provider, redirectTo string) (string, error)
	ExchangeCodeForSession(ctx context.Context, authCode string) (*model.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs backend.UserAttributes) (*model.AuthUser, error)
	SignOut(ctx context.Context) error
}

// Config はStoreの初期化に関する設定。
type Config struct {
	// InitTimeout は初期化1回あたりの応答待ち時間。
	InitTimeout time.Duration
	// InitMaxRetries は接続障害時の自動再試行回数。初回を含めた試行回数はこの値+1。
	InitMaxRetries       int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultConfig は既定の設定を返す。
func DefaultConfig() Config {
	return Config{
		InitTimeout:          10 * time.Second,
		InitMaxRetries:       3,
		RetryInitialInterval: 1 * time.Second,
		RetryMaxInterval:     2 * time.Second,
	}
}

// Deps はStoreの依存。
type Deps struct {
	Auth      AuthSession
	Profiles  repository.ProfileRepository
	Storage   localstore.Storage
	Sanitizer security.TextSanitizer
	Logger    *slog.Logger
	Metrics   metrics.MetricsCollector
}

var (
	errAttemptTimedOut = errors.New("session: initialization attempt timed out")
	errSuperseded      = errors.New("session: initialization superseded")
)

// Store はブラウザセッション1つ分の認証・プロフィール状態。
// 状態はmuで保護し、認証サービスの通知は配送順に処理する。
type Store struct {
	auth      AuthSession
	profiles  *profileLoader
	sanitizer security.TextSanitizer
	cfg       Config
	logger    *slog.Logger
	metrics   metrics.MetricsCollector

	mu         sync.Mutex
	state      State
	user       *model.AuthUser
	profile    *model.UserProfile
	attempts   int
	closed     bool
	initGen    int
	initCancel context.CancelFunc

	unsubscribe func()
	baseCtx     context.Context
	baseCancel  context.CancelFunc
	wg          sync.WaitGroup
}

// NewStore はStoreを生成する。初期化はStartで開始する。
func NewStore(deps Deps, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = def.InitTimeout
	}
	if cfg.InitMaxRetries < 0 {
		cfg.InitMaxRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = def.RetryMaxInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Store{
		auth: deps.Auth,
		profiles: &profileLoader{
			repo:    deps.Profiles,
			storage: deps.Storage,
			logger:  logger,
			metrics: m,
		},
		sanitizer:  sanitizer,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		state:      StateInitializing,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	s.unsubscribe = deps.Auth.OnAuthStateChange(s.handleAuthEvent)
	return s
}

// Start はバックグラウンドで初期化を開始する。
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startInitLocked()
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:    s.state,
		IsAdmin:  s.profile.IsAdmin(),
		Attempts: s.attempts,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

// SignIn はメールアドレスとパスワードでサインインする。
// 状態の更新はSIGNED_IN通知の処理で行われる。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	_, err := s.auth.SignInWithPassword(ctx, email, password)
	return err
}

// SignUp はユーザーを登録し、名前と電話番号を含むプロフィールを保存する。
// プロフィールの保存に失敗しても登録自体は成功として扱う。
func (s *Store) SignUp(ctx context.Context, email, password, name, phone string) error {
	name = s.sanitizer.Clean(name)
	phone = s.sanitizer.Clean(phone)

	res, err := s.auth.SignUp(ctx, email, password, map[string]string{"name": name, "phone": phone})
	if err != nil {
		return err
	}
	if res.User.ID == "" {
		return nil
	}

	row := &model.ProfileRow{
		UserID: res.User.ID,
		Email:  email,
		Role:   string(model.RoleUser),
		Name:   name,
		Phone:  phone,
	}
	if err := s.profiles.repo.Upsert(ctx, row); err != nil {
		s.logger.Warn("登録時のプロフィール保存に失敗しました",
			slog.String("user_id", res.User.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	p := &model.UserProfile{ID: res.User.ID, Email: email, Role: model.RoleUser, Name: name, Phone: phone}
	s.profiles.save(p)

	s.mu.Lock()
	if !s.closed && s.user != nil && s.user.ID == p.ID {
		s.profile = p
	}
	s.mu.Unlock()
	return nil
}

// SignInWithProvider は外部プロバイダーの認可URLを返す。
func (s *Store) SignInWithProvider(provider, redirectTo string) (string, error) {
	return s.auth.SignInWithOAuth(provider, redirectTo)
}

// ExchangeCode は認可コードをセッションに交換する。
func (s *Store) ExchangeCode(ctx context.Context, code string) error {
	_, err := s.auth.ExchangeCodeForSession(ctx, code)
	return err
}

// SignOut はサインアウトする。
func (s *Store) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

// ResetPassword はパスワード再設定メールの送信を依頼する。
func (s *Store) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return s.auth.ResetPasswordForEmail(ctx, email, redirectTo)
}

// UpdatePassword は現在のユーザーのパスワードを変更する。
func (s *Store) UpdatePassword(ctx context.Context, password string) error {
	_, err := s.auth.UpdateUser(ctx, backend.UserAttributes{Password: password})
	return err
}

// RefreshProfile は現在のユーザーのプロフィールを再取得して返す。
// ユーザーがいない場合は何もせずnilを返す。
func (s *Store) RefreshProfile(ctx context.Context) *model.UserProfile {
	s.mu.Lock()
	if s.closed || s.user == nil {
		s.mu.Unlock()
		return nil
	}
	user := *s.user
	s.mu.Unlock()

	return s.loadProfile(ctx, user, func() bool {
		return s.user != nil && s.user.ID == user.ID
	})
}

// RetryConnection はTimedOutまたはFailedの場合に試行回数をリセットして初期化をやり直す。
// それ以外の状態では何もせずfalseを返す。
func (s *Store) RetryConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (s.state != StateTimedOut && s.state != StateFailed) {
		return false
	}
	s.attempts = 0
	s.transitionLocked(StateInitializing)
	s.startInitLocked()
	return true
}

// Close はStoreを破棄する。以降の結果は反映されない。
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.initCancel != nil {
		s.initCancel()
	}
	s.mu.Unlock()

	s.unsubscribe()
	s.baseCancel()
	s.wg.Wait()
}

// startInitLocked は実行中の初期化を打ち切り、新しい初期化を開始する。s.muを保持して呼ぶこと。
func (s *Store) startInitLocked() {
	if s.closed {
		return
	}
	s.cancelInitLocked()
	gen := s.initGen
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.initCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.initialize(ctx, gen)
	}()
}

// cancelInitLocked は実行中の初期化の結果を無効にする。
func (s *Store) cancelInitLocked() {
	s.initGen++
	if s.initCancel != nil {
		s.initCancel()
		s.initCancel = nil
	}
}

// currentLocked は世代genの初期化が有効かを返す。
func (s *Store) currentLocked(gen int) bool {
	return !s.closed && s.initGen == gen
}

// initialize はセッションを取得し、接続障害の場合は予算の範囲で再試行する。
func (s *Store) initialize(ctx context.Context, gen int) {
	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.InitMaxRetries)), ctx)

	op := func() error {
		s.mu.Lock()
		if !s.currentLocked(gen) {
			s.mu.Unlock()
			return backoff.Permanent(errSuperseded)
		}
		s.transitionLocked(StateInitializing)
		s.attempts++
		s.mu.Unlock()

		user, err := s.resolveWithTimeout(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		switch {
		case err == nil:
			s.applyInitialUser(ctx, gen, user)
			return nil
		case errors.Is(err, errAttemptTimedOut):
			s.mu.Lock()
			if s.currentLocked(gen) {
				s.transitionLocked(StateTimedOut)
			}
			s.mu.Unlock()
			return err
		case backend.IsConnectivity(err):
			return err
		default:
			// 接続障害以外（リフレッシュトークンの失効等）はセッションなしとして扱う
			s.logger.Info("セッションを復元できませんでした", slog.String("error", err.Error()))
			s.mu.Lock()
			if s.currentLocked(gen) {
				s.setUnauthenticatedLocked()
			}
			s.mu.Unlock()
			return nil
		}
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("セッション初期化を再試行します",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
	}

	err := backoff.RetryNotify(op, bo, notify)
	if err == nil || ctx.Err() != nil || errors.Is(err, errSuperseded) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentLocked(gen) {
		s.logger.Error("セッション初期化の再試行上限に達しました",
			slog.Int("attempts", s.attempts),
			slog.String("error", err.Error()),
		)
		s.transitionLocked(StateFailed)
	}
}

type resolveResult struct {
	user *model.AuthUser
	err  error
}

// resolveWithTimeout はInitTimeout以内にユーザーを解決する。
// 応答がない場合はerrAttemptTimedOutを返す。
func (s *Store) resolveWithTimeout(ctx context.Context) (*model.AuthUser, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.InitTimeout)
	defer cancel()

	ch := make(chan resolveResult, 1)
	go func() {
		u, err := s.resolveUser(attemptCtx)
		ch <- resolveResult{user: u, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && (attemptCtx.Err() == context.DeadlineExceeded || backend.IsKind(r.err, backend.KindTimeout)) {
			return nil, errAttemptTimedOut
		}
		return r.user, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errAttemptTimedOut
	}
}

// resolveUser は保存済みセッションを取得し、認証APIでユーザーを確認する。
func (s *Store) resolveUser(ctx context.Context) (*model.AuthUser, error) {
	sess, err := s.auth.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.auth.GetUser(ctx)
}

// applyInitialUser は初期化で得たユーザーを状態に反映する。
func (s *Store) applyInitialUser(ctx context.Context, gen int, user *model.AuthUser) {
	if user == nil {
		s.mu.Lock()
		if s.currentLocked(gen) {
			s.setUnauthenticatedLocked()
		}
		s.mu.Unlock()
		return
	}

	profileCtx, cancel := context.WithTimeout(ctx, s.cfg.InitTimeout)
	defer cancel()
	s.loadProfile(profileCtx, *user, func() bool { return s.initGen == gen })
}

// loadProfile はプロフィールを取得してAuthenticatedに遷移する。
// validはs.muを保持した状態で呼ばれ、falseの場合は結果を反映しない。
func (s *Store) loadProfile(ctx context.Context, user model.AuthUser, valid func() bool) *model.UserProfile {
	apply := func(p *model.UserProfile) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !valid() {
			return
		}
		u := user
		cp := *p
		s.user = &u
		s.profile = &cp
		s.transitionLocked(StateAuthenticated)
	}

	p := s.profiles.fetch(ctx, user, apply)
	apply(p)
	return p
}

// handleAuthEvent は認証サービスからの通知を処理する。
func (s *Store) handleAuthEvent(event backend.AuthChangeEvent, sess *model.Session) {
	s.logger.Debug("認証状態の通知を受信しました", slog.String("event", string(event)))

	if event == backend.EventSignedOut {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		wasAuthenticated := s.state == StateAuthenticated
		s.user = nil
		s.profile = nil
		if wasAuthenticated {
			s.transitionLocked(StateUnauthenticated)
		}
		return
	}

	if sess == nil || sess.User.ID == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if event == backend.EventTokenRefreshed {
		// 初期化中の更新と同一ユーザーの更新は状態を変えない
		if s.state == StateInitializing || (s.user != nil && s.user.ID == sess.User.ID) {
			s.mu.Unlock()
			return
		}
	}
	if s.state == StateInitializing || s.state == StateTimedOut || s.state == StateFailed {
		// ユーザーが確定したため実行中の初期化は不要
		s.cancelInitLocked()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.InitTimeout)
	defer cancel()
	s.loadProfile(ctx, sess.User, func() bool { return true })
}

// setUnauthenticatedLocked はユーザーとプロフィールを消去してUnauthenticatedに遷移する。
func (s *Store) setUnauthenticatedLocked() {
	s.user = nil
	s.profile = nil
	s.transitionLocked(StateUnauthenticated)
}

// transitionLocked は状態を遷移させ、ログとメトリクスを記録する。
func (s *Store) transitionLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.metrics.RecordStoreTransition(from.String(), to.String())
	s.logger.Info("セッション状態が遷移しました",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("attempts", s.attempts),
	)
}

func (s *Store) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitialInterval
	bo.MaxInterval = s.cfg.RetryMaxInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
