package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/model"
)

// ローカルストレージのキー
const (
	StorageKeySession      = "autotrackr-auth-token"
	StorageKeyCodeVerifier = "autotrackr-auth-token-code-verifier"
)

// パスワード再設定フローで保存したcode verifierに付与する目印。
const recoveryMarker = "/PASSWORD_RECOVERY"

// expiryMargin はアクセストークンを期限切れとみなす前倒し時間。
const expiryMargin = 10 * time.Second

// AuthChangeEvent は認証状態の変化通知の種別。
type AuthChangeEvent string

const (
	EventInitialSession   AuthChangeEvent = "INITIAL_SESSION"
	EventSignedIn         AuthChangeEvent = "SIGNED_IN"
	EventSignedOut        AuthChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthChangeEvent = "USER_UPDATED"
	EventPasswordRecovery AuthChangeEvent = "PASSWORD_RECOVERY"
)

// AuthStateListener は認証状態の変化を受け取る。sessionはサインアウト時nil。
type AuthStateListener func(event AuthChangeEvent, session *model.Session)

// SessionClient はブラウザセッション1つ分の認証クライアント。
// トークン一式をローカルストレージに保持し、状態変化をリスナーに通知する。
// 通知は発生順に同期的に配送される。
type SessionClient struct {
	auth    AuthAPI
	storage localstore.Storage
	now     func() time.Time

	// mu はセッションの読み書きと更新を直列化する。
	mu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]AuthStateListener
	nextID      int

	// notifyMu は通知の配送順序を保証する。
	notifyMu sync.Mutex
}

// NewSessionClient は新しいSessionClientを生成する。
func NewSessionClient(auth AuthAPI, storage localstore.Storage) *SessionClient {
	return &SessionClient{
		auth:      auth,
		storage:   storage,
		now:       time.Now,
		listeners: make(map[int]AuthStateListener),
	}
}

// OnAuthStateChange はリスナーを登録し、登録解除関数を返す。
func (c *SessionClient) OnAuthStateChange(l AuthStateListener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// GetSession は保存済みのセッションを返す。
// 期限切れ間近の場合はリフレッシュする。リフレッシュトークンが無効な場合は
// セッションを破棄してnilを返す。通信障害の場合のみエラーを返す。
func (c *SessionClient) GetSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	sess := c.loadSession()
	if sess == nil {
		c.mu.Unlock()
		return nil, nil
	}
	if !sess.Expired(c.now(), expiryMargin) {
		c.mu.Unlock()
		return sess, nil
	}

	refreshed, err := c.auth.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if IsConnectivity(err) {
			c.mu.Unlock()
			return nil, err
		}
		c.removeSession()
		c.mu.Unlock()
		c.notify(EventSignedOut, nil)
		return nil, nil
	}
	c.saveSession(refreshed)
	c.mu.Unlock()

	c.notify(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// GetUser はアクセストークンを認証APIで検証し、ユーザーを返す。
// トークンが拒否された場合はセッションを破棄してnilを返す。
func (c *SessionClient) GetUser(ctx context.Context) (*model.AuthUser, error) {
	sess, err := c.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}

	user, err := c.auth.GetUser(ctx, sess.AccessToken)
	if err != nil {
		if IsConnectivity(err) {
			return nil, err
		}
		c.mu.Lock()
		c.removeSession()
		c.mu.Unlock()
		c.notify(EventSignedOut, nil)
		return nil, nil
	}
	return user, nil
}

// SignInWithPassword はパスワードでサインインし、SIGNED_INを通知する。
func (c *SessionClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := c.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.saveSession(sess)
	c.mu.Unlock()

	c.notify(EventSignedIn, sess)
	return sess, nil
}

// SignUp はユーザーを登録する。セッションが発行された場合はSIGNED_INを通知する。
func (c *SessionClient) SignUp(ctx context.Context, email, password string, data map[string]string) (*SignUpResult, error) {
	res, err := c.auth.SignUp(ctx, email, password, data)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		c.mu.Lock()
		c.saveSession(res.Session)
		c.mu.Unlock()
		c.notify(EventSignedIn, res.Session)
	}
	return res, nil
}

// SignInWithOAuth はPKCEのcode verifierを保存し、プロバイダーの認可URLを返す。
func (c *SessionClient) SignInWithOAuth(provider, redirectTo string) (string, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", err
	}
	if err := c.storage.SetItem(StorageKeyCodeVerifier, verifier); err != nil {
		return "", &Error{Kind: KindUnknown, Message: "failed to store code verifier", Err: err}
	}
	return c.auth.AuthorizeURL(provider, redirectTo, codeChallenge(verifier)), nil
}

// ExchangeCodeForSession は認可コードをセッションに交換する。
// パスワード再設定フローのコードの場合はPASSWORD_RECOVERY、それ以外はSIGNED_INを通知する。
func (c *SessionClient) ExchangeCodeForSession(ctx context.Context, authCode string) (*model.Session, error) {
	stored, ok := c.storage.GetItem(StorageKeyCodeVerifier)
	if !ok || stored == "" {
		return nil, &Error{Kind: KindValidation, Message: "PKCE code verifier not found in storage"}
	}
	verifier, recovery := strings.CutSuffix(stored, recoveryMarker)

	sess, err := c.auth.ExchangeCode(ctx, authCode, verifier)
	c.storage.RemoveItem(StorageKeyCodeVerifier)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.saveSession(sess)
	c.mu.Unlock()

	if recovery {
		c.notify(EventPasswordRecovery, sess)
	} else {
		c.notify(EventSignedIn, sess)
	}
	return sess, nil
}

// ResetPasswordForEmail はパスワード再設定メールの送信を依頼する。
func (c *SessionClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	verifier, err := newCodeVerifier()
	if err != nil {
		return err
	}
	if err := c.storage.SetItem(StorageKeyCodeVerifier, verifier+recoveryMarker); err != nil {
		return &Error{Kind: KindUnknown, Message: "failed to store code verifier", Err: err}
	}
	return c.auth.ResetPasswordForEmail(ctx, email, redirectTo, codeChallenge(verifier))
}

// UpdateUser は現在のユーザーの属性を更新し、USER_UPDATEDを通知する。
func (c *SessionClient) UpdateUser(ctx context.Context, attrs UserAttributes) (*model.AuthUser, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &Error{Kind: KindUnauthorized, Message: "Auth session missing!"}
	}

	user, err := c.auth.UpdateUser(ctx, sess.AccessToken, attrs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	updated := *sess
	updated.User = *user
	c.saveSession(&updated)
	c.mu.Unlock()

	c.notify(EventUserUpdated, &updated)
	return user, nil
}

// SignOut はセッションを失効させ、SIGNED_OUTを通知する。
// 認証APIがセッションを既に失効済みと応答した場合もローカルのセッションは破棄する。
func (c *SessionClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.loadSession()
	c.mu.Unlock()

	if sess != nil {
		err := c.auth.SignOut(ctx, sess.AccessToken)
		if err != nil && !IsKind(err, KindUnauthorized) && !IsKind(err, KindNotFound) {
			return err
		}
	}

	c.mu.Lock()
	c.removeSession()
	c.mu.Unlock()

	c.notify(EventSignedOut, nil)
	return nil
}

// notify は登録済みリスナーに通知を同期的に配送する。
func (c *SessionClient) notify(event AuthChangeEvent, sess *model.Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.listenersMu.Lock()
	listeners := make([]AuthStateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.Unlock()

	for _, l := range listeners {
		l(event, sess)
	}
}

func (c *SessionClient) loadSession() *model.Session {
	var sess model.Session
	if !localstore.GetJSON(c.storage, StorageKeySession, &sess) || sess.AccessToken == "" {
		return nil
	}
	return &sess
}

func (c *SessionClient) saveSession(sess *model.Session) {
	_ = localstore.SetJSON(c.storage, StorageKeySession, sess)
}

func (c *SessionClient) removeSession() {
	c.storage.RemoveItem(StorageKeySession)
}
