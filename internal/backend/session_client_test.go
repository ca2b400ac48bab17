package backend

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/model"
)

// mockAuthAPI はテスト用のAuthAPIモック。
type mockAuthAPI struct {
	signInFn    func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn    func(ctx context.Context, email, password string, data map[string]string) (*SignUpResult, error)
	refreshFn   func(ctx context.Context, refreshToken string) (*model.Session, error)
	exchangeFn  func(ctx context.Context, authCode, codeVerifier string) (*model.Session, error)
	getUserFn   func(ctx context.Context, accessToken string) (*model.AuthUser, error)
	updateFn    func(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error)
	resetFn     func(ctx context.Context, email, redirectTo, challenge string) error
	signOutFn   func(ctx context.Context, accessToken string) error
	authorizeFn func(provider, redirectTo, challenge string) string
}

func (m *mockAuthAPI) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return m.signInFn(ctx, email, password)
}

func (m *mockAuthAPI) SignUp(ctx context.Context, email, password string, data map[string]string) (*SignUpResult, error) {
	return m.signUpFn(ctx, email, password, data)
}

func (m *mockAuthAPI) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockAuthAPI) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error) {
	return m.exchangeFn(ctx, authCode, codeVerifier)
}

func (m *mockAuthAPI) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	return m.getUserFn(ctx, accessToken)
}

func (m *mockAuthAPI) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error) {
	return m.updateFn(ctx, accessToken, attrs)
}

func (m *mockAuthAPI) ResetPasswordForEmail(ctx context.Context, email, redirectTo, challenge string) error {
	return m.resetFn(ctx, email, redirectTo, challenge)
}

func (m *mockAuthAPI) SignOut(ctx context.Context, accessToken string) error {
	return m.signOutFn(ctx, accessToken)
}

func (m *mockAuthAPI) AuthorizeURL(provider, redirectTo, challenge string) string {
	return m.authorizeFn(provider, redirectTo, challenge)
}

type recordedEvent struct {
	event AuthChangeEvent
	user  string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) listen(event AuthChangeEvent, sess *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := recordedEvent{event: event}
	if sess != nil {
		e.user = sess.User.ID
	}
	r.events = append(r.events, e)
}

func (r *eventRecorder) list() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func testSession(userID string, expiresAt time.Time) *model.Session {
	return &model.Session{
		AccessToken:  "at-" + userID,
		RefreshToken: "rt-" + userID,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         model.AuthUser{ID: userID, Email: userID + "@example.com"},
	}
}

func TestSessionClient_SignInPersistsAndNotifies(t *testing.T) {
	store := localstore.NewMemory(0)
	api := &mockAuthAPI{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return testSession("u-1", time.Now().Add(time.Hour)), nil
		},
	}
	c := NewSessionClient(api, store)
	rec := &eventRecorder{}
	c.OnAuthStateChange(rec.listen)

	_, err := c.SignInWithPassword(context.Background(), "u-1@example.com", "pw")
	require.NoError(t, err)

	require.Equal(t, []recordedEvent{{EventSignedIn, "u-1"}}, rec.list())

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "u-1", sess.User.ID)
}

func TestSessionClient_SignInErrorPropagatesUnchanged(t *testing.T) {
	want := &Error{Kind: KindInvalidCredentials, Message: "Invalid login credentials"}
	api := &mockAuthAPI{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return nil, want
		},
	}
	c := NewSessionClient(api, localstore.NewMemory(0))

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "bad")
	require.Same(t, want, err)
}

func TestSessionClient_GetSession_RefreshesExpiredToken(t *testing.T) {
	store := localstore.NewMemory(0)
	require.NoError(t, localstore.SetJSON(store, StorageKeySession, testSession("u-1", time.Now().Add(-time.Minute))))

	api := &mockAuthAPI{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			require.Equal(t, "rt-u-1", refreshToken)
			return testSession("u-1", time.Now().Add(time.Hour)), nil
		},
	}
	c := NewSessionClient(api, store)
	rec := &eventRecorder{}
	c.OnAuthStateChange(rec.listen)

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, []recordedEvent{{EventTokenRefreshed, "u-1"}}, rec.list())
}

func TestSessionClient_GetSession_InvalidRefreshTokenMeansNoSession(t *testing.T) {
	store := localstore.NewMemory(0)
	require.NoError(t, localstore.SetJSON(store, StorageKeySession, testSession("u-1", time.Now().Add(-time.Minute))))

	api := &mockAuthAPI{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			return nil, &Error{Kind: KindInvalidCredentials, Message: "Invalid Refresh Token"}
		},
	}
	c := NewSessionClient(api, store)
	rec := &eventRecorder{}
	c.OnAuthStateChange(rec.listen)

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)

	_, ok := store.GetItem(StorageKeySession)
	require.False(t, ok)
	require.Equal(t, []recordedEvent{{EventSignedOut, ""}}, rec.list())
}

func TestSessionClient_GetSession_ConnectivityErrorKeepsSession(t *testing.T) {
	store := localstore.NewMemory(0)
	require.NoError(t, localstore.SetJSON(store, StorageKeySession, testSession("u-1", time.Now().Add(-time.Minute))))

	api := &mockAuthAPI{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			return nil, &Error{Kind: KindNetwork, Message: "network error"}
		},
	}
	c := NewSessionClient(api, store)

	_, err := c.GetSession(context.Background())
	require.True(t, IsKind(err, KindNetwork))

	_, ok := store.GetItem(StorageKeySession)
	require.True(t, ok)
}

func TestSessionClient_GetUser_RejectedTokenSignsOut(t *testing.T) {
	store := localstore.NewMemory(0)
	require.NoError(t, localstore.SetJSON(store, StorageKeySession, testSession("u-1", time.Now().Add(time.Hour))))

	api := &mockAuthAPI{
		getUserFn: func(ctx context.Context, accessToken string) (*model.AuthUser, error) {
			return nil, &Error{Kind: KindUnauthorized, Status: 401}
		},
	}
	c := NewSessionClient(api, store)

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)

	_, ok := store.GetItem(StorageKeySession)
	require.False(t, ok)
}

func TestSessionClient_OAuthAndRecoveryFlows(t *testing.T) {
	store := localstore.NewMemory(0)
	var gotVerifier string
	api := &mockAuthAPI{
		authorizeFn: func(provider, redirectTo, challenge string) string {
			return "https://auth.example/authorize?provider=" + provider + "&code_challenge=" + challenge
		},
		resetFn: func(ctx context.Context, email, redirectTo, challenge string) error {
			require.NotEmpty(t, challenge)
			return nil
		},
		exchangeFn: func(ctx context.Context, authCode, codeVerifier string) (*model.Session, error) {
			gotVerifier = codeVerifier
			return testSession("u-5", time.Now().Add(time.Hour)), nil
		},
	}
	c := NewSessionClient(api, store)
	rec := &eventRecorder{}
	c.OnAuthStateChange(rec.listen)

	// OAuth: SIGNED_IN
	authURL, err := c.SignInWithOAuth("google", "http://localhost/auth/callback")
	require.NoError(t, err)
	require.Contains(t, authURL, "provider=google")

	verifier, _ := store.GetItem(StorageKeyCodeVerifier)
	_, err = c.ExchangeCodeForSession(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, verifier, gotVerifier)

	// パスワード再設定: PASSWORD_RECOVERY
	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "u-5@example.com", "http://localhost/reset-password"))
	stored, _ := store.GetItem(StorageKeyCodeVerifier)
	require.True(t, strings.HasSuffix(stored, "/PASSWORD_RECOVERY"))

	_, err = c.ExchangeCodeForSession(context.Background(), "code-2")
	require.NoError(t, err)
	require.False(t, strings.HasSuffix(gotVerifier, "/PASSWORD_RECOVERY"))

	require.Equal(t, []recordedEvent{
		{EventSignedIn, "u-5"},
		{EventPasswordRecovery, "u-5"},
	}, rec.list())

	_, ok := store.GetItem(StorageKeyCodeVerifier)
	require.False(t, ok)
}

func TestSessionClient_ExchangeWithoutVerifier(t *testing.T) {
	c := NewSessionClient(&mockAuthAPI{}, localstore.NewMemory(0))

	_, err := c.ExchangeCodeForSession(context.Background(), "code")
	require.True(t, IsKind(err, KindValidation))
}

func TestSessionClient_UpdateUserWithoutSession(t *testing.T) {
	c := NewSessionClient(&mockAuthAPI{}, localstore.NewMemory(0))

	_, err := c.UpdateUser(context.Background(), UserAttributes{Password: "newpass"})
	require.True(t, IsKind(err, KindUnauthorized))
}

func TestSessionClient_SignOutIgnoresExpiredServerSession(t *testing.T) {
	store := localstore.NewMemory(0)
	require.NoError(t, localstore.SetJSON(store, StorageKeySession, testSession("u-1", time.Now().Add(time.Hour))))

	api := &mockAuthAPI{
		signOutFn: func(ctx context.Context, accessToken string) error {
			return &Error{Kind: KindUnauthorized, Status: 401}
		},
	}
	c := NewSessionClient(api, store)
	rec := &eventRecorder{}
	c.OnAuthStateChange(rec.listen)

	require.NoError(t, c.SignOut(context.Background()))
	require.Equal(t, []recordedEvent{{EventSignedOut, ""}}, rec.list())
}

func TestSessionClient_Unsubscribe(t *testing.T) {
	api := &mockAuthAPI{
		signOutFn: func(ctx context.Context, accessToken string) error { return nil },
	}
	c := NewSessionClient(api, localstore.NewMemory(0))
	rec := &eventRecorder{}
	unsubscribe := c.OnAuthStateChange(rec.listen)
	unsubscribe()

	require.NoError(t, c.SignOut(context.Background()))
	require.Empty(t, rec.list())
}
