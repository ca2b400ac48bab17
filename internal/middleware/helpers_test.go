package middleware

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/model"
	"github.com/hitoshi/autotrackr/internal/session"
)

// stubAuth は固定のユーザーを返す認証クライアント。userがnilの場合は未認証。
type stubAuth struct {
	user  *model.AuthUser
	block bool
}

func (a *stubAuth) GetSession(ctx context.Context) (*model.Session, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.user == nil {
		return nil, nil
	}
	return &model.Session{AccessToken: "token", User: *a.user}, nil
}
func (a *stubAuth) GetUser(ctx context.Context) (*model.AuthUser, error) { return a.user, nil }
func (a *stubAuth) OnAuthStateChange(l backend.AuthStateListener) func() { return func() {} }
func (a *stubAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return nil, nil
}
func (a *stubAuth) SignUp(ctx context.Context, email, password string, data map[string]string) (*backend.SignUpResult, error) {
	return &backend.SignUpResult{}, nil
}
func (a *stubAuth) SignInWithOAuth(provider, redirectTo string) (string, error) { return "", nil }
func (a *stubAuth) ExchangeCodeForSession(ctx context.Context, authCode string) (*model.Session, error) {
	return nil, nil
}
func (a *stubAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return nil
}
func (a *stubAuth) UpdateUser(ctx context.Context, attrs backend.UserAttributes) (*model.AuthUser, error) {
	return a.user, nil
}
func (a *stubAuth) SignOut(ctx context.Context) error { return nil }

type stubProfileRepo struct {
	role string
}

func (r *stubProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.ProfileRow, error) {
	return &model.ProfileRow{UserID: userID, Role: r.role}, nil
}
func (r *stubProfileRepo) InsertDefault(ctx context.Context, row *model.ProfileRow) error { return nil }
func (r *stubProfileRepo) Upsert(ctx context.Context, row *model.ProfileRow) error        { return nil }
func (r *stubProfileRepo) Count(ctx context.Context) (int, error)                         { return 0, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestStore は指定の状態に到達したStoreを返す。
// roleが空の場合は未認証、"blocked"の場合は初期化中のまま返す。
func newTestStore(t *testing.T, role string) *session.Store {
	t.Helper()

	auth := &stubAuth{}
	want := session.StateUnauthenticated
	switch role {
	case "":
	case "blocked":
		auth.block = true
		want = session.StateInitializing
	default:
		auth.user = &model.AuthUser{ID: "user-" + role, Email: role + "@example.com"}
		want = session.StateAuthenticated
	}

	store := session.NewStore(session.Deps{
		Auth:     auth,
		Profiles: &stubProfileRepo{role: role},
		Storage:  localstore.NewMemory(0),
		Logger:   discardLogger(),
	}, session.Config{
		InitTimeout:          time.Minute,
		InitMaxRetries:       0,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	})
	t.Cleanup(store.Close)
	store.Start()

	deadline := time.Now().Add(2 * time.Second)
	for store.Snapshot().State != want {
		if time.Now().After(deadline) {
			t.Fatalf("store state = %s, want %s", store.Snapshot().State, want)
		}
		time.Sleep(2 * time.Millisecond)
	}
	return store
}

// fakeRegistry はsidごとに事前に用意したStoreを返す。
type fakeRegistry struct {
	mu     sync.Mutex
	stores map[string]*session.Store
	newFn  func() *session.Store
	gets   []string
	resets []string
	closed bool
}

func (r *fakeRegistry) Get(sid string) *session.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.gets = append(r.gets, sid)
	if s, ok := r.stores[sid]; ok {
		return s
	}
	if r.stores == nil {
		r.stores = make(map[string]*session.Store)
	}
	s := r.newFn()
	r.stores[sid] = s
	return s
}

func (r *fakeRegistry) Reset(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, sid)
	delete(r.stores, sid)
}
