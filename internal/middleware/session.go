// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/session"
)

const (
	// browserSessionName はブラウザセッションCookieの名前。
	browserSessionName = "autotrackr_session"

	sessionIDKey = "sid"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey    = contextKey("user_id")
	sessionIDContextKey = contextKey("session_id")
	storeContextKey     = contextKey("store")
)

// StoreRegistry はブラウザセッション識別子に対応するStoreを提供する。
// *session.Registryが実装する。
type StoreRegistry interface {
	Get(sid string) *session.Store
	Reset(sid string)
}

// Flash は次の画面に一度だけ表示するバナー。
type Flash struct {
	Kind    string // success, error, info
	Message string
}

func init() {
	gob.Register(Flash{})
}

// BrowserSessionConfig はブラウザセッションCookieの設定。
type BrowserSessionConfig struct {
	CookieSecure bool
	MaxAge       int // 秒
}

// NewCookieStore はブラウザセッション用のCookieストアを生成する。
func NewCookieStore(secret []byte, config BrowserSessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// NewBrowserSessionMiddleware はCookieからブラウザセッション識別子を読み取り、
// 対応するStoreをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または改ざんされている場合は新しい識別子を発行する。
func NewBrowserSessionMiddleware(cookies sessions.Store, registry StoreRegistry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := cookies.Get(r, browserSessionName)
			if err != nil {
				slog.Warn("ブラウザセッションCookieを復号できませんでした",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}
			if sess == nil {
				WriteInternalServerError(w)
				return
			}

			sid, _ := sess.Values[sessionIDKey].(string)
			if sid == "" {
				sid = uuid.New().String()
				sess.Values[sessionIDKey] = sid
				if err := sess.Save(r, w); err != nil {
					slog.Error("ブラウザセッションCookieの保存に失敗しました", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
			}

			store := registry.Get(sid)
			if store == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := ContextWithSession(r.Context(), sid, store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithSession はコンテキストにブラウザセッション識別子とStoreを注入する。
func ContextWithSession(ctx context.Context, sid string, store *session.Store) context.Context {
	ctx = context.WithValue(ctx, sessionIDContextKey, sid)
	return context.WithValue(ctx, storeContextKey, store)
}

// SessionIDFromContext はリクエストコンテキストからブラウザセッション識別子を取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sid, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sid == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sid, nil
}

// StoreFromContext はリクエストコンテキストからStoreを取得する。存在しない場合はnil。
func StoreFromContext(ctx context.Context) *session.Store {
	store, _ := ctx.Value(storeContextKey).(*session.Store)
	return store
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証を要求するガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// AddFlash は次のリクエストで表示するバナーを追加する。
func AddFlash(cookies sessions.Store, w http.ResponseWriter, r *http.Request, kind, message string) {
	sess, err := cookies.Get(r, browserSessionName)
	if err != nil && sess == nil {
		return
	}
	sess.AddFlash(Flash{Kind: kind, Message: message})
	if err := sess.Save(r, w); err != nil {
		slog.Warn("バナーの保存に失敗しました", slog.String("error", err.Error()))
	}
}

// PopFlashes は保存されているバナーを取り出して削除する。
func PopFlashes(cookies sessions.Store, w http.ResponseWriter, r *http.Request) []Flash {
	sess, err := cookies.Get(r, browserSessionName)
	if err != nil && sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := sess.Save(r, w); err != nil {
		slog.Warn("バナーの削除に失敗しました", slog.String("error", err.Error()))
	}

	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}

// ClearBrowserSession はブラウザセッションCookieを破棄する。
// 次のリクエストでは新しい識別子が発行される。
func ClearBrowserSession(cookies sessions.Store, w http.ResponseWriter, r *http.Request) {
	sess, _ := cookies.Get(r, browserSessionName)
	if sess == nil {
		return
	}
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		slog.Warn("ブラウザセッションCookieの破棄に失敗しました", slog.String("error", err.Error()))
	}
}
