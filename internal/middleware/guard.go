package middleware

import (
	"net/http"

	"github.com/hitoshi/autotrackr/internal/session"
)

// Requirement は画面が要求する認証状態。
type Requirement int

const (
	// RequireGuest は未認証ユーザー向けの画面（ログイン、登録）。
	RequireGuest Requirement = iota
	RequireAuthenticated
	RequireAdmin
)

// DecisionKind はガードの判定結果の種別。
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionLoading
	DecisionConnectionError
	DecisionRedirect
)

// Decision はガードの判定結果。DecisionRedirectの場合のみLocationを持つ。
type Decision struct {
	Kind     DecisionKind
	Location string
}

// Evaluate はStoreのスナップショットと要求からアクセス可否を判定する。
func Evaluate(snap session.Snapshot, req Requirement) Decision {
	if snap.Loading() {
		return Decision{Kind: DecisionLoading}
	}
	if snap.LoadingError() {
		return Decision{Kind: DecisionConnectionError}
	}

	authenticated := snap.Authenticated()
	switch req {
	case RequireGuest:
		if authenticated {
			return Decision{Kind: DecisionRedirect, Location: "/dashboard"}
		}
	case RequireAuthenticated:
		if !authenticated {
			return Decision{Kind: DecisionRedirect, Location: "/login"}
		}
	case RequireAdmin:
		if !authenticated {
			return Decision{Kind: DecisionRedirect, Location: "/login"}
		}
		if !snap.IsAdmin {
			return Decision{Kind: DecisionRedirect, Location: "/dashboard"}
		}
	}
	return Decision{Kind: DecisionAllow}
}

// GuardRenderer は判定結果がAllow以外の場合の画面を描画する。
type GuardRenderer interface {
	// RenderLoading は初期化中の画面を描画する。
	RenderLoading(w http.ResponseWriter, r *http.Request)
	// RenderConnectionError は接続障害時の再試行画面を503で描画する。
	RenderConnectionError(w http.ResponseWriter, r *http.Request, snap session.Snapshot)
}

// NewGuardMiddleware は要求を満たさないリクエストをリダイレクトまたは待機画面に振り分けるミドルウェアを返す。
// 認証済みの場合はユーザーIDをリクエストコンテキストに注入する。
func NewGuardMiddleware(req Requirement, renderer GuardRenderer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := StoreFromContext(r.Context())
			if store == nil {
				WriteInternalServerError(w)
				return
			}

			snap := store.Snapshot()
			decision := Evaluate(snap, req)
			switch decision.Kind {
			case DecisionLoading:
				renderer.RenderLoading(w, r)
				return
			case DecisionConnectionError:
				renderer.RenderConnectionError(w, r, snap)
				return
			case DecisionRedirect:
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
				return
			}

			ctx := r.Context()
			if snap.User != nil {
				ctx = ContextWithUserID(ctx, snap.User.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
