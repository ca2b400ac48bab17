// Package session はブラウザセッションごとの認証・プロフィール状態を管理する。
//
// Storeは認証サービスからの通知に追従する状態機械で、初期化のタイムアウトと
// 自動リトライ、プロフィールのキャッシュとフォールバックを一か所で扱う。
// Registryはブラウザセッション識別子ごとにStoreを生成・保持・破棄する。
package session

import "github.com/hitoshi/autotrackr/internal/model"

// State はStoreの状態。
type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Snapshot はStoreの状態の読み取り専用コピー。
type Snapshot struct {
	State    State
	User     *model.AuthUser
	Profile  *model.UserProfile
	IsAdmin  bool
	Attempts int
}

// Loading は初期化中かを返す。
func (s Snapshot) Loading() bool {
	return s.State == StateInitializing
}

// LoadingError は接続障害で初期化できていない状態かを返す。
func (s Snapshot) LoadingError() bool {
	return s.State == StateTimedOut || s.State == StateFailed
}

// Authenticated はユーザーが確定しているかを返す。
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}
