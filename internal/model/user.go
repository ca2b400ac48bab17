// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアプリケーション上のユーザー権限を表す。
type Role string

const (
	// RoleAdmin は管理画面へのアクセス権を持つ。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
)

// ParseRole は文字列をRoleに変換する。未知の値はRoleUserとして扱う。
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// AuthUser は認証サービスが発行したセッションから導出されるユーザー。
// セッションが存在する間のみ有効。
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserProfile はアプリケーション側のユーザープロフィール。
// 認証サービスのユーザーと1対1で対応し、初回ログイン時に遅延作成される。
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsAdmin はプロフィールが管理者権限を持つかを返す。nilはfalse。
func (p *UserProfile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// DefaultProfile はロールuserの既定プロフィールを生成する。
func DefaultProfile(user AuthUser) *UserProfile {
	return &UserProfile{
		ID:    user.ID,
		Email: user.Email,
		Role:  RoleUser,
	}
}

// ProfileRow はuser_profilesテーブルの1行を表す。
type ProfileRow struct {
	ID        string
	UserID    string
	Email     string
	Role      string
	Name      string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session は認証サービスが発行するトークン一式。
// アプリケーションからは読み取り専用として扱う。
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// Expired はセッションが指定の余裕時間内に期限切れになるかを返す。
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}
