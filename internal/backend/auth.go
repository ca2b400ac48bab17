package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/autotrackr/internal/model"
)

// AuthAPI は認証APIの操作を定義する。
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, data map[string]string) (*SignUpResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error)
	GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error)
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// SignUpResult はサインアップの結果。
// メール確認が必要な設定ではSessionはnilになる。
type SignUpResult struct {
	User    model.AuthUser
	Session *model.Session
}

// UserAttributes はユーザー更新で送る属性。
type UserAttributes struct {
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// AuthConfig はAuthClientの設定。
type AuthConfig struct {
	// BaseURL はプロジェクトURL（例: https://xyz.supabase.co）。
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// AuthClient は認証APIのHTTPクライアント。状態を持たない。
type AuthClient struct {
	endpoint   string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewAuthClient は新しいAuthClientを生成する。
func NewAuthClient(cfg AuthConfig) *AuthClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, DefaultMaxRetries, nil)
	}
	return &AuthClient{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signUpResponse はセッション付き（自動確認）とユーザーのみ（メール確認待ち）の両方を受ける。
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "", body, &tr); err != nil {
		return nil, err
	}
	return c.toSession(&tr), nil
}

// SignUp はユーザーを登録する。dataはユーザーメタデータとして保存される。
func (c *AuthClient) SignUp(ctx context.Context, email, password string, data map[string]string) (*SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(data) > 0 {
		body["data"] = data
	}
	var sr signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &sr); err != nil {
		return nil, err
	}

	if sr.AccessToken != "" {
		sess := c.toSession(&sr.tokenResponse)
		return &SignUpResult{User: sess.User, Session: sess}, nil
	}
	return &SignUpResult{User: model.AuthUser{ID: sr.ID, Email: sr.Email}}, nil
}

// RefreshSession はリフレッシュトークンでセッションを更新する。
func (c *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "", body, &tr); err != nil {
		return nil, err
	}
	return c.toSession(&tr), nil
}

// ExchangeCode はPKCEの認可コードをセッションに交換する。
func (c *AuthClient) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error) {
	body := map[string]string{"auth_code": authCode, "code_verifier": codeVerifier}
	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}}, "", body, &tr); err != nil {
		return nil, err
	}
	return c.toSession(&tr), nil
}

// GetUser はアクセストークンの持ち主を認証APIに問い合わせる。
func (c *AuthClient) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	var ur userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &ur); err != nil {
		return nil, err
	}
	return &model.AuthUser{ID: ur.ID, Email: ur.Email}, nil
}

// UpdateUser はユーザー属性（パスワード等）を更新する。
func (c *AuthClient) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error) {
	var ur userResponse
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, attrs, &ur); err != nil {
		return nil, err
	}
	return &model.AuthUser{ID: ur.ID, Email: ur.Email}, nil
}

// ResetPasswordForEmail はパスワード再設定メールの送信を依頼する。
func (c *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo, challenge string) error {
	body := map[string]string{"email": email}
	if challenge != "" {
		body["code_challenge"] = challenge
		body["code_challenge_method"] = "s256"
	}
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", q, "", body, nil)
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
func (c *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

// AuthorizeURL は外部プロバイダーの認可URLを組み立てる。
func (c *AuthClient) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.endpoint + "/authorize?" + q.Encode()
}

// do はリクエストを送信し、2xxならoutにデコードする。
func (c *AuthClient) do(ctx context.Context, method, path string, query url.Values, accessToken string, in, out any) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	bearer := accessToken
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fromTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fromTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fromResponse(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Message: "invalid response from auth service", Err: err}
	}
	return nil
}

// toSession はトークンレスポンスをSessionに変換する。
// 有効期限はexpires_at、expires_in、アクセストークンのexpの順で決定する。
func (c *AuthClient) toSession(tr *tokenResponse) *model.Session {
	sess := &model.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}

	switch {
	case tr.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		sess.ExpiresAt = tokenExpiry(tr.AccessToken)
	}

	if tr.User != nil {
		sess.User = model.AuthUser{ID: tr.User.ID, Email: tr.User.Email}
	} else if claims, err := parseAccessToken(tr.AccessToken); err == nil {
		sess.User = model.AuthUser{ID: claims.Subject, Email: claims.Email}
	}
	return sess
}

// compile-time interface check
var _ AuthAPI = (*AuthClient)(nil)
