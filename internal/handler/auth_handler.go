package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/view"
)

// minPasswordLength はパスワード再設定時の最小文字数。
const minPasswordLength = 6

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL   string   // 認証メール・OAuthの戻り先URLの生成に使う
	Providers []string // 許可するOAuthプロバイダー
}

// AuthHandler はログイン、登録、パスワード再設定、OAuthのHTTPハンドラー。
// 認証操作はすべてブラウザセッションのStoreを経由する。
type AuthHandler struct {
	renderer  PageRenderer
	cookies   sessions.Store
	config    AuthHandlerConfig
	providers map[string]bool
	logger    *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(renderer PageRenderer, cookies sessions.Store, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	providers := make(map[string]bool, len(config.Providers))
	for _, p := range config.Providers {
		providers[p] = true
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{
		renderer:  renderer,
		cookies:   cookies,
		config:    config,
		providers: providers,
		logger:    logger,
	}
}

// LoginPage はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := view.AuthFormData{}
	if r.URL.Query().Get("reset") == "1" {
		data.Notice = "Dados locais limpos com sucesso. Faça login novamente."
	}
	h.renderer.Render(w, r, http.StatusOK, view.PageLogin, view.Page{Title: "Entrar", Data: data})
}

// Login はメールアドレスとパスワードでサインインする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	data := view.AuthFormData{Email: email}

	if email == "" || password == "" {
		h.renderer.Render(w, r, http.StatusBadRequest, view.PageLogin, view.Page{
			Title: "Entrar",
			Error: "Por favor, preencha todos os campos.",
			Data:  data,
		})
		return
	}

	if err := store.SignIn(r.Context(), email, password); err != nil {
		h.logger.Warn("ログインに失敗しました",
			slog.String("kind", backend.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		h.renderer.Render(w, r, statusForBackendError(err), view.PageLogin, view.Page{
			Title: "Entrar",
			Error: backendMessage(err, "Falha ao fazer login. Verifique suas credenciais."),
			Data:  data,
		})
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Recover はパスワード再設定メールの送信を依頼する。
// メール内のリンクは/reset-passwordに戻る。
// POST /login/recover
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	if email == "" {
		h.renderer.Render(w, r, http.StatusBadRequest, view.PageLogin, view.Page{
			Title: "Entrar",
			Error: "Por favor, informe seu email.",
			Data:  view.AuthFormData{},
		})
		return
	}

	if err := store.ResetPassword(r.Context(), email, h.config.BaseURL+"/reset-password"); err != nil {
		h.logger.Warn("パスワード再設定メールの送信に失敗しました",
			slog.String("kind", backend.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		h.renderer.Render(w, r, statusForBackendError(err), view.PageLogin, view.Page{
			Title: "Entrar",
			Error: backendMessage(err, "Erro ao enviar email de recuperação."),
			Data:  view.AuthFormData{Email: email},
		})
		return
	}

	redirectWithFlash(h.cookies, w, r, "/login", flashSuccess,
		"Email de recuperação enviado com sucesso! Verifique sua caixa de entrada para as instruções de redefinição de senha.")
}

// RegisterPage は登録画面を表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, view.PageRegister, view.Page{Title: "Criar conta", Data: view.AuthFormData{}})
}

// Register はユーザーを登録する。名前、電話番号、メールアドレス、パスワードはすべて必須。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	data := view.AuthFormData{
		Email: strings.TrimSpace(r.PostFormValue("email")),
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Phone: strings.TrimSpace(r.PostFormValue("phone")),
	}
	password := r.PostFormValue("password")

	if data.Email == "" || data.Name == "" || data.Phone == "" || password == "" {
		h.renderer.Render(w, r, http.StatusBadRequest, view.PageRegister, view.Page{
			Title: "Criar conta",
			Error: "Todos os campos são obrigatórios.",
			Data:  data,
		})
		return
	}

	if err := store.SignUp(r.Context(), data.Email, password, data.Name, data.Phone); err != nil {
		h.logger.Warn("ユーザー登録に失敗しました",
			slog.String("kind", backend.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		msg := "Falha ao criar a conta: " + err.Error()
		if backend.IsKind(err, backend.KindAlreadyRegistered) {
			msg = "Este email já está cadastrado. Tente fazer login ou use outro email."
		}
		h.renderer.Render(w, r, statusForBackendError(err), view.PageRegister, view.Page{
			Title: "Criar conta",
			Error: msg,
			Data:  data,
		})
		return
	}

	// メール確認が必要な設定ではセッションが発行されない
	if store.Snapshot().Authenticated() {
		redirectWithFlash(h.cookies, w, r, "/dashboard", flashSuccess, "Conta criada com sucesso!")
		return
	}
	redirectWithFlash(h.cookies, w, r, "/login", flashInfo,
		"Conta criada! Verifique seu email para confirmar o cadastro antes de entrar.")
}

// OAuthStart は外部プロバイダーの認可画面にリダイレクトする。
// GET /auth/oauth/{provider}
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !h.providers[provider] {
		http.NotFound(w, r)
		return
	}

	store := requireStore(w, r)
	if store == nil {
		return
	}

	authorizeURL, err := store.SignInWithProvider(provider, h.config.BaseURL+"/auth/callback")
	if err != nil {
		h.logger.Error("認可URLの生成に失敗しました",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		redirectWithFlash(h.cookies, w, r, "/login", flashError, "Falha ao entrar com provedor social.")
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusTemporaryRedirect)
}

// OAuthCallback は認可コードをセッションに交換する。
// GET /auth/callback?code=xxx
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" || q.Get("error") != "" {
		h.logger.Warn("プロバイダーが認可を拒否しました",
			slog.String("error", q.Get("error")),
			slog.String("description", desc),
		)
		redirectWithFlash(h.cookies, w, r, "/login", flashError, "Falha ao entrar com provedor social.")
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectWithFlash(h.cookies, w, r, "/login", flashError, "Código de autorização ausente.")
		return
	}

	if err := store.ExchangeCode(r.Context(), code); err != nil {
		h.logger.Error("認可コードの交換に失敗しました",
			slog.String("kind", backend.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		redirectWithFlash(h.cookies, w, r, "/login", flashError,
			backendMessage(err, "Falha ao entrar com provedor social."))
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// ResetPasswordPage はパスワード再設定画面を表示する。
// メールのリンクから来た場合（?code=）はコードをセッションに交換してから表示する。
// GET /reset-password
func (h *AuthHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	if code := r.URL.Query().Get("code"); code != "" {
		if err := store.ExchangeCode(r.Context(), code); err != nil {
			h.logger.Warn("再設定リンクのコード交換に失敗しました",
				slog.String("kind", backend.KindOf(err).String()),
				slog.String("error", err.Error()),
			)
			h.renderer.Render(w, r, http.StatusBadRequest, view.PageResetPassword, view.Page{
				Title: "Redefinir Senha",
				Error: "Link de redefinição inválido ou expirado.",
				Data:  view.ResetPasswordData{},
			})
			return
		}
		http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
		return
	}

	snap := store.Snapshot()
	if snap.Loading() {
		h.renderer.RenderLoading(w, r)
		return
	}
	if snap.LoadingError() {
		h.renderer.RenderConnectionError(w, r, snap)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, view.PageResetPassword, view.Page{
		Title: "Redefinir Senha",
		Data:  view.ResetPasswordData{Ready: snap.Authenticated()},
	})
}

// ResetPassword は新しいパスワードを設定する。
// POST /reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	if !store.Snapshot().Authenticated() {
		h.renderer.Render(w, r, http.StatusUnauthorized, view.PageResetPassword, view.Page{
			Title: "Redefinir Senha",
			Error: "Link de redefinição inválido ou expirado.",
			Data:  view.ResetPasswordData{},
		})
		return
	}

	password := r.PostFormValue("password")
	confirm := r.PostFormValue("confirm")
	fail := func(msg string) {
		h.renderer.Render(w, r, http.StatusBadRequest, view.PageResetPassword, view.Page{
			Title: "Redefinir Senha",
			Error: msg,
			Data:  view.ResetPasswordData{Ready: true},
		})
	}

	switch {
	case password == "" || confirm == "":
		fail("Por favor, preencha todos os campos.")
		return
	case utf8.RuneCountInString(password) < minPasswordLength:
		fail("A senha deve ter pelo menos 6 caracteres.")
		return
	case password != confirm:
		fail("As senhas não coincidem.")
		return
	}

	if err := store.UpdatePassword(r.Context(), password); err != nil {
		h.logger.Warn("パスワードの更新に失敗しました",
			slog.String("kind", backend.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		fail(backendMessage(err, "Erro ao redefinir senha. Tente novamente."))
		return
	}

	redirectWithFlash(h.cookies, w, r, "/dashboard", flashSuccess, "Senha atualizada com sucesso!")
}

// Logout はサインアウトしてログイン画面に戻る。
// サインアウトに失敗してもリダイレクトする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store := requireStore(w, r)
	if store == nil {
		return
	}

	if err := store.SignOut(r.Context()); err != nil {
		h.logger.Warn("サインアウトに失敗しました", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
