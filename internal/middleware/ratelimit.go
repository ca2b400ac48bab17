package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/autotrackr/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 全リクエストのレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // 全リクエストのバーストサイズ
	AuthFormRate    rate.Limit    // ログイン・登録・パスワード再設定フォームのレート（req/sec）。10/60
	AuthFormBurst   int           // 認証フォームのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 全体 120 req/min/ブラウザセッション、認証フォーム 10 req/min/ブラウザセッション
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		AuthFormRate:    rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		AuthFormBurst:   10,
		CleanupInterval: 5 * time.Minute,
	}
}

// sessionLimiter はブラウザセッションごとのレートリミッターとアクセス時刻を保持する。
type sessionLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じレートを共有するリミッターの集合。
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*sessionLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*sessionLimiter),
	}
}

// getOrCreate はキーのリミッターを取得または作成する。
func (s *limiterSet) getOrCreate(key string) *rate.Limiter {
	s.mu.RLock()
	sl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		sl.lastAccess = time.Now()
		s.mu.Unlock()
		return sl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if sl, exists := s.limiters[key]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &sessionLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sl := range s.limiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はブラウザセッションごとのレート制限を管理する。
// 全リクエスト向けと認証フォーム向けの2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	general  *limiterSet
	authForm *limiterSet

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterSet(config.GeneralRate, config.GeneralBurst),
		authForm: newLimiterSet(config.AuthFormRate, config.AuthFormBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware は全リクエスト向けのレート制限ミドルウェアを返す。
// ブラウザセッションミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// AuthFormMiddleware は認証フォーム送信向けのレート制限ミドルウェアを返す。
// 全リクエスト向けのレート制限とは独立に動作する。
func (rl *RateLimiter) AuthFormMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.authForm, "auth_form")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, err := SessionIDFromContext(r.Context())
			if err != nil {
				WriteInternalServerError(w)
				return
			}

			if !set.getOrCreate(sid).Allow() {
				writeRateLimitResponse(w, set.limit)
				slog.Warn("rate limit exceeded",
					slog.String("store", shortSessionID(sid)),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されている全体リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// AuthFormLimiterCount は現在管理されている認証フォームリミッターのエントリ数を返す。
func (rl *RateLimiter) AuthFormLimiterCount() int {
	return rl.authForm.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evict(now, ttl)
	rl.authForm.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(retryAfterSec))
}

// shortSessionID はログ出力用にブラウザセッション識別子の先頭8文字を返す。
func shortSessionID(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
