package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/autotrackr/internal/backend"
	"github.com/hitoshi/autotrackr/internal/localstore"
	"github.com/hitoshi/autotrackr/internal/metrics"
	"github.com/hitoshi/autotrackr/internal/repository"
	"github.com/hitoshi/autotrackr/internal/security"
)

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	IdleTTL       time.Duration // 最終アクセスからStoreを破棄するまでの時間
	StorageTTL    time.Duration // 最終アクセスからストレージを破棄するまでの時間。Cookieの有効期限に合わせる
	SweepInterval time.Duration // アイドルStoreの掃除間隔
	StorageQuota  int           // ブラウザセッションごとのストレージ容量
	Store         Config
}

// DefaultRegistryConfig はデフォルトの設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTTL:       30 * time.Minute,
		StorageTTL:    7 * 24 * time.Hour,
		SweepInterval: 5 * time.Minute,
		StorageQuota:  localstore.DefaultQuota,
		Store:         DefaultConfig(),
	}
}

// RegistryDeps はRegistryの依存。
type RegistryDeps struct {
	Auth      backend.AuthAPI
	Profiles  repository.ProfileRepository
	Sanitizer security.TextSanitizer
	Logger    *slog.Logger
	Metrics   metrics.MetricsCollector

	// NewAuthSession はストレージに紐づく認証クライアントを生成する。
	// nilの場合はbackend.NewSessionClientを使用する。
	NewAuthSession func(storage localstore.Storage) AuthSession
}

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// storageEntry はStoreより長く生存する。Storeがアイドルで破棄されても
// 同じsidの次のStoreがトークンやプロフィールのキャッシュを引き継ぐ。
type storageEntry struct {
	storage  *localstore.Memory
	lastSeen time.Time
}

// Registry はブラウザセッション識別子ごとにStoreとストレージを保持する。
type Registry struct {
	deps   RegistryDeps
	config RegistryConfig
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]*registryEntry
	storages map[string]*storageEntry
	closed   bool
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(deps RegistryDeps, config RegistryConfig) *Registry {
	def := DefaultRegistryConfig()
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if config.StorageTTL <= 0 {
		config.StorageTTL = def.StorageTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = security.NewTextSanitizer()
	}
	if deps.NewAuthSession == nil {
		api := deps.Auth
		deps.NewAuthSession = func(storage localstore.Storage) AuthSession {
			return backend.NewSessionClient(api, storage)
		}
	}
	return &Registry{
		deps:     deps,
		config:   config,
		now:      time.Now,
		entries:  make(map[string]*registryEntry),
		storages: make(map[string]*storageEntry),
	}
}

// Get はsidのStoreを返す。存在しない場合は生成して初期化を開始する。
// Close済みの場合はnilを返す。
func (r *Registry) Get(sid string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	now := r.now()
	se, ok := r.storages[sid]
	if !ok {
		se = &storageEntry{storage: localstore.NewMemory(r.config.StorageQuota)}
		r.storages[sid] = se
	}
	se.lastSeen = now

	if e, ok := r.entries[sid]; ok {
		e.lastSeen = now
		return e.store
	}

	storage := se.storage
	store := NewStore(Deps{
		Auth:      r.deps.NewAuthSession(storage),
		Profiles:  r.deps.Profiles,
		Storage:   storage,
		Sanitizer: r.deps.Sanitizer,
		Logger:    r.deps.Logger.With(slog.String("store", shortID(sid))),
		Metrics:   r.deps.Metrics,
	}, r.config.Store)
	r.entries[sid] = &registryEntry{store: store, lastSeen: now}
	r.deps.Metrics.SetActiveStores(len(r.entries))

	store.Start()
	return store
}

// lookup は既存のStoreを返す。存在しない場合はnilを返す。
func (r *Registry) lookup(sid string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sid]; ok {
		return e.store
	}
	return nil
}

// Reset はsidのStoreを破棄し、ストレージを消去する。
// 次回のGetで新しいStoreが初期化される。
func (r *Registry) Reset(sid string) {
	r.mu.Lock()
	e, hasStore := r.entries[sid]
	if hasStore {
		delete(r.entries, sid)
		r.deps.Metrics.SetActiveStores(len(r.entries))
	}
	se, hasStorage := r.storages[sid]
	delete(r.storages, sid)
	r.mu.Unlock()

	if !hasStore && !hasStorage {
		return
	}
	if hasStore {
		e.store.Close()
	}
	if hasStorage {
		se.storage.Clear()
	}
	r.deps.Logger.Info("ブラウザセッションの状態を初期化しました", slog.String("store", shortID(sid)))
}

// Sweep はIdleTTLを超えてアクセスのないStoreを破棄し、破棄した数を返す。
// ストレージはStorageTTLを超えるまで残し、同じsidで再開したStoreに引き継ぐ。
func (r *Registry) Sweep() int {
	now := r.now()
	storeCutoff := now.Add(-r.config.IdleTTL)
	storageCutoff := now.Add(-r.config.StorageTTL)

	r.mu.Lock()
	var expired []*registryEntry
	for sid, e := range r.entries {
		if e.lastSeen.Before(storeCutoff) {
			expired = append(expired, e)
			delete(r.entries, sid)
		}
	}
	var staleStorages []*localstore.Memory
	for sid, se := range r.storages {
		if _, live := r.entries[sid]; !live && se.lastSeen.Before(storageCutoff) {
			staleStorages = append(staleStorages, se.storage)
			delete(r.storages, sid)
		}
	}
	if len(expired) > 0 {
		r.deps.Metrics.SetActiveStores(len(r.entries))
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.store.Close()
	}
	for _, storage := range staleStorages {
		storage.Clear()
	}
	if len(staleStorages) > 0 {
		r.deps.Logger.Info("期限切れのストレージを破棄しました", slog.Int("count", len(staleStorages)))
	}
	if len(expired) > 0 {
		r.deps.Logger.Info("アイドル状態のセッションを破棄しました", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run はctxがキャンセルされるまで定期的にSweepを実行する。
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// size は保持しているStore数を返す。
func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close はすべてのStoreを破棄する。
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.store.Close()
	}
	r.deps.Metrics.SetActiveStores(0)
}

// shortID はログ出力用にsidの先頭8文字を返す。
func shortID(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
