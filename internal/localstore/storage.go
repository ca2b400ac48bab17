// Package localstore はブラウザセッション単位のキー・バリューストレージを提供する。
// 認証トークン、PKCEのcode verifier、プロフィールのキャッシュを保持する。
package localstore

import (
	"encoding/json"
	"errors"
	"sync"
)

// DefaultQuota は1ストレージあたりの既定の容量上限（バイト）。
const DefaultQuota = 5 * 1024 * 1024

// ErrQuotaExceeded は容量上限を超える書き込みで返される。
var ErrQuotaExceeded = errors.New("localstore: quota exceeded")

// Storage はブラウザのlocalStorage相当の操作を定義する。
type Storage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string)
	Clear()
}

// Memory はプロセス内メモリに保持するStorage実装。
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
	size  int
	quota int
}

// NewMemory はMemoryを生成する。quotaが0以下の場合はDefaultQuotaを使用する。
func NewMemory(quota int) *Memory {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Memory{
		items: make(map[string]string),
		quota: quota,
	}
}

// GetItem はキーに対応する値を返す。
func (m *Memory) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// SetItem は値を書き込む。容量上限を超える場合は書き込まずにErrQuotaExceededを返す。
func (m *Memory) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newSize := m.size + len(key) + len(value)
	if old, ok := m.items[key]; ok {
		newSize -= len(key) + len(old)
	}
	if newSize > m.quota {
		return ErrQuotaExceeded
	}
	m.items[key] = value
	m.size = newSize
	return nil
}

// RemoveItem はキーを削除する。
func (m *Memory) RemoveItem(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.items[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.items, key)
	}
}

// Clear は全てのキーを削除する。
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]string)
	m.size = 0
}

// count は保持しているキー数を返す。
func (m *Memory) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// GetJSON はキーの値をJSONとしてvにデコードする。
// キーが存在しない、またはデコードに失敗した場合はfalseを返す。
func GetJSON(s Storage, key string, v any) bool {
	raw, ok := s.GetItem(key)
	if !ok || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// SetJSON はvをJSONにエンコードして書き込む。
func SetJSON(s Storage, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetItem(key, string(b))
}

// compile-time interface check
var _ Storage = (*Memory)(nil)
