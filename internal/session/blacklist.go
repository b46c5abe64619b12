package session

import (
	"context"
	"sync"
	"time"
)

// Blacklist 已注销令牌的记录，条目保留到令牌本身过期为止
type Blacklist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryBlacklist 进程内黑名单，单实例部署使用
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if expiresAt.After(now) {
		b.entries[tokenID] = expiresAt
	}
	// 顺带清理已过期的条目
	for id, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, id)
		}
	}
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	exp, ok := b.entries[tokenID]
	return ok && exp.After(b.now()), nil
}

func (b *MemoryBlacklist) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
