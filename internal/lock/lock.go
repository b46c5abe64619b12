package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrLockFailed = errors.New("获取锁失败")

// Locker 按 key 串行化临界区
type Locker interface {
	// Lock 阻塞直到获得 key 对应的锁，返回释放函数
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// DonorKey 同一捐款人的捐款请求共用一把锁
func DonorKey(donorID int) string {
	return fmt.Sprintf("donation:lock:donor:%d", donorID)
}

// KeyedMutex 单进程内的按 key 互斥锁
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex 创建按 key 互斥锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

// release 没有等待者时删除条目，避免 map 无限增长
func (m *KeyedMutex) release(key string, e *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
