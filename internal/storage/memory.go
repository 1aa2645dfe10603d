package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process KV used by tests and single-node development.
// It honors TTLs against an injectable clock so expiry can be exercised
// without waiting.
type Memory struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     string
	list      []string
	expiresAt time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Test-only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// live returns the item at key, dropping it first if its TTL has lapsed.
// Caller must hold the lock.
func (m *Memory) live(key string) *memoryItem {
	item, ok := m.items[key]
	if !ok {
		return nil
	}

	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return nil
	}

	return item
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.live(key)
	if item == nil {
		return "", ErrNotFound
	}

	return item.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = &memoryItem{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(key) != nil {
		return false, nil
	}

	m.items[key] = &memoryItem{value: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.live(key)
	if item == nil {
		item = &memoryItem{}
		m.items[key] = item
	}

	current := int64(0)
	if item.value != "" {
		parsed, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		current = parsed
	}

	current += n
	item.value = strconv.FormatInt(current, 10)

	return current, nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.live(key); item != nil {
		item.expiresAt = m.deadline(ttl)
	}

	return nil
}

func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.live(key)
	if item == nil {
		return 0, ErrNotFound
	}

	if item.expiresAt.IsZero() {
		return 0, nil
	}

	return item.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func (m *Memory) PushTrim(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.live(key)
	if item == nil {
		item = &memoryItem{}
		m.items[key] = item
	}

	item.list = append(item.list, value)
	if int64(len(item.list)) > max {
		item.list = item.list[int64(len(item.list))-max:]
	}
	item.expiresAt = m.deadline(ttl)

	return nil
}

func (m *Memory) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.live(key)
	if item == nil {
		return []string{}, nil
	}

	n := int64(len(item.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}, nil
	}

	out := make([]string, stop-start+1)
	copy(out, item.list[start:stop+1])

	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return m.now().Add(ttl)
}
