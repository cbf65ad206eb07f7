package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "shelfshare:revoked:"
	revokerTimeout   = 3 * time.Second
)

// TokenRevoker remembers revoked session token IDs until the tokens would
// have expired anyway.
type TokenRevoker interface {
	Revoke(tokenID string, ttl time.Duration) error
	IsRevoked(tokenID string) (bool, error)
}

// MemoryTokenRevoker is a process-local revoker. Suitable for tests and
// single-instance deployments only.
type MemoryTokenRevoker struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{until: make(map[string]time.Time)}
}

func (m *MemoryTokenRevoker) Revoke(tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	// Drop entries whose tokens have expired on their own.
	for id, deadline := range m.until {
		if now.After(deadline) {
			delete(m.until, id)
		}
	}
	m.until[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryTokenRevoker) IsRevoked(tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.until[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(m.until, tokenID)
		return false, nil
	}
	return true, nil
}

// RedisTokenRevoker shares revocations across instances. Redis expiry does
// the cleanup.
type RedisTokenRevoker struct {
	client *redis.Client
}

func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (r *RedisTokenRevoker) Revoke(tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), revokerTimeout)
	defer cancel()
	return r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), revokerTimeout)
	defer cancel()
	err := r.client.Get(ctx, revokedKeyPrefix+tokenID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
