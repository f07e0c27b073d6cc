package secretcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore vive en el proceso. Útil para tests y corridas efímeras.
type MemoryStore struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewMemoryStore: ttl 0 = sin expiración.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{c: gocache.New(ttl, time.Minute), ttl: ttl}
}

func memKey(username, environment string) string { return environment + "/" + username }

func (m *MemoryStore) Save(_ context.Context, username, environment, secret string) error {
	m.c.Set(memKey(username, environment), secret, m.ttl)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, username, environment string) (string, error) {
	v, ok := m.c.Get(memKey(username, environment))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, username, environment string) error {
	m.c.Delete(memKey(username, environment))
	return nil
}

func (m *MemoryStore) Close() error { return nil }
