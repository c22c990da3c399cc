package localstore

import (
	"context"
	"sync"

	"tiketloka-storefront/internal/domain"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory returns a process-local Repository.
func NewMemory() Repository {
	return &memoryRepo{items: make(map[string][]byte)}
}

func (r *memoryRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	v, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (r *memoryRepo) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.items[key] = append([]byte(nil), value...)
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
	return nil
}
