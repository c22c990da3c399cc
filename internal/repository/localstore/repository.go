package localstore

import "context"

// Repository is a small durable key/value store, the local-storage
// substrate of the client. Get returns domain.ErrNotFound for missing keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
