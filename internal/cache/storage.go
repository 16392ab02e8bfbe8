package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrUnknownBackend is returned by NewStorage for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Storage persists named partitions of response entries.
type Storage interface {
	// Open creates the partition if it does not exist yet.
	Open(ctx context.Context, partition string) error
	// Partitions lists every partition name currently present.
	Partitions(ctx context.Context) ([]string, error)
	Get(ctx context.Context, partition, key string) (*Entry, bool, error)
	// Set stores entry, creating the partition lazily.
	Set(ctx context.Context, partition, key string, entry *Entry) error
	// DeletePartition removes a whole partition; it reports whether one existed.
	DeletePartition(ctx context.Context, partition string) (bool, error)
	Close() error
}

// NewStorage selects a Storage by backend name. "sqlite" and "postgres"
// share the database the rest of the edge uses.
func NewStorage(backend string, db *gorm.DB) (Storage, error) {
	switch backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite", "postgres", "database":
		if db == nil {
			return nil, fmt.Errorf("%w: %s requires a database", ErrUnknownBackend, backend)
		}
		return NewGormStorage(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
