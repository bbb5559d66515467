package store

import (
	"context"
	"fmt"

	mydb "github.com/mbolshakov/gotrial/internal/db"
)

// NewStore creates a new experiment store based on the given store type.
// Supported types: "memory", "postgres".
func NewStore(ctx context.Context, storeType, dbDSN, table string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, dbDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pg := NewPostgresStore(pool, table)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
