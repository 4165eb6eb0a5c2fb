package memory

import (
	"context"
	"strings"
)

// NewStores creates postgres-backed stores when configured, otherwise
// in-memory. Both stores share one pool so a single DATABASE_URL configures
// everything.
func NewStores(ctx context.Context, databaseURL string) (Store, CallerStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		mem := NewInMemoryStore()
		return mem, mem, nil
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg, nil
}
