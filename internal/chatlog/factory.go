package chatlog

import (
	"context"
	"strings"
)

// NewStore picks the postgres store when a database URL is configured and
// falls back to the in-memory store otherwise.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
