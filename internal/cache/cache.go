package cache

import (
	"context"
	"fmt"
)

// ArtifactCache caches JSON encoded per-user artifacts
type ArtifactCache interface {
	// Get decodes the cached value into dst. ok is false on a miss.
	Get(ctx context.Context, key string, dst interface{}) (ok bool, err error)
	Set(ctx context.Context, key string, v interface{}) error
	// Invalidate drops every entry of a user
	Invalidate(ctx context.Context, user string) error
	Close() error
}

const keyPrefix = "ridemetrics"

// Key returns the cache key of a user's artifact
func Key(user, name string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, user, name)
}

func userPattern(user string) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, user)
}
