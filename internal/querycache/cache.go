// Package querycache keeps the last server response per (scope, operation,
// variables), the way a GraphQL client cache does.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Key builds a stable cache key. Scope separates users sharing one backend.
// encoding/json sorts map keys, so equal variable sets hash equally.
func Key(scope, operation string, vars map[string]any) string {
	raw, err := json.Marshal(vars)
	if err != nil {
		raw = []byte("{}")
	}
	return "gql:" + scope + ":" + operation + ":" + strconv.FormatUint(xxhash.Sum64(raw), 16)
}
