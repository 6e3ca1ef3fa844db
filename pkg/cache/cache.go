// Package cache stores rendered recipe results.
//
// A [Cache] is a byte store with expiration. Backends:
//   - [FileCache]: one file per entry under a directory, for the CLI
//   - [RedisCache]: shared cache for several server instances
//   - [MongoCache]: persistent cache in a MongoDB collection
//   - [NullCache]: caching disabled
//
// Keys come from a [Keyer], which hashes everything a render depends on.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the storage interface shared by all backends.
type Cache interface {
	// Get returns the stored data and whether the key was found and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Clearer is implemented by backends that can drop all their entries.
type Clearer interface {
	Clear(ctx context.Context) error
}

// TTLRender is how long rendered results are kept.
const TTLRender = 7 * 24 * time.Hour

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Open connects to the named backend. For the file backend url is the cache
// directory; for redis and mongo it is the connection URL.
func Open(ctx context.Context, backend, url string) (Cache, error) {
	switch backend {
	case BackendFile, "":
		c, err := NewFileCache(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMongo:
		c, err := NewMongoCache(ctx, url, DefaultMongoDatabase, DefaultMongoCollection)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want file, redis, mongo or none)", backend)
	}
}
