// Package settings provides the engine's settings-store contract: typed
// lookups with defaults, consulted at startup and by handlers via the
// execution context.
package settings

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Store is the settings-store contract.
type Store interface {
	Get(key string, def string) string
	GetInt(key string, def int) int
	GetLong(key string, def int64) int64
	GetDouble(key string, def float64) float64
	GetBool(key string, def bool) bool
}

// MapStore is an in-memory Store, useful for tests and as the settings
// store when Redis is not configured.
type MapStore struct {
	values map[string]string
}

// NewMapStore returns a Store backed by the given key-value pairs.
func NewMapStore(values map[string]string) *MapStore {
	if values == nil {
		values = map[string]string{}
	}
	return &MapStore{values: values}
}

func (s *MapStore) Get(key string, def string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *MapStore) GetInt(key string, def int) int {
	if v, ok := s.values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *MapStore) GetLong(key string, def int64) int64 {
	if v, ok := s.values[key]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (s *MapStore) GetDouble(key string, def float64) float64 {
	if v, ok := s.values[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s *MapStore) GetBool(key string, def bool) bool {
	if v, ok := s.values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// RedisStore is a read-through settings store: lookups hit an in-process
// LRU cache first, falling back to Redis (and populating the cache) on
// miss. A Redis failure degrades to def, since settings are non-critical
// to a single run's correctness.
type RedisStore struct {
	client *redis.Client
	cache  *lru.Cache[string, string]
	ctx    context.Context
}

// NewRedisStore returns a RedisStore with an LRU cache of cacheSize entries.
func NewRedisStore(client *redis.Client, cacheSize int) (*RedisStore, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, cache: cache, ctx: context.Background()}, nil
}

func (s *RedisStore) lookup(key string) (string, bool) {
	if v, ok := s.cache.Get(key); ok {
		return v, true
	}
	v, err := s.client.Get(s.ctx, "settings:"+key).Result()
	if err != nil {
		return "", false
	}
	s.cache.Add(key, v)
	return v, true
}

func (s *RedisStore) Get(key string, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s *RedisStore) GetInt(key string, def int) int {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *RedisStore) GetLong(key string, def int64) int64 {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (s *RedisStore) GetDouble(key string, def float64) float64 {
	if v, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s *RedisStore) GetBool(key string, def bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Known setting keys, per the external-interfaces contract.
const (
	KeyHTTPConnectTimeoutMs = "http.connect_timeout_ms"
	KeyHTTPReadTimeoutMs    = "http.read_timeout_ms"
	KeyExecutionTimeoutSec  = "execution.default_timeout_seconds"
	KeyExecutionMaxParallel = "execution.max_parallel"
	KeyRetryAttempts        = "retry.attempts"
	KeyRetryDelayMs         = "retry.delay_ms"
	KeyAIDefaultModel       = "ai.%s.default_model"
	KeyAIBaseURL            = "ai.%s.base_url"
	KeyAIAPIKey             = "ai.%s.api_key"
	KeyExecutionLogLevel    = "execution.log_level"
)
