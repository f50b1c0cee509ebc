package restapi

import (
	"fmt"
	"os"
	"time"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/cache"
	"github.com/sharedcode/flagstore/cassandra"
	"github.com/sharedcode/flagstore/consul"
	"github.com/sharedcode/flagstore/datastore"
	"github.com/sharedcode/flagstore/encoding"
	"github.com/sharedcode/flagstore/inmemory"
	"github.com/sharedcode/flagstore/redis"
)

// Backend names accepted in Config.Backend.
const (
	BackendConsul    = "consul"
	BackendRedis     = "redis"
	BackendCassandra = "cassandra"
	BackendMemory    = "memory"
)

// CacheConfig configures the caching wrapper. TTL is a duration string like "30s"; empty or
// "0" disables caching and a negative value caches until the next Init.
type CacheConfig struct {
	TTL      string `json:"ttl,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// Config is the server configuration file content.
type Config struct {
	// Backend is one of consul, redis, cassandra or memory. Defaults to consul.
	Backend   string           `json:"backend,omitempty"`
	Consul    consul.Options   `json:"consul"`
	Redis     redis.Options    `json:"redis"`
	Cassandra cassandra.Config `json:"cassandra"`
	Cache     CacheConfig      `json:"cache"`
	// Listen is the address the server listens on. Defaults to "localhost:8080".
	Listen string `json:"listen,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConsul,
		Consul:  consul.DefaultOptions(),
		Redis:   redis.DefaultOptions(),
		Listen:  "localhost:8080",
	}
}

// LoadConfig reads the JSON configuration file at path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	ba, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("can't read config file %s: %w", path, err)
	}
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &cfg); err != nil {
		return cfg, fmt.Errorf("can't parse config file %s: %w", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendConsul
	}
	if cfg.Listen == "" {
		cfg.Listen = "localhost:8080"
	}
	return cfg, nil
}

// CacheOptions converts the cache section to cache.Options.
func (cfg Config) CacheOptions() (cache.Options, error) {
	o := cache.Options{Capacity: cfg.Cache.Capacity}
	if cfg.Cache.TTL == "" {
		return o, nil
	}
	ttl, err := time.ParseDuration(cfg.Cache.TTL)
	if err != nil {
		return o, fmt.Errorf("invalid cache ttl %q: %w", cfg.Cache.TTL, err)
	}
	o.TTL = ttl
	return o, nil
}

// OpenDataStore builds the configured backend data store and, when a cache TTL is set, wraps
// it with the caching store.
func OpenDataStore(cfg Config) (flagstore.DataStore, error) {
	cacheOptions, err := cfg.CacheOptions()
	if err != nil {
		return nil, err
	}
	var store flagstore.DataStore
	switch cfg.Backend {
	case BackendConsul, "":
		store, err = consul.NewDataStore(cfg.Consul)
	case BackendRedis:
		store, err = redis.NewDataStore(cfg.Redis)
	case BackendCassandra:
		store, err = cassandra.NewDataStore(cfg.Cassandra)
	case BackendMemory:
		store, err = datastore.New[uint64](inmemory.NewBackend(inmemory.Options{}), flagstore.StoreOptions{
			Prefix: flagstore.DefaultPrefix,
		}, true)
	default:
		return nil, fmt.Errorf("unknown backend %q, expected consul, redis, cassandra or memory", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cacheOptions.TTL == 0 {
		return store, nil
	}
	return cache.New(store, cacheOptions), nil
}
