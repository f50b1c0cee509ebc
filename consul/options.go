// Package consul contains a flagstore.Backend over Consul's key-value store and the builder of
// Consul backed data stores.
//
// If you are using the same Consul host as a data store for multiple environments, choose a
// different Prefix for each, so they will not interfere with each other's data.
package consul

import (
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/cache"
)

// DefaultCacheTTL is how long NewCachingDataStore caches results when built from DefaultOptions.
const DefaultCacheTTL = 15 * time.Second

// Options configures the Consul connection and the data store on top of it.
type Options struct {
	// Address of the Consul agent, e.g. "localhost:8500" or "http://my-consul-host:8500".
	// Empty means the Consul client's default (CONSUL_HTTP_ADDR or localhost:8500).
	Address string `json:"address,omitempty"`
	// Scheme is "http" or "https". Empty keeps the client's default.
	Scheme string `json:"scheme,omitempty"`
	// Datacenter to use instead of the agent's.
	Datacenter string `json:"datacenter,omitempty"`
	// Token is the ACL token sent with every request.
	Token string `json:"token,omitempty"`
	// Prefix namespaces all keys of the store. Empty means flagstore.DefaultPrefix.
	Prefix string `json:"prefix,omitempty"`
	// MaxTxnOps caps operations per transaction. Zero means 64, Consul's limit.
	MaxTxnOps int `json:"max_txn_ops,omitempty"`
	// ConflictRetry paces Upsert retries after lost compare-and-swap races. Nil retries forever.
	ConflictRetry flagstore.ConflictRetryPolicy `json:"-"`

	// Cache configures the caching wrapper put in front of the store by NewCachingDataStore.
	// A zero TTL disables it.
	Cache cache.Options `json:"-"`

	// ConfigFuncs are applied, in order, to the Consul client configuration after the fields
	// above. They may modify it in any way.
	ConfigFuncs []func(*api.Config) `json:"-"`
	// Client is an existing, already configured Consul client. If set, the connection fields
	// and ConfigFuncs are ignored and the data store never closes the client's connections.
	Client *api.Client `json:"-"`
}

// DefaultOptions returns options for a local agent and the default prefix.
func DefaultOptions() Options {
	return Options{
		Address: "localhost:8500",
		Prefix:  "launchdarkly",
		Cache:   cache.Options{TTL: DefaultCacheTTL},
	}
}

// ToClientConfig transforms Options into api.Config, which is ready for use with the
// underlying consul package.
func ToClientConfig(options Options) *api.Config {
	clientCfg := api.DefaultConfig()
	if options.Address != "" {
		clientCfg.Address = options.Address
	}
	if options.Scheme != "" {
		clientCfg.Scheme = options.Scheme
	}
	if options.Datacenter != "" {
		clientCfg.Datacenter = options.Datacenter
	}
	if options.Token != "" {
		clientCfg.Token = options.Token
	}
	for _, f := range options.ConfigFuncs {
		if f != nil {
			f(clientCfg)
		}
	}
	return clientCfg
}
