// Package flagstore defines the core interfaces, types, and helpers of a persistent data store
// for feature flag configuration (flags, segments) kept in a distributed key-value service.
//
// The key-value service is abstracted by Backend, which only has to offer single key reads,
// prefix listing, compare-and-swap on a per key modify token and small atomic transactions.
// Concrete backends live in subpackages such as consul, redis and cassandra, while the
// synchronization logic shared by all of them (full dataset Init, versioned Upsert, reads and
// the "initialized" marker) lives in the datastore package. The cache package layers an
// in-process TTL cache on top of any DataStore and restapi surfaces one over HTTP.
//
// # Storage layout
//
// Every item is stored under "{prefix}/{kind namespace}/{item key}", e.g.
// "launchdarkly/features/my-flag". The special key "{prefix}/$inited" is written last by Init
// and tells readers that the store contains a complete data set.
//
// Since transactions of the underlying services are bounded (Consul accepts at most 64
// operations per transaction), Init is not atomic. To keep the window for races with Upsert
// calls of other processes small, Init writes all received items first and only then deletes
// the keys that are no longer referenced.
package flagstore
