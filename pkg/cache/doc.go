// Package cache stores upstream payloads keyed by a fingerprint of the
// capability and its canonicalized parameters.
//
// An entry is fresh while its age is within its TTL and stale afterwards.
// Stale entries are kept for as long as the configured maximum stale age so
// they can be served when every provider is down; past that they are purged,
// lazily on read or by a periodic bounded Sweep. Entries are replaced, never
// modified in place.
//
// FetchOrLoad collapses concurrent loads of the same key into one call.
//
// Three Store backends are provided:
//
//   - MemoryStore: sharded in-process map, the default
//   - SQLiteStore: a local database file that survives restarts
//   - RedisStore: shared between instances, expiry handled by Redis
package cache
