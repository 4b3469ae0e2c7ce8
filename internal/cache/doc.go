// Package cache groups the chunk cache backends. Every backend implements
// counter.ChunkCache: entries expire at put time + ttl and are never served
// at or after that instant.
//
//   - memory: bounded LRU for single-process deployments and tests.
//   - redis: shared cache with server-side expiry.
//
// A Postgres-backed cache lives with the other tables in storage/postgres.
package cache
