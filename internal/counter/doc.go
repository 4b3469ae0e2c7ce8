// Package counter holds the domain types and ports shared by the importer,
// the aggregation engine, and their storage and transport adapters.
//
// Adapters live in sibling packages (hash/md5, storage/postgres, cache/redis,
// analytics/ga, ...). This package must not import drivers or clients.
package counter
