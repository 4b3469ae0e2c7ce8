// Package api serves the operator HTTP surface over chi.
//
// Health checks and scraping live at the root (/healthz, /readyz, /metrics). Everything
// under /v1 sits behind the optional X-API-Key check:
//
//	POST /v1/import/chunks/{index}           import one report chunk
//	GET  /v1/resources/{resource_id}/total   recompute and store a resource total
//	GET  /v1/resources/{resource_id}/stored-total
//	GET  /v1/resources/{resource_id}/variants
//	GET  /v1/paths/count?path=               pageviews of a path and its slash form
//	GET  /v1/pageviews?limit=&offset=        stored rows, highest count first
//	GET  /v1/profiles                        readable views grouped by web property
//	GET  /v1/auth/status                     credential state, never the tokens
//	POST /v1/auth/revoke                     forget the held credential
//
// Domain errors map to status codes in writeDomainError.
package api
