// Package analytics fetches chunked pageview reports from the analytics
// provider, serving repeated requests from a fingerprint-keyed chunk cache.
package analytics
