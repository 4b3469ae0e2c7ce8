package counter

import (
	"context"
	"io"
	"time"
)

// AnalyticsClient executes a live report query against the provider.
type AnalyticsClient interface {
	FetchReport(ctx context.Context, params FetchParameters) (ChunkPayload, error)
}

// ProfileLister enumerates the views the held credential can query.
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]Property, error)
}

// ChunkCache stores fetched chunk payloads under a request fingerprint.
// The cache is advisory; callers fall through to a live fetch on any miss.
type ChunkCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, fingerprint string) error
}

// PageviewStore persists pageview counts keyed by path digest.
type PageviewStore interface {
	// UpsertPageview replaces the row for record.Key.
	UpsertPageview(ctx context.Context, record PageviewRecord) error
	// FindByKeys returns the rows matching any of keys in one lookup.
	FindByKeys(ctx context.Context, keys []PathKey) ([]PageviewRecord, error)
	// ListPageviews pages through rows ordered by pageviews descending.
	ListPageviews(ctx context.Context, limit, offset int) ([]PageviewRecord, error)
}

// TotalsStore persists resource-level totals.
type TotalsStore interface {
	UpsertTotal(ctx context.Context, total ResourceTotal) error
	GetTotal(ctx context.Context, resourceID int64) (ResourceTotal, error)
	// UpsertLegacyTotal mirrors a total into the legacy counter table.
	UpsertLegacyTotal(ctx context.Context, total ResourceTotal) error
}

// PathKeyer maps path variants to their storage keys.
type PathKeyer interface {
	Key(path string) PathKey
	// Keys maps every path to its key, preserving order.
	Keys(paths []string) []PathKey
}

// AliasResolver returns the localized alias for a canonical path, or the
// path itself when no alias is registered.
type AliasResolver interface {
	AliasByPath(path, localeID string) string
}

// Publisher pushes import notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore persists raw artifacts and returns a URI for them.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
