package counter

import "time"

// PathKey is the fixed-width digest of a path variant used as a storage key.
type PathKey string

// Locale describes one site language and its optional URL prefix.
type Locale struct {
	ID     string `mapstructure:"id" json:"id"`
	Prefix string `mapstructure:"prefix" json:"prefix"`
}

// PageviewRecord is one row of the pageview_by_path table.
type PageviewRecord struct {
	Key       PathKey `json:"path_hash"`
	Path      string  `json:"path"`
	Pageviews int64   `json:"pageviews"`
}

// ResourceTotal is the aggregated pageview count for a resource.
type ResourceTotal struct {
	ResourceID int64     `json:"resource_id"`
	Pageviews  int64     `json:"pageview_total"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FetchParameters describes one chunked report query. Values are built per
// chunk and never mutated afterwards.
type FetchParameters struct {
	SourceID   string    `json:"profile_id"`
	Dimensions []string  `json:"dimensions"`
	Metrics    []string  `json:"metrics"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	StartIndex int       `json:"start_index"`
	MaxResults int       `json:"max_results"`
}

// Validate rejects parameter sets that must never reach the provider.
func (p FetchParameters) Validate() error {
	if p.SourceID == "" {
		return &ConfigurationError{Field: "profile_id", Reason: "is required"}
	}
	if p.StartIndex < 1 {
		return &ConfigurationError{Field: "start_index", Reason: "must be >= 1"}
	}
	if p.MaxResults <= 0 {
		return &ConfigurationError{Field: "max_results", Reason: "must be > 0"}
	}
	if len(p.Metrics) == 0 {
		return &ConfigurationError{Field: "metrics", Reason: "at least one metric is required"}
	}
	return nil
}

// ReportRow is a single (path, pageviews) row returned by the provider.
type ReportRow struct {
	Path      string `json:"path"`
	Pageviews int64  `json:"pageviews"`
}

// ChunkPayload is one page of report rows. Error carries a provider-reported
// failure that arrived with an otherwise well-formed response.
type ChunkPayload struct {
	Rows         []ReportRow `json:"rows"`
	TotalResults int         `json:"total_results"`
	Error        string      `json:"error,omitempty"`
}

// CacheOptions controls how a fetch interacts with the chunk cache.
//   - Fingerprint: cache key; empty means "derive from the parameters".
//   - TTL: entry lifetime; zero means the fetcher's configured default.
//   - Refresh: skip the cache lookup but still store the fresh result.
type CacheOptions struct {
	Fingerprint string
	TTL         time.Duration
	Refresh     bool
}

// Summary reports the outcome of one chunk import.
type Summary struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	StartIndex int       `json:"start_index"`
	Rows       int       `json:"rows"`
	Exhausted  bool      `json:"exhausted"`
	FinishedAt time.Time `json:"finished_at"`
	// ArchiveURI points at the raw rows when an archive is configured.
	ArchiveURI string `json:"archive_uri,omitempty"`
}

// Profile is one reporting view a source id can point at.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Property groups the views of one tracked web property.
type Property struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WebsiteURL string    `json:"website_url,omitempty"`
	Profiles   []Profile `json:"profiles"`
}
