// Package ga implements counter.AnalyticsClient against the Google Analytics
// Core Reporting API v3 through the generated google.golang.org/api client.
package ga

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	gav3 "google.golang.org/api/analytics/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// DefaultBaseURL is the Core Reporting API v3 root.
const DefaultBaseURL = "https://analytics.googleapis.com/analytics/v3/"

const (
	dateLayout = "2006-01-02"
	allItems   = "~all"
)

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues report and management queries over an authorized HTTP
// client, typically one produced by golang.org/x/oauth2.
type Client struct {
	svc    *gav3.Service
	logger *zap.Logger
}

// New returns a Client. httpClient must attach credentials.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *zap.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout > 0 {
		clone := *httpClient
		clone.Timeout = cfg.Timeout
		httpClient = &clone
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := gav3.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(base))
	if err != nil {
		return nil, fmt.Errorf("init analytics service: %w", err)
	}
	return &Client{svc: svc, logger: logger}, nil
}

// FetchReport runs one data/ga query and maps the rows onto (path, pageviews).
func (c *Client) FetchReport(ctx context.Context, params counter.FetchParameters) (counter.ChunkPayload, error) {
	if len(params.Dimensions) == 0 {
		return counter.ChunkPayload{}, &counter.ConfigurationError{Field: "dimensions", Reason: "at least one dimension is required"}
	}
	data, err := c.svc.Data.Ga.Get(
		params.SourceID,
		params.StartDate.Format(dateLayout),
		params.EndDate.Format(dateLayout),
		strings.Join(params.Metrics, ","),
	).
		Dimensions(strings.Join(params.Dimensions, ",")).
		StartIndex(int64(params.StartIndex)).
		MaxResults(int64(params.MaxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return counter.ChunkPayload{}, apiError("report query", err)
	}
	return toPayload(data, params)
}

// ListProfiles returns every view the credential can read, grouped by web
// property. Without a usable credential the list is empty.
func (c *Client) ListProfiles(ctx context.Context) ([]counter.Property, error) {
	props, err := c.svc.Management.Webproperties.List(allItems).Context(ctx).Do()
	if err != nil {
		return c.emptyOnAuth(apiError("list web properties", err))
	}
	views, err := c.svc.Management.Profiles.List(allItems, allItems).Context(ctx).Do()
	if err != nil {
		return c.emptyOnAuth(apiError("list profiles", err))
	}

	out := make([]counter.Property, 0, len(props.Items))
	index := make(map[string]int, len(props.Items))
	for _, p := range props.Items {
		index[p.Id] = len(out)
		out = append(out, counter.Property{ID: p.Id, Name: p.Name, WebsiteURL: p.WebsiteUrl, Profiles: []counter.Profile{}})
	}
	for _, v := range views.Items {
		i, ok := index[v.WebPropertyId]
		if !ok {
			i = len(out)
			index[v.WebPropertyId] = i
			out = append(out, counter.Property{ID: v.WebPropertyId, WebsiteURL: v.WebsiteUrl, Profiles: []counter.Profile{}})
		}
		out[i].Profiles = append(out[i].Profiles, counter.Profile{ID: v.Id, Name: v.Name})
	}
	return out, nil
}

func (c *Client) emptyOnAuth(err error) ([]counter.Property, error) {
	if errors.Is(err, counter.ErrAuthentication) {
		c.logger.Info("no usable credential, returning no profiles")
		return []counter.Property{}, nil
	}
	return nil, err
}

// apiError maps a failed call onto the domain error kinds.
func apiError(op string, err error) error {
	if errors.Is(err, counter.ErrAuthentication) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w", op, counter.ErrAuthentication)
		}
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &counter.UpstreamRequestError{StatusCode: gerr.Code, Message: msg, Err: err}
	}
	return &counter.UpstreamRequestError{Message: err.Error(), Err: err}
}

// toPayload locates the first dimension and metric columns by header name.
func toPayload(data *gav3.GaData, params counter.FetchParameters) (counter.ChunkPayload, error) {
	pathCol, viewsCol := -1, -1
	for i, h := range data.ColumnHeaders {
		if h == nil {
			continue
		}
		switch h.Name {
		case params.Dimensions[0]:
			pathCol = i
		case params.Metrics[0]:
			viewsCol = i
		}
	}
	if len(data.Rows) > 0 && (pathCol < 0 || viewsCol < 0) {
		return counter.ChunkPayload{}, &counter.UpstreamRequestError{Message: "response is missing expected columns"}
	}

	payload := counter.ChunkPayload{TotalResults: int(data.TotalResults), Rows: make([]counter.ReportRow, 0, len(data.Rows))}
	for _, row := range data.Rows {
		if pathCol >= len(row) || viewsCol >= len(row) {
			return counter.ChunkPayload{}, &counter.UpstreamRequestError{Message: "short row in report"}
		}
		views, err := strconv.ParseInt(row[viewsCol], 10, 64)
		if err != nil {
			return counter.ChunkPayload{}, &counter.UpstreamRequestError{Message: fmt.Sprintf("parse pageviews %q", row[viewsCol]), Err: err}
		}
		payload.Rows = append(payload.Rows, counter.ReportRow{Path: row[pathCol], Pageviews: views})
	}
	return payload, nil
}
