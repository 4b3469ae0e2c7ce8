package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/config"
	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/credential"
	"github.com/JakeFAU/pageview-counter/internal/storage/memory"
)

type fakeImporter struct {
	summary counter.Summary
	err     error
	got     []int
}

func (f *fakeImporter) RunChunk(_ context.Context, index int) (counter.Summary, error) {
	f.got = append(f.got, index)
	if f.err != nil {
		return counter.Summary{}, f.err
	}
	s := f.summary
	s.Index = index
	return s, nil
}

type fakeAggregator struct {
	total counter.ResourceTotal
	count int64
	err   error
	paths []string
}

func (f *fakeAggregator) Aggregate(_ context.Context, id int64) (counter.ResourceTotal, error) {
	if f.err != nil {
		return counter.ResourceTotal{}, f.err
	}
	t := f.total
	t.ResourceID = id
	return t, nil
}

func (f *fakeAggregator) CountForPath(_ context.Context, path string) (int64, error) {
	f.paths = append(f.paths, path)
	return f.count, f.err
}

func (f *fakeAggregator) Variants(id int64) []string {
	p := "/node/" + strconv.FormatInt(id, 10)
	return []string{p, p + "/"}
}

func do(t *testing.T, s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{}, config.AuthConfig{}, zap.NewNop())
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ready := NewServer(Dependencies{}, config.AuthConfig{}, nil)
	assert.Equal(t, http.StatusOK, do(t, ready, http.MethodGet, "/readyz", nil).Code)

	down := NewServer(Dependencies{Ready: func(context.Context) error { return errors.New("db down") }}, config.AuthConfig{}, nil)
	rec := do(t, down, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestImportChunk(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{summary: counter.Summary{RunID: "run-1", Rows: 2, Exhausted: true}}
	s := NewServer(Dependencies{Importer: imp}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodPost, "/v1/import/chunks/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Summary counter.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Summary.Index)
	assert.Equal(t, 2, body.Summary.Rows)
	assert.Equal(t, []int{3}, imp.got)
}

func TestImportChunkBadIndex(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{}
	s := NewServer(Dependencies{Importer: imp}, config.AuthConfig{}, nil)
	for _, idx := range []string{"-1", "abc"} {
		rec := do(t, s, http.MethodPost, "/v1/import/chunks/"+idx, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, idx)
	}
	assert.Empty(t, imp.got)
}

func TestImportChunkErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "auth", err: counter.ErrAuthentication, want: http.StatusUnauthorized},
		{name: "upstream", err: &counter.UpstreamRequestError{Message: "quota"}, want: http.StatusBadGateway},
		{name: "config", err: &counter.ConfigurationError{Field: "analytics.profile_id", Reason: "is required"}, want: http.StatusInternalServerError},
		{name: "timeout", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewServer(Dependencies{Importer: &fakeImporter{err: tc.err}}, config.AuthConfig{}, nil)
			rec := do(t, s, http.MethodPost, "/v1/import/chunks/0", nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAggregateResource(t *testing.T) {
	t.Parallel()

	agg := &fakeAggregator{total: counter.ResourceTotal{Pageviews: 13, UpdatedAt: time.Unix(10, 0).UTC()}}
	s := NewServer(Dependencies{Aggregator: agg}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/resources/5/total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total counter.ResourceTotal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(5), body.Total.ResourceID)
	assert.Equal(t, int64(13), body.Total.Pageviews)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/resources/zero/total", nil).Code)

	rec = do(t, s, http.MethodGet, "/v1/resources/5/variants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/node/5/")
}

func TestStoredTotal(t *testing.T) {
	t.Parallel()

	totals := memory.NewTotalsStore()
	require.NoError(t, totals.UpsertTotal(context.Background(), counter.ResourceTotal{ResourceID: 8, Pageviews: 21}))
	s := NewServer(Dependencies{Totals: totals}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/resources/8/stored-total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pageview_total":21`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/resources/9/stored-total", nil).Code)
}

func TestCountPath(t *testing.T) {
	t.Parallel()

	agg := &fakeAggregator{count: 7}
	s := NewServer(Dependencies{Aggregator: agg}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/paths/count?path=/blog/post", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pageviews":7`)
	assert.Equal(t, []string{"/blog/post"}, agg.paths)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/paths/count", nil).Code)
}

func TestListPageviews(t *testing.T) {
	t.Parallel()

	store := memory.NewPageviewStore()
	for i, p := range []string{"/a", "/b", "/c"} {
		require.NoError(t, store.UpsertPageview(context.Background(), counter.PageviewRecord{
			Key: counter.PathKey(p), Path: p, Pageviews: int64(i + 1),
		}))
	}
	s := NewServer(Dependencies{Pageviews: store}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/pageviews?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pageviews []counter.PageviewRecord `json:"pageviews"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pageviews, 2)
	assert.Equal(t, "/c", body.Pageviews[0].Path)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/pageviews?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/pageviews?offset=x", nil).Code)
}

type fakeProfiles struct {
	props []counter.Property
	err   error
}

func (f fakeProfiles) ListProfiles(context.Context) ([]counter.Property, error) {
	return f.props, f.err
}

func TestListProfiles(t *testing.T) {
	t.Parallel()

	props := []counter.Property{{ID: "UA-1-1", Name: "Main", Profiles: []counter.Profile{{ID: "101", Name: "All"}}}}
	s := NewServer(Dependencies{Profiles: fakeProfiles{props: props}}, config.AuthConfig{}, nil)
	rec := do(t, s, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Properties []counter.Property `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, props, body.Properties)

	rec = do(t, NewServer(Dependencies{}, config.AuthConfig{}, nil), http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"properties": []}`, rec.Body.String())

	failing := NewServer(Dependencies{Profiles: fakeProfiles{err: &counter.UpstreamRequestError{StatusCode: 500, Message: "backend"}}}, config.AuthConfig{}, nil)
	assert.Equal(t, http.StatusBadGateway, do(t, failing, http.MethodGet, "/v1/profiles", nil).Code)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestAuthStatusAndRevoke(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := credential.NewStore(credential.Credentials{
		AccessToken:  "secret-access",
		ExpiresAt:    now.Add(time.Hour),
		RefreshToken: "secret-refresh",
	}, nil, fixedClock{now}, nil)
	s := NewServer(Dependencies{Credentials: store}, config.AuthConfig{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/auth/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-access")
	assert.NotContains(t, rec.Body.String(), "secret-refresh")
	var status credential.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "valid", status.State)
	assert.True(t, status.Authenticated)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, now.Add(time.Hour).Equal(*status.ExpiresAt))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/v1/auth/revoke", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/v1/auth/revoke", nil).Code)
	assert.Equal(t, credential.Absent, store.State())

	rec = do(t, s, http.MethodGet, "/v1/auth/status", nil)
	assert.JSONEq(t, `{"state": "absent", "authenticated": false, "usable": false}`, rec.Body.String())
}

func TestMissingDependencies(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{}, config.AuthConfig{}, nil)
	for _, target := range []string{"/v1/resources/1/total", "/v1/resources/1/stored-total", "/v1/paths/count?path=/x", "/v1/pageviews"} {
		assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, target, nil).Code, target)
	}
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/v1/import/chunks/0", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/auth/status", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/v1/auth/revoke", nil).Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{Aggregator: &fakeAggregator{}}, config.AuthConfig{Enabled: true, APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/v1/resources/1/total", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/resources/1/total", map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/resources/1/total?api_key=secret", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code, "health checks stay open")
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{}, config.AuthConfig{}, nil)
	rec := do(t, s, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
