package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pageview-counter/internal/alias"
	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/hash/md5"
	"github.com/JakeFAU/pageview-counter/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type mockPageviews struct {
	mock.Mock
}

func (m *mockPageviews) UpsertPageview(ctx context.Context, record counter.PageviewRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockPageviews) FindByKeys(ctx context.Context, keys []counter.PathKey) ([]counter.PageviewRecord, error) {
	args := m.Called(ctx, keys)
	records, _ := args.Get(0).([]counter.PageviewRecord)
	return records, args.Error(1)
}

func (m *mockPageviews) ListPageviews(ctx context.Context, limit, offset int) ([]counter.PageviewRecord, error) {
	args := m.Called(ctx, limit, offset)
	records, _ := args.Get(0).([]counter.PageviewRecord)
	return records, args.Error(1)
}

func seed(t *testing.T, store *memory.PageviewStore, views map[string]int64) {
	t.Helper()
	keyer := md5.New()
	for path, n := range views {
		require.NoError(t, store.UpsertPageview(context.Background(), counter.PageviewRecord{
			Key: keyer.Key(path), Path: path, Pageviews: n,
		}))
	}
}

func newEngine(t *testing.T, cfg Config, pageviews counter.PageviewStore, totals *memory.TotalsStore, aliases counter.AliasResolver) *Engine {
	t.Helper()
	e, err := New(cfg, Dependencies{
		Pageviews: pageviews,
		Totals:    totals,
		Keyer:     md5.New(),
		Aliases:   aliases,
		Clock:     fixedClock{testNow},
	})
	require.NoError(t, err)
	return e
}

func TestAggregateNoLocales(t *testing.T) {
	t.Parallel()

	pageviews := memory.NewPageviewStore()
	seed(t, pageviews, map[string]int64{"/node/5": 10, "/node/5/": 3, "/node/50": 99})
	totals := memory.NewTotalsStore()
	e := newEngine(t, Config{}, pageviews, totals, nil)

	total, err := e.Aggregate(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, counter.ResourceTotal{ResourceID: 5, Pageviews: 13, UpdatedAt: testNow}, total)

	stored, err := totals.GetTotal(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, total, stored)

	_, mirrored := totals.LegacyTotal(5)
	assert.False(t, mirrored)
}

func TestAggregateLocalesAndAliases(t *testing.T) {
	t.Parallel()

	pageviews := memory.NewPageviewStore()
	seed(t, pageviews, map[string]int64{
		"/node/7":       1,
		"/about":        2,
		"/about/":       4,
		"/fr/node/7":    8,
		"/fr/a-propos/": 16,
		"/de/node/7":    1000, // de has no prefix configured
		"/unrelated":    32,
	})
	aliases := alias.NewStatic(map[string]map[string]string{
		"/node/7": {"en": "/about", "fr": "/a-propos"},
	})
	cfg := Config{Locales: []counter.Locale{{ID: "en"}, {ID: "fr", Prefix: "fr"}}}
	e := newEngine(t, cfg, pageviews, memory.NewTotalsStore(), aliases)

	total, err := e.Aggregate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1+2+4+8+16), total.Pageviews)
}

func TestAggregateIdempotent(t *testing.T) {
	t.Parallel()

	pageviews := memory.NewPageviewStore()
	seed(t, pageviews, map[string]int64{"/node/1": 5})
	e := newEngine(t, Config{}, pageviews, memory.NewTotalsStore(), nil)

	first, err := e.Aggregate(context.Background(), 1)
	require.NoError(t, err)
	second, err := e.Aggregate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateMissingKeysCountZero(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{}, memory.NewPageviewStore(), memory.NewTotalsStore(), nil)
	total, err := e.Aggregate(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total.Pageviews)
}

func TestAggregateMirrorsLegacyTotal(t *testing.T) {
	t.Parallel()

	pageviews := memory.NewPageviewStore()
	seed(t, pageviews, map[string]int64{"/node/3": 6})
	totals := memory.NewTotalsStore()
	e := newEngine(t, Config{MirrorLegacyTotals: true}, pageviews, totals, nil)

	_, err := e.Aggregate(context.Background(), 3)
	require.NoError(t, err)
	legacy, ok := totals.LegacyTotal(3)
	require.True(t, ok)
	assert.Equal(t, int64(6), legacy.Pageviews)
	assert.Equal(t, testNow, legacy.UpdatedAt)
}

func TestAggregateLookupFailureWritesNothing(t *testing.T) {
	t.Parallel()

	pageviews := new(mockPageviews)
	pageviews.On("FindByKeys", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	totals := memory.NewTotalsStore()
	require.NoError(t, totals.UpsertTotal(context.Background(), counter.ResourceTotal{ResourceID: 9, Pageviews: 77}))
	e := newEngine(t, Config{MirrorLegacyTotals: true}, pageviews, totals, nil)

	_, err := e.Aggregate(context.Background(), 9)
	require.Error(t, err)

	stored, err := totals.GetTotal(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(77), stored.Pageviews, "previous total must survive a failed lookup")
	_, mirrored := totals.LegacyTotal(9)
	assert.False(t, mirrored)
	pageviews.AssertExpectations(t)
}

func TestAggregateUsesOneBatchLookup(t *testing.T) {
	t.Parallel()

	pageviews := new(mockPageviews)
	pageviews.On("FindByKeys", mock.Anything, mock.MatchedBy(func(keys []counter.PathKey) bool {
		return len(keys) == 2
	})).Return([]counter.PageviewRecord{{Pageviews: 4}, {Pageviews: 5}}, nil).Once()

	e := newEngine(t, Config{ResourceType: "taxonomy/term"}, pageviews, memory.NewTotalsStore(), nil)
	total, err := e.Aggregate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(9), total.Pageviews)
	assert.Equal(t, []string{"/taxonomy/term/2", "/taxonomy/term/2/"}, e.Variants(2))
	pageviews.AssertExpectations(t)
}

func TestCountForPath(t *testing.T) {
	t.Parallel()

	pageviews := memory.NewPageviewStore()
	seed(t, pageviews, map[string]int64{"/blog/post": 4, "/blog/post/": 1, "/": 50, "//": 2})
	e := newEngine(t, Config{}, pageviews, memory.NewTotalsStore(), nil)

	tests := []struct {
		in   string
		want int64
	}{
		{in: "/blog/post", want: 5},
		{in: " blog/post/ ", want: 5},
		{in: "/", want: 52},
		{in: "", want: 52},
		{in: "/missing", want: 0},
	}
	for _, tc := range tests {
		got, err := e.CountForPath(context.Background(), tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}
