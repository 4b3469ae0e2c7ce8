package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

func TestPageviewStoreUpsertReplaces(t *testing.T) {
	t.Parallel()

	s := NewPageviewStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertPageview(ctx, counter.PageviewRecord{Key: "k", Path: "/a", Pageviews: 5}))
	require.NoError(t, s.UpsertPageview(ctx, counter.PageviewRecord{Key: "k", Path: "/a", Pageviews: 8}))

	got, err := s.FindByKeys(ctx, []counter.PathKey{"k", "k", "missing"})
	require.NoError(t, err)
	require.Equal(t, []counter.PageviewRecord{{Key: "k", Path: "/a", Pageviews: 8}}, got)
	require.Equal(t, 1, s.Len())

	require.Error(t, s.UpsertPageview(ctx, counter.PageviewRecord{Path: "/nokey"}))
}

func TestPageviewStoreListOrdersAndPages(t *testing.T) {
	t.Parallel()

	s := NewPageviewStore()
	ctx := context.Background()
	for _, r := range []counter.PageviewRecord{
		{Key: "a", Path: "/a", Pageviews: 1},
		{Key: "b", Path: "/b", Pageviews: 9},
		{Key: "c", Path: "/c", Pageviews: 5},
	} {
		require.NoError(t, s.UpsertPageview(ctx, r))
	}

	got, err := s.ListPageviews(ctx, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []counter.PathKey{"b", "c"}, []counter.PathKey{got[0].Key, got[1].Key})

	got, err = s.ListPageviews(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, counter.PathKey("a"), got[0].Key)

	got, err = s.ListPageviews(ctx, 2, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPageviewStoreListClampsPaging(t *testing.T) {
	t.Parallel()

	s := NewPageviewStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertPageview(ctx, counter.PageviewRecord{Key: "a", Path: "/a", Pageviews: 1}))

	got, err := s.ListPageviews(ctx, 20, -1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	for _, limit := range []int{0, -5} {
		got, err = s.ListPageviews(ctx, limit, 0)
		require.NoError(t, err)
		require.Empty(t, got, "limit %d", limit)
	}
}

func TestTotalsStore(t *testing.T) {
	t.Parallel()

	s := NewTotalsStore()
	ctx := context.Background()

	_, err := s.GetTotal(ctx, 1)
	require.ErrorIs(t, err, counter.ErrNotFound)

	require.NoError(t, s.UpsertTotal(ctx, counter.ResourceTotal{ResourceID: 1, Pageviews: 4}))
	require.NoError(t, s.UpsertTotal(ctx, counter.ResourceTotal{ResourceID: 1, Pageviews: 6}))
	got, err := s.GetTotal(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(6), got.Pageviews)

	_, ok := s.LegacyTotal(1)
	require.False(t, ok)
	require.NoError(t, s.UpsertLegacyTotal(ctx, counter.ResourceTotal{ResourceID: 1, Pageviews: 6}))
	legacy, ok := s.LegacyTotal(1)
	require.True(t, ok)
	require.Equal(t, int64(6), legacy.Pageviews)
}
