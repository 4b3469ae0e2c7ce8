package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

func TestFetchReportPages(t *testing.T) {
	t.Parallel()

	client := New([]counter.ReportRow{
		{Path: "/a", Pageviews: 1},
		{Path: "/b", Pageviews: 2},
		{Path: "/c", Pageviews: 3},
	})

	first, err := client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 1, MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, first.Rows, 2)
	assert.Equal(t, 3, first.TotalResults)

	second, err := client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 3, MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, []counter.ReportRow{{Path: "/c", Pageviews: 3}}, second.Rows)

	past, err := client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 10, MaxResults: 2})
	require.NoError(t, err)
	assert.Empty(t, past.Rows)
	assert.Equal(t, 3, client.Calls())
}

func TestFailWith(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	client := New(nil)
	client.FailWith(boom)
	_, err := client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 1, MaxResults: 1})
	assert.ErrorIs(t, err, boom)

	client.FailWith(nil)
	_, err = client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 1, MaxResults: 1})
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"path":"/node/1","pageviews":7}]`), 0o600))

	client, err := Load(path)
	require.NoError(t, err)
	payload, err := client.FetchReport(context.Background(), counter.FetchParameters{StartIndex: 1, MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []counter.ReportRow{{Path: "/node/1", Pageviews: 7}}, payload.Rows)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
