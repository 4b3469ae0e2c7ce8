package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type fakeRefresher struct {
	tok   *oauth2.Token
	err   error
	calls int
	got   string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	f.got = refreshToken
	return f.tok, f.err
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStateAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds Credentials
		want  State
	}{
		{name: "empty", creds: Credentials{}, want: Absent},
		{name: "valid", creds: Credentials{AccessToken: "a", ExpiresAt: now.Add(time.Minute), RefreshToken: "r"}, want: Valid},
		{name: "valid without refresh", creds: Credentials{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}, want: Valid},
		{name: "expired", creds: Credentials{AccessToken: "a", ExpiresAt: now, RefreshToken: "r"}, want: RefreshPending},
		{name: "refresh only", creds: Credentials{RefreshToken: "r"}, want: RefreshPending},
		{name: "expired without refresh", creds: Credentials{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}, want: Absent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, StateAt(tc.creds, now))
		})
	}
}

func TestTokenValidSkipsRefresh(t *testing.T) {
	t.Parallel()

	ref := &fakeRefresher{}
	store := NewStore(Credentials{AccessToken: "a", ExpiresAt: now.Add(time.Hour), RefreshToken: "r"}, ref, &fixedClock{now}, nil)
	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, 0, ref.calls)
	assert.Equal(t, Valid, store.State())
}

func TestTokenRefreshesExpired(t *testing.T) {
	t.Parallel()

	clock := &fixedClock{now}
	ref := &fakeRefresher{tok: &oauth2.Token{AccessToken: "fresh", Expiry: now.Add(time.Hour)}}
	store := NewStore(Credentials{AccessToken: "stale", ExpiresAt: now.Add(-time.Minute), RefreshToken: "r"}, ref, clock, nil)
	assert.Equal(t, RefreshPending, store.State())

	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "r", ref.got)
	assert.Equal(t, Valid, store.State())
	assert.Equal(t, "r", store.Snapshot().RefreshToken, "refresh token kept when provider omits a new one")

	_, err = store.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, ref.calls)
}

func TestTokenAbsent(t *testing.T) {
	t.Parallel()

	store := NewStore(Credentials{}, &fakeRefresher{}, &fixedClock{now}, nil)
	_, err := store.Token()
	assert.ErrorIs(t, err, counter.ErrAuthentication)
	assert.False(t, store.IsAuthenticated())
	assert.False(t, store.Usable())
}

func TestUsableWithAccessTokenOnly(t *testing.T) {
	t.Parallel()

	store := NewStore(Credentials{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, nil, &fixedClock{now}, nil)
	assert.False(t, store.IsAuthenticated())
	assert.True(t, store.Usable())
	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)

	expired := NewStore(Credentials{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}, nil, &fixedClock{now}, nil)
	assert.False(t, expired.Usable())
}

func TestTokenRefreshRejected(t *testing.T) {
	t.Parallel()

	ref := &fakeRefresher{err: &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, Body: []byte("invalid_grant")}}
	store := NewStore(Credentials{RefreshToken: "r"}, ref, &fixedClock{now}, nil)
	_, err := store.Token()
	assert.ErrorIs(t, err, counter.ErrAuthentication)

	ref.err = errors.New("dial tcp: timeout")
	_, err = store.Token()
	require.Error(t, err)
	assert.NotErrorIs(t, err, counter.ErrAuthentication)
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	store := NewStore(Credentials{AccessToken: "a", ExpiresAt: now.Add(time.Hour), RefreshToken: "r"}, nil, &fixedClock{now}, nil)
	assert.True(t, store.IsAuthenticated())
	store.Revoke()
	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, Absent, store.State())
	assert.Equal(t, Credentials{}, store.Snapshot())
}

func TestOAuthRefresherAgainstTokenEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-token","token_type":"Bearer","expires_in":3600,"refresh_token":"r-2"}`))
	}))
	defer srv.Close()

	ref := OAuthRefresher{Config: &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}}
	store := NewStore(Credentials{RefreshToken: "r-1"}, ref, nil, nil)

	tok, err := store.TokenContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", tok.AccessToken)
	assert.Equal(t, "r-2", store.Snapshot().RefreshToken)
	assert.Equal(t, Valid, store.State())
}

func TestHTTPClientAttachesBearer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := NewStore(Credentials{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}, nil, nil, nil)
	resp, err := store.HTTPClient(context.Background()).Get(srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "valid", Valid.String())
	assert.Equal(t, "refresh_pending", RefreshPending.String())
}
