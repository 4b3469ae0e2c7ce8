// Package credential holds the analytics provider's OAuth2 token state and
// refreshes the access token when it expires.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// State is the lifecycle position of a credential set.
type State int

const (
	// Absent means no refresh token is held; the operator must authenticate.
	Absent State = iota
	// Valid means the access token may be used until its expiry.
	Valid
	// RefreshPending means the access token is missing or expired but a refresh token is held.
	RefreshPending
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case RefreshPending:
		return "refresh_pending"
	default:
		return "absent"
	}
}

// Credentials is the persisted token triple.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
}

// StateAt classifies creds at instant now.
func StateAt(creds Credentials, now time.Time) State {
	if creds.AccessToken != "" && now.Before(creds.ExpiresAt) {
		return Valid
	}
	if creds.RefreshToken != "" {
		return RefreshPending
	}
	return Absent
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through an oauth2.Config token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

// Refresh implements Refresher.
func (r OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return tok, nil
}

// Store is a concurrency-safe credential holder implementing oauth2.TokenSource.
type Store struct {
	mu        sync.Mutex
	creds     Credentials
	refresher Refresher
	clock     counter.Clock
	logger    *zap.Logger
}

// NewStore returns a Store seeded with creds.
func NewStore(creds Credentials, refresher Refresher, clock counter.Clock, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{creds: creds, refresher: refresher, clock: clock, logger: logger}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// State reports the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateAt(s.creds, s.now())
}

// Usable reports whether a token can be produced without the operator
// authenticating again: the state is Valid or RefreshPending.
func (s *Store) Usable() bool {
	return s.State() != Absent
}

// IsAuthenticated reports whether a refresh token is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.RefreshToken != ""
}

// Snapshot returns a copy of the held credentials.
func (s *Store) Snapshot() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Status is the token-free view of a Store reported to operators.
type Status struct {
	State         string     `json:"state"`
	Authenticated bool       `json:"authenticated"`
	Usable        bool       `json:"usable"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Status reports the lifecycle state without exposing any token.
func (s *Store) Status() Status {
	creds := s.Snapshot()
	state := StateAt(creds, s.now())
	out := Status{State: state.String(), Authenticated: creds.RefreshToken != "", Usable: state != Absent}
	if creds.AccessToken != "" && !creds.ExpiresAt.IsZero() {
		exp := creds.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

// Revoke forgets all tokens.
func (s *Store) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.logger.Info("analytics credentials revoked")
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext returns a usable access token, refreshing it first when expired.
// Without a refresh token it fails with counter.ErrAuthentication.
func (s *Store) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch StateAt(s.creds, s.now()) {
	case Valid:
		return s.token(), nil
	case Absent:
		return nil, counter.ErrAuthentication
	}

	if s.refresher == nil {
		return nil, fmt.Errorf("no refresher configured: %w", counter.ErrAuthentication)
	}
	tok, err := s.refresher.Refresh(ctx, s.creds.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %s", counter.ErrAuthentication, retrieveErr.Error())
		}
		return nil, err
	}

	s.creds.AccessToken = tok.AccessToken
	s.creds.ExpiresAt = tok.Expiry
	if tok.Expiry.IsZero() && tok.ExpiresIn > 0 {
		s.creds.ExpiresAt = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if tok.RefreshToken != "" {
		s.creds.RefreshToken = tok.RefreshToken
	}
	s.logger.Info("analytics access token refreshed", zap.Time("expires_at", s.creds.ExpiresAt))
	return s.token(), nil
}

// HTTPClient returns an http.Client that authorizes requests with this store.
func (s *Store) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}

func (s *Store) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.creds.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.creds.RefreshToken,
		Expiry:       s.creds.ExpiresAt,
	}
}
