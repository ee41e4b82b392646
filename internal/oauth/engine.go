package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

// ErrNotLinked is returned when the user has no usable grant for the
// provider.  Read paths treat it as "no data"; write paths surface it.
var ErrNotLinked = errors.New("provider not linked")

// ExpiryMargin is how close to expiry a token may get before it is
// refreshed.
const ExpiryMargin = 60 * time.Second

// AccountStore is the slice of the credential store the engine needs.
type AccountStore interface {
	Get(ctx context.Context, userID string, provider model.Provider) (*model.ConnectedAccount, error)
	UpdateTokens(ctx context.Context, userID string, provider model.Provider, accessToken, refreshToken string, expiresAt *time.Time) error
}

// TokenSource hands out access tokens for a user's linked provider.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, userID string, provider model.Provider) (string, error)
}

// Engine returns currently valid access tokens, silently refreshing them
// through the provider's token endpoint.
//
// Concurrent refreshes of the same (user, provider) inside one process
// share a single token-endpoint call.  Separate processes may still race;
// the last persisted grant wins.
type Engine struct {
	store     AccountStore
	providers Providers
	client    *http.Client
	now       func() time.Time
	group     singleflight.Group
}

// NewEngine builds an Engine.  A nil client uses http.DefaultClient.
func NewEngine(store AccountStore, providers Providers, client *http.Client) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{store: store, providers: providers, client: client, now: time.Now}
}

// GetValidAccessToken returns the stored access token for (userID,
// provider), refreshing it first when it expires within ExpiryMargin.
// When refreshing is impossible or fails, the stored token is returned
// as is and the provider's resource API gets to reject it.
func (e *Engine) GetValidAccessToken(ctx context.Context, userID string, provider model.Provider) (string, error) {
	acc, err := e.store.Get(ctx, userID, provider)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("load %s account: %w", provider, err)
	}
	if acc.AccessToken == "" {
		return "", ErrNotLinked
	}
	if !e.expiring(acc) || !acc.HasRefreshToken() {
		return acc.AccessToken, nil
	}

	v, err, _ := e.group.Do(userID+"|"+string(provider), func() (any, error) {
		return e.refresh(ctx, acc)
	})
	if err != nil {
		log.Printf("oauth: refresh failed provider=%s user=%s: %v", provider, userID, err)
		return acc.AccessToken, nil
	}
	return v.(string), nil
}

func (e *Engine) expiring(acc *model.ConnectedAccount) bool {
	if acc.ExpiresAt == nil {
		return false
	}
	return acc.ExpiresAt.Sub(e.now()) <= ExpiryMargin
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refresh runs a refresh_token grant and persists the result.  The
// providers disagree on request parameters but share the response shape.
func (e *Engine) refresh(ctx context.Context, acc *model.ConnectedAccount) (string, error) {
	cfg, ok := e.providers[acc.Provider]
	if !ok {
		return "", fmt.Errorf("no oauth configuration for %s", acc.Provider)
	}
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", acc.RefreshToken)
	if cfg.EchoScope {
		scope := acc.Scopes
		if scope == "" {
			scope = cfg.DefaultScope
		}
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response without access_token")
	}

	var expiresAt *time.Time
	if tr.ExpiresIn > 0 {
		t := e.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
		expiresAt = &t
	}
	// empty refresh token keeps the stored one
	if err := e.store.UpdateTokens(ctx, acc.UserID, acc.Provider, tr.AccessToken, tr.RefreshToken, expiresAt); err != nil {
		log.Printf("oauth: persist refreshed grant provider=%s user=%s: %v", acc.Provider, acc.UserID, err)
	}
	return tr.AccessToken, nil
}
