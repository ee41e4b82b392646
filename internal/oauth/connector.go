package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/utils"
)

// ErrUnknownProvider is returned for providers without configuration.
var ErrUnknownProvider = errors.New("provider not configured")

// AccountWriter persists a freshly linked grant.
type AccountWriter interface {
	Upsert(ctx context.Context, a *model.ConnectedAccount) error
}

// Connector runs the authorization-code flow that links a provider.
type Connector struct {
	store        AccountWriter
	providers    Providers
	redirectBase string
	stateSecret  string
	stateTTL     time.Duration
	client       *http.Client
}

// NewConnector builds a Connector.  Callback URLs are
// redirectBase + "/oauth/{provider}/callback".
func NewConnector(store AccountWriter, providers Providers, redirectBase, stateSecret string, client *http.Client) *Connector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Connector{
		store:        store,
		providers:    providers,
		redirectBase: strings.TrimRight(redirectBase, "/"),
		stateSecret:  stateSecret,
		stateTTL:     10 * time.Minute,
		client:       client,
	}
}

func (c *Connector) config(p model.Provider) (*oauth2.Config, ProviderConfig, error) {
	pc, ok := c.providers[p]
	if !ok || pc.ClientID == "" {
		return nil, pc, ErrUnknownProvider
	}
	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		Endpoint:     pc.Endpoint,
		Scopes:       pc.Scopes,
		RedirectURL:  fmt.Sprintf("%s/oauth/%s/callback", c.redirectBase, p),
	}, pc, nil
}

// AuthURL returns the consent URL the user must visit to link p.
func (c *Connector) AuthURL(userID string, p model.Provider) (string, error) {
	cfg, pc, err := c.config(p)
	if err != nil {
		return "", err
	}
	state, err := utils.NewStateToken(c.stateSecret, userID, string(p), c.stateTTL)
	if err != nil {
		return "", err
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(pc.AuthParams))
	for k, v := range pc.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Complete verifies state, exchanges code for a grant, resolves the
// provider's id for the user and stores the ConnectedAccount.
func (c *Connector) Complete(ctx context.Context, p model.Provider, state, code string) (*model.ConnectedAccount, error) {
	userID, prv, err := utils.ParseStateToken(c.stateSecret, state)
	if err != nil {
		return nil, err
	}
	if prv != string(p) {
		return nil, utils.ErrInvalidState
	}
	cfg, pc, err := c.config(p)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.client), code)
	if err != nil {
		return nil, fmt.Errorf("exchange %s code: %w", p, err)
	}

	acc := &model.ConnectedAccount{
		UserID:       userID,
		Provider:     p,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       strings.Join(pc.Scopes, " "),
	}
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		acc.Scopes = s
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		acc.ExpiresAt = &exp
	}
	if pc.UserInfoURL != "" {
		id, err := c.principalID(ctx, pc, tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("resolve %s principal: %w", p, err)
		}
		acc.AccountID = id
	}

	if err := c.store.Upsert(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (c *Connector) principalID(ctx context.Context, pc ProviderConfig, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pc.UserInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := BearerClient(ctx, c.client, token).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	id, ok := body[pc.IDField]
	if !ok || id == nil {
		return "", fmt.Errorf("userinfo has no %q", pc.IDField)
	}
	return fmt.Sprint(id), nil
}
