// Package oauth keeps linked provider grants usable: it hands out valid
// access tokens (refreshing them when they are about to expire) and runs
// the consent/code-exchange flow that creates the grants in the first place.
package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/iliyamo/dayplanner/internal/model"
)

// ProviderConfig describes how to talk to one provider's authorization
// server.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string

	// EchoScope makes refresh requests carry a scope parameter: the
	// account's stored scopes, or DefaultScope when none are stored.
	EchoScope    bool
	DefaultScope string

	// UserInfoURL returns the signed-in principal; IDField names its id.
	UserInfoURL string
	IDField     string

	// AuthParams are extra query parameters for the consent URL.
	AuthParams map[string]string
}

// Providers maps each supported provider to its configuration.
type Providers map[model.Provider]ProviderConfig

const microsoftDefaultScope = "openid profile email offline_access Calendars.ReadWrite"

// GoogleProvider returns the Google configuration with calendar scopes.
func GoogleProvider(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"openid", "email", "profile",
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/calendar.events",
		},
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		IDField:     "id",
		AuthParams:  map[string]string{"access_type": "offline", "prompt": "consent"},
	}
}

// MicrosoftProvider returns the Azure AD configuration for tenant
// ("common" when empty).  Microsoft requires the scope to be echoed on
// refresh.
func MicrosoftProvider(clientID, clientSecret, tenant string) ProviderConfig {
	if tenant == "" {
		tenant = "common"
	}
	return ProviderConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		Scopes:       []string{"openid", "profile", "email", "offline_access", "Calendars.ReadWrite"},
		EchoScope:    true,
		DefaultScope: microsoftDefaultScope,
		UserInfoURL:  "https://graph.microsoft.com/v1.0/me",
		IDField:      "id",
	}
}

// AtlassianProvider returns the Atlassian (Jira Cloud) 3LO configuration.
func AtlassianProvider(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://auth.atlassian.com/authorize",
			TokenURL:  "https://auth.atlassian.com/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes:      []string{"offline_access", "read:jira-user", "read:jira-work", "write:jira-work", "read:me"},
		UserInfoURL: "https://api.atlassian.com/me",
		IDField:     "account_id",
		AuthParams:  map[string]string{"audience": "api.atlassian.com", "prompt": "consent"},
	}
}

// BearerClient returns an HTTP client that sends token as a Bearer
// credential on every request, using base's transport.
func BearerClient(ctx context.Context, base *http.Client, token string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	c := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	if base != nil {
		c.Timeout = base.Timeout
	}
	return c
}
