package model

import "time"

// Provider identifies an external service a user can link.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderAtlassian Provider = "atlassian"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderGoogle, ProviderMicrosoft, ProviderAtlassian}

// ParseProvider normalises s and reports whether it names a supported provider.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(s); p {
	case ProviderGoogle, ProviderMicrosoft, ProviderAtlassian:
		return p, true
	case "azure-ad", "outlook":
		return ProviderMicrosoft, true
	}
	return "", false
}

// ConnectedAccount is the stored OAuth grant for one (user, provider)
// pair.  At most one row exists per pair; the repository enforces that
// with a unique key.
//
// Fields:
//  UserID       – owner of the grant.
//  Provider     – google, microsoft or atlassian.
//  AccountID    – the provider's principal id for the user.
//  AccessToken  – short-lived bearer credential.
//  RefreshToken – long-lived credential; empty means silent refresh is impossible.
//  ExpiresAt    – absolute expiry; nil means unknown / never expires.
//  Scopes       – space-delimited granted scopes.
type ConnectedAccount struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     Provider   `json:"provider"`
	AccountID    string     `json:"account_id"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       string     `json:"scopes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasRefreshToken reports whether the account can be refreshed silently.
func (a *ConnectedAccount) HasRefreshToken() bool { return a.RefreshToken != "" }
