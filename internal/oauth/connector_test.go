package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/utils"
)

func TestConnectorFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "the-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "at", "refresh_token": "rt", "token_type": "Bearer",
				"expires_in": 3600, "scope": "read:jira-work offline_access",
			})
		case "/me":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"account_id": "acc-42"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	pc := AtlassianProvider("cid", "secret")
	pc.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	pc.UserInfoURL = srv.URL + "/me"
	store := newMemStore()
	c := NewConnector(store, Providers{model.ProviderAtlassian: pc}, "https://app.example/", "state-secret", srv.Client())

	raw, err := c.AuthURL("u1", model.ProviderAtlassian)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("redirect_uri") != "https://app.example/oauth/atlassian/callback" {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("audience") != "api.atlassian.com" {
		t.Fatalf("audience = %q", q.Get("audience"))
	}

	acc, err := c.Complete(context.Background(), model.ProviderAtlassian, q.Get("state"), "the-code")
	if err != nil {
		t.Fatal(err)
	}
	if acc.AccountID != "acc-42" || acc.Scopes != "read:jira-work offline_access" || acc.ExpiresAt == nil {
		t.Fatalf("account = %+v", acc)
	}
	stored, err := store.Get(context.Background(), "u1", model.ProviderAtlassian)
	if err != nil || stored.RefreshToken != "rt" {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
}

func TestConnectorRejectsForeignState(t *testing.T) {
	c := NewConnector(newMemStore(), Providers{
		model.ProviderGoogle:    GoogleProvider("g", "s"),
		model.ProviderAtlassian: AtlassianProvider("a", "s"),
	}, "https://app.example", "state-secret", nil)

	raw, _ := c.AuthURL("u1", model.ProviderGoogle)
	u, _ := url.Parse(raw)
	_, err := c.Complete(context.Background(), model.ProviderAtlassian, u.Query().Get("state"), "code")
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	if _, err := c.AuthURL("u1", model.ProviderMicrosoft); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}
