package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[string]*model.ConnectedAccount
}

func newMemStore(accs ...*model.ConnectedAccount) *memStore {
	s := &memStore{accounts: map[string]*model.ConnectedAccount{}}
	for _, a := range accs {
		s.accounts[a.UserID+"|"+string(a.Provider)] = a
	}
	return s
}

func (s *memStore) Get(_ context.Context, userID string, p model.Provider) (*model.ConnectedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID+"|"+string(p)]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) UpdateTokens(_ context.Context, userID string, p model.Provider, access, refresh string, exp *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID+"|"+string(p)]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.AccessToken = access
	if refresh != "" {
		a.RefreshToken = refresh
	}
	if exp != nil {
		a.ExpiresAt = exp
	}
	return nil
}

func (s *memStore) Upsert(_ context.Context, a *model.ConnectedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.UserID+"|"+string(a.Provider)] = &cp
	return nil
}

type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	status int
	resp   map[string]any
	forms  chan map[string]string
}

func newTokenServer(t *testing.T, status int, resp map[string]any) *tokenServer {
	ts := &tokenServer{status: status, resp: resp, forms: make(chan map[string]string, 8)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		select {
		case ts.forms <- form:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		json.NewEncoder(w).Encode(ts.resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testProviders(tokenURL string) Providers {
	ms := MicrosoftProvider("ms-id", "ms-secret", "")
	ms.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	g := GoogleProvider("g-id", "g-secret")
	g.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	return Providers{model.ProviderGoogle: g, model.ProviderMicrosoft: ms}
}

var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func account(p model.Provider, expiresIn time.Duration, refresh string) *model.ConnectedAccount {
	exp := fixedNow.Add(expiresIn)
	return &model.ConnectedAccount{
		UserID: "u1", Provider: p, AccessToken: "old-access", RefreshToken: refresh, ExpiresAt: &exp,
	}
}

func newTestEngine(store AccountStore, tokenURL string) *Engine {
	e := NewEngine(store, testProviders(tokenURL), nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestFreshnessBoundary(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{"61s left keeps token", 61 * time.Second, false},
		{"60s left refreshes", 60 * time.Second, true},
		{"59s left refreshes", 59 * time.Second, true},
		{"already expired refreshes", -time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "new-access", "expires_in": 3600})
			e := newTestEngine(newMemStore(account(model.ProviderGoogle, tt.expiresIn, "rt")), ts.URL)

			tok, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle)
			if err != nil {
				t.Fatal(err)
			}
			refreshed := ts.calls.Load() == 1
			if refreshed != tt.wantRefresh {
				t.Fatalf("refresh called = %v, want %v", refreshed, tt.wantRefresh)
			}
			want := "old-access"
			if tt.wantRefresh {
				want = "new-access"
			}
			if tok != want {
				t.Fatalf("token = %q, want %q", tok, want)
			}
		})
	}
}

func TestRefreshPersistsGrant(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "new-access", "expires_in": 3600})
	store := newMemStore(account(model.ProviderGoogle, 10*time.Second, "rt-original"))
	e := newTestEngine(store, ts.URL)

	if _, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle); err != nil {
		t.Fatal(err)
	}
	a, _ := store.Get(context.Background(), "u1", model.ProviderGoogle)
	if a.AccessToken != "new-access" {
		t.Fatalf("access = %q", a.AccessToken)
	}
	if a.RefreshToken != "rt-original" {
		t.Fatalf("refresh token replaced though provider omitted it: %q", a.RefreshToken)
	}
	if want := fixedNow.Add(time.Hour); !a.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", a.ExpiresAt, want)
	}

	form := <-ts.forms
	if form["grant_type"] != "refresh_token" || form["refresh_token"] != "rt-original" || form["client_id"] != "g-id" {
		t.Fatalf("form = %v", form)
	}
	if _, ok := form["scope"]; ok {
		t.Fatal("google refresh must not send scope")
	}
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token": "new-access", "refresh_token": "rt-rotated", "expires_in": 60,
	})
	store := newMemStore(account(model.ProviderMicrosoft, 0, "rt-original"))
	e := newTestEngine(store, ts.URL)

	if _, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderMicrosoft); err != nil {
		t.Fatal(err)
	}
	a, _ := store.Get(context.Background(), "u1", model.ProviderMicrosoft)
	if a.RefreshToken != "rt-rotated" {
		t.Fatalf("refresh = %q", a.RefreshToken)
	}
	form := <-ts.forms
	if form["scope"] != microsoftDefaultScope {
		t.Fatalf("scope = %q, want default", form["scope"])
	}
}

func TestRefreshFailureFallsBackToStoredToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	store := newMemStore(account(model.ProviderGoogle, -time.Minute, "rt"))
	e := newTestEngine(store, ts.URL)

	tok, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle)
	if err != nil {
		t.Fatalf("err = %v, want stale token", err)
	}
	if tok != "old-access" {
		t.Fatalf("token = %q", tok)
	}
	if ts.calls.Load() != 1 {
		t.Fatalf("calls = %d", ts.calls.Load())
	}
}

func TestNoRefreshTokenReturnsStored(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "new-access"})
	e := newTestEngine(newMemStore(account(model.ProviderGoogle, -time.Minute, "")), ts.URL)

	tok, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle)
	if err != nil || tok != "old-access" {
		t.Fatalf("token = %q, err = %v", tok, err)
	}
	if ts.calls.Load() != 0 {
		t.Fatal("refresh attempted without a refresh token")
	}
}

func TestNoExpiryNeverRefreshes(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "new-access"})
	a := account(model.ProviderGoogle, 0, "rt")
	a.ExpiresAt = nil
	e := newTestEngine(newMemStore(a), ts.URL)

	if tok, _ := e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle); tok != "old-access" {
		t.Fatalf("token = %q", tok)
	}
	if ts.calls.Load() != 0 {
		t.Fatal("unexpected refresh")
	}
}

func TestUnlinkedAccount(t *testing.T) {
	e := newTestEngine(newMemStore(), "http://127.0.0.1:0")
	_, err := e.GetValidAccessToken(context.Background(), "u1", model.ProviderAtlassian)
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("err = %v, want ErrNotLinked", err)
	}
}

func TestConcurrentRefreshHitsTokenEndpointOnce(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "new-access", "expires_in": 3600})
	}))
	t.Cleanup(srv.Close)

	e := newTestEngine(newMemStore(account(model.ProviderGoogle, 5*time.Second, "rt")), srv.URL)

	const callers = 8
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = e.GetValidAccessToken(context.Background(), "u1", model.ProviderGoogle)
		}(i)
	}

	<-entered
	time.Sleep(50 * time.Millisecond) // let the other callers join the in-flight refresh
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}
	for i := range tokens {
		if errs[i] != nil || tokens[i] != "new-access" {
			t.Fatalf("caller %d: token=%q err=%v", i, tokens[i], errs[i])
		}
	}
}
