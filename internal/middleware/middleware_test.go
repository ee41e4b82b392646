package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/config"
	"github.com/iliyamo/dayplanner/internal/utils"
)

const secret = "test-secret"

func serveWithJWT(t *testing.T, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seen string
	e.GET("/v1/me", func(c echo.Context) error {
		seen = UserID(c)
		return c.NoContent(http.StatusNoContent)
	}, JWTAuth(secret))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	tok, err := utils.NewAccessToken(secret, "user-42", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	rec, seen := serveWithJWT(t, "Bearer "+tok.Token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if seen != "user-42" {
		t.Fatalf("UserID = %q", seen)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	other, _ := utils.NewAccessToken("another-secret", "user-42", time.Minute)
	expired, _ := utils.NewAccessToken(secret, "user-42", -time.Minute)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "missing bearer token"},
		{"basic scheme", "Basic dTpw", "missing bearer token"},
		{"garbage", "Bearer not-a-jwt", "invalid token"},
		{"wrong secret", "Bearer " + other.Token, "invalid token"},
		{"expired", "Bearer " + expired.Token, "invalid token"},
		{"no subject", "Bearer " + noSub, "invalid claims"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, seen := serveWithJWT(t, tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("body = %s, want %q", rec.Body, tc.want)
			}
			if seen != "" {
				t.Fatal("handler must not run")
			}
		})
	}
}

func TestMiddlewaresPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	calls := 0
	h := func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "ok")
	}
	e.GET("/x", h,
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil),
	)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
			t.Fatalf("request %d: status=%d x-cache=%q", i, rec.Code, rec.Header().Get("X-Cache"))
		}
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func newContext(target, user string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("X-Real-IP", "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(strings.SplitN(target, "?", 2)[0])
	if user != "" {
		SetUserID(c, user)
	}
	return c
}

func TestBuildRateKey(t *testing.T) {
	c := newContext("/v1/schedule?date=2025-06-02", "u1")
	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.7",
		"user":       "rl:user:u1",
		"route":      "rl:route:GET /v1/schedule",
		"user_route": "rl:user:u1:route:GET /v1/schedule",
		"":           "rl:ip:10.0.0.7:user:u1:route:GET /v1/schedule",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("strategy %q: key = %q, want %q", strategy, got, want)
		}
	}

	anon := newContext("/healthz", "")
	if got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, anon); got != "rl:user:anon" {
		t.Errorf("anonymous key = %q", got)
	}
}

func TestCacheKeyScopedByUser(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "dp:cache"}
	a := cacheKeyFrom(cfg, newContext("/v1/jira/projects?b=2&a=1", "alice"))
	b := cacheKeyFrom(cfg, newContext("/v1/jira/projects?b=2&a=1", "bob"))
	if a == b {
		t.Fatal("different users must not share a cache key")
	}
	if !strings.HasPrefix(a, "dp:cache:") {
		t.Fatalf("key = %q", a)
	}
	reordered := cacheKeyFrom(cfg, newContext("/v1/jira/projects?a=1&b=2", "alice"))
	if a != reordered {
		t.Fatal("query parameter order should not change the key")
	}
	other := cacheKeyFrom(cfg, newContext("/v1/jira/projects?a=2", "alice"))
	if a == other {
		t.Fatal("different queries should not share a key")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:6]); ok {
		t.Fatal("short payload should not decode")
	}
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("defg"))
	if cw.buf.String() != "abcd" || cw.size != 7 {
		t.Fatalf("buf=%q size=%d", cw.buf.String(), cw.size)
	}
	if rec.Body.String() != "abcdefg" {
		t.Fatalf("client saw %q", rec.Body.String())
	}
}
