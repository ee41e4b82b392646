package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
)

type staticTokens map[model.Provider]string

func (s staticTokens) GetValidAccessToken(_ context.Context, _ string, p model.Provider) (string, error) {
	tok, ok := s[p]
	if !ok {
		return "", oauth.ErrNotLinked
	}
	return tok, nil
}

type recorded struct {
	Method string
	Host   string
	Path   string
	Query  string
	Auth   string
	Prefer string
	Body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r recorded)
}

func newFakeAPI(t *testing.T, h func(w http.ResponseWriter, r recorded)) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{handler: h}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method: r.Method, Host: r.Host, Path: r.URL.Path, Query: r.URL.RawQuery,
			Auth: r.Header.Get("Authorization"), Prefer: r.Header.Get("Prefer"),
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			json.Unmarshal(raw, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		f.handler(w, rec)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestDayWindow(t *testing.T) {
	start, end, err := DayWindow("2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if got := start.Format(time.RFC3339); got != "2025-06-02T00:00:00Z" {
		t.Fatalf("start = %s", got)
	}
	if got := end.Format(time.RFC3339); got != "2025-06-02T23:59:59Z" {
		t.Fatalf("end = %s", got)
	}
	if _, _, err := DayWindow("06/02/2025"); !errors.Is(err, ErrBadDate) {
		t.Fatalf("err = %v", err)
	}
}

func TestGoogleListForDay(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		io.WriteString(w, `{"items":[
			{"id":"e1","summary":"Standup","start":{"dateTime":"2025-06-02T09:00:00Z"},"end":{"dateTime":"2025-06-02T09:15:00Z"}},
			{"id":"e2","summary":"Holiday","start":{"date":"2025-06-02"},"end":{"date":"2025-06-03"}}
		]}`)
	})
	g := NewGoogleAdapter(staticTokens{model.ProviderGoogle: "gtok"}, srv.Client(), srv.URL+"/calendar/v3/")

	events, err := g.ListForDay(context.Background(), "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0] != (model.Event{ID: "e1", Title: "Standup", Start: "2025-06-02T09:00:00Z", End: "2025-06-02T09:15:00Z", Provider: model.ProviderGoogle}) {
		t.Fatalf("event[0] = %+v", events[0])
	}
	if events[1].Start != "2025-06-02" {
		t.Fatalf("all-day start = %q", events[1].Start)
	}

	req := api.last()
	if req.Path != "/calendar/v3/calendars/primary/events" || req.Auth != "Bearer gtok" {
		t.Fatalf("request = %+v", req)
	}
	for _, want := range []string{"timeMin=2025-06-02T00%3A00%3A00Z", "timeMax=2025-06-02T23%3A59%3A59Z", "singleEvents=true"} {
		if !strings.Contains(req.Query, want) {
			t.Fatalf("query %q lacks %q", req.Query, want)
		}
	}
}

func TestGoogleUnlinked(t *testing.T) {
	g := NewGoogleAdapter(staticTokens{}, nil, "http://127.0.0.1:0/calendar/v3/")
	events, err := g.ListForDay(context.Background(), "u1", "2025-06-02")
	if err != nil || len(events) != 0 {
		t.Fatalf("list = %v, %v; want empty", events, err)
	}
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if _, err := g.Create(context.Background(), "u1", "x", start, start.Add(time.Hour)); !errors.Is(err, oauth.ErrNotLinked) {
		t.Fatalf("create err = %v, want ErrNotLinked", err)
	}
}

func TestGoogleCreateAndPartialUpdate(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		io.WriteString(w, `{"id":"new-id"}`)
	})
	g := NewGoogleAdapter(staticTokens{model.ProviderGoogle: "gtok"}, srv.Client(), srv.URL+"/calendar/v3/")
	ctx := context.Background()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	id, err := g.Create(ctx, "u1", "Focus", start, start.Add(time.Hour))
	if err != nil || id != "new-id" {
		t.Fatalf("create = %q, %v", id, err)
	}
	body := api.last().Body
	if body["summary"] != "Focus" || body["start"].(map[string]any)["dateTime"] != "2025-06-02T09:00:00Z" {
		t.Fatalf("create body = %v", body)
	}

	title := "Renamed"
	if err := g.Update(ctx, "u1", "new-id", EventPatch{Title: &title}); err != nil {
		t.Fatal(err)
	}
	req := api.last()
	if req.Method != http.MethodPatch || req.Path != "/calendar/v3/calendars/primary/events/new-id" {
		t.Fatalf("update request = %+v", req)
	}
	if _, ok := req.Body["start"]; ok {
		t.Fatalf("title-only patch sent start: %v", req.Body)
	}
	if _, ok := req.Body["end"]; ok {
		t.Fatalf("title-only patch sent end: %v", req.Body)
	}
	if req.Body["summary"] != "Renamed" {
		t.Fatalf("patch body = %v", req.Body)
	}
}

func TestGoogleDeleteNotFoundIsSuccess(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		code := int(status.Load())
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, http.StatusText(code))
	})
	g := NewGoogleAdapter(staticTokens{model.ProviderGoogle: "gtok"}, srv.Client(), srv.URL+"/calendar/v3/")

	if err := g.Delete(context.Background(), "u1", "gone"); err != nil {
		t.Fatalf("404 delete: %v", err)
	}

	status.Store(http.StatusForbidden)
	err := g.Delete(context.Background(), "u1", "gone")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusForbidden {
		t.Fatalf("403 delete: err = %v", err)
	}
}

func TestMicrosoftListNormalizes(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		io.WriteString(w, `{"value":[{"id":"m1","subject":"Review",
			"start":{"dateTime":"2025-06-02T13:00:00.0000000","timeZone":"UTC"},
			"end":{"dateTime":"2025-06-02T14:30:00.0000000","timeZone":"UTC"}}]}`)
	})
	m := NewMicrosoftAdapter(staticTokens{model.ProviderMicrosoft: "mtok"}, srv.Client(), srv.URL)

	events, err := m.ListForDay(context.Background(), "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	want := model.Event{ID: "m1", Title: "Review", Start: "2025-06-02T13:00:00Z", End: "2025-06-02T14:30:00Z", Provider: model.ProviderMicrosoft}
	if len(events) != 1 || events[0] != want {
		t.Fatalf("events = %+v", events)
	}
	req := api.last()
	if req.Path != "/me/calendarView" || req.Auth != "Bearer mtok" || req.Prefer != `outlook.timezone="UTC"` {
		t.Fatalf("request = %+v", req)
	}
	if !strings.Contains(req.Query, "startDateTime=2025-06-02T00%3A00%3A00Z") ||
		!strings.Contains(req.Query, "endDateTime=2025-06-02T23%3A59%3A59Z") {
		t.Fatalf("query = %s", req.Query)
	}
}

func TestMicrosoftFollowsNextLink(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		if strings.Contains(r.Query, "page=2") {
			io.WriteString(w, `{"value":[{"id":"b"}]}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value":           []map[string]any{{"id": "a"}},
			"@odata.nextLink": "http://" + r.Host + "/me/calendarView?page=2",
		})
	})
	m := NewMicrosoftAdapter(staticTokens{model.ProviderMicrosoft: "mtok"}, srv.Client(), srv.URL)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := m.ListBetween(context.Background(), "u1", start, start.AddDate(0, 1, 0))
	if err != nil || len(events) != 2 || events[1].ID != "b" {
		t.Fatalf("events = %+v, %v", events, err)
	}
}

func TestMicrosoftWritesCarryTimeZone(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"m-new"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{}`)
	})
	m := NewMicrosoftAdapter(staticTokens{model.ProviderMicrosoft: "mtok"}, srv.Client(), srv.URL)
	ctx := context.Background()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	id, err := m.Create(ctx, "u1", "Plan", start, start.Add(time.Hour))
	if err != nil || id != "m-new" {
		t.Fatalf("create = %q, %v", id, err)
	}
	body := api.last().Body
	st := body["start"].(map[string]any)
	if body["subject"] != "Plan" || st["dateTime"] != "2025-06-02T07:00:00" || st["timeZone"] != "UTC" {
		t.Fatalf("create body = %v", body)
	}

	newEnd := start.Add(2 * time.Hour)
	if err := m.Update(ctx, "u1", "m-new", EventPatch{End: &newEnd}); err != nil {
		t.Fatal(err)
	}
	req := api.last()
	if req.Method != http.MethodPatch || req.Path != "/me/events/m-new" {
		t.Fatalf("update request = %+v", req)
	}
	if _, ok := req.Body["subject"]; ok {
		t.Fatalf("end-only patch sent subject: %v", req.Body)
	}
	if _, ok := req.Body["start"]; ok {
		t.Fatalf("end-only patch sent start: %v", req.Body)
	}
}

func TestMicrosoftDelete(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r recorded) {
		w.WriteHeader(int(status.Load()))
	})
	m := NewMicrosoftAdapter(staticTokens{model.ProviderMicrosoft: "mtok"}, srv.Client(), srv.URL)

	if err := m.Delete(context.Background(), "u1", "gone"); err != nil {
		t.Fatalf("404 delete: %v", err)
	}
	status.Store(http.StatusUnauthorized)
	var ue *UpstreamError
	if err := m.Delete(context.Background(), "u1", "x"); !errors.As(err, &ue) || ue.Status != http.StatusUnauthorized {
		t.Fatalf("401 delete: err = %v", err)
	}
	unlinkedAdapter := NewMicrosoftAdapter(staticTokens{}, srv.Client(), srv.URL)
	if err := unlinkedAdapter.Delete(context.Background(), "u1", "x"); !errors.Is(err, oauth.ErrNotLinked) {
		t.Fatalf("unlinked delete: err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewGoogleAdapter(staticTokens{}, nil, ""), NewMicrosoftAdapter(staticTokens{}, nil, ""))
	if _, ok := r[model.ProviderMicrosoft]; !ok {
		t.Fatal("microsoft adapter missing")
	}
	if _, ok := r[model.ProviderAtlassian]; ok {
		t.Fatal("atlassian is not a calendar")
	}
}
