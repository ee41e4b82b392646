package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
)

// DefaultGraphURL is the Microsoft Graph v1.0 base URL.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// Graph wants wall-clock times plus a separate timeZone on writes.
const graphTimeLayout = "2006-01-02T15:04:05"

// MicrosoftAdapter talks to the signed-in user's default Outlook calendar
// through Microsoft Graph.
type MicrosoftAdapter struct {
	tokens  oauth.TokenSource
	client  *http.Client
	baseURL string
}

// NewMicrosoftAdapter builds the adapter.  An empty baseURL means
// DefaultGraphURL.
func NewMicrosoftAdapter(tokens oauth.TokenSource, client *http.Client, baseURL string) *MicrosoftAdapter {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	return &MicrosoftAdapter{tokens: tokens, client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *MicrosoftAdapter) Provider() model.Provider { return model.ProviderMicrosoft }

type graphTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID      string     `json:"id,omitempty"`
	Subject *string    `json:"subject,omitempty"`
	Start   *graphTime `json:"start,omitempty"`
	End     *graphTime `json:"end,omitempty"`
}

type graphList struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func utcTime(t time.Time) *graphTime {
	return &graphTime{DateTime: t.UTC().Format(graphTimeLayout), TimeZone: "UTC"}
}

func (m *MicrosoftAdapter) ListForDay(ctx context.Context, userID, dateISO string) ([]model.Event, error) {
	start, end, err := DayWindow(dateISO)
	if err != nil {
		return nil, err
	}
	return m.ListBetween(ctx, userID, start, end)
}

func (m *MicrosoftAdapter) ListBetween(ctx context.Context, userID string, start, end time.Time) ([]model.Event, error) {
	tok, err := m.tokens.GetValidAccessToken(ctx, userID, model.ProviderMicrosoft)
	if unlinked(err) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$select", "id,subject,start,end")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", "100")
	next := m.baseURL + "/me/calendarView?" + q.Encode()

	out := []model.Event{}
	for next != "" {
		var page graphList
		if err := m.do(ctx, tok, "list", http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, ge := range page.Value {
			out = append(out, ge.normalize())
		}
		next = page.NextLink
	}
	return out, nil
}

func (m *MicrosoftAdapter) Create(ctx context.Context, userID, title string, start, end time.Time) (string, error) {
	tok, err := m.tokens.GetValidAccessToken(ctx, userID, model.ProviderMicrosoft)
	if err != nil {
		return "", err
	}
	var created graphEvent
	body := graphEvent{Subject: &title, Start: utcTime(start), End: utcTime(end)}
	if err := m.do(ctx, tok, "create", http.MethodPost, m.baseURL+"/me/events", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (m *MicrosoftAdapter) Update(ctx context.Context, userID, eventID string, patch EventPatch) error {
	tok, err := m.tokens.GetValidAccessToken(ctx, userID, model.ProviderMicrosoft)
	if err != nil {
		return err
	}
	body := graphEvent{Subject: patch.Title}
	if patch.Start != nil {
		body.Start = utcTime(*patch.Start)
	}
	if patch.End != nil {
		body.End = utcTime(*patch.End)
	}
	return m.do(ctx, tok, "update", http.MethodPatch, m.eventURL(eventID), body, nil)
}

func (m *MicrosoftAdapter) Delete(ctx context.Context, userID, eventID string) error {
	tok, err := m.tokens.GetValidAccessToken(ctx, userID, model.ProviderMicrosoft)
	if err != nil {
		return err
	}
	err = m.do(ctx, tok, "delete", http.MethodDelete, m.eventURL(eventID), nil, nil)
	if ue, ok := err.(*UpstreamError); ok && ue.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (m *MicrosoftAdapter) eventURL(id string) string {
	return m.baseURL + "/me/events/" + url.PathEscape(id)
}

// do sends one Graph request.  in is JSON-encoded when non-nil; out is
// decoded from a 2xx body when non-nil.
func (m *MicrosoftAdapter) do(ctx context.Context, token, op, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := oauth.BearerClient(ctx, m.client, token).Do(req)
	if err != nil {
		return fmt.Errorf("microsoft %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &UpstreamError{Provider: model.ProviderMicrosoft, Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// normalize turns Graph's zone-less UTC wall times into RFC 3339.
func (ge graphEvent) normalize() model.Event {
	ev := model.Event{ID: ge.ID, Provider: model.ProviderMicrosoft}
	if ge.Subject != nil {
		ev.Title = *ge.Subject
	}
	if ge.Start != nil {
		ev.Start = graphInstant(*ge.Start)
	}
	if ge.End != nil {
		ev.End = graphInstant(*ge.End)
	}
	return ev
}

func graphInstant(gt graphTime) string {
	if gt.TimeZone != "" && !strings.EqualFold(gt.TimeZone, "UTC") {
		return gt.DateTime
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", gt.DateTime, time.UTC)
	if err != nil {
		return gt.DateTime
	}
	return t.Format(time.RFC3339)
}
