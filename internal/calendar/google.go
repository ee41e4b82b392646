package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
)

const primaryCalendar = "primary"

// GoogleAdapter talks to the user's primary Google calendar.
type GoogleAdapter struct {
	tokens   oauth.TokenSource
	client   *http.Client
	endpoint string
}

// NewGoogleAdapter builds the adapter.  endpoint overrides the API base
// URL (".../calendar/v3/"); leave it empty for production.
func NewGoogleAdapter(tokens oauth.TokenSource, client *http.Client, endpoint string) *GoogleAdapter {
	return &GoogleAdapter{tokens: tokens, client: client, endpoint: endpoint}
}

func (g *GoogleAdapter) Provider() model.Provider { return model.ProviderGoogle }

func (g *GoogleAdapter) service(ctx context.Context, userID string) (*gcal.Service, error) {
	tok, err := g.tokens.GetValidAccessToken(ctx, userID, model.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth.BearerClient(ctx, g.client, tok))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func (g *GoogleAdapter) ListForDay(ctx context.Context, userID, dateISO string) ([]model.Event, error) {
	start, end, err := DayWindow(dateISO)
	if err != nil {
		return nil, err
	}
	return g.ListBetween(ctx, userID, start, end)
}

func (g *GoogleAdapter) ListBetween(ctx context.Context, userID string, start, end time.Time) ([]model.Event, error) {
	svc, err := g.service(ctx, userID)
	if unlinked(err) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []model.Event{}
	call := svc.Events.List(primaryCalendar).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		MaxResults(250)
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, it := range page.Items {
			out = append(out, googleEvent(it))
		}
		return nil
	})
	if err != nil {
		return nil, g.wrap("list", err)
	}
	return out, nil
}

func (g *GoogleAdapter) Create(ctx context.Context, userID, title string, start, end time.Time) (string, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return "", err
	}
	ev, err := svc.Events.Insert(primaryCalendar, &gcal.Event{
		Summary: title,
		Start:   &gcal.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:     &gcal.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", g.wrap("create", err)
	}
	return ev.Id, nil
}

func (g *GoogleAdapter) Update(ctx context.Context, userID, eventID string, patch EventPatch) error {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return err
	}
	body := &gcal.Event{}
	if patch.Title != nil {
		body.Summary = *patch.Title
		body.ForceSendFields = append(body.ForceSendFields, "Summary")
	}
	if patch.Start != nil {
		body.Start = &gcal.EventDateTime{DateTime: patch.Start.UTC().Format(time.RFC3339)}
	}
	if patch.End != nil {
		body.End = &gcal.EventDateTime{DateTime: patch.End.UTC().Format(time.RFC3339)}
	}
	if _, err := svc.Events.Patch(primaryCalendar, eventID, body).Context(ctx).Do(); err != nil {
		return g.wrap("update", err)
	}
	return nil
}

func (g *GoogleAdapter) Delete(ctx context.Context, userID, eventID string) error {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(primaryCalendar, eventID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return g.wrap("delete", err)
	}
	return nil
}

func (g *GoogleAdapter) wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &UpstreamError{Provider: model.ProviderGoogle, Op: op, Status: gerr.Code, Body: gerr.Body}
	}
	return err
}

func googleEvent(it *gcal.Event) model.Event {
	ev := model.Event{ID: it.Id, Title: it.Summary, Provider: model.ProviderGoogle}
	if it.Start != nil {
		ev.Start = firstNonEmpty(it.Start.DateTime, it.Start.Date)
	}
	if it.End != nil {
		ev.End = firstNonEmpty(it.End.DateTime, it.End.Date)
	}
	return ev
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
