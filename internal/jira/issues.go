package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultJQL lists the user's unresolved issues, most recently updated first.
const DefaultJQL = "assignee = currentUser() AND resolution = Unresolved ORDER BY updated DESC"

// DefaultFields are requested when a search names none.
var DefaultFields = []string{"summary", "status", "assignee", "project"}

// worklogTimeLayout is the only "started" format Jira accepts.
const worklogTimeLayout = "2006-01-02T15:04:05.000-0700"

// SearchRequest is the body of POST /rest/api/3/search.
type SearchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

// Search runs a JQL query and returns Jira's response untouched.
func (c *Client) Search(ctx context.Context, userID string, req SearchRequest) (json.RawMessage, error) {
	if req.JQL == "" {
		req.JQL = DefaultJQL
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 20
	}
	if len(req.Fields) == 0 {
		req.Fields = DefaultFields
	}
	s, err := c.site(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(ctx, s.token, "search", http.MethodPost, c.apiURL(s, "/search"), req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment posts text as a new comment on issue key.
func (c *Client) AddComment(ctx context.Context, userID, key, text string) (json.RawMessage, error) {
	s, err := c.site(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	body := map[string]any{"body": Doc(text)}
	if err := c.do(ctx, s.token, "comment", http.MethodPost, c.apiURL(s, "/issue/"+url.PathEscape(key)+"/comment"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDescription replaces the description of issue key with text.
func (c *Client) UpdateDescription(ctx context.Context, userID, key, text string) error {
	s, err := c.site(ctx, userID)
	if err != nil {
		return err
	}
	body := map[string]any{"fields": map[string]any{"description": Doc(text)}}
	return c.do(ctx, s.token, "description", http.MethodPut, c.apiURL(s, "/issue/"+url.PathEscape(key)), body, nil)
}

// Worklog describes time spent on an issue.
type Worklog struct {
	Started time.Time
	Ended   time.Time
	Comment string
}

// Seconds is the logged duration, never negative, truncated to whole seconds.
func (w Worklog) Seconds() int64 {
	d := w.Ended.Sub(w.Started)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// AddWorklog records w against issue key.
func (c *Client) AddWorklog(ctx context.Context, userID, key string, w Worklog) (json.RawMessage, error) {
	s, err := c.site(ctx, userID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"started":          w.Started.UTC().Format(worklogTimeLayout),
		"timeSpentSeconds": w.Seconds(),
	}
	if w.Comment != "" {
		body["comment"] = Doc(w.Comment)
	}
	var out json.RawMessage
	if err := c.do(ctx, s.token, "worklog", http.MethodPost, c.apiURL(s, "/issue/"+url.PathEscape(key)+"/worklog"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project is the summary of a Jira project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ListProjects returns the projects visible to the user (first page).
func (c *Client) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	s, err := c.site(ctx, userID)
	if err != nil {
		return nil, err
	}
	var page struct {
		Values []Project `json:"values"`
	}
	if err := c.do(ctx, s.token, "projects", http.MethodGet, c.apiURL(s, "/project/search"), nil, &page); err != nil {
		return nil, err
	}
	if page.Values == nil {
		return []Project{}, nil
	}
	return page.Values, nil
}

// Dashboard is the summary of a Jira dashboard.
type Dashboard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListDashboards returns the user's dashboards (first page).
func (c *Client) ListDashboards(ctx context.Context, userID string) ([]Dashboard, error) {
	s, err := c.site(ctx, userID)
	if err != nil {
		return nil, err
	}
	var page struct {
		Dashboards []struct {
			ID   json.RawMessage `json:"id"`
			Name string          `json:"name"`
		} `json:"dashboards"`
	}
	if err := c.do(ctx, s.token, "dashboards", http.MethodGet, c.apiURL(s, "/dashboard"), nil, &page); err != nil {
		return nil, err
	}
	out := make([]Dashboard, 0, len(page.Dashboards))
	for _, d := range page.Dashboards {
		out = append(out, Dashboard{ID: strings.Trim(string(d.ID), `"`), Name: d.Name})
	}
	return out, nil
}
