// Package jira is a small client for the Jira Cloud REST API v3 reached
// through Atlassian's OAuth 2.0 (3LO) gateway.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
)

// DefaultBaseURL is the Atlassian API gateway.
const DefaultBaseURL = "https://api.atlassian.com"

// ErrNoCloud is returned when the grant gives access to no Atlassian site.
var ErrNoCloud = errors.New("no accessible jira cloud found")

// APIError carries a non-2xx Jira response so callers can tell an
// expired grant (401) from a bad query (400).
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s failed: status %d", e.Op, e.Status)
}

// Client calls Jira on behalf of a user.
type Client struct {
	tokens  oauth.TokenSource
	http    *http.Client
	baseURL string
}

// NewClient builds a Client.  An empty baseURL means DefaultBaseURL.
func NewClient(tokens oauth.TokenSource, httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{tokens: tokens, http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Resource is one entry of the accessible-resources listing.
type Resource struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Scopes []string `json:"scopes"`
}

type site struct {
	token   string
	cloudID string
}

// site resolves the user's token and Jira cloud id: the first resource
// with a jira scope, else the first resource.
func (c *Client) site(ctx context.Context, userID string) (site, error) {
	tok, err := c.tokens.GetValidAccessToken(ctx, userID, model.ProviderAtlassian)
	if err != nil {
		return site{}, err
	}
	var resources []Resource
	if err := c.do(ctx, tok, "accessible-resources", http.MethodGet, c.baseURL+"/oauth/token/accessible-resources", nil, &resources); err != nil {
		return site{}, err
	}
	id := pickCloud(resources)
	if id == "" {
		return site{}, ErrNoCloud
	}
	return site{token: tok, cloudID: id}, nil
}

func pickCloud(resources []Resource) string {
	for _, r := range resources {
		for _, s := range r.Scopes {
			if strings.Contains(s, "jira") {
				return r.ID
			}
		}
	}
	if len(resources) > 0 {
		return resources[0].ID
	}
	return ""
}

// ResolveCloudID returns the cloud id used for the user's Jira calls.
func (c *Client) ResolveCloudID(ctx context.Context, userID string) (string, error) {
	s, err := c.site(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.cloudID, nil
}

func (c *Client) apiURL(s site, path string) string {
	return c.baseURL + "/ex/jira/" + s.cloudID + "/rest/api/3" + path
}

// do sends one JSON request.  in is encoded when non-nil and out is
// decoded from a 2xx body when non-nil.
func (c *Client) do(ctx context.Context, token, op, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := oauth.BearerClient(ctx, c.http, token).Do(req)
	if err != nil {
		return fmt.Errorf("jira %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(b)) == 0 {
			b = []byte("{}")
		}
		*raw = b
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
