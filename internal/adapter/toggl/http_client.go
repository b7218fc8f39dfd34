package toggl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"trakt-toggl-sync/internal/domain"
)

// Client implements ports.TogglClient using the Toggl Track API v9.
type Client struct {
	baseURL   string
	apiToken  string
	workspace int64
	http      *http.Client
	log       *slog.Logger
}

func NewClient(baseURL, apiToken string, workspaceID int64, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.track.toggl.com"
	}
	return &Client{
		baseURL:   baseURL,
		apiToken:  apiToken,
		workspace: workspaceID,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// ListTimeEntries fetches entries in [from, to].
// Toggl v9: GET /api/v9/me/time_entries?start_date=...&end_date=...
func (c *Client) ListTimeEntries(ctx context.Context, from, to time.Time) ([]domain.TimeEntry, error) {
	if c.apiToken == "" {
		return nil, &domain.ConfigError{Reason: "missing toggl api token"}
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "toggl", Err: err}
	}
	u.Path = "/api/v9/me/time_entries"
	q := u.Query()
	q.Set("start_date", from.Format(time.RFC3339))
	q.Set("end_date", to.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "toggl", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "toggl", Err: err}
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var raw []rawTimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &domain.UpstreamError{Service: "toggl", Err: fmt.Errorf("decoding time entries: %w", err)}
	}
	out := make([]domain.TimeEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CreateTimeEntry submits one entry and returns the server-assigned record.
// Toggl v9: POST /api/v9/workspaces/{wid}/time_entries
func (c *Client) CreateTimeEntry(ctx context.Context, entry domain.TimeEntry) (domain.TimeEntry, error) {
	if entry.Stop == nil {
		return domain.TimeEntry{}, errors.New("toggl: refusing to create a running entry")
	}
	body := rawNewTimeEntry{
		Description: entry.Description,
		Start:       entry.Start.UTC().Format(time.RFC3339),
		Stop:        entry.Stop.UTC().Format(time.RFC3339),
		Duration:    entry.DurationSec,
		Tags:        entry.Tags,
		WorkspaceID: c.workspace,
		CreatedWith: "trakt-toggl-sync",
	}
	if entry.ProjectID != nil {
		body.ProjectID = *entry.ProjectID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.TimeEntry{}, &domain.UpstreamError{Service: "toggl", Err: err}
	}

	u := fmt.Sprintf("%s/api/v9/workspaces/%d/time_entries", c.baseURL, c.workspace)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return domain.TimeEntry{}, &domain.UpstreamError{Service: "toggl", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TimeEntry{}, &domain.UpstreamError{Service: "toggl", Err: err}
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return domain.TimeEntry{}, err
	}
	var raw rawTimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.TimeEntry{}, &domain.UpstreamError{Service: "toggl", Err: fmt.Errorf("decoding created entry: %w", err)}
	}
	c.log.Debug("created time entry", slog.Int64("id", raw.ID), slog.String("description", raw.Description))
	return raw.toDomain(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	// Basic auth: token:api_token
	auth := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", c.apiToken, "api_token")))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &domain.AuthError{Reason: fmt.Sprintf("toggl rejected the api token (status %d)", resp.StatusCode)}
	}
	return &domain.UpstreamError{Service: "toggl", Status: resp.StatusCode, Err: fmt.Errorf("%s", body)}
}

// rawTimeEntry mirrors the JSON from Toggl v9.
type rawTimeEntry struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	ProjectID   *int64     `json:"project_id"`
	WorkspaceID *int64     `json:"workspace_id"`
	Tags        []string   `json:"tags"`
	Start       time.Time  `json:"start"`
	Stop        *time.Time `json:"stop"`
	Duration    int64      `json:"duration"`
}

func (r rawTimeEntry) toDomain() domain.TimeEntry {
	var stopPtr *time.Time
	if r.Stop != nil {
		stop := *r.Stop
		stopPtr = &stop
	}
	var projectPtr *int64
	if r.ProjectID != nil {
		p := *r.ProjectID
		projectPtr = &p
	}
	var wsPtr *int64
	if r.WorkspaceID != nil {
		w := *r.WorkspaceID
		wsPtr = &w
	}
	return domain.TimeEntry{
		ID:          r.ID,
		Description: r.Description,
		ProjectID:   projectPtr,
		WorkspaceID: wsPtr,
		Tags:        r.Tags,
		Start:       r.Start,
		Stop:        stopPtr,
		DurationSec: r.Duration,
	}
}

// rawNewTimeEntry is the creation payload for Toggl v9.
type rawNewTimeEntry struct {
	Description string   `json:"description"`
	Start       string   `json:"start"`
	Stop        string   `json:"stop"`
	Duration    int64    `json:"duration"`
	ProjectID   int64    `json:"project_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	WorkspaceID int64    `json:"workspace_id"`
	CreatedWith string   `json:"created_with"`
}
