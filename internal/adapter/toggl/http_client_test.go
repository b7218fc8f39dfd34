package toggl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trakt-toggl-sync/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "toggl-token", 456, slog.New(slog.DiscardHandler))
}

func wantAuth(t *testing.T, r *http.Request) {
	t.Helper()
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("toggl-token:api_token"))
	assert.Equal(t, expected, r.Header.Get("Authorization"))
}

func TestListTimeEntries(t *testing.T) {
	start := time.Date(2026, 8, 15, 21, 0, 0, 0, time.UTC)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantAuth(t, r)
		require.Equal(t, "/api/v9/me/time_entries", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("start_date"))
		assert.NotEmpty(t, r.URL.Query().Get("end_date"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[
			{"id":1,"description":"🎞️ Movie A (2024)","project_id":123,"workspace_id":456,
			 "tags":["trakt"],"start":%q,"stop":%q,"duration":7080},
			{"id":2,"description":"running","project_id":null,"workspace_id":456,
			 "tags":null,"start":%q,"stop":null,"duration":-1}
		]`, start.Format(time.RFC3339), start.Add(118*time.Minute).Format(time.RFC3339),
			start.Format(time.RFC3339))
	}))

	entries, err := c.ListTimeEntries(context.Background(), start.Add(-time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "🎞️ Movie A (2024)", first.Description)
	require.NotNil(t, first.ProjectID)
	assert.Equal(t, int64(123), *first.ProjectID)
	require.NotNil(t, first.Stop)
	assert.Equal(t, int64(7080), first.DurationSec)

	second := entries[1]
	assert.Nil(t, second.ProjectID)
	assert.Nil(t, second.Stop)
	assert.Equal(t, int64(-1), second.DurationSec)
}

func TestCreateTimeEntry(t *testing.T) {
	start := time.Date(2026, 8, 15, 21, 0, 0, 0, time.UTC)
	stop := start.Add(118 * time.Minute)
	project := int64(123)
	workspace := int64(456)

	var posted rawNewTimeEntry
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantAuth(t, r)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v9/workspaces/456/time_entries", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":42,"description":%q,"project_id":123,"workspace_id":456,
			"tags":["trakt"],"start":%q,"stop":%q,"duration":7080}`,
			posted.Description, posted.Start, posted.Stop)
	}))

	created, err := c.CreateTimeEntry(context.Background(), domain.TimeEntry{
		Description: "🎞️ Movie A (2024)",
		ProjectID:   &project,
		WorkspaceID: &workspace,
		Tags:        []string{"trakt"},
		Start:       start,
		Stop:        &stop,
		DurationSec: 7080,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, "🎞️ Movie A (2024)", posted.Description)
	assert.Equal(t, start.Format(time.RFC3339), posted.Start)
	assert.Equal(t, stop.Format(time.RFC3339), posted.Stop)
	assert.Equal(t, int64(7080), posted.Duration)
	assert.Equal(t, int64(123), posted.ProjectID)
	assert.Equal(t, int64(456), posted.WorkspaceID)
	assert.Equal(t, []string{"trakt"}, posted.Tags)
	assert.Equal(t, "trakt-toggl-sync", posted.CreatedWith)
}

func TestCreateTimeEntry_RefusesRunningEntry(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := c.CreateTimeEntry(context.Background(), domain.TimeEntry{Description: "no stop"})
	require.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		asAuth bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"bad request", http.StatusBadRequest, false},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			_, listErr := c.ListTimeEntries(context.Background(), time.Now().Add(-time.Hour), time.Now())
			stop := time.Now()
			_, createErr := c.CreateTimeEntry(context.Background(), domain.TimeEntry{Stop: &stop})

			for _, err := range []error{listErr, createErr} {
				require.Error(t, err)
				var authErr *domain.AuthError
				var upErr *domain.UpstreamError
				if tt.asAuth {
					assert.ErrorAs(t, err, &authErr)
				} else {
					require.ErrorAs(t, err, &upErr)
					assert.Equal(t, tt.status, upErr.Status)
				}
			}
		})
	}
}
