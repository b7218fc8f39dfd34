package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trakt-toggl-sync/internal/domain"
	"trakt-toggl-sync/internal/ports"
)

const pageLimit = 100

// Client implements ports.TraktClient using the Trakt API v2.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	tokens       ports.TokenProvider
	http         *http.Client
	log          *slog.Logger
}

func NewClient(baseURL, clientID, clientSecret string, tokens ports.TokenProvider, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.trakt.tv"
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokens,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// History fetches watched items in [from, to] as a lazy sequence, paging
// GET /sync/history until an empty page. A page-level failure ends the
// sequence with that error; items the API cannot describe (no movie or
// episode object) surface as DataError so the engine can skip them.
func (c *Client) History(ctx context.Context, from, to time.Time) iter.Seq2[domain.WatchHistoryEntry, error] {
	return func(yield func(domain.WatchHistoryEntry, error) bool) {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			yield(domain.WatchHistoryEntry{}, err)
			return
		}
		for page := 1; ; page++ {
			items, err := c.historyPage(ctx, tok.AccessToken, from, to, page)
			if err != nil {
				yield(domain.WatchHistoryEntry{}, err)
				return
			}
			if len(items) == 0 {
				return
			}
			c.log.Debug("fetched history page", slog.Int("page", page), slog.Int("items", len(items)))
			for _, it := range items {
				if !yield(mapHistoryItem(it)) {
					return
				}
			}
		}
	}
}

// historyPage requests one page. extended=full makes Trakt include runtimes.
func (c *Client) historyPage(ctx context.Context, accessToken string, from, to time.Time, page int) ([]rawHistoryItem, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	u.Path = "/sync/history"
	q := u.Query()
	q.Set("extended", "full")
	q.Set("start_at", from.UTC().Format(time.RFC3339))
	q.Set("end_at", to.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageLimit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.AuthError{Reason: fmt.Sprintf("trakt rejected the access token (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamError{Service: "trakt", Status: resp.StatusCode, Err: fmt.Errorf("%s", body)}
	}
	var items []rawHistoryItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &domain.UpstreamError{Service: "trakt", Err: fmt.Errorf("decoding history page: %w", err)}
	}
	return items, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", c.clientID)
}

func mapHistoryItem(it rawHistoryItem) (domain.WatchHistoryEntry, error) {
	switch it.Type {
	case "movie":
		if it.Movie == nil {
			return domain.WatchHistoryEntry{}, &domain.DataError{Reason: "history item typed movie carries no movie"}
		}
		year := "N/A"
		if it.Movie.Year > 0 {
			year = strconv.Itoa(it.Movie.Year)
		}
		return domain.WatchHistoryEntry{
			MediaID:   it.Movie.IDs.Trakt,
			Type:      domain.MediaMovie,
			Title:     fmt.Sprintf("🎞️ %s (%s)", it.Movie.Title, year),
			WatchedAt: it.WatchedAt,
			Duration:  time.Duration(it.Movie.Runtime) * time.Minute,
		}, nil
	case "episode":
		if it.Episode == nil || it.Show == nil {
			return domain.WatchHistoryEntry{}, &domain.DataError{Reason: "history item typed episode carries no episode or show"}
		}
		return domain.WatchHistoryEntry{
			MediaID: it.Episode.IDs.Trakt,
			Type:    domain.MediaEpisode,
			Title: fmt.Sprintf("📺 %s - S%02dE%02d - %s",
				it.Show.Title, it.Episode.Season, it.Episode.Number, it.Episode.Title),
			WatchedAt: it.WatchedAt,
			Duration:  time.Duration(it.Episode.Runtime) * time.Minute,
		}, nil
	default:
		return domain.WatchHistoryEntry{}, &domain.DataError{Reason: "history item of unsupported type " + it.Type}
	}
}

// rawHistoryItem mirrors the JSON from GET /sync/history?extended=full.
type rawHistoryItem struct {
	ID        int64       `json:"id"`
	WatchedAt time.Time   `json:"watched_at"`
	Type      string      `json:"type"`
	Movie     *rawMovie   `json:"movie"`
	Show      *rawShow    `json:"show"`
	Episode   *rawEpisode `json:"episode"`
}

type rawMovie struct {
	Title   string `json:"title"`
	Year    int    `json:"year"`
	Runtime int    `json:"runtime"` // minutes
	IDs     rawIDs `json:"ids"`
}

type rawShow struct {
	Title string `json:"title"`
}

type rawEpisode struct {
	Season  int    `json:"season"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Runtime int    `json:"runtime"` // minutes
	IDs     rawIDs `json:"ids"`
}

type rawIDs struct {
	Trakt int64 `json:"trakt"`
}
