package domain

import "time"

// MediaType distinguishes the two kinds of history items Trakt reports.
type MediaType string

const (
	MediaMovie   MediaType = "movie"
	MediaEpisode MediaType = "episode"
)

// WatchHistoryEntry is a single watched item from the Trakt history feed.
// Immutable once fetched; the sync engine only reads it.
type WatchHistoryEntry struct {
	MediaID   int64 // trakt id of the movie or episode
	Type      MediaType
	Title     string
	WatchedAt time.Time
	Duration  time.Duration // reported runtime; zero when Trakt has none
}
