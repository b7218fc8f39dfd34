package ports

import (
	"context"
	"iter"
	"time"

	"golang.org/x/oauth2"

	"trakt-toggl-sync/internal/domain"
)

// TokenProvider hands out a currently valid Trakt access token, refreshing
// and persisting behind the scenes when needed.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// TraktClient exposes the user's watch history for a time window. The
// sequence is lazy and finite; iterating again restarts the fetch from
// page one.
type TraktClient interface {
	History(ctx context.Context, from, to time.Time) iter.Seq2[domain.WatchHistoryEntry, error]
}

// TogglClient defines the time-entry operations the sync engine needs.
// No update or delete: existing entries are never touched.
type TogglClient interface {
	ListTimeEntries(ctx context.Context, from, to time.Time) ([]domain.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, entry domain.TimeEntry) (domain.TimeEntry, error)
}

// Ledger records entries the engine created, for audit. Write-only from the
// engine's point of view; the dedup check never reads it.
type Ledger interface {
	RecordSynced(ctx context.Context, recs []domain.SyncedEntry) error
}
