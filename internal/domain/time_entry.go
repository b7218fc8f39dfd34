package domain

import "time"

// TimeEntry represents a Toggl time entry in the domain. Entries created by
// the sync engine always carry a stop time; entries listed from Toggl may be
// running and have none.
type TimeEntry struct {
	ID          int64
	Description string
	ProjectID   *int64
	WorkspaceID *int64
	Tags        []string
	Start       time.Time
	Stop        *time.Time
	DurationSec int64 // Negative means running in Toggl API semantics
}

// SyncedEntry is the ledger record written after a time entry was created,
// keyed by the same (media id, watched at) pair the dedup check uses.
type SyncedEntry struct {
	MediaID      int64
	Type         MediaType
	Title        string
	WatchedAt    time.Time
	TogglEntryID int64
}
