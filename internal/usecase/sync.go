package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"trakt-toggl-sync/internal/domain"
	"trakt-toggl-sync/internal/ports"
)

// SyncUseCase mirrors a window of Trakt watch history into Toggl time
// entries, creating only the entries that are not already present.
type SyncUseCase struct {
	Log    *slog.Logger
	Trakt  ports.TraktClient
	Toggl  ports.TogglClient
	Ledger ports.Ledger // optional audit sink

	ProjectID   int64
	WorkspaceID int64
	Tags        []string

	// Dedup match key: start times are rounded to Granularity; rounded
	// stamps within Tolerance of each other still count as the same entry.
	Granularity time.Duration
	Tolerance   time.Duration

	// MaxDuration clamps glitched runtimes. DefaultDuration, when nonzero,
	// stands in for unknown runtimes; when zero those entries are skipped.
	MaxDuration     time.Duration
	DefaultDuration time.Duration

	Now func() time.Time // test hook
}

// Result counts what one pass did.
type Result struct {
	Fetched int // history items read from Trakt
	Matched int // already present in Toggl
	Created int
	Skipped int // malformed, future-dated or zero-duration items
	Failed  int // per-entry creation failures
}

// Run executes one sync pass over [from, to]. Per-entry creation failures
// are counted, logged and skipped; auth failures and fetch-phase errors
// abort immediately. Run is idempotent over an unchanged window.
func (uc *SyncUseCase) Run(ctx context.Context, from, to time.Time) (Result, error) {
	var res Result
	if uc.Trakt == nil || uc.Toggl == nil {
		return res, errors.New("usecase not initialized: missing dependencies")
	}
	uc.Log.Info("fetching watch history", slog.Time("from", from), slog.Time("to", to))

	history, skipped, err := uc.collectHistory(ctx, from, to)
	res.Skipped += skipped
	if err != nil {
		return res, err
	}
	res.Fetched = len(history)
	uc.Log.Info("fetched watch history", slog.Int("count", len(history)))

	if len(history) == 0 {
		uc.Log.Info("no watch history in window, nothing to sync")
		return res, nil
	}

	existing, err := uc.Toggl.ListTimeEntries(ctx, from, to)
	if err != nil {
		return res, err
	}
	index := uc.buildIndex(existing)

	now := uc.now()
	var synced []domain.SyncedEntry
	for _, h := range history {
		dur, ok := uc.sanitize(h, now)
		if !ok {
			res.Skipped++
			continue
		}
		if index.matches(h.Title, h.WatchedAt, uc.Granularity, uc.Tolerance) {
			res.Matched++
			continue
		}

		created, err := uc.Toggl.CreateTimeEntry(ctx, uc.buildEntry(h, dur))
		if err != nil {
			var authErr *domain.AuthError
			if errors.As(err, &authErr) {
				return res, err
			}
			uc.Log.Error("failed to create time entry, continuing",
				slog.String("title", h.Title),
				slog.Time("watched_at", h.WatchedAt),
				slog.String("error", err.Error()))
			res.Failed++
			continue
		}
		res.Created++
		// Index the new entry so a duplicate history item later in the
		// same pass cannot create it twice.
		index.add(h.Title, h.WatchedAt, uc.Granularity)
		synced = append(synced, domain.SyncedEntry{
			MediaID:      h.MediaID,
			Type:         h.Type,
			Title:        h.Title,
			WatchedAt:    h.WatchedAt,
			TogglEntryID: created.ID,
		})
	}

	if uc.Ledger != nil && len(synced) > 0 {
		if err := uc.Ledger.RecordSynced(ctx, synced); err != nil {
			uc.Log.Warn("failed to record created entries in ledger", slog.String("error", err.Error()))
		}
	}

	uc.Log.Info("sync completed",
		slog.Int("fetched", res.Fetched),
		slog.Int("matched", res.Matched),
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	return res, nil
}

// collectHistory drains the history sequence into watched_at ascending
// order. Trakt returns newest first; the engine never relies on upstream
// order. Malformed items are skipped, any other error aborts.
func (uc *SyncUseCase) collectHistory(ctx context.Context, from, to time.Time) ([]domain.WatchHistoryEntry, int, error) {
	var (
		history []domain.WatchHistoryEntry
		skipped int
	)
	for h, err := range uc.Trakt.History(ctx, from, to) {
		if err != nil {
			var dataErr *domain.DataError
			if errors.As(err, &dataErr) {
				uc.Log.Warn("skipping malformed history item", slog.String("reason", dataErr.Reason))
				skipped++
				continue
			}
			return nil, skipped, err
		}
		history = append(history, h)
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].WatchedAt.Equal(history[j].WatchedAt) {
			return history[i].MediaID < history[j].MediaID
		}
		return history[i].WatchedAt.Before(history[j].WatchedAt)
	})
	return history, skipped, nil
}

// sanitize validates one history item and resolves its duration. A false
// return means skip with a warning.
func (uc *SyncUseCase) sanitize(h domain.WatchHistoryEntry, now time.Time) (time.Duration, bool) {
	if h.WatchedAt.After(now) {
		uc.Log.Warn("skipping future-dated watch entry",
			slog.String("title", h.Title), slog.Time("watched_at", h.WatchedAt))
		return 0, false
	}
	dur := h.Duration
	if dur <= 0 {
		if uc.DefaultDuration <= 0 {
			uc.Log.Warn("skipping watch entry with unknown runtime", slog.String("title", h.Title))
			return 0, false
		}
		dur = uc.DefaultDuration
	}
	if uc.MaxDuration > 0 && dur > uc.MaxDuration {
		uc.Log.Warn("clamping implausible runtime",
			slog.String("title", h.Title),
			slog.Duration("runtime", dur),
			slog.Duration("ceiling", uc.MaxDuration))
		dur = uc.MaxDuration
	}
	return dur, true
}

func (uc *SyncUseCase) buildEntry(h domain.WatchHistoryEntry, dur time.Duration) domain.TimeEntry {
	start := h.WatchedAt.UTC()
	stop := start.Add(dur)
	project := uc.ProjectID
	workspace := uc.WorkspaceID
	return domain.TimeEntry{
		Description: h.Title,
		ProjectID:   &project,
		WorkspaceID: &workspace,
		Tags:        append([]string(nil), uc.Tags...),
		Start:       start,
		Stop:        &stop,
		DurationSec: int64(dur / time.Second),
	}
}

// matchIndex maps a normalized title to the rounded start times already
// present in Toggl for that title.
type matchIndex map[string][]time.Time

func (uc *SyncUseCase) buildIndex(existing []domain.TimeEntry) matchIndex {
	idx := make(matchIndex, len(existing))
	for _, e := range existing {
		key := normalizeTitle(e.Description)
		idx[key] = append(idx[key], e.Start.UTC().Round(uc.Granularity))
	}
	return idx
}

func (idx matchIndex) add(title string, start time.Time, granularity time.Duration) {
	key := normalizeTitle(title)
	idx[key] = append(idx[key], start.UTC().Round(granularity))
}

func (idx matchIndex) matches(title string, start time.Time, granularity, tolerance time.Duration) bool {
	rounded := start.UTC().Round(granularity)
	for _, existing := range idx[normalizeTitle(title)] {
		diff := existing.Sub(rounded)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}

// normalizeTitle lowercases and collapses whitespace so cosmetic drift
// between the two services does not defeat the dedup check.
func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (uc *SyncUseCase) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}
