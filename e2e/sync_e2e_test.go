//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	msql "trakt-toggl-sync/internal/adapter/mysql"
	"trakt-toggl-sync/internal/domain"
	"trakt-toggl-sync/internal/migrate"
	"trakt-toggl-sync/internal/usecase"
)

type fakeTrakt struct{ entries []domain.WatchHistoryEntry }

func (f fakeTrakt) History(ctx context.Context, from, to time.Time) iter.Seq2[domain.WatchHistoryEntry, error] {
	return func(yield func(domain.WatchHistoryEntry, error) bool) {
		for _, e := range f.entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

type fakeToggl struct {
	existing []domain.TimeEntry
	nextID   int64
}

func (f *fakeToggl) ListTimeEntries(ctx context.Context, from, to time.Time) ([]domain.TimeEntry, error) {
	return f.existing, nil
}

func (f *fakeToggl) CreateTimeEntry(ctx context.Context, e domain.TimeEntry) (domain.TimeEntry, error) {
	f.nextID++
	e.ID = f.nextID
	f.existing = append(f.existing, e)
	return e, nil
}

func TestSyncRecordsLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()

	// Start MySQL container
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      "testdb",
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_USER":          "test",
			"MYSQL_PASSWORD":      "pass",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = mysqlC.Terminate(context.Background()) })

	host, err := mysqlC.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := mysqlC.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true", "test", "pass", host, port.Port(), "testdb")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := migrate.Run(ctx, dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ledger, err := msql.NewLedger(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("mysql ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	watched := time.Date(2026, 8, 1, 21, 0, 0, 0, time.UTC)
	trakt := fakeTrakt{entries: []domain.WatchHistoryEntry{
		{MediaID: 11, Type: domain.MediaMovie, Title: "🎞️ Movie A (2024)", WatchedAt: watched, Duration: 118 * time.Minute},
		{MediaID: 22, Type: domain.MediaEpisode, Title: "📺 Show B - S01E03 - Pilot Part 3", WatchedAt: watched.Add(2 * time.Hour), Duration: 42 * time.Minute},
	}}
	toggl := &fakeToggl{}

	uc := &usecase.SyncUseCase{
		Log:         logger,
		Trakt:       trakt,
		Toggl:       toggl,
		Ledger:      ledger,
		ProjectID:   123,
		WorkspaceID: 456,
		Tags:        []string{"trakt"},
		Granularity: time.Minute,
		Tolerance:   2 * time.Minute,
		MaxDuration: 6 * time.Hour,
	}
	from, to := watched.Add(-time.Hour), watched.Add(4*time.Hour)
	res, err := uc.Run(ctx, from, to)
	if err != nil {
		t.Fatalf("sync run: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("expected 2 created, got %d", res.Created)
	}

	// Verify rows
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synced_entries").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	// Run again: the Toggl fake now holds both entries, so the dedup check
	// matches them and the ledger stays unchanged.
	res, err = uc.Run(ctx, from, to)
	if err != nil {
		t.Fatalf("sync run 2: %v", err)
	}
	if res.Created != 0 || res.Matched != 2 {
		t.Fatalf("expected idempotent second pass, got %+v", res)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synced_entries").Scan(&count); err != nil {
		t.Fatalf("count 2: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after second pass, got %d", count)
	}
}
