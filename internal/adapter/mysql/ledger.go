package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"trakt-toggl-sync/internal/domain"
)

// Ledger implements ports.Ledger by recording created entries in a MySQL
// table. Purely for audit; the sync algorithm never reads it back.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
}

// NewLedger opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func NewLedger(ctx context.Context, dsn string, log *slog.Logger) (*Ledger, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// Conservative pool defaults for a run-once process.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, log: log}, nil
}

// RecordSynced upserts one row per created entry, keyed on
// (media_id, watched_at) like the dedup match key.
func (l *Ledger) RecordSynced(ctx context.Context, recs []domain.SyncedEntry) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
INSERT INTO synced_entries
  (media_id, watched_at, media_type, title, toggl_entry_id, created_at)
VALUES
  (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  media_type=VALUES(media_type),
  title=VALUES(title),
  toggl_entry_id=VALUES(toggl_entry_id);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range recs {
		if _, err := stmt.ExecContext(
			ctx,
			r.MediaID,
			r.WatchedAt.UTC(),
			string(r.Type),
			r.Title,
			r.TogglEntryID,
			now,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	l.log.Info("ledger recorded synced entries", slog.Int("count", len(recs)))
	return nil
}

// Close closes the underlying DB. Not wired via interface to keep ports minimal.
func (l *Ledger) Close() error { return l.db.Close() }
