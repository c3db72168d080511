package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/sheetpulse/sheetpulse/internal/compare"
)

const schema = `
CREATE TABLE IF NOT EXISTS pushes (
    id             TEXT PRIMARY KEY,
    business       TEXT NOT NULL,
    status         TEXT NOT NULL,
    violation_diff REAL NOT NULL,
    metrics_json   TEXT NOT NULL,
    delivered      INTEGER NOT NULL,
    pushed_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS pushes_pushed_at ON pushes (pushed_at);`

// pruneInterval is how often Run deletes records past retention.
const pruneInterval = time.Hour

// Record is one delivered (or attempted) report push.
type Record struct {
	ID            string           `json:"id"`
	Business      string           `json:"business"`
	Status        string           `json:"status"`
	ViolationDiff float64          `json:"violation_diff"`
	Metrics       []compare.Result `json:"metrics"`
	Delivered     int              `json:"delivered"`
	PushedAt      time.Time        `json:"pushed_at"`
}

// row is the database shape of a Record.
type row struct {
	ID            string  `db:"id"`
	Business      string  `db:"business"`
	Status        string  `db:"status"`
	ViolationDiff float64 `db:"violation_diff"`
	MetricsJSON   string  `db:"metrics_json"`
	Delivered     int     `db:"delivered"`
	PushedAt      int64   `db:"pushed_at"` // unix milliseconds
}

// Store persists push records in SQLite. A nil *Store is a valid, disabled
// store: writes are dropped and reads return nothing.
type Store struct {
	db        *sqlx.DB
	retention time.Duration
	now       func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string, retention time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: ensure dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db, retention: retention, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts rec, assigning an ID and timestamp when they are unset.
func (s *Store) Record(ctx context.Context, rec Record) (Record, error) {
	if s == nil {
		return rec, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.PushedAt.IsZero() {
		rec.PushedAt = s.now()
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return rec, fmt.Errorf("history: encode metrics: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
INSERT INTO pushes (id, business, status, violation_diff, metrics_json, delivered, pushed_at)
VALUES (:id, :business, :status, :violation_diff, :metrics_json, :delivered, :pushed_at)`,
		row{
			ID:            rec.ID,
			Business:      rec.Business,
			Status:        rec.Status,
			ViolationDiff: rec.ViolationDiff,
			MetricsJSON:   string(metrics),
			Delivered:     rec.Delivered,
			PushedAt:      rec.PushedAt.UnixMilli(),
		})
	if err != nil {
		return rec, fmt.Errorf("history: insert: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, business, status, violation_diff, metrics_json, delivered, pushed_at
		 FROM pushes ORDER BY pushed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: select recent: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec := Record{
			ID:            r.ID,
			Business:      r.Business,
			Status:        r.Status,
			ViolationDiff: r.ViolationDiff,
			Delivered:     r.Delivered,
			PushedAt:      time.UnixMilli(r.PushedAt).UTC(),
		}
		if err := json.Unmarshal([]byte(r.MetricsJSON), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("history: decode metrics of %s: %w", r.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Prune deletes records pushed before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pushes WHERE pushed_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Run prunes records older than the retention period every hour until ctx is
// cancelled. A zero retention keeps everything.
func (s *Store) Run(ctx context.Context) {
	if s == nil || s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, s.now().Add(-s.retention))
			if err != nil {
				slog.Error("history: prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("history: pruned", "count", n)
			}
		}
	}
}
