package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HerbHall/ipscan/internal/store"
	"github.com/HerbHall/ipscan/pkg/models"
)

// SnapshotRepository persists the last scan snapshot. Only one finalized
// snapshot is kept: saving a finalized snapshot replaces every other run.
type SnapshotRepository interface {
	// SaveSnapshot stores snap, replacing any run with the same ID.
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error

	// Latest returns the most recent finalized snapshot.
	Latest(ctx context.Context) (*models.Snapshot, error)

	// Get returns a single snapshot by scan ID.
	Get(ctx context.Context, id string) (*models.Snapshot, error)

	// DiscardIncomplete deletes runs recorded while still scanning and reports
	// how many were removed.
	DiscardIncomplete(ctx context.Context) (int, error)
}

// Compile-time interface guard.
var _ SnapshotRepository = (*SQLiteSnapshotRepository)(nil)

// SQLiteSnapshotRepository implements SnapshotRepository over the scan_runs
// and scan_hosts tables.
type SQLiteSnapshotRepository struct {
	store store.Store
}

// NewSQLiteSnapshotRepository runs the scan migrations and returns a
// repository.
func NewSQLiteSnapshotRepository(ctx context.Context, st store.Store) (*SQLiteSnapshotRepository, error) {
	if err := st.Migrate(ctx, "scans", scanMigrations); err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}
	return &SQLiteSnapshotRepository{store: st}, nil
}

func (r *SQLiteSnapshotRepository) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return errors.New("save snapshot: missing scan id")
	}
	return r.store.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scan_runs WHERE id = ?`, snap.ID); err != nil {
			return fmt.Errorf("replace scan %q: %w", snap.ID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_runs (id, range_spec, started_at, scanned_at, duration_ms,
				total, completed, online, scanning)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Range, snap.StartedAt, snap.ScannedAt, snap.DurationMs,
			snap.Total, snap.Completed, snap.Online, snap.Scanning,
		)
		if err != nil {
			return fmt.Errorf("insert scan %q: %w", snap.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scan_hosts (scan_id, position, ip, hostname, manual_name,
				status, method, latency_ms, last_scan)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare host insert: %w", err)
		}
		defer stmt.Close()

		for i := range snap.Items {
			h := &snap.Items[i]
			var latency sql.NullFloat64
			if h.LatencyMs != nil {
				latency = sql.NullFloat64{Float64: *h.LatencyMs, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, snap.ID, i, h.IP, h.Hostname, h.ManualName,
				string(h.Status), string(h.Method), latency, h.LastScan); err != nil {
				return fmt.Errorf("insert host %s: %w", h.IP, err)
			}
		}

		// A finalized snapshot supersedes everything else; an in-flight one
		// only supersedes older in-flight runs.
		prune := `DELETE FROM scan_runs WHERE id != ?`
		if snap.Scanning {
			prune += ` AND scanning = 1`
		}
		if _, err := tx.ExecContext(ctx, prune, snap.ID); err != nil {
			return fmt.Errorf("prune superseded scans: %w", err)
		}
		return nil
	})
}

func (r *SQLiteSnapshotRepository) Latest(ctx context.Context) (*models.Snapshot, error) {
	var id string
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT id FROM scan_runs WHERE scanning = 0
		ORDER BY rowid DESC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest scan: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *SQLiteSnapshotRepository) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	db := r.store.DB()
	snap := &models.Snapshot{}
	err := db.QueryRowContext(ctx, `
		SELECT id, range_spec, started_at, scanned_at, duration_ms,
			total, completed, online, scanning
		FROM scan_runs WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Range, &snap.StartedAt, &snap.ScannedAt, &snap.DurationMs,
		&snap.Total, &snap.Completed, &snap.Online, &snap.Scanning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scan %q: %w", id, err)
	}
	snap.Offline = snap.Completed - snap.Online

	rows, err := db.QueryContext(ctx, `
		SELECT ip, hostname, manual_name, status, method, latency_ms, last_scan
		FROM scan_hosts WHERE scan_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list hosts of scan %q: %w", id, err)
	}
	defer rows.Close()

	snap.Items = []models.HostResult{}
	for rows.Next() {
		var h models.HostResult
		var status, method string
		var latency sql.NullFloat64
		if err := rows.Scan(&h.IP, &h.Hostname, &h.ManualName, &status, &method,
			&latency, &h.LastScan); err != nil {
			return nil, fmt.Errorf("scan host row: %w", err)
		}
		h.Status = models.HostStatus(status)
		h.Method = models.ProbeMethod(method)
		if latency.Valid {
			v := latency.Float64
			h.LatencyMs = &v
		}
		snap.Items = append(snap.Items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hosts: %w", err)
	}
	return snap, nil
}

func (r *SQLiteSnapshotRepository) DiscardIncomplete(ctx context.Context) (int, error) {
	res, err := r.store.DB().ExecContext(ctx, `DELETE FROM scan_runs WHERE scanning = 1`)
	if err != nil {
		return 0, fmt.Errorf("discard incomplete scans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// scanMigrations defines the schema for persisted scans.
var scanMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create scan_runs and scan_hosts tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE scan_runs (
					id          TEXT PRIMARY KEY,
					range_spec  TEXT NOT NULL,
					started_at  TEXT NOT NULL DEFAULT '',
					scanned_at  TEXT NOT NULL DEFAULT '',
					duration_ms INTEGER NOT NULL DEFAULT 0,
					total       INTEGER NOT NULL DEFAULT 0,
					completed   INTEGER NOT NULL DEFAULT 0,
					online      INTEGER NOT NULL DEFAULT 0,
					scanning    INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE scan_hosts (
					scan_id     TEXT NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
					position    INTEGER NOT NULL,
					ip          TEXT NOT NULL,
					hostname    TEXT NOT NULL DEFAULT '',
					manual_name TEXT NOT NULL DEFAULT '',
					status      TEXT NOT NULL DEFAULT 'unknown',
					method      TEXT NOT NULL DEFAULT '',
					latency_ms  REAL,
					last_scan   TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (scan_id, ip)
				)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
