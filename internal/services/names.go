package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/ipscan/internal/store"
)

// DeviceNameRepository stores user-assigned names keyed by IPv4 address.
type DeviceNameRepository interface {
	// Set assigns name to ip. An empty name removes the entry.
	Set(ctx context.Context, ip, name string) error

	// SetMany applies every entry in one transaction. Empty names remove
	// their entries. Either all entries are stored or none are.
	SetMany(ctx context.Context, names map[string]string) error

	// All returns every stored name.
	All(ctx context.Context) (map[string]string, error)
}

// Compile-time interface guard.
var _ DeviceNameRepository = (*SQLiteDeviceNameRepository)(nil)

// SQLiteDeviceNameRepository implements DeviceNameRepository using SQLite.
type SQLiteDeviceNameRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceNameRepository runs the device_names migration.
func NewSQLiteDeviceNameRepository(ctx context.Context, st store.Store) (*SQLiteDeviceNameRepository, error) {
	if err := st.Migrate(ctx, "device_names", deviceNameMigrations); err != nil {
		return nil, fmt.Errorf("device name migrations: %w", err)
	}
	return &SQLiteDeviceNameRepository{db: st.DB()}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteDeviceNameRepository) Set(ctx context.Context, ip, name string) error {
	return setDeviceName(ctx, r.db, ip, name, time.Now().UTC())
}

func (r *SQLiteDeviceNameRepository) SetMany(ctx context.Context, names map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin device name import: %w", err)
	}
	now := time.Now().UTC()
	for ip, name := range names {
		if err := setDeviceName(ctx, tx, ip, name, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit device name import: %w", err)
	}
	return nil
}

func setDeviceName(ctx context.Context, db execer, ip, name string, now time.Time) error {
	if name == "" {
		if _, err := db.ExecContext(ctx, `DELETE FROM device_names WHERE ip = ?`, ip); err != nil {
			return fmt.Errorf("clear device name %s: %w", ip, err)
		}
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO device_names (ip, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (ip) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		ip, name, now,
	)
	if err != nil {
		return fmt.Errorf("set device name %s: %w", ip, err)
	}
	return nil
}

func (r *SQLiteDeviceNameRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ip, name FROM device_names`)
	if err != nil {
		return nil, fmt.Errorf("list device names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var ip, name string
		if err := rows.Scan(&ip, &name); err != nil {
			return nil, fmt.Errorf("scan device name row: %w", err)
		}
		names[ip] = name
	}
	return names, rows.Err()
}

var deviceNameMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create device_names table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE device_names (
					ip         TEXT PRIMARY KEY,
					name       TEXT NOT NULL,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			return err
		},
	},
}
