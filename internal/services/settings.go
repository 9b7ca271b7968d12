package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/ipscan/internal/store"
	"github.com/HerbHall/ipscan/pkg/models"
)

// Setting represents a key-value configuration entry.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingsRepository provides access to application settings.
type SettingsRepository interface {
	// Get returns a single setting by key.
	Get(ctx context.Context, key string) (*Setting, error)

	// Set creates or updates a setting.
	Set(ctx context.Context, key, value string) error
}

// Compile-time interface guard.
var _ SettingsRepository = (*SQLiteSettingsRepository)(nil)

// SQLiteSettingsRepository implements SettingsRepository using SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a SettingsRepository and runs the
// settings migration.
func NewSQLiteSettingsRepository(ctx context.Context, st store.Store) (*SQLiteSettingsRepository, error) {
	if err := st.Migrate(ctx, "settings", settingsMigrations); err != nil {
		return nil, fmt.Errorf("settings migrations: %w", err)
	}
	return &SQLiteSettingsRepository{db: st.DB()}, nil
}

func (r *SQLiteSettingsRepository) Get(ctx context.Context, key string) (*Setting, error) {
	var s Setting
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}
	return &s, nil
}

func (r *SQLiteSettingsRepository) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// settingsMigrations defines the database schema for settings.
var settingsMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create settings table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE settings (
					key        TEXT PRIMARY KEY,
					value      TEXT NOT NULL,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			return err
		},
	},
}

const scanConfigKey = "scan_config"

// ScanConfigStore keeps the runtime-editable scan configuration as a JSON
// document in the settings table.
type ScanConfigStore struct {
	settings SettingsRepository
}

// NewScanConfigStore wraps a SettingsRepository.
func NewScanConfigStore(settings SettingsRepository) *ScanConfigStore {
	return &ScanConfigStore{settings: settings}
}

// Load returns the stored configuration, or ErrNotFound when none was saved.
func (s *ScanConfigStore) Load(ctx context.Context) (models.ScanConfig, error) {
	var cfg models.ScanConfig
	setting, err := s.settings.Get(ctx, scanConfigKey)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal([]byte(setting.Value), &cfg); err != nil {
		return cfg, fmt.Errorf("decode stored scan config: %w", err)
	}
	return cfg, nil
}

// Save replaces the stored configuration.
func (s *ScanConfigStore) Save(ctx context.Context, cfg models.ScanConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode scan config: %w", err)
	}
	return s.settings.Set(ctx, scanConfigKey, string(raw))
}
