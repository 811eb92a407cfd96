package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/technosupport/ts-evac/internal/settings"
)

// SettingsModel stores the singleton settings document in row id 1.
type SettingsModel struct {
	DB DBTX
}

// Get reads the singleton. Any failure yields the documented defaults
// (cloud processing on, cloud sync off) so a broken settings row never
// stops the pipeline.
func (m SettingsModel) Get(ctx context.Context) settings.Settings {
	query := `SELECT doc FROM settings WHERE id = 1`

	var body []byte
	err := m.DB.QueryRowContext(ctx, query).Scan(&body)
	if err == sql.ErrNoRows {
		return settings.Defaults()
	}
	if err != nil {
		log.Printf("[Settings] read failed, assuming defaults: %v", err)
		return settings.Defaults()
	}

	var s settings.Settings
	if err := json.Unmarshal(body, &s); err != nil {
		log.Printf("[Settings] document malformed, assuming defaults: %v", err)
		return settings.Defaults()
	}
	return s
}

func (m SettingsModel) Put(ctx context.Context, s settings.Settings) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings marshal: %w", err)
	}

	query := `
		INSERT INTO settings (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`
	_, err = m.DB.ExecContext(ctx, query, body)
	return err
}

// RecordSyncStatus writes the replication outcome back onto the singleton.
func (m SettingsModel) RecordSyncStatus(ctx context.Context, status, syncErr string, duration time.Duration, at time.Time) error {
	s := m.Get(ctx)
	s.CloudSync.LastSyncStatus = status
	s.CloudSync.LastSyncError = syncErr
	s.CloudSync.LastSyncDuration = duration.Milliseconds()
	s.CloudSync.LastSyncAt = &at
	return m.Put(ctx, s)
}
