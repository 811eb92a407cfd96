package settings

import "time"

// Sync status values recorded by the replicator.
const (
	SyncInProgress = "in_progress"
	SyncSuccess    = "success"
	SyncFailed     = "failed"
)

// CloudSync controls the periodic replication to the remote store.
type CloudSync struct {
	Enabled          bool       `json:"enabled"`
	IntervalHours    int        `json:"intervalHours"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncStatus   string     `json:"lastSyncStatus,omitempty"`
	LastSyncError    string     `json:"lastSyncError,omitempty"`
	LastSyncDuration int64      `json:"lastSyncDurationMs,omitempty"`
}

// CloudProcessing gates the cloud AI detector and frame uploads.
type CloudProcessing struct {
	Enabled        bool       `json:"enabled"`
	DisabledReason string     `json:"disabledReason,omitempty"`
	DisabledAt     *time.Time `json:"disabledAt,omitempty"`
	DisabledBy     string     `json:"disabledBy,omitempty"`
}

// Settings is the singleton read once per pipeline cycle.
type Settings struct {
	CloudSync       CloudSync       `json:"cloudSync"`
	CloudProcessing CloudProcessing `json:"cloudProcessing"`
}

// Defaults are assumed when the settings document is unreadable:
// cloud processing on, cloud sync off.
func Defaults() Settings {
	return Settings{
		CloudSync:       CloudSync{Enabled: false, IntervalHours: 12},
		CloudProcessing: CloudProcessing{Enabled: true},
	}
}

// Interval clamps intervalHours into the documented [1,168] range.
func (s Settings) Interval() time.Duration {
	h := s.CloudSync.IntervalHours
	if h < 1 {
		h = 1
	}
	if h > 168 {
		h = 168
	}
	return time.Duration(h) * time.Hour
}
