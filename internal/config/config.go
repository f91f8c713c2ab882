package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyDatabasePath       = "database.path"
	KeyBatchLimit         = "posting.batch_limit"
	KeyRecoverAfter       = "posting.recover_after"
	KeyMaxConflictRetries = "posting.max_conflict_retries"
	KeyInterval           = "posting.interval"
	KeyMetricsTextfile    = "metrics.textfile"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/ledger/ledger.db"

// Posting holds the settings a posting worker runs with.
type Posting struct {
	DatabasePath       string
	MetricsTextfile    string
	BatchLimit         int
	MaxConflictRetries int
	RecoverAfter       time.Duration
	Interval           time.Duration
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyBatchLimit, 500)
	v.SetDefault(KeyRecoverAfter, 15*time.Minute)
	v.SetDefault(KeyMaxConflictRetries, 3)
	v.SetDefault(KeyInterval, time.Minute)
	v.SetDefault(KeyMetricsTextfile, "")
}

// Load reads the posting settings from v, with paths expanded.
// Zero disables recovery; a zero batch limit means no limit.
func Load(v *viper.Viper) (*Posting, error) {
	SetDefaults(v)

	cfg := &Posting{
		DatabasePath:       ExpandPath(v.GetString(KeyDatabasePath)),
		MetricsTextfile:    ExpandPath(v.GetString(KeyMetricsTextfile)),
		BatchLimit:         v.GetInt(KeyBatchLimit),
		MaxConflictRetries: v.GetInt(KeyMaxConflictRetries),
		RecoverAfter:       v.GetDuration(KeyRecoverAfter),
		Interval:           v.GetDuration(KeyInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings are usable.
func (p *Posting) Validate() error {
	if p.DatabasePath == "" {
		return fmt.Errorf("%s must be set", KeyDatabasePath)
	}
	if p.BatchLimit < 0 {
		return fmt.Errorf("%s must not be negative, got %d", KeyBatchLimit, p.BatchLimit)
	}
	if p.MaxConflictRetries < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyMaxConflictRetries, p.MaxConflictRetries)
	}
	if p.RecoverAfter < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyRecoverAfter, p.RecoverAfter)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyInterval, p.Interval)
	}
	return nil
}
