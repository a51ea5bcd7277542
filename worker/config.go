package worker

import "time"

// Config configures a Worker (spec §6 Worker configuration).
type Config struct {
	ServiceName           string
	Title                 string
	Description           string
	WorkDir               string
	Concurrency           int
	QueueSize             int
	CleanupInterval       time.Duration
	ReloadMonitor         string
	HidePresenceVersions  bool
	ResultExpires         time.Duration
	CleanupLockTimeout    time.Duration
	ProgressFlushInterval time.Duration
}

// DefaultConfig returns sane worker defaults, grounded on the
// teacher's default pool sizing and the original's 250ms progress
// throttle.
func DefaultConfig() Config {
	return Config{
		Concurrency:           4,
		QueueSize:             64,
		CleanupInterval:       5 * time.Minute,
		ResultExpires:         24 * time.Hour,
		CleanupLockTimeout:    20 * time.Second,
		ProgressFlushInterval: 250 * time.Millisecond,
	}
}
