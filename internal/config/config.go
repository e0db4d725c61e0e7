package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Liveness  LivenessConfig  `mapstructure:"liveness"  validate:"required"`
	Tick      TickConfig      `mapstructure:"tick"      validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains the shared secret workers use to sign the bearer
// tokens on outcome webhook calls.
type AuthConfig struct {
	WebhookJWTSecret string `mapstructure:"webhook_jwt_secret" validate:"required,min=32"`
}

// SchedulerConfig contains the admission selector's capacity and quota
// policy. The selector receives this struct at construction and never reads
// ambient state.
type SchedulerConfig struct {
	// DayMaxConcurrent and NightMaxConcurrent are the global execution slot
	// caps inside and outside the night window.
	DayMaxConcurrent   int `mapstructure:"day_max_concurrent"   validate:"required,gt=0"`
	NightMaxConcurrent int `mapstructure:"night_max_concurrent" validate:"required,gt=0"`

	// NightStartHour and NightEndHour bound the night window in UTC hours.
	// The window may wrap midnight (e.g. 22 -> 6).
	NightStartHour int `mapstructure:"night_start_hour" validate:"min=0,max=23"`
	NightEndHour   int `mapstructure:"night_end_hour"   validate:"min=0,max=23"`

	// ErrorCooldown keeps a task out of admission after a dispatch failure.
	ErrorCooldown time.Duration `mapstructure:"error_cooldown" validate:"required"`

	// ModelCaps overrides the built-in per-model in-flight caps.
	ModelCaps map[string]int `mapstructure:"model_caps"`

	// DefaultModelCap applies to models without an entry in ModelCaps.
	DefaultModelCap int `mapstructure:"default_model_cap" validate:"required,gt=0"`

	// ProviderCaps bounds in-flight work per upstream provider.
	ProviderCaps map[string]int `mapstructure:"provider_caps"`

	// SummaryInterval rate-limits the operator-facing queue summary.
	SummaryInterval time.Duration `mapstructure:"summary_interval" validate:"required"`
}

// LivenessConfig contains the staleness thresholds the lease tracker uses to
// declare workers dead. These are detection policy, not execution deadlines.
type LivenessConfig struct {
	// HeartbeatStaleness is how long a lease may go without a heartbeat
	// before its task is demoted back to the queue.
	HeartbeatStaleness time.Duration `mapstructure:"heartbeat_staleness" validate:"required"`

	// MaxLeaseAge hard-bounds a lease's lifetime from acquisition,
	// independent of heartbeat recency.
	MaxLeaseAge time.Duration `mapstructure:"max_lease_age" validate:"required"`

	// MissingLeaseGrace is the wait before demoting an in_progress task that
	// never produced a lease. Shorter than HeartbeatStaleness since there
	// was never a legitimate claim to wait out.
	MissingLeaseGrace time.Duration `mapstructure:"missing_lease_grace" validate:"required"`

	// ZombieAge marks tasks stuck in_progress long past expected activity.
	// Zombies are alarmed, never demoted.
	ZombieAge time.Duration `mapstructure:"zombie_age" validate:"required"`

	// AlertTTL deduplicates repeated demotion alerts for the same
	// observation.
	AlertTTL time.Duration `mapstructure:"alert_ttl" validate:"required"`

	// ZombieAlarmCooldown rate-limits the zombie count alarm separately
	// from the demotion alerts.
	ZombieAlarmCooldown time.Duration `mapstructure:"zombie_alarm_cooldown" validate:"required"`
}

// TickConfig controls the periodic scheduling loop.
type TickConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}
