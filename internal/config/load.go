package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional YAML config file alongside the binary or in /etc/overseer.
	v.SetConfigName("overseer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/overseer")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables carry the day.
	}

	// Environment variables use the OVERSEER_ prefix with underscores for
	// nesting, e.g. OVERSEER_DATABASE_URL, OVERSEER_SCHEDULER_DAY_MAX_CONCURRENT.
	v.SetEnvPrefix("OVERSEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registering env-only keys lets AutomaticEnv feed them into Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.webhook_jwt_secret", "")

	v.SetDefault("scheduler.day_max_concurrent", 3)
	v.SetDefault("scheduler.night_max_concurrent", 5)
	v.SetDefault("scheduler.night_start_hour", 22)
	v.SetDefault("scheduler.night_end_hour", 6)
	v.SetDefault("scheduler.error_cooldown", 15*time.Minute)
	v.SetDefault("scheduler.default_model_cap", 2)
	v.SetDefault("scheduler.summary_interval", time.Hour)

	v.SetDefault("liveness.heartbeat_staleness", 30*time.Minute)
	v.SetDefault("liveness.max_lease_age", 4*time.Hour)
	v.SetDefault("liveness.missing_lease_grace", 10*time.Minute)
	v.SetDefault("liveness.zombie_age", 2*time.Hour)
	v.SetDefault("liveness.alert_ttl", time.Hour)
	v.SetDefault("liveness.zombie_alarm_cooldown", 2*time.Hour)

	v.SetDefault("tick.interval", time.Minute)
}
