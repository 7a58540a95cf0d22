package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// QUILL_DATABASE_URL for database.url.
const EnvPrefix = "QUILL"

// setDefaults registers defaults for every key so that viper's env
// binding sees them during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.prompt_template_path", "")
	v.SetDefault("llm.total_timeout", "3m")
	v.SetDefault("llm.idle_timeout", "45s")

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_item_age", "10m")
	v.SetDefault("task.stuck_interval", "1m")
	v.SetDefault("task.max_versions", 5)
	v.SetDefault("task.max_items", 500)

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.redis_addr", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.queue_name", "items")

	v.SetDefault("credits.unit_cost", 1)
	v.SetDefault("credits.signup_grant", 0)
	v.SetDefault("credits.audit_concurrency", 4)
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches for
// config.yaml in the working directory; a missing search result is not an
// error, a missing explicit file is.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct-tag constraints on cfg, plus the constraints
// that span sections.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	// An item still inside its generation deadline must never look stuck.
	if cfg.Task.StuckItemAge <= cfg.LLM.TotalTimeout {
		return fmt.Errorf("config validation failed: task.stuck_item_age (%s) must exceed llm.total_timeout (%s)",
			cfg.Task.StuckItemAge, cfg.LLM.TotalTimeout)
	}
	return nil
}
