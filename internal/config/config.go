package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Credits  CreditsConfig  `mapstructure:"credits" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json text"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes is used by the token command when minting tokens.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string  `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string  `mapstructure:"model_name" validate:"required"`
	Temperature  float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// PromptTemplatePath overrides the built-in prompt template when set.
	PromptTemplatePath string        `mapstructure:"prompt_template_path" validate:"omitempty,file"`
	TotalTimeout       time.Duration `mapstructure:"total_timeout" validate:"gt=0"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" validate:"gt=0,ltefield=TotalTimeout"`
}

// TaskConfig contains settings for the background item runner.
type TaskConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"required,gt=0"`
	// StuckItemAge is how long an item may stay processing before the
	// stuck monitor requeues it. Must exceed LLM.TotalTimeout.
	StuckItemAge  time.Duration `mapstructure:"stuck_item_age" validate:"gt=0"`
	StuckInterval time.Duration `mapstructure:"stuck_interval" validate:"gt=0"`
	// MaxVersions is the upper bound for config.version_count on create.
	MaxVersions int `mapstructure:"max_versions" validate:"required,gte=1,lte=10"`
	// MaxItems caps the number of items in one create request.
	MaxItems int `mapstructure:"max_items" validate:"required,gte=1"`
}

// QueueConfig selects the dispatch backend.
type QueueConfig struct {
	Backend   string `mapstructure:"backend" validate:"required,oneof=memory redis"`
	RedisAddr string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int    `mapstructure:"redis_db" validate:"gte=0"`
	QueueName string `mapstructure:"queue_name" validate:"required"`
}

// CreditsConfig contains credit pricing.
type CreditsConfig struct {
	// UnitCost is charged per item on create and per item on reprocess.
	UnitCost int `mapstructure:"unit_cost" validate:"required,gt=0"`
	// SignupGrant is rewarded once when an unseen owner is first recorded.
	SignupGrant int `mapstructure:"signup_grant" validate:"gte=0"`
	// AuditConcurrency bounds the reconcile command's parallel audits.
	AuditConcurrency int `mapstructure:"audit_concurrency" validate:"required,gt=0"`
}
