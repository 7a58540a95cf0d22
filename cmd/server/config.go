package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/quill-api/internal/config"
)

// loadAppConfig loads the configuration from path (or the default search
// locations when empty) and the environment.
func loadAppConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logConfig records the non-secret parts of the configuration.
func logConfig(log *slog.Logger, cfg *config.Config) {
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue_backend", cfg.Queue.Backend,
		"workers", cfg.Task.WorkerCount,
		"model", cfg.LLM.ModelName,
		"unit_cost", cfg.Credits.UnitCost)
	log.Debug("secrets present",
		"database_url", cfg.Database.URL != "",
		"jwt_secret", cfg.Auth.JWTSecret != "",
		"gemini_api_key", cfg.LLM.GeminiAPIKey != "")
}
