package database

import "github.com/lumira-io/lumira-support/internal/config"

// SettingsFromConfig maps the database config block onto Settings.
func SettingsFromConfig(cfg config.DatabaseConfig) Settings {
	return Settings{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Name:            cfg.Name,
		User:            cfg.User,
		Password:        cfg.Password,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}
