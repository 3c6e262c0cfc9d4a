// Package config loads the shared configuration both batch components and
// the scheduler daemon read: ticket store DSN, mailbox account, SMTP
// account, and per-component tuning.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	SLA       SLAConfig       `mapstructure:"sla"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"`
	PortalURL string `mapstructure:"portal_url"`
	LogDir    string `mapstructure:"log_dir"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type MailboxConfig struct {
	Type     string `mapstructure:"type"` // imap, imaps, pop3, pop3s
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Folder   string `mapstructure:"folder"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type IngestConfig struct {
	DefaultDepartment string `mapstructure:"default_department"`
	TeamAddress       string `mapstructure:"team_address"`
	UploadDir         string `mapstructure:"upload_dir"`
	BodyLimit         int64  `mapstructure:"body_limit"`
	AttachmentLimit   int64  `mapstructure:"attachment_limit"`
}

type SLAConfig struct {
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`
}

// BusinessHoursConfig describes the optional working-hours calendar used
// when computing SLA due times. Disabled means plain wall-clock addition.
type BusinessHoursConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Workdays  []string `mapstructure:"workdays"`   // Mon..Sun
	StartHour int      `mapstructure:"start_hour"` // inclusive
	EndHour   int      `mapstructure:"end_hour"`   // exclusive
	Holidays  []string `mapstructure:"holidays"`   // MM-DD, recurring
}

type SchedulerConfig struct {
	IngestSchedule  string `mapstructure:"ingest_schedule"`
	MonitorSchedule string `mapstructure:"monitor_schedule"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration file at path (or ./config.yaml when empty)
// with LUMIRA_* environment overrides applied.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Env-only operation is allowed.
	}
	return unmarshal(v)
}

// LoadAndWatch behaves like Load and additionally invokes onChange with a
// freshly unmarshalled Config whenever the file changes on disk. Used by
// the long-running scheduler daemon.
func LoadAndWatch(path string, logger *log.Logger, onChange func(*Config)) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		fresh, err := unmarshal(v)
		if err != nil {
			if logger != nil {
				logger.Printf("config reload failed for %s: %v", e.Name, err)
			}
			return
		}
		if logger != nil {
			logger.Printf("config reloaded from %s", e.Name)
		}
		if onChange != nil {
			onChange(fresh)
		}
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lumira")
	}
	v.SetEnvPrefix("LUMIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lumira-support")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.portal_url", "http://localhost:8080")
	v.SetDefault("app.log_dir", "logs")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("mailbox.type", "imap")
	v.SetDefault("mailbox.folder", "INBOX")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("ingest.default_department", "Technical Support")
	v.SetDefault("ingest.upload_dir", "uploads")
	v.SetDefault("ingest.body_limit", 128*1024)
	v.SetDefault("ingest.attachment_limit", 25*1024*1024)

	v.SetDefault("sla.business_hours.enabled", false)
	v.SetDefault("sla.business_hours.start_hour", 9)
	v.SetDefault("sla.business_hours.end_hour", 17)

	v.SetDefault("scheduler.ingest_schedule", "@every 1m")
	v.SetDefault("scheduler.monitor_schedule", "@every 5m")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9190")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver must be postgres or mysql, got %q", c.Database.Driver)
	}
	if c.Ingest.BodyLimit <= 0 {
		return fmt.Errorf("ingest.body_limit must be positive")
	}
	if bh := c.SLA.BusinessHours; bh.Enabled && bh.StartHour >= bh.EndHour {
		return fmt.Errorf("sla.business_hours start_hour must precede end_hour")
	}
	return nil
}
