package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: lumira-test\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lumira-test", cfg.App.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "INBOX", cfg.Mailbox.Folder)
	assert.Equal(t, "Technical Support", cfg.Ingest.DefaultDepartment)
	assert.Equal(t, int64(128*1024), cfg.Ingest.BodyLimit)
	assert.Equal(t, "@every 1m", cfg.Scheduler.IngestSchedule)
	assert.Equal(t, "@every 5m", cfg.Scheduler.MonitorSchedule)
	assert.False(t, cfg.SLA.BusinessHours.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  host: db.internal
  port: 3306
mailbox:
  type: imaps
  host: mail.internal
  port: 993
  username: support@lumira.example
sla:
  business_hours:
    enabled: true
    workdays: [Mon, Tue, Wed, Thu, Fri]
    start_hour: 8
    end_hour: 18
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "imaps", cfg.Mailbox.Type)
	assert.Equal(t, 993, cfg.Mailbox.Port)
	assert.True(t, cfg.SLA.BusinessHours.Enabled)
	assert.Equal(t, 8, cfg.SLA.BusinessHours.StartHour)
	assert.Len(t, cfg.SLA.BusinessHours.Workdays, 5)
}

func TestLoadRejectsBadDriver(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: oracle\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestLoadRejectsInvertedBusinessHours(t *testing.T) {
	path := writeConfig(t, `
sla:
  business_hours:
    enabled: true
    start_hour: 18
    end_hour: 9
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LUMIRA_DATABASE_HOST", "env-db")
	path := writeConfig(t, "app:\n  name: x\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-db", cfg.Database.Host)
}
