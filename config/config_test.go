package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	c := loadConfig()

	if c.Server.Port != "8080" {
		t.Errorf("default port = %q", c.Server.Port)
	}
	if c.Database.Type != "sqlite" {
		t.Errorf("default db type = %q", c.Database.Type)
	}
	if c.Generation.PollInterval != 2*time.Second {
		t.Errorf("default poll interval = %v", c.Generation.PollInterval)
	}
	if c.Generation.MaxPollAttempts != 30 {
		t.Errorf("default max poll attempts = %d", c.Generation.MaxPollAttempts)
	}
	if c.Generation.MaxWorkers != 2 {
		t.Errorf("default max workers = %d", c.Generation.MaxWorkers)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
generation:
  poll_interval: 500ms
  max_poll_attempts: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	c := loadConfig()

	if c.Server.Port != "9090" {
		t.Errorf("port = %q", c.Server.Port)
	}
	if c.Generation.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v", c.Generation.PollInterval)
	}
	if c.Generation.MaxPollAttempts != 5 {
		t.Errorf("max poll attempts = %d", c.Generation.MaxPollAttempts)
	}
	// 文件未覆盖的字段保留默认值
	if c.Generation.MaxWorkers != 2 {
		t.Errorf("max workers = %d", c.Generation.MaxWorkers)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_DSN", "user:pass@tcp(localhost:3306)/app")
	t.Setenv("GENERATION_MAX_POLL_ATTEMPTS", "10")

	c := loadConfig()

	if c.Database.Type != "mysql" {
		t.Errorf("db type = %q", c.Database.Type)
	}
	if c.Generation.MaxPollAttempts != 10 {
		t.Errorf("max poll attempts = %d", c.Generation.MaxPollAttempts)
	}
}

func TestLoadConfigClampsInvalidPollPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
generation:
  poll_interval: -1s
  max_poll_attempts: 0
  max_workers: -3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	c := loadConfig()

	if c.Generation.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v", c.Generation.PollInterval)
	}
	if c.Generation.MaxPollAttempts != 30 {
		t.Errorf("max poll attempts = %d", c.Generation.MaxPollAttempts)
	}
	if c.Generation.MaxWorkers != 2 {
		t.Errorf("max workers = %d", c.Generation.MaxWorkers)
	}
}
