package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("QUERY_WINDOW", "")
	t.Setenv("READINGS_MAX_PER_UNIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("expected :8000, got %s", cfg.HTTPAddr)
	}
	if cfg.QueryWindow != 10 {
		t.Fatalf("expected query window 10, got %d", cfg.QueryWindow)
	}
	if cfg.MaxReadingsPerUnit != 0 {
		t.Fatalf("expected unbounded retention, got %d", cfg.MaxReadingsPerUnit)
	}
	if cfg.MQTT.Topic != "units/+/readings" {
		t.Fatalf("unexpected mqtt topic %s", cfg.MQTT.Topic)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("QUERY_WINDOW", "25")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ALERT_NOTIFY_COOLDOWN", "90s")
	t.Setenv("READINGS_MAX_PER_UNIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueryWindow != 25 {
		t.Fatalf("expected 25, got %d", cfg.QueryWindow)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Notify.Cooldown != 90*time.Second {
		t.Fatalf("expected 90s cooldown, got %s", cfg.Notify.Cooldown)
	}
	if cfg.MaxReadingsPerUnit != 0 {
		t.Fatalf("expected fallback on bad int, got %d", cfg.MaxReadingsPerUnit)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydro.yaml")
	body := `
http_addr: ":9090"
max_readings_per_unit: 500
notify:
  webhook_url: http://hooks.local/alert
  cooldown: 2m
archive:
  influx:
    url: http://influx:8086
    bucket: hydro
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("QUERY_WINDOW", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.MaxReadingsPerUnit != 500 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Notify.Cooldown != 2*time.Minute {
		t.Fatalf("expected 2m cooldown, got %s", cfg.Notify.Cooldown)
	}
	if cfg.Notify.DedupeWindow != 10*time.Minute {
		t.Fatalf("expected env default to survive overlay, got %s", cfg.Notify.DedupeWindow)
	}
	if !cfg.Archive.Influx.Enabled() {
		t.Fatalf("expected influx enabled")
	}
	if cfg.QueryWindow != 10 {
		t.Fatalf("expected default query window, got %d", cfg.QueryWindow)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("query_window: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestValidateKafkaTopic(t *testing.T) {
	cfg := fromEnv()
	cfg.Kafka.Brokers = []string{"k1:9092"}
	cfg.Kafka.Topic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected kafka topic error")
	}
}
