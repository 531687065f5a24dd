package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	HTTPAddr           string        `yaml:"http_addr"`
	QueryWindow        int           `yaml:"query_window"`
	MaxReadingsPerUnit int           `yaml:"max_readings_per_unit"`
	Notify             NotifyConfig  `yaml:"notify"`
	Kafka              KafkaConfig   `yaml:"kafka"`
	MQTT               MQTTConfig    `yaml:"mqtt"`
	Archive            ArchiveConfig `yaml:"archive"`
}

// NotifyConfig configures the alert webhook.
type NotifyConfig struct {
	WebhookURL      string        `yaml:"webhook_url"`
	Template        string        `yaml:"template"`
	Cooldown        time.Duration `yaml:"cooldown"`
	DedupeWindow    time.Duration `yaml:"dedupe_window"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

// KafkaConfig configures the alert event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MQTTConfig configures reading ingestion over MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Topic     string        `yaml:"topic"`
	QoS       int           `yaml:"qos"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
	DedupeMax int           `yaml:"dedupe_max"`
}

// ArchiveConfig configures the write-only archive mirrors.
type ArchiveConfig struct {
	PostgresDSN   string        `yaml:"postgres_dsn"`
	PostgresTable string        `yaml:"postgres_table"`
	Influx        InfluxConfig  `yaml:"influx"`
	Timeout       time.Duration `yaml:"timeout"`
}

// InfluxConfig configures the InfluxDB mirror.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Enabled reports whether the Influx mirror is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

// Load builds the configuration from environment defaults, overlays the yaml
// file named by CONFIG_PATH when set, then validates the result.
func Load() (Config, error) {
	cfg := fromEnv()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fromEnv() Config {
	return Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8000"),
		QueryWindow:        getenvIntDefault("QUERY_WINDOW", 10),
		MaxReadingsPerUnit: getenvIntDefault("READINGS_MAX_PER_UNIT", 0),
		Notify: NotifyConfig{
			WebhookURL:      os.Getenv("ALERT_WEBHOOK_URL"),
			Template:        os.Getenv("ALERT_WEBHOOK_TEMPLATE"),
			Cooldown:        getenvDuration("ALERT_NOTIFY_COOLDOWN", 5*time.Minute),
			DedupeWindow:    getenvDuration("ALERT_NOTIFY_DEDUPE_WINDOW", 10*time.Minute),
			Timeout:         getenvDuration("ALERT_WEBHOOK_TIMEOUT", 5*time.Second),
			BreakerFailures: getenvIntDefault("ALERT_WEBHOOK_BREAKER_FAILURES", 5),
			BreakerOpenFor:  getenvDuration("ALERT_WEBHOOK_BREAKER_OPEN_FOR", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenvDefault("KAFKA_ALERT_TOPIC", "hydro.alerts"),
		},
		MQTT: MQTTConfig{
			Broker:    os.Getenv("MQTT_BROKER"),
			ClientID:  getenvDefault("MQTT_CLIENT_ID", "hydro-cloud"),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			Topic:     getenvDefault("MQTT_TOPIC", "units/+/readings"),
			QoS:       getenvIntDefault("MQTT_QOS", 1),
			DedupeTTL: getenvDuration("MQTT_DEDUPE_TTL", time.Minute),
			DedupeMax: getenvIntDefault("MQTT_DEDUPE_MAX", 10000),
		},
		Archive: ArchiveConfig{
			PostgresDSN:   os.Getenv("PG_DSN"),
			PostgresTable: getenvDefault("ARCHIVE_PG_TABLE", "reading_archive"),
			Influx: InfluxConfig{
				URL:         os.Getenv("INFLUX_URL"),
				Token:       os.Getenv("INFLUX_TOKEN"),
				Org:         os.Getenv("INFLUX_ORG"),
				Bucket:      os.Getenv("INFLUX_BUCKET"),
				Measurement: getenvDefault("INFLUX_MEASUREMENT", "unit_reading"),
			},
			Timeout: getenvDuration("ARCHIVE_TIMEOUT", 5*time.Second),
		},
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr required")
	}
	if c.QueryWindow <= 0 {
		return fmt.Errorf("config: query_window must be positive, got %d", c.QueryWindow)
	}
	if c.MaxReadingsPerUnit < 0 {
		return fmt.Errorf("config: max_readings_per_unit must not be negative, got %d", c.MaxReadingsPerUnit)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return errors.New("config: mqtt.topic required when broker is set")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic required when brokers are set")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
