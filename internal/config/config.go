package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Reminder  ReminderConfig  `yaml:"reminder"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// Topic the reminder gateway publishes to; consumed by the
	// notification fan-out service.
	Topic string `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// ReminderConfig drives the dispatcher. Cadence must stay well under the
// 10-minute selection window or a delayed run can miss events entirely.
// The in-process overlap guard covers a single instance only; run one
// dispatcher per deployment, or put a distributed lock in front of Tick.
type ReminderConfig struct {
	Cadence        time.Duration `yaml:"cadence"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cfg.Reminder.Cadence <= 0 {
		cfg.Reminder.Cadence = 5 * time.Minute
	}
	if cfg.Reminder.GatewayTimeout <= 0 {
		cfg.Reminder.GatewayTimeout = 10 * time.Second
	}
	return &cfg, nil
}
