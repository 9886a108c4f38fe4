package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "wagateway"
	DefaultPGSSLMode  = "disable"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	CoreAPI   CoreAPIConfig   `toml:"core_api"`
	FileStore FileStoreConfig `toml:"file_store"`
	Outbox    OutboxConfig    `toml:"outbox"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	Issuer        string `toml:"issuer"`
	Audience      string `toml:"audience"`
	WebhookSecret string `toml:"webhook_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type WhatsAppConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type CoreAPIConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type FileStoreConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type OutboxConfig struct {
	SweepSchedule string `toml:"sweep_schedule"`
	MaxAttempts   int    `toml:"max_attempts"`
}

// Load reads the TOML config file and applies environment overrides.
// Environment variables take precedence so deployments can bind
// credentials and endpoints without touching the config file.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		WhatsApp: WhatsAppConfig{
			TimeoutSeconds: 15,
		},
		CoreAPI: CoreAPIConfig{
			TimeoutSeconds: 10,
		},
		FileStore: FileStoreConfig{
			TimeoutSeconds: 30,
		},
		Outbox: OutboxConfig{
			SweepSchedule: "@every 1m",
			MaxAttempts:   5,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Postgres.User, "POSTGRESQL_USERNAME")
	setString(&cfg.Postgres.Password, "POSTGRESQL_PASSWORD")
	setString(&cfg.Postgres.Host, "POSTGRESQL_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRESQL_PORT")
	setString(&cfg.Postgres.Database, "POSTGRESQL_DB_NAME")
	setString(&cfg.WhatsApp.BaseURL, "WHATSAPP_API_URL")
	setString(&cfg.CoreAPI.URL, "CORE_API_URL")
	setString(&cfg.CoreAPI.APIKey, "CORE_API_KEY")
	setString(&cfg.FileStore.BaseURL, "FILE_STORE_URL")
	setString(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_ISSUER")
	setString(&cfg.Auth.Audience, "AUTH_AUDIENCE")
	setString(&cfg.Auth.WebhookSecret, "WEBHOOK_SECRET")
	setString(&cfg.Server.Addr, "SERVER_ADDR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
