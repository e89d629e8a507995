package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"calendar/crypto"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"sigs.k8s.io/yaml"
)

const placeholderKey = "CHANGE_ME_IN_PRODUCTION"

// Storage backends.
const (
	StorageFS     = "fs"
	StorageSQLite = "sqlite"
)

type Config struct {
	AppName    string `json:"app_name"`
	ListenIP   string `json:"listen_ip"`
	ListenPort int    `json:"listen_port"`
	SessionKey string `json:"session_key"`

	DataDir    string `json:"data_dir"`
	Storage    string `json:"storage"`
	SQLitePath string `json:"sqlite_path"`
	StaticDir  string `json:"static_dir"`

	BcryptCost           int  `json:"bcrypt_cost"`
	CookieSecure         bool `json:"cookie_secure"`
	SessionMaxAgeSeconds int  `json:"session_max_age_seconds"`
	TokenTTLMinutes      int  `json:"token_ttl_minutes"`
	DisableCSRF          bool `json:"disable_csrf"`
	Captcha              bool `json:"captcha"`

	CORSOrigins        []string `json:"cors_origins"`
	LoginAttempts      int      `json:"login_attempts"`
	LoginWindowMinutes int      `json:"login_window_minutes"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		AppName:              "Calendar",
		ListenIP:             "0.0.0.0",
		ListenPort:           8080,
		DataDir:              "./",
		Storage:              StorageFS,
		SQLitePath:           "calendar.db",
		StaticDir:            "static",
		BcryptCost:           12,
		SessionMaxAgeSeconds: 86400 * 7,
		TokenTTLMinutes:      24 * 60,
		LoginAttempts:        5,
		LoginWindowMinutes:   15,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Load builds the configuration from defaults, an optional JSON or YAML file,
// a .env file and CALENDAR_* environment variables, in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // fine when there is no .env

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.SessionKey == "" || cfg.SessionKey == placeholderKey {
		log.Warn().Msg("no session key configured, generating a random key; sessions will be invalidated on restart")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return nil, err
		}
		cfg.SessionKey = hex.EncodeToString(randomKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CALENDAR_SESSION_KEY"); v != "" {
		c.SessionKey = v
	}
	if v := os.Getenv("CALENDAR_LISTEN_IP"); v != "" {
		c.ListenIP = v
	}
	if v := os.Getenv("CALENDAR_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALENDAR_LISTEN_PORT: %w", err)
		}
		c.ListenPort = port
	}
	if v := os.Getenv("CALENDAR_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CALENDAR_STORAGE"); v != "" {
		c.Storage = v
	}
	if v := os.Getenv("CALENDAR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALENDAR_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.Storage != StorageFS && c.Storage != StorageSQLite {
		return fmt.Errorf("unknown storage %q (want %q or %q)", c.Storage, StorageFS, StorageSQLite)
	}
	if !crypto.ValidCost(c.BcryptCost) {
		return fmt.Errorf("bcrypt_cost %d out of range", c.BcryptCost)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.ListenPort)
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowMinutes) * time.Minute
}
