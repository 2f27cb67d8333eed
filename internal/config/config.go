package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvAPIURL      = "LIVECHAT_API_URL"
	EnvPushURL     = "LIVECHAT_PUSH_URL"
	EnvAccessToken = "LIVECHAT_ACCESS_TOKEN"
	EnvCryptoKey   = "LIVECHAT_CRYPTO_KEY"
)

// Config represents the global ~/.livechat/config.toml.
type Config struct {
	DefaultProject string       `toml:"default_project"`
	API            APIConfig    `toml:"api"`
	Push           PushConfig   `toml:"push"`
	Crypto         CryptoConfig `toml:"crypto"`
	Auth           AuthConfig   `toml:"auth"`
}

// APIConfig locates the REST endpoints.
type APIConfig struct {
	BaseURL  string   `toml:"base_url"`
	SyncPath string   `toml:"sync_path,omitempty"`
	SendPath string   `toml:"send_path,omitempty"`
	Timeout  Duration `toml:"timeout,omitempty"`
}

// PushConfig locates the live update socket.
type PushConfig struct {
	URL           string   `toml:"url"`
	ReconnectBase Duration `toml:"reconnect_base,omitempty"`
	ReconnectMax  Duration `toml:"reconnect_max,omitempty"`
}

// CryptoConfig holds the hex payload envelope key. Empty disables it.
type CryptoConfig struct {
	Key string `toml:"key,omitempty"`
}

// AuthConfig holds the bearer tokens.
type AuthConfig struct {
	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithEnv reads path and envPath, both optional, and applies overrides:
// process environment first, then the dotenv file, then config.toml.
func LoadWithEnv(path, envPath string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}

	override(&cfg.API.BaseURL, lookup(EnvAPIURL))
	override(&cfg.Push.URL, lookup(EnvPushURL))
	override(&cfg.Auth.AccessToken, lookup(EnvAccessToken))
	override(&cfg.Crypto.Key, lookup(EnvCryptoKey))
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
