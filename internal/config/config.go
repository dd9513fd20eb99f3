package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type APICfg struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type CredentialsCfg struct {
	Path string `mapstructure:"path"`
}

type LogCfg struct {
	Development bool `mapstructure:"development"`
}

type BreakerCfg struct {
	Failures       int `mapstructure:"failures"`
	OpenForSeconds int `mapstructure:"open_for_seconds"`
}

type MetricsCfg struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	API         APICfg         `mapstructure:"api"`
	Credentials CredentialsCfg `mapstructure:"credentials"`
	Log         LogCfg         `mapstructure:"log"`
	Breaker     BreakerCfg     `mapstructure:"breaker"`
	Metrics     MetricsCfg     `mapstructure:"metrics"`
	// Derived
	Timeout        time.Duration
	BreakerOpenFor time.Duration
}

// Load reads the optional YAML config and applies MEETMIND_* env overrides.
// A missing file is fine; defaults target a local backend.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("api.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("credentials.path", defaultCredentialsPath())
	v.SetDefault("log.development", false)
	v.SetDefault("breaker.failures", 5)
	v.SetDefault("breaker.open_for_seconds", 30)

	v.SetEnvPrefix("MEETMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	cfg.BreakerOpenFor = time.Duration(cfg.Breaker.OpenForSeconds) * time.Second
	return &cfg, nil
}

// bindEnvs maps the nested keys explicitly; AutomaticEnv alone does not see
// keys that never appear in the config file.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"api.base_url",
		"api.timeout_seconds",
		"credentials.path",
		"log.development",
		"breaker.failures",
		"breaker.open_for_seconds",
		"metrics.addr",
	} {
		_ = v.BindEnv(key)
	}
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meetmind/credentials.json"
	}
	return filepath.Join(home, ".meetmind", "credentials.json")
}
